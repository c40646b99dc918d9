// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

// canlink-send generates CAN test traffic: synthetic frames cycling
// over a set of identifiers with a sequence counter payload, at a
// fixed rate.
//
// Frames go either onto a real CAN interface (--interface can0) for
// exercising a bridge end-to-end, or straight to a collector
// (--connect host:port) in the bridge's wire format for testing a
// collector without hardware.
package main
