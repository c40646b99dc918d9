// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

// canlink-bridge forwards frames from a CAN interface to a collector
// over TCP.
//
// Configuration comes from the YAML file named by the CANLINK_CONFIG
// environment variable or the --config flag. The daemon runs until
// SIGINT or SIGTERM, reconnecting to the collector indefinitely when
// the link drops. With --demo it generates synthetic traffic instead
// of opening a CAN interface, which is useful for exercising a
// collector without hardware.
package main
