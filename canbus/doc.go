// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package canbus provides the CAN frame model and bus access for canlink.
//
// [Frame] is the value type for one bus message: a 32-bit identifier
// (11 or 29 significant bits), a data length code of 0-8, and up to 8
// payload bytes. [Source] is the capability the bridge consumes: a
// bounded-blocking receive that yields a frame, a timeout, or a bus
// error. A timeout is a normal idle outcome, never an error condition.
//
// Implementations:
//   - [SocketCAN] (linux): raw AF_CAN socket over a SocketCAN
//     interface, with the receive bound by SO_RCVTIMEO.
//   - [Queue]: an in-memory scripted source for tests and simulations.
//   - [Synthetic]: a rate-limited generator of synthetic traffic for
//     demos and load testing.
//   - [Logged]: a decorator that emits one structured log record per
//     received frame.
//
// [Interface] (linux) brings the CAN network interface administratively
// up or down via netlink, the "link ready" precondition for the bridge.
package canbus
