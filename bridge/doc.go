// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge forwards CAN frames onto a TCP stream in
// near-real-time.
//
// Two cooperating pieces run inside one sequential control loop:
//
// [Conn] owns the single outbound TCP connection and the wire
// encoding. It is a three-state machine (Disconnected, Connecting,
// Connected) driven only by connect attempts and send-failure
// detection. Any write error invalidates the connection: the socket is
// closed, the state drops to Disconnected, and the caller decides when
// to retry. Conn contains no timers and no background goroutines.
//
// [Bridge] drives the loop: reconnect with bounded exponential backoff
// when disconnected, read one frame with a bounded timeout, validate,
// encode, send, repeat. There is no queue between the bus and the
// socket — at most one frame is in flight, so sustained bus traffic
// above the achievable TCP send rate overflows the driver's receive
// queue rather than growing memory here. Delivery is at-most-once: a
// frame whose send fails is lost, not retried.
//
// Bus faults and network faults are independent failure domains. A bus
// error never tears down the connection; a send failure never stops
// bus reads for longer than the reconnect takes.
package bridge
