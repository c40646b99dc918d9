// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

package canbus

import (
	"errors"
	"fmt"
	"time"
)

// Source yields inbound CAN frames. Receive blocks for at most the
// given timeout and returns exactly one of:
//
//   - a valid frame and nil error,
//   - [ErrTimeout] when no traffic occurred in the window (a normal
//     idle outcome — callers must not treat it as a fault),
//   - a [*BusError] for a per-receive driver fault (report and keep
//     looping; the driver is expected to recover on its own),
//   - [ErrClosed] once the source has been closed.
type Source interface {
	// Receive retrieves the next available frame, blocking for at
	// most timeout.
	Receive(timeout time.Duration) (Frame, error)

	// Close releases the underlying bus handle. Further Receive calls
	// return ErrClosed.
	Close() error
}

// Sink transmits CAN frames. Implemented by [SocketCAN] and [Queue];
// used by the traffic generator.
type Sink interface {
	Send(frame Frame) error
	Close() error
}

// ErrTimeout indicates no frame arrived within the receive window.
var ErrTimeout = errors.New("canbus: receive timeout")

// ErrClosed indicates the source or sink has been closed.
var ErrClosed = errors.New("canbus: closed")

// BusError is a per-receive bus driver fault: an error frame on the
// wire, a controller overrun, or a transient read failure. It is
// reported upward but does not stop the control loop; bus recovery is
// the driver's responsibility.
type BusError struct {
	// Op names the failing operation ("receive", "send").
	Op string

	// Err is the underlying driver or syscall error, if any.
	Err error
}

func (e *BusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("canbus: bus error during %s", e.Op)
	}
	return fmt.Sprintf("canbus: bus error during %s: %v", e.Op, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

// IsBusError reports whether err is a per-receive bus fault.
func IsBusError(err error) bool {
	var busError *BusError
	return errors.As(err, &busError)
}
