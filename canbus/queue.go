// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

package canbus

import (
	"sync"
	"time"
)

// Queue is an in-memory CAN source and sink for tests and simulations.
// Frames pushed with Send come back out of Receive in order. InjectError
// schedules a bus fault at the corresponding position in the stream, so
// tests can script exact sequences of frames, timeouts, and faults.
type Queue struct {
	ch chan queueEvent

	mu   sync.Mutex
	dead bool
}

type queueEvent struct {
	frame Frame
	err   error
}

// NewQueue creates a Queue that buffers up to capacity pending events.
// A capacity of 64 matches a typical CAN controller receive queue.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{ch: make(chan queueEvent, capacity)}
}

// Send enqueues a frame for a later Receive. It validates the frame
// first: the Queue simulates a conforming bus driver, not a broken one.
// Use InjectFrame to push an invalid frame when testing driver-fault
// handling.
func (q *Queue) Send(frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	return q.push(queueEvent{frame: frame})
}

// InjectFrame enqueues a frame without validation, bypassing the
// conforming-driver check. Tests use this to simulate a bus driver
// handing over a frame with a length above 8.
func (q *Queue) InjectFrame(frame Frame) error {
	return q.push(queueEvent{frame: frame})
}

// InjectError enqueues a bus fault. The next Receive that reaches this
// position returns a *BusError wrapping err.
func (q *Queue) InjectError(err error) error {
	return q.push(queueEvent{err: &BusError{Op: "receive", Err: err}})
}

// push enqueues one event. The lock is held across the channel send so
// that Close cannot close the channel mid-send; the send itself never
// blocks.
func (q *Queue) push(ev queueEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.dead {
		return ErrClosed
	}
	select {
	case q.ch <- ev:
	default:
		// Receive queue overflow: the frame is silently lost, the
		// same way a saturated CAN controller drops at the driver
		// level.
	}
	return nil
}

// Receive returns the next pending event, or ErrTimeout if none
// arrives within timeout.
func (q *Queue) Receive(timeout time.Duration) (Frame, error) {
	select {
	case ev, ok := <-q.ch:
		if !ok {
			return Frame{}, ErrClosed
		}
		if ev.err != nil {
			return Frame{}, ev.err
		}
		return ev.frame, nil
	case <-time.After(timeout):
		return Frame{}, ErrTimeout
	}
}

// Close shuts the queue. Pending events are discarded; subsequent
// Receive and Send calls return ErrClosed.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.dead {
		return nil
	}
	q.dead = true
	close(q.ch)
	return nil
}
