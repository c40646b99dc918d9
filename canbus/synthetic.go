// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

package canbus

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/canlink-project/canlink/lib/clock"
)

// Synthetic is a Source that fabricates bus traffic at a fixed rate:
// one frame per interval, cycling through a set of identifiers with a
// monotonically increasing counter in the payload. It backs the bridge
// daemon's --demo mode and the canlink-send generator, where no real
// CAN hardware is attached.
type Synthetic struct {
	ids      []uint32
	interval time.Duration
	clock    clock.Clock

	mu     sync.Mutex
	seq    uint64
	closed chan struct{}
	once   sync.Once
}

// NewSynthetic creates a generator emitting one frame per interval,
// round-robin over ids. If ids is empty, identifier 0x100 is used. If
// clk is nil, the real clock is used.
func NewSynthetic(ids []uint32, interval time.Duration, clk clock.Clock) *Synthetic {
	if len(ids) == 0 {
		ids = []uint32{0x100}
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Synthetic{
		ids:      ids,
		interval: interval,
		clock:    clk,
		closed:   make(chan struct{}),
	}
}

// Receive waits one generation interval and returns the next synthetic
// frame. If the interval exceeds timeout, it returns ErrTimeout after
// timeout, like an idle bus.
func (s *Synthetic) Receive(timeout time.Duration) (Frame, error) {
	select {
	case <-s.closed:
		return Frame{}, ErrClosed
	default:
	}

	wait := s.interval
	if wait > timeout {
		select {
		case <-s.clock.After(timeout):
			return Frame{}, ErrTimeout
		case <-s.closed:
			return Frame{}, ErrClosed
		}
	}

	select {
	case <-s.clock.After(wait):
	case <-s.closed:
		return Frame{}, ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	frame := Frame{ID: s.ids[s.seq%uint64(len(s.ids))], Len: 8}
	binary.BigEndian.PutUint64(frame.Data[:], s.seq)
	s.seq++
	return frame, nil
}

// Close stops the generator. Blocked Receive calls return ErrClosed.
func (s *Synthetic) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
