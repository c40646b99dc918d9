// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

package canbus

import (
	"errors"
	"testing"
	"time"
)

func TestQueueDeliversInOrder(t *testing.T) {
	q := NewQueue(8)
	defer q.Close()

	first := MustFrame(0x10, []byte{1})
	second := MustFrame(0x20, []byte{2})
	if err := q.Send(first); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := q.Send(second); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got, err := q.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got != first {
		t.Errorf("first frame = %v, want %v", got, first)
	}
	got, err = q.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got != second {
		t.Errorf("second frame = %v, want %v", got, second)
	}
}

func TestQueueTimeoutWhenIdle(t *testing.T) {
	q := NewQueue(8)
	defer q.Close()

	_, err := q.Receive(time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Receive on idle queue = %v, want ErrTimeout", err)
	}
}

func TestQueueInjectError(t *testing.T) {
	q := NewQueue(8)
	defer q.Close()

	cause := errors.New("controller overrun")
	if err := q.InjectError(cause); err != nil {
		t.Fatalf("InjectError: %v", err)
	}

	_, err := q.Receive(time.Second)
	if !IsBusError(err) {
		t.Fatalf("Receive = %v, want a *BusError", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("bus error should wrap the injected cause, got %v", err)
	}
}

func TestQueueSendValidates(t *testing.T) {
	q := NewQueue(8)
	defer q.Close()

	if err := q.Send(Frame{ID: 1, Len: 9}); !errors.Is(err, ErrInvalidLen) {
		t.Fatalf("Send of invalid frame = %v, want ErrInvalidLen", err)
	}

	// InjectFrame bypasses validation for driver-fault simulation.
	if err := q.InjectFrame(Frame{ID: 1, Len: 9}); err != nil {
		t.Fatalf("InjectFrame: %v", err)
	}
	got, err := q.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got.Len != 9 {
		t.Errorf("injected frame Len = %d, want 9", got.Len)
	}
}

func TestQueueClose(t *testing.T) {
	q := NewQueue(8)
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := q.Receive(time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("Receive after Close = %v, want ErrClosed", err)
	}
	if err := q.Send(MustFrame(1, nil)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after Close = %v, want ErrClosed", err)
	}
	// Close is idempotent.
	if err := q.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSyntheticGeneratesSequence(t *testing.T) {
	s := NewSynthetic([]uint32{0x100, 0x200}, time.Millisecond, nil)
	defer s.Close()

	first, err := s.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if first.ID != 0x100 || first.Len != 8 {
		t.Errorf("first frame = %v", first)
	}

	second, err := s.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if second.ID != 0x200 {
		t.Errorf("second frame ID = %#x, want 0x200", second.ID)
	}
	if second.Data == first.Data {
		t.Error("payload counter did not advance")
	}
}

func TestSyntheticCloseUnblocksReceive(t *testing.T) {
	s := NewSynthetic(nil, time.Hour, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Receive(time.Hour)
		done <- err
	}()

	s.Close()
	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("Receive after Close = %v, want ErrClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Receive did not unblock after Close")
	}
}
