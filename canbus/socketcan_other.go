// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package canbus

import (
	"errors"
	"time"
)

var errNoSocketCAN = errors.New("canbus: SocketCAN requires linux")

// SocketCAN is only available on linux. This stub keeps the bridge
// daemon compiling elsewhere for development; OpenSocketCAN always
// fails.
type SocketCAN struct{}

// OpenSocketCAN fails on non-linux platforms.
func OpenSocketCAN(name string) (*SocketCAN, error) {
	return nil, errNoSocketCAN
}

func (s *SocketCAN) Name() string { return "" }

func (s *SocketCAN) Receive(timeout time.Duration) (Frame, error) {
	return Frame{}, errNoSocketCAN
}

func (s *SocketCAN) Send(frame Frame) error { return errNoSocketCAN }

func (s *SocketCAN) Close() error { return nil }
