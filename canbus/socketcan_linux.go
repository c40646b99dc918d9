// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package canbus

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// canFrameSize is the size of the kernel's classical can_frame struct:
// 4 bytes id (with EFF/RTR/ERR flags), 1 byte dlc, 3 bytes padding,
// 8 bytes data, little-endian.
const canFrameSize = 16

// SocketCAN is a Source and Sink over a Linux SocketCAN interface
// using a raw AF_CAN socket. The receive timeout is applied with
// SO_RCVTIMEO, so each Receive blocks for at most the requested
// window without any helper goroutine.
//
// Receive and Send are not safe for concurrent use with themselves;
// the bridge's single control loop is the intended caller.
type SocketCAN struct {
	fd   int
	name string

	mu         sync.Mutex
	closed     bool
	rcvTimeout time.Duration
}

// OpenSocketCAN opens a raw CAN socket bound to the named interface
// (e.g. "can0"). The interface must exist and be up; see [Interface]
// for bring-up.
func OpenSocketCAN(name string) (*SocketCAN, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("canbus: interface %s: %w", name, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("canbus: socket: %w", err)
	}

	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: iface.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("canbus: bind %s: %w", name, err)
	}

	return &SocketCAN{fd: fd, name: name, rcvTimeout: -1}, nil
}

// Name returns the bound interface name.
func (s *SocketCAN) Name() string { return s.name }

// Receive reads the next data frame, blocking for at most timeout.
// Error frames surface as *BusError. Remote (RTR) frames carry no
// payload and are reported as an idle window.
func (s *SocketCAN) Receive(timeout time.Duration) (Frame, error) {
	if err := s.applyReceiveTimeout(timeout); err != nil {
		return Frame{}, err
	}

	var buf [canFrameSize]byte
	n, err := unix.Read(s.fd, buf[:])
	if err != nil {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return Frame{}, ErrClosed
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return Frame{}, ErrTimeout
		}
		return Frame{}, &BusError{Op: "receive", Err: err}
	}
	if n < canFrameSize {
		return Frame{}, &BusError{Op: "receive", Err: fmt.Errorf("short can_frame: %d bytes", n)}
	}

	id := binary.LittleEndian.Uint32(buf[0:4])
	if id&unix.CAN_ERR_FLAG != 0 {
		return Frame{}, &BusError{Op: "receive", Err: fmt.Errorf("error frame class %#x", id&unix.CAN_ERR_MASK)}
	}
	if id&unix.CAN_RTR_FLAG != 0 {
		return Frame{}, ErrTimeout
	}

	var frame Frame
	if id&unix.CAN_EFF_FLAG != 0 {
		frame.ID = id & unix.CAN_EFF_MASK
	} else {
		frame.ID = id & unix.CAN_SFF_MASK
	}
	// The dlc byte is taken as the driver delivered it. A value above
	// 8 is a driver fault that the caller validates and drops.
	frame.Len = buf[4]
	copy(frame.Data[:], buf[8:16])
	return frame, nil
}

// Send writes one data frame to the bus.
func (s *SocketCAN) Send(frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}

	id := frame.ID
	if frame.Extended() {
		id |= unix.CAN_EFF_FLAG
	}

	var buf [canFrameSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], id)
	buf[4] = frame.Len
	copy(buf[8:16], frame.Data[:])

	if _, err := unix.Write(s.fd, buf[:]); err != nil {
		return &BusError{Op: "send", Err: err}
	}
	return nil
}

// Close releases the socket. A blocked Receive returns ErrClosed.
func (s *SocketCAN) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return unix.Close(s.fd)
}

// applyReceiveTimeout sets SO_RCVTIMEO when the requested window
// differs from the last applied one. The control loop uses a fixed
// timeout, so this is one setsockopt for the process lifetime.
func (s *SocketCAN) applyReceiveTimeout(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if timeout == s.rcvTimeout {
		return nil
	}
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(s.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return &BusError{Op: "receive", Err: fmt.Errorf("SO_RCVTIMEO: %w", err)}
	}
	s.rcvTimeout = timeout
	return nil
}
