// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/canlink-project/canlink/canbus"
	"github.com/canlink-project/canlink/wire"
)

// State is the connection manager's lifecycle state. Only Conn mutates
// it; other components read it to decide whether a reconnect is due.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Dialer opens the outbound connection. net.Dialer satisfies the
// production case via [NetDialer]; tests substitute an in-memory
// implementation.
type Dialer interface {
	DialContext(ctx context.Context, address string) (net.Conn, error)
}

// NetDialer opens TCP connections with an optional per-attempt timeout.
type NetDialer struct {
	// Timeout is the maximum time to wait for a TCP connection to be
	// established. Zero means no standalone timeout — only the context
	// deadline applies.
	Timeout time.Duration
}

// DialContext opens a TCP connection to the given address (host:port).
func (d *NetDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	return (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
}

// ErrNotConnected is returned by Send when no connection is
// established. The caller reconnects before trying again.
var ErrNotConnected = errors.New("bridge: not connected")

// SendError reports a mid-stream transport failure. By the time the
// caller sees it, the connection has already been invalidated and the
// state is Disconnected; the frame that failed is lost.
type SendError struct {
	Err error
}

func (e *SendError) Error() string { return fmt.Sprintf("bridge: send failed: %v", e.Err) }

func (e *SendError) Unwrap() error { return e.Err }

// Conn is the connection manager: one outbound TCP connection to one
// fixed remote endpoint, plus the wire encoding. It owns the socket
// exclusively — it is the only writer and the only closer.
//
// Connect and Send are called from the single control loop; State may
// be read from any goroutine.
type Conn struct {
	address string
	dialer  Dialer
	logger  *slog.Logger

	state  atomic.Int32
	socket net.Conn
	writer *wire.Writer
}

// NewConn creates a connection manager for the given remote endpoint.
// The initial state is Disconnected; nothing is dialed until Connect.
// If dialer is nil, a NetDialer with a 10 second attempt timeout is
// used. If logger is nil, slog.Default() is used.
func NewConn(address string, dialer Dialer, logger *slog.Logger) *Conn {
	if dialer == nil {
		dialer = &NetDialer{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		address: address,
		dialer:  dialer,
		logger:  logger,
	}
}

// State returns the current connection state.
func (c *Conn) State() State { return State(c.state.Load()) }

// Address returns the fixed remote endpoint.
func (c *Conn) Address() string { return c.address }

// Connect establishes the TCP connection. On failure the state remains
// Disconnected and the error is returned; the caller owns the retry
// policy. Calling Connect while already connected is a no-op.
func (c *Conn) Connect(ctx context.Context) error {
	if c.State() == StateConnected {
		return nil
	}

	c.state.Store(int32(StateConnecting))
	socket, err := c.dialer.DialContext(ctx, c.address)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("bridge: connect %s: %w", c.address, err)
	}

	c.socket = socket
	c.writer = wire.NewWriter(socket)
	c.state.Store(int32(StateConnected))
	c.logger.Info("connected", "remote", c.address)
	return nil
}

// Send encodes the frame and writes it to the socket. A frame that
// fails validation is rejected without touching the connection. Any
// transport failure invalidates the connection: the socket is closed,
// the state drops to Disconnected, and a *SendError is returned.
func (c *Conn) Send(frame canbus.Frame) error {
	if c.State() != StateConnected {
		return &SendError{Err: ErrNotConnected}
	}
	if err := frame.Validate(); err != nil {
		return err
	}
	if err := c.writer.WriteFrame(frame); err != nil {
		c.invalidate(err)
		return &SendError{Err: err}
	}
	return nil
}

// Close releases the socket if one is open and drops the state to
// Disconnected. Safe to call repeatedly.
func (c *Conn) Close() error {
	if c.socket == nil {
		c.state.Store(int32(StateDisconnected))
		return nil
	}
	err := c.socket.Close()
	c.socket = nil
	c.writer = nil
	c.state.Store(int32(StateDisconnected))
	return err
}

// invalidate tears down the connection after a transport failure.
func (c *Conn) invalidate(cause error) {
	c.logger.Warn("connection invalidated",
		"remote", c.address,
		"error", cause,
	)
	if c.socket != nil {
		c.socket.Close()
		c.socket = nil
		c.writer = nil
	}
	c.state.Store(int32(StateDisconnected))
}
