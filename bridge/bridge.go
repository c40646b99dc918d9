// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/canlink-project/canlink/canbus"
	"github.com/canlink-project/canlink/lib/clock"
)

// Backoff defaults for the reconnect loop. The floor keeps the bridge
// from hammering the network when the collector is down; the ceiling
// keeps recovery latency bounded once it comes back.
const (
	DefaultReceiveTimeout = 1 * time.Second
	DefaultBackoffMin     = 1 * time.Second
	DefaultBackoffMax     = 30 * time.Second
)

// Config assembles a Bridge. Source and Conn are required.
type Config struct {
	// Source yields inbound CAN frames.
	Source canbus.Source

	// Conn is the connection manager for the remote endpoint.
	Conn *Conn

	// ReceiveTimeout bounds each bus read. Defaults to 1s: long
	// enough to avoid busy-polling, short enough to keep the loop
	// responsive to connection-state changes.
	ReceiveTimeout time.Duration

	// BackoffMin and BackoffMax bound the reconnect backoff.
	// Defaults: 1s and 30s.
	BackoffMin time.Duration
	BackoffMax time.Duration

	// LinkReady, if non-nil, gates the first connect attempt: the
	// loop waits until the channel closes (or delivers once). The
	// network bring-up collaborator signals it when association and
	// address acquisition are done.
	LinkReady <-chan struct{}

	// Clock provides backoff timing. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives structured output. Defaults to slog.Default().
	Logger *slog.Logger
}

// Stats is a snapshot of the bridge counters.
type Stats struct {
	// Forwarded counts frames successfully written to the stream.
	Forwarded uint64

	// Dropped counts frames rejected before encoding (length above 8,
	// a bus-driver fault).
	Dropped uint64

	// Lost counts frames whose send failed mid-stream. Lost frames
	// are not retried.
	Lost uint64

	// BusErrors counts per-receive bus faults.
	BusErrors uint64

	// Connects counts successful connection establishments,
	// including the first.
	Connects uint64
}

// Bridge is the control loop: receive one frame, attempt to send one
// frame, repeat. It owns nothing but the loop; the connection belongs
// to Conn and the bus handle to the Source.
type Bridge struct {
	source         canbus.Source
	conn           *Conn
	receiveTimeout time.Duration
	backoffMin     time.Duration
	backoffMax     time.Duration
	linkReady      <-chan struct{}
	clock          clock.Clock
	logger         *slog.Logger

	forwarded atomic.Uint64
	dropped   atomic.Uint64
	lost      atomic.Uint64
	busErrors atomic.Uint64
	connects  atomic.Uint64
}

// New validates the configuration and creates a Bridge.
func New(cfg Config) (*Bridge, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("bridge: Source is required")
	}
	if cfg.Conn == nil {
		return nil, fmt.Errorf("bridge: Conn is required")
	}

	b := &Bridge{
		source:         cfg.Source,
		conn:           cfg.Conn,
		receiveTimeout: cfg.ReceiveTimeout,
		backoffMin:     cfg.BackoffMin,
		backoffMax:     cfg.BackoffMax,
		linkReady:      cfg.LinkReady,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
	}
	if b.receiveTimeout <= 0 {
		b.receiveTimeout = DefaultReceiveTimeout
	}
	if b.backoffMin <= 0 {
		b.backoffMin = DefaultBackoffMin
	}
	if b.backoffMax < b.backoffMin {
		b.backoffMax = DefaultBackoffMax
	}
	if b.clock == nil {
		b.clock = clock.Real()
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b, nil
}

// Stats returns a snapshot of the counters. Safe from any goroutine.
func (b *Bridge) Stats() Stats {
	return Stats{
		Forwarded: b.forwarded.Load(),
		Dropped:   b.dropped.Load(),
		Lost:      b.lost.Load(),
		BusErrors: b.busErrors.Load(),
		Connects:  b.connects.Load(),
	}
}

// Run drives the loop until ctx is cancelled, then closes the
// connection and returns nil. The only other way out is the Source
// reporting closed, which surfaces as an error: the bridge cannot run
// without a bus.
//
// Runtime faults never terminate the loop. Connect failures wait out a
// backoff interval and try again forever; bus errors and lost frames
// are counted, logged, and skipped.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.conn.Close()

	if b.linkReady != nil {
		b.logger.Info("waiting for link")
		select {
		case <-b.linkReady:
			b.logger.Info("link ready")
		case <-ctx.Done():
			return nil
		}
	}

	backoff := b.backoffMin
	for {
		if ctx.Err() != nil {
			return nil
		}

		if b.conn.State() != StateConnected {
			if err := b.conn.Connect(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				b.logger.Warn("connect failed, backing off",
					"remote", b.conn.Address(),
					"error", err,
					"backoff", backoff,
				)
				select {
				case <-b.clock.After(backoff):
				case <-ctx.Done():
					return nil
				}
				backoff = min(backoff*2, b.backoffMax)
				continue
			}
			b.connects.Add(1)
			backoff = b.backoffMin
		}

		frame, err := b.source.Receive(b.receiveTimeout)
		switch {
		case err == nil:
			// Fall through to forward.
		case errors.Is(err, canbus.ErrTimeout):
			// Idle window. Not an error, nothing to log.
			continue
		case errors.Is(err, canbus.ErrClosed):
			return fmt.Errorf("bridge: frame source closed")
		default:
			// Bus fault: the driver's problem to recover from. The
			// networking side keeps its state.
			b.busErrors.Add(1)
			b.logger.Warn("bus fault", "error", err)
			continue
		}

		if err := frame.Validate(); err != nil {
			b.dropped.Add(1)
			b.logger.Warn("frame dropped",
				"id", frame.ID,
				"len", int(frame.Len),
				"error", err,
			)
			continue
		}

		if err := b.conn.Send(frame); err != nil {
			// The connection is already invalidated; this frame is
			// lost (at-most-once). The next iteration reconnects.
			b.lost.Add(1)
			b.logger.Warn("frame lost",
				"id", frame.ID,
				"error", err,
			)
			continue
		}

		b.forwarded.Add(1)
		b.logger.Debug("frame forwarded",
			"id", frame.ID,
			"len", int(frame.Len),
		)
	}
}
