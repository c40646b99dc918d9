// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/canlink-project/canlink/lib/clock"
	"github.com/canlink-project/canlink/lib/netutil"
	"github.com/canlink-project/canlink/wire"
)

// DefaultBatchInterval is how often the ingest loop flushes buffered
// records to the store and journal.
const DefaultBatchInterval = time.Second

// maxBatchSize bounds the ingest buffer. A full buffer flushes
// immediately rather than waiting for the ticker, so a high-rate bus
// cannot balloon memory between intervals.
const maxBatchSize = 512

// Config holds the parameters for a collector server.
type Config struct {
	// Listen is the TCP address to listen on (e.g. ":5000").
	Listen string

	// Store receives every decoded frame. Required.
	Store *Store

	// Journal additionally captures every frame when non-nil.
	Journal *Journal

	// BatchInterval is the flush period for the ingest loop. Defaults
	// to DefaultBatchInterval.
	BatchInterval time.Duration

	// Clock provides receive timestamps and the flush ticker. Defaults
	// to the real clock.
	Clock clock.Clock

	// Logger receives structured log output. If nil, slog.Default()
	// is used. Per-connection events are logged at Debug level;
	// lifecycle events and faults at Info/Warn/Error.
	Logger *slog.Logger
}

// Server accepts bridge connections and ingests their frame streams.
type Server struct {
	listen        string
	store         *Store
	journal       *Journal
	batchInterval time.Duration
	clock         clock.Clock
	logger        *slog.Logger

	listener    net.Listener
	cancel      context.CancelFunc
	done        chan struct{}
	connections sync.WaitGroup
	ingest      chan Record

	received atomic.Int64
	stored   atomic.Int64
	dropped  atomic.Int64
}

// Stats is a snapshot of the server's counters.
type Stats struct {
	// Received counts frames decoded off connections.
	Received int64

	// Stored counts records committed to the store.
	Stored int64

	// Dropped counts connections dropped for stream desynchronization.
	Dropped int64
}

// New validates cfg and returns an unstarted server.
func New(cfg Config) (*Server, error) {
	if cfg.Listen == "" {
		return nil, fmt.Errorf("collector: Listen is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("collector: Store is required")
	}
	if cfg.BatchInterval == 0 {
		cfg.BatchInterval = DefaultBatchInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		listen:        cfg.Listen,
		store:         cfg.Store,
		journal:       cfg.Journal,
		batchInterval: cfg.BatchInterval,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
	}, nil
}

// Start binds the listener and launches the accept and ingest loops.
// It returns once the listener is accepting; the server runs in the
// background until Stop is called or the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("collector: failed to listen on %s: %w", s.listen, err)
	}
	s.listener = listener

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.ingest = make(chan Record, maxBatchSize)

	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		s.acceptLoop(ctx)
	}()
	go func() {
		defer loops.Done()
		s.ingestLoop(ctx)
	}()
	go func() {
		defer close(s.done)
		loops.Wait()
	}()

	s.logger.Info("collector started", "listen_addr", listener.Addr().String())
	return nil
}

// Addr returns the listener's address, useful when binding to port 0.
// Returns nil if the server has not been started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts down the server: stops accepting, closes in-flight
// connections, and flushes buffered records before returning.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	if s.done != nil {
		<-s.done
	}
}

// Wait blocks until the server has stopped.
func (s *Server) Wait() {
	if s.done != nil {
		<-s.done
	}
}

// Stats returns a snapshot of the counters.
func (s *Server) Stats() Stats {
	return Stats{
		Received: s.received.Load(),
		Stored:   s.stored.Load(),
		Dropped:  s.dropped.Load(),
	}
}

// acceptLoop accepts connections until the listener closes. It waits
// for all in-flight connection goroutines to finish before returning,
// so that closing the done channel signals full quiescence.
func (s *Server) acceptLoop(ctx context.Context) {
	var connectionCount int64

	for {
		connection, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.connections.Wait()
				return
			default:
				s.logger.Error("accept failed", "error", err)
				continue
			}
		}

		connectionCount++
		connectionID := connectionCount
		s.connections.Add(1)
		go func() {
			defer s.connections.Done()
			s.handleConnection(ctx, connection, connectionID)
		}()
	}
}

// handleConnection decodes one bridge's frame stream until the
// connection closes, the stream desynchronizes, or the server stops.
func (s *Server) handleConnection(ctx context.Context, connection net.Conn, connectionID int64) {
	defer connection.Close()

	// Unblock the decode loop's pending Read on shutdown.
	stop := context.AfterFunc(ctx, func() { connection.Close() })
	defer stop()

	logger := s.logger.With("connection_id", connectionID)
	logger.Debug("connection accepted", "remote_addr", connection.RemoteAddr())

	reader := wire.NewReader(connection)
	for {
		frame, err := reader.ReadFrame()
		switch {
		case err == nil:
			// Fall through to ingest.
		case errors.Is(err, io.EOF):
			logger.Debug("connection closed by peer")
			return
		case errors.Is(err, wire.ErrDesync):
			// The stream has no resynchronization markers; the only
			// recovery is a fresh connection.
			s.dropped.Add(1)
			logger.Warn("stream desynchronized, dropping connection", "error", err)
			return
		case netutil.IsExpectedCloseError(err):
			logger.Debug("connection closed", "error", err)
			return
		default:
			logger.Warn("read failed, dropping connection", "error", err)
			return
		}

		s.received.Add(1)
		record := newRecord(frame, s.clock.Now().UnixNano())
		select {
		case s.ingest <- record:
		case <-ctx.Done():
			return
		}
	}
}

// ingestLoop batches records from the ingest channel and flushes them
// to the store (and journal) on every tick, on a full buffer, and on
// shutdown.
func (s *Server) ingestLoop(ctx context.Context) {
	ticker := s.clock.NewTicker(s.batchInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, maxBatchSize)
	for {
		select {
		case record := <-s.ingest:
			batch = append(batch, record)
			if len(batch) >= maxBatchSize {
				batch = s.flush(batch)
			}
		case <-ticker.C:
			batch = s.flush(batch)
		case <-ctx.Done():
			// Connection handlers have seen ctx.Done and stopped
			// sending; drain what is already buffered in the channel.
			for {
				select {
				case record := <-s.ingest:
					batch = append(batch, record)
					continue
				default:
				}
				break
			}
			s.flush(batch)
			return
		}
	}
}

// flush commits a batch to the store and journal and returns the
// emptied buffer. A failed store write keeps the daemon running: the
// batch is lost, the fault is logged, and ingest continues.
func (s *Server) flush(batch []Record) []Record {
	if len(batch) == 0 {
		return batch
	}

	// Shutdown must still flush, so this does not use the loop ctx.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.store.WriteBatch(ctx, batch); err != nil {
		s.logger.Error("batch write failed",
			"records", len(batch),
			"error", err,
		)
	} else {
		s.stored.Add(int64(len(batch)))
	}

	if s.journal != nil {
		if err := s.journal.Append(batch); err != nil {
			s.logger.Error("journal append failed",
				"records", len(batch),
				"error", err,
			)
		}
	}

	return batch[:0]
}
