// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/canlink-project/canlink/lib/sqlitepool"
)

// frameSchema is the frame table and its indexes. Applied to every
// pool connection; CREATE IF NOT EXISTS makes it idempotent.
const frameSchema = `
	CREATE TABLE IF NOT EXISTS frames (
		received_at INTEGER NOT NULL,
		can_id      INTEGER NOT NULL,
		length      INTEGER NOT NULL,
		payload     BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_frames_received_at ON frames (received_at);
	CREATE INDEX IF NOT EXISTS idx_frames_can_id ON frames (can_id, received_at);
`

// Store persists received frames in SQLite.
//
// Write path: the ingest loop calls WriteBatch once per batch
// interval; the whole batch goes in a single IMMEDIATE transaction.
// There is exactly one writer, so writes never contend; extra pool
// connections serve concurrent queries.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// StoreConfig holds the parameters for opening a frame store.
type StoreConfig struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist. ":memory:" works for tests with
	// PoolSize 1.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to
	// 4 if zero or negative.
	PoolSize int

	// Logger receives operational messages. If nil, logs are
	// discarded.
	Logger *slog.Logger
}

// OpenStore opens the frame database, creating the file and schema if
// they do not exist. The caller must Close the store when done.
func OpenStore(cfg StoreConfig) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, frameSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("frame store: %w", err)
	}

	return &Store{pool: pool, logger: logger}, nil
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (s *Store) Close() error {
	return s.pool.Close()
}

// WriteBatch inserts a batch of records in a single IMMEDIATE
// transaction. An empty batch is a no-op.
func (s *Store) WriteBatch(ctx context.Context, records []Record) (err error) {
	if len(records) == 0 {
		return nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("frame store: write batch: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("frame store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for i := range records {
		record := &records[i]
		err = sqlitex.Execute(conn,
			`INSERT INTO frames (received_at, can_id, length, payload) VALUES (?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{
					record.ReceivedAt,
					int64(record.ID),
					len(record.Data),
					record.Data,
				},
			})
		if err != nil {
			return fmt.Errorf("frame store: insert frame: %w", err)
		}
	}

	return nil
}

// RecentFrames returns up to limit records, newest first.
func (s *Store) RecentFrames(ctx context.Context, limit int) ([]Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("frame store: recent frames: %w", err)
	}
	defer s.pool.Put(conn)

	var records []Record
	err = sqlitex.Execute(conn,
		`SELECT received_at, can_id, payload FROM frames ORDER BY received_at DESC, rowid DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				payload := make([]byte, stmt.ColumnLen(2))
				stmt.ColumnBytes(2, payload)
				records = append(records, Record{
					ReceivedAt: stmt.ColumnInt64(0),
					ID:         uint32(stmt.ColumnInt64(1)),
					Data:       payload,
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("frame store: recent frames: %w", err)
	}
	return records, nil
}

// CountFrames returns the total number of stored frames.
func (s *Store) CountFrames(ctx context.Context) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("frame store: count: %w", err)
	}
	defer s.pool.Put(conn)

	var count int64
	err = sqlitex.Execute(conn, `SELECT COUNT(*) FROM frames`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("frame store: count: %w", err)
	}
	return count, nil
}
