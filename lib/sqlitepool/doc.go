// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a canlink-standard SQLite connection pool.
//
// The collector uses this package for its frame store. It wraps
// zombiezen.com/go/sqlite with production-ready defaults: WAL journal
// mode, NORMAL synchronous for process-crash durability without
// fsync-per-commit overhead, memory-mapped I/O for read performance,
// and busy timeout to handle write contention gracefully.
//
// The pool is built on zombiezen's sqlitex.Pool, which manages a
// fixed-size set of connections. Callers [Pool.Take] a connection,
// perform work, and [Pool.Put] it back. Connections are NOT safe for
// concurrent use — each goroutine must hold its own connection for the
// duration of its work.
//
// # Pragmas
//
// Every connection in the pool is initialized with these pragmas:
//
//   - journal_mode=WAL: write-ahead logging for concurrent readers and
//     a single writer. The collector's ingest goroutine writes while
//     queries read without blocking each other.
//   - synchronous=NORMAL: transactions survive process crashes. Not
//     durable across OS crashes or power failure — acceptable for bus
//     telemetry where the source of truth is the live CAN stream.
//   - busy_timeout=5000: wait up to 5 seconds for a write lock instead
//     of returning SQLITE_BUSY immediately.
//   - cache_size=-8192: 8 MB page cache per connection.
//   - mmap_size=268435456: 256 MB memory-mapped I/O for reads.
//   - temp_store=MEMORY: temporary tables and indexes in memory.
//
// # Design
//
// This package is intentionally thin: it applies standard pragmas and
// exposes the underlying zombiezen types directly. The collector
// writes SQL, uses sqlitex.Execute for cached statements, and manages
// transactions with sqlitex.ImmediateTransaction. The goal is a shared
// foundation (one dependency, one set of pragmas, one pool pattern)
// without an abstraction layer that fights SQLite's strengths.
package sqlitepool
