// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package collector implements the receiving side of the canlink wire
// protocol: a TCP server that accepts bridge connections, decodes the
// frame stream, and persists frames.
//
// Each accepted connection gets its own decode goroutine running a
// [wire.Reader]. Decoded frames are stamped with the receive time and
// handed to a single ingest loop, which batches them into SQLite
// ([Store]) and optionally an append-only compressed journal
// ([Journal]). A desynchronized stream cannot be recovered in-band, so
// the connection is dropped and the bridge's reconnect logic takes it
// from there.
package collector
