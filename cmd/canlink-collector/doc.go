// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

// canlink-collector receives frame streams from canlink-bridge
// instances, storing frames in SQLite and optionally an append-only
// compressed journal.
//
// Configuration comes from the YAML file named by the CANLINK_CONFIG
// environment variable or the --config flag. The daemon runs until
// SIGINT or SIGTERM; on shutdown it drains open connections and
// flushes buffered frames before exiting.
package main
