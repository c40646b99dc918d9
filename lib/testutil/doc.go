// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for canlink packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. Tests
// that exercise time-driven behavior (reconnect backoff, send rate)
// use lib/clock's FakeClock instead; these helpers exist only to keep
// a broken test from hanging the suite.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no canlink-internal dependencies.
package testutil
