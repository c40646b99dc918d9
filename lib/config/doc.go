// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for canlink binaries.
//
// Configuration is loaded from a single YAML file specified by:
//   - CANLINK_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
// Endpoint and bus parameters are fixed at startup: nothing in this
// package supports runtime renegotiation.
package config
