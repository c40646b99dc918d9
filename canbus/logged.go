// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

package canbus

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Logged is a Source decorator that emits one structured log record
// per received frame and one per bus fault. Receive timeouts are not
// logged: an idle bus is not an event.
type Logged struct {
	inner  Source
	logger *slog.Logger
	level  slog.Level
}

// NewLogged wraps inner, logging received frames at the given level.
func NewLogged(inner Source, logger *slog.Logger, level slog.Level) *Logged {
	return &Logged{inner: inner, logger: logger, level: level}
}

// Receive forwards to the inner source and logs the outcome.
func (l *Logged) Receive(timeout time.Duration) (Frame, error) {
	frame, err := l.inner.Receive(timeout)
	switch {
	case err == nil:
		l.logger.Log(context.Background(), l.level, "can receive",
			"id", frame.ID,
			"len", int(frame.Len),
			"frame", frame.String(),
		)
	case errors.Is(err, ErrTimeout):
		// Idle window, nothing to report.
	case IsBusError(err):
		l.logger.Warn("can bus fault", "error", err)
	}
	return frame, err
}

// Close forwards to the inner source without logging.
func (l *Logged) Close() error {
	return l.inner.Close()
}
