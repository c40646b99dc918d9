// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"github.com/canlink-project/canlink/canbus"
)

// Record is a received frame plus its receive timestamp. It is the
// unit of ingest: the same value is inserted into SQLite and appended
// to the journal. CBOR field names are part of the journal format.
type Record struct {
	// ReceivedAt is the collector-side receive time in Unix
	// nanoseconds. The wire format carries no timestamps, so this is
	// the only time attached to a frame.
	ReceivedAt int64 `cbor:"received_at"`

	// ID is the CAN identifier (11 or 29 bits).
	ID uint32 `cbor:"id"`

	// Data is the frame payload, 0-8 bytes.
	Data []byte `cbor:"data"`
}

// newRecord stamps a decoded frame with the receive time.
func newRecord(frame canbus.Frame, receivedAtNanos int64) Record {
	return Record{
		ReceivedAt: receivedAtNanos,
		ID:         frame.ID,
		Data:       append([]byte(nil), frame.Payload()...),
	}
}
