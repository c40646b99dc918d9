// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/canlink-project/canlink/lib/codec"
)

// Journal is an append-only stream of CBOR records compressed with
// zstd. Each process run appends a fresh zstd stream to the file;
// concatenated zstd streams decode as one, so ReadJournal sees a
// single record sequence across restarts.
//
// The journal is a raw capture for offline replay and analysis. It is
// written alongside the SQLite store, not instead of it.
//
// Journal is not safe for concurrent use; only the ingest loop writes.
type Journal struct {
	file       *os.File
	compressor *zstd.Encoder
	encoder    *codec.Encoder
	logger     *slog.Logger
	path       string
}

// OpenJournal opens (creating if needed) the journal file for
// appending. The caller must Close the journal to finalize the zstd
// stream; records flushed by Append survive a crash, unflushed ones do
// not.
func OpenJournal(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: opening %s: %w", path, err)
	}

	compressor, err := zstd.NewWriter(file,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("journal: zstd encoder: %w", err)
	}

	logger.Info("journal opened", "path", path)
	return &Journal{
		file:       file,
		compressor: compressor,
		encoder:    codec.NewEncoder(compressor),
		logger:     logger,
		path:       path,
	}, nil
}

// Append writes a batch of records and flushes the compressor so the
// bytes reach the file. Called once per batch interval; flushing per
// batch rather than per record keeps the zstd framing overhead down.
func (j *Journal) Append(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		if err := j.encoder.Encode(&records[i]); err != nil {
			return fmt.Errorf("journal: encoding record: %w", err)
		}
	}
	if err := j.compressor.Flush(); err != nil {
		return fmt.Errorf("journal: flush: %w", err)
	}
	return nil
}

// Close finalizes the zstd stream and closes the file.
func (j *Journal) Close() error {
	closeErr := j.compressor.Close()
	if err := j.file.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	if closeErr != nil {
		return fmt.Errorf("journal: closing %s: %w", j.path, closeErr)
	}
	j.logger.Info("journal closed", "path", j.path)
	return nil
}

// ReadJournal decodes every record in a journal file, in append order.
func ReadJournal(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: opening %s: %w", path, err)
	}
	defer file.Close()

	decompressor, err := zstd.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("journal: zstd decoder: %w", err)
	}
	defer decompressor.Close()

	decoder := codec.NewDecoder(decompressor)
	var records []Record
	for {
		var record Record
		if err := decoder.Decode(&record); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return nil, fmt.Errorf("journal: decoding %s: %w", path, err)
		}
		records = append(records, record)
	}
}
