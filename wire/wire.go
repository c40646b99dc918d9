// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the byte format the bridge sends per CAN
// frame and the collector reads back.
//
// Each message is a 5-byte header followed by the payload:
//
//	byte 0    : identifier bits 31-24
//	byte 1    : identifier bits 23-16
//	byte 2    : identifier bits 15-8
//	byte 3    : identifier bits 7-0
//	byte 4    : length (0-8)
//	bytes 5.. : payload, exactly `length` bytes, no padding
//
// Messages are 5 to 13 bytes and sent back-to-back with no delimiter.
// A reader stays synchronized only by the rule "read 5 bytes, then
// read length more": there are no sequence numbers, checksums, or
// resynchronization markers. A single lost byte desynchronizes the
// stream permanently; the only recovery is resetting the connection.
// [Reader] therefore treats a header length above 8 as [ErrDesync],
// a connection-fatal condition.
//
// The format must stay bit-exact for interoperability with existing
// listeners; it is the network byte order rendition of the CAN
// identifier, not the host-order layout SocketCAN uses in-kernel.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/canlink-project/canlink/canbus"
)

// Message size bounds.
const (
	HeaderLen  = 5
	MaxMessage = HeaderLen + canbus.MaxDataLen
)

// ErrDesync indicates the byte stream no longer holds message
// boundaries. The connection must be reset; no further reads can
// recover synchronization.
var ErrDesync = errors.New("wire: stream desynchronized")

// Append appends the encoded form of frame to dst and returns the
// extended slice. The frame must be valid; an oversized length is
// rejected so that a malformed frame can never reach the stream.
func Append(dst []byte, frame canbus.Frame) ([]byte, error) {
	if err := frame.Validate(); err != nil {
		return dst, err
	}
	dst = binary.BigEndian.AppendUint32(dst, frame.ID)
	dst = append(dst, frame.Len)
	dst = append(dst, frame.Data[:frame.Len]...)
	return dst, nil
}

// Encode returns the encoded form of frame: 5+Len bytes.
func Encode(frame canbus.Frame) ([]byte, error) {
	return Append(make([]byte, 0, MaxMessage), frame)
}

// Writer encodes frames onto an io.Writer. Each frame is issued as a
// single Write call so that consecutive messages appear back-to-back
// without interleaving, even if the underlying writer is shared.
//
// Writer is not safe for concurrent use.
type Writer struct {
	w   io.Writer
	buf []byte
}

// NewWriter returns a Writer encoding onto w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, buf: make([]byte, 0, MaxMessage)}
}

// WriteFrame encodes frame and writes it in one call. A short write
// surfaces as an error from the underlying writer.
func (w *Writer) WriteFrame(frame canbus.Frame) error {
	encoded, err := Append(w.buf[:0], frame)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(encoded); err != nil {
		return err
	}
	return nil
}

// Reader decodes frames from an io.Reader using the "read 5, then read
// length" rule.
//
// Reader is not safe for concurrent use.
type Reader struct {
	r        io.Reader
	desynced bool
}

// NewReader returns a Reader decoding from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFrame reads the next message. io.EOF is returned only on a clean
// message boundary; a stream ending mid-message yields
// io.ErrUnexpectedEOF. Once ReadFrame returns ErrDesync, every
// subsequent call returns ErrDesync: the stream cannot be trusted
// again until the connection is re-established.
func (r *Reader) ReadFrame() (canbus.Frame, error) {
	if r.desynced {
		return canbus.Frame{}, ErrDesync
	}

	var header [HeaderLen]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return canbus.Frame{}, io.ErrUnexpectedEOF
		}
		return canbus.Frame{}, err
	}

	length := header[4]
	if length > canbus.MaxDataLen {
		r.desynced = true
		return canbus.Frame{}, fmt.Errorf("%w: header declares %d payload bytes", ErrDesync, length)
	}

	frame := canbus.Frame{
		ID:  binary.BigEndian.Uint32(header[0:4]),
		Len: length,
	}
	if frame.ID > canbus.MaxExtendedID {
		r.desynced = true
		return canbus.Frame{}, fmt.Errorf("%w: identifier %#x above 29 bits", ErrDesync, frame.ID)
	}
	if _, err := io.ReadFull(r.r, frame.Data[:length]); err != nil {
		if err == io.EOF {
			return canbus.Frame{}, io.ErrUnexpectedEOF
		}
		return canbus.Frame{}, err
	}
	return frame, nil
}
