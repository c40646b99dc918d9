// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/canlink-project/canlink/canbus"
)

func TestEncodeGoldenBytes(t *testing.T) {
	// The documented interoperability example: identifier 0x123,
	// length 2, payload AA BB.
	frame := canbus.MustFrame(0x123, []byte{0xAA, 0xBB})

	got, err := Encode(frame)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x00, 0x00, 0x01, 0x23, 0x02, 0xAA, 0xBB}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode = % X, want % X", got, want)
	}
}

func TestRoundTripAllLengths(t *testing.T) {
	for length := 0; length <= canbus.MaxDataLen; length++ {
		payload := make([]byte, length)
		for i := range payload {
			payload[i] = byte(0xF0 | i)
		}
		frame := canbus.MustFrame(0x1ABCDEF0&canbus.MaxExtendedID, payload)

		encoded, err := Encode(frame)
		if err != nil {
			t.Fatalf("len %d: Encode: %v", length, err)
		}
		if len(encoded) != HeaderLen+length {
			t.Fatalf("len %d: message size = %d, want %d", length, len(encoded), HeaderLen+length)
		}

		decoded, err := NewReader(bytes.NewReader(encoded)).ReadFrame()
		if err != nil {
			t.Fatalf("len %d: ReadFrame: %v", length, err)
		}
		if decoded != frame {
			t.Fatalf("len %d: round trip = %v, want %v", length, decoded, frame)
		}
	}
}

func TestEncodeRejectsOversizedLength(t *testing.T) {
	frame := canbus.Frame{ID: 0x42, Len: 9}
	if _, err := Encode(frame); !errors.Is(err, canbus.ErrInvalidLen) {
		t.Fatalf("Encode of len 9 = %v, want ErrInvalidLen", err)
	}

	var sink bytes.Buffer
	if err := NewWriter(&sink).WriteFrame(frame); !errors.Is(err, canbus.ErrInvalidLen) {
		t.Fatalf("WriteFrame of len 9 = %v, want ErrInvalidLen", err)
	}
	if sink.Len() != 0 {
		t.Fatalf("malformed frame reached the stream: % X", sink.Bytes())
	}
}

func TestWriterBackToBackMessages(t *testing.T) {
	var stream bytes.Buffer
	writer := NewWriter(&stream)

	frames := []canbus.Frame{
		canbus.MustFrame(0x123, []byte{0xAA, 0xBB}),
		canbus.MustFrame(0x7FF, nil),
		canbus.MustFrame(0x1FFFFFFF, []byte{1, 2, 3, 4, 5, 6, 7, 8}),
	}
	for _, frame := range frames {
		if err := writer.WriteFrame(frame); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	// No delimiters: total size is exactly the sum of message sizes.
	wantSize := 0
	for _, frame := range frames {
		wantSize += HeaderLen + int(frame.Len)
	}
	if stream.Len() != wantSize {
		t.Fatalf("stream size = %d, want %d", stream.Len(), wantSize)
	}

	reader := NewReader(&stream)
	for i, want := range frames {
		got, err := reader.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: ReadFrame: %v", i, err)
		}
		if got != want {
			t.Fatalf("frame %d = %v, want %v", i, got, want)
		}
	}
	if _, err := reader.ReadFrame(); err != io.EOF {
		t.Fatalf("after last frame, ReadFrame = %v, want io.EOF", err)
	}
}

func TestReaderDesyncIsSticky(t *testing.T) {
	// A header declaring 12 payload bytes cannot come from a
	// conforming sender; the stream has lost its boundaries.
	stream := bytes.NewReader([]byte{0x00, 0x00, 0x01, 0x23, 0x0C, 0xAA, 0xBB, 0xCC})
	reader := NewReader(stream)

	_, err := reader.ReadFrame()
	if !errors.Is(err, ErrDesync) {
		t.Fatalf("ReadFrame = %v, want ErrDesync", err)
	}

	// The reader refuses to guess at boundaries afterwards.
	if _, err := reader.ReadFrame(); !errors.Is(err, ErrDesync) {
		t.Fatalf("second ReadFrame = %v, want sticky ErrDesync", err)
	}
}

func TestReaderTruncatedMessage(t *testing.T) {
	// Header promises 2 payload bytes, stream ends after 1.
	stream := bytes.NewReader([]byte{0x00, 0x00, 0x01, 0x23, 0x02, 0xAA})
	if _, err := NewReader(stream).ReadFrame(); err != io.ErrUnexpectedEOF {
		t.Fatalf("ReadFrame = %v, want io.ErrUnexpectedEOF", err)
	}

	// A stream ending mid-header is also unexpected.
	stream = bytes.NewReader([]byte{0x00, 0x00})
	if _, err := NewReader(stream).ReadFrame(); err != io.ErrUnexpectedEOF {
		t.Fatalf("ReadFrame mid-header = %v, want io.ErrUnexpectedEOF", err)
	}
}
