// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

package canbus

import (
	"errors"
	"fmt"
	"strings"
)

// Frame represents one classical CAN (2.0A/2.0B) data frame.
//
// The identifier is stored in 32 bits with the unused high bits zero.
// Only the first Len bytes of Data are meaningful; a receiver must not
// trust the trailing bytes.
type Frame struct {
	// ID is the CAN identifier: 11 bits (standard) or 29 bits
	// (extended) significant.
	ID uint32

	// Len is the data length code, 0..8.
	Len uint8

	// Data holds the payload. Bytes past Len are undefined.
	Data [8]byte
}

// Identifier and payload limits for classical CAN.
const (
	MaxStandardID uint32 = 0x7FF
	MaxExtendedID uint32 = 0x1FFFFFFF
	MaxDataLen           = 8
)

var (
	// ErrInvalidID indicates an identifier above 29 significant bits.
	ErrInvalidID = errors.New("canbus: invalid identifier")

	// ErrInvalidLen indicates a data length code above 8. A frame like
	// this is a fault of the bus driver and must be dropped, never
	// forwarded.
	ErrInvalidLen = errors.New("canbus: invalid data length")
)

// Validate returns an error if the frame is not a valid classical CAN
// data frame.
func (f Frame) Validate() error {
	if f.Len > MaxDataLen {
		return fmt.Errorf("%w: %d", ErrInvalidLen, f.Len)
	}
	if f.ID > MaxExtendedID {
		return fmt.Errorf("%w: %#x", ErrInvalidID, f.ID)
	}
	return nil
}

// Extended reports whether the identifier requires the 29-bit extended
// format.
func (f Frame) Extended() bool { return f.ID > MaxStandardID }

// Payload returns the meaningful prefix of Data. The returned slice
// aliases the frame's array and is only valid while f is unchanged.
func (f *Frame) Payload() []byte { return f.Data[:f.Len] }

// String renders the frame in the conventional "ID#DATA" form, e.g.
// "123#AABB".
func (f Frame) String() string {
	var b strings.Builder
	if f.Extended() {
		fmt.Fprintf(&b, "%08X#", f.ID)
	} else {
		fmt.Fprintf(&b, "%03X#", f.ID)
	}
	for _, v := range f.Data[:min(int(f.Len), MaxDataLen)] {
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

// MustFrame constructs a Frame and panics if it would be invalid.
// Convenience for tests and examples.
func MustFrame(id uint32, data []byte) Frame {
	if len(data) > MaxDataLen {
		panic(ErrInvalidLen)
	}
	f := Frame{ID: id, Len: uint8(len(data))}
	copy(f.Data[:], data)
	if err := f.Validate(); err != nil {
		panic(err)
	}
	return f
}
