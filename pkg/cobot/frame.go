// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cobot

import (
	"fmt"
	"time"
)

// Frame is one checksum-valid wire unit: start | length | crc | body
type Frame struct {
	body      []byte
	crc       uint8
	timestamp time.Time
}

// NewFrame wraps an already validated body
func NewFrame(body []byte) *Frame {
	return &Frame{
		body:      body,
		crc:       CalculateCRC(body),
		timestamp: time.Now(),
	}
}

// Body returns the frame body
func (f *Frame) Body() []byte {
	return f.body
}

// Length returns the body length
func (f *Frame) Length() uint8 {
	return uint8(len(f.body))
}

// CRC returns the frame checksum
func (f *Frame) CRC() uint8 {
	return f.crc
}

// Timestamp returns when the frame was decoded
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// WithTimestamp returns a copy of the frame stamped at t
func (f *Frame) WithTimestamp(t time.Time) *Frame {
	c := *f
	c.timestamp = t
	return &c
}

// CorruptFrameError reports a frame whose body failed the checksum.
// It is recovered locally and never aborts a wait.
type CorruptFrameError struct {
	Received   uint8
	Calculated uint8
	Length     uint8
}

func (e *CorruptFrameError) Error() string {
	return fmt.Sprintf("CRC mismatch: received 0x%02X, calculated 0x%02X (len=%d)", e.Received, e.Calculated, e.Length)
}

// EncodeFrame prepends the start marker, length and checksum to body
func EncodeFrame(body []byte) ([]byte, error) {
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrBodyTooLarge, len(body), MaxBodySize)
	}

	wire := make([]byte, 0, HeaderSize+len(body))
	wire = append(wire, StartByte, uint8(len(body)), CalculateCRC(body))
	wire = append(wire, body...)
	return wire, nil
}

// DecodeBody validates a frame already isolated by the read loop.
// wire must be the complete frame including the header.
func DecodeBody(wire []byte) ([]byte, error) {
	if len(wire) < HeaderSize {
		return nil, fmt.Errorf("frame too short: %d bytes", len(wire))
	}
	if wire[0] != StartByte {
		return nil, fmt.Errorf("missing start marker: 0x%02X", wire[0])
	}
	length := int(wire[1])
	if len(wire)-HeaderSize != length {
		return nil, fmt.Errorf("length mismatch: header says %d, have %d", length, len(wire)-HeaderSize)
	}
	body := wire[HeaderSize:]
	if !CheckCRC(body, wire[2]) {
		return nil, &CorruptFrameError{Received: wire[2], Calculated: CalculateCRC(body), Length: wire[1]}
	}
	return body, nil
}
