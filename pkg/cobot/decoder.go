// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cobot

import (
	"fmt"
	"time"
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateLength
	stateCRC
	stateBody
)

// Decoder implements the frame decoder state machine.
// Frames are length-delimited, so a start byte inside a valid body is data.
// When a frame is rejected, its bytes after the start marker are scanned
// again, so a truncated frame cannot swallow the frame behind it.
type Decoder struct {
	state   int
	length  uint8
	crc     uint8
	body    []byte
	skipped int
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state: stateIdle,
		body:  make([]byte, 0, MaxBodySize),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.length = 0
	d.crc = 0
	d.body = d.body[:0]
}

// Skipped returns how many bytes were discarded while hunting for a start byte
func (d *Decoder) Skipped() int {
	return d.skipped
}

// Pending reports whether a frame is partially decoded
func (d *Decoder) Pending() bool {
	return d.state != stateIdle
}

// Decode runs data through the state machine. fn is called in stream order
// with each completed frame, or with a *CorruptFrameError for each frame
// that fails the checksum.
func (d *Decoder) Decode(data []byte, fn func(frame *Frame, err error)) {
	for _, b := range data {
		d.step(b, fn)
	}
}

// Flush abandons a partially decoded frame and rescans its bytes after the
// start marker. fn receives an ErrTruncatedFrame error for the abandoned
// frame, then whatever the rescan completes.
func (d *Decoder) Flush(fn func(frame *Frame, err error)) {
	if d.state == stateIdle {
		return
	}
	got, want := len(d.body), int(d.length)
	rescan := d.consumed()
	d.Reset()

	fn(nil, fmt.Errorf("%w: %d of %d body bytes", ErrTruncatedFrame, got, want))
	d.Decode(rescan, fn)
}

func (d *Decoder) step(b byte, fn func(*Frame, error)) {
	switch d.state {
	case stateIdle:
		if b == StartByte {
			d.state = stateLength
		} else {
			d.skipped++
		}

	case stateLength:
		d.length = b
		d.state = stateCRC

	case stateCRC:
		d.crc = b
		d.state = stateBody
		if d.length == 0 {
			d.finish(fn)
		}

	case stateBody:
		d.body = append(d.body, b)
		if len(d.body) >= int(d.length) {
			d.finish(fn)
		}

	default:
		d.Reset()
	}
}

func (d *Decoder) finish(fn func(*Frame, error)) {
	if CheckCRC(d.body, d.crc) {
		body := make([]byte, len(d.body))
		copy(body, d.body)
		frame := &Frame{body: body, crc: d.crc, timestamp: time.Now()}
		d.Reset()
		fn(frame, nil)
		return
	}

	err := &CorruptFrameError{Received: d.crc, Calculated: CalculateCRC(d.body), Length: d.length}
	rescan := d.consumed()
	d.Reset()

	fn(nil, err)
	d.Decode(rescan, fn)
}

// consumed returns a copy of the bytes taken after the start marker
func (d *Decoder) consumed() []byte {
	rescan := make([]byte, 0, 2+len(d.body))
	if d.state >= stateCRC {
		rescan = append(rescan, d.length)
	}
	if d.state >= stateBody {
		rescan = append(rescan, d.crc)
	}
	return append(rescan, d.body...)
}
