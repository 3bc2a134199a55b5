// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records raw link traffic as a CBOR sequence and reads it
// back for offline decoding.
package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/cobotlink/pkg/cobot"
	"github.com/fxamacker/cbor/v2"
)

// Direction of a captured chunk relative to the host
type Direction uint8

const (
	DirectionRX Direction = 0 // device → host
	DirectionTX Direction = 1 // host → device
)

func (d Direction) String() string {
	switch d {
	case DirectionRX:
		return "rx"
	case DirectionTX:
		return "tx"
	}
	return fmt.Sprintf("dir(%d)", uint8(d))
}

// Record is one chunk of bytes as it crossed the transport
type Record struct {
	Time      time.Time `cbor:"1,keyasint"`
	Direction Direction `cbor:"2,keyasint"`
	Data      []byte    `cbor:"3,keyasint"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
}

// Writer appends records to a stream
type Writer struct {
	mu  sync.Mutex
	enc *cbor.Encoder
	n   int
}

// NewWriter writes records to w
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: encMode.NewEncoder(w)}
}

// Write appends one record
func (w *Writer) Write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	w.n++
	return nil
}

// Count returns the number of records written
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Reader iterates the records of a stream
type Reader struct {
	dec *cbor.Decoder
}

// NewReader reads records from r
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF after the last one
func (r *Reader) Next() (*Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("capture: %w", err)
	}
	return &rec, nil
}

// Frames decodes the records of one direction into frames, calling fn for
// each frame and each corrupt frame error. Frames carry the time of the
// record that completed them.
func (r *Reader) Frames(dir Direction, fn func(rec *Record, frame *cobot.Frame, err error)) error {
	decoder := cobot.NewDecoder()
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.Direction != dir {
			continue
		}
		decoder.Decode(rec.Data, func(frame *cobot.Frame, err error) {
			if frame != nil {
				frame = frame.WithTimestamp(rec.Time)
			}
			fn(rec, frame, err)
		})
	}
}

// Tee wraps a transport and records every chunk read or written.
// Recording failures are reported through OnError and never fail the I/O.
type Tee struct {
	cobot.Transport
	w       *Writer
	OnError func(error)
}

// NewTee records traffic on t to w
func NewTee(t cobot.Transport, w *Writer) *Tee {
	return &Tee{Transport: t, w: w}
}

func (t *Tee) Read(p []byte) (int, error) {
	n, err := t.Transport.Read(p)
	if n > 0 {
		t.record(DirectionRX, p[:n])
	}
	return n, err
}

func (t *Tee) Write(p []byte) (int, error) {
	n, err := t.Transport.Write(p)
	if n > 0 {
		t.record(DirectionTX, p[:n])
	}
	return n, err
}

func (t *Tee) record(dir Direction, data []byte) {
	chunk := make([]byte, len(data))
	copy(chunk, data)
	if err := t.w.Write(Record{Time: time.Now(), Direction: dir, Data: chunk}); err != nil && t.OnError != nil {
		t.OnError(err)
	}
}
