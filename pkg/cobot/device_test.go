// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cobot

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// ============================================================
// Scripted device transport
// ============================================================

// request is one request observed by the fake device
type request struct {
	kind    RequestKind
	id      uint32
	payload []byte
}

// fakeDevice is an in-memory Transport. Bytes queued with send/sendRaw
// become readable by the host; writes are decoded into requests and
// handed to onRequest.
type fakeDevice struct {
	mu        sync.Mutex
	rx        []byte
	requests  []request
	timeout   time.Duration
	readErr   error
	closed    bool
	notify    chan struct{}
	decoder   *Decoder
	onRequest func(d *fakeDevice, r request)
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		notify:  make(chan struct{}, 1),
		decoder: NewDecoder(),
	}
}

func (d *fakeDevice) SetReadTimeout(t time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeout = t
	return nil
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	deadline := time.Now().Add(d.timeout)
	d.mu.Unlock()

	for {
		d.mu.Lock()
		if d.readErr != nil {
			err := d.readErr
			d.mu.Unlock()
			return 0, err
		}
		if len(d.rx) > 0 {
			n := copy(p, d.rx)
			d.rx = d.rx[n:]
			d.mu.Unlock()
			return n, nil
		}
		d.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil
		}
		select {
		case <-d.notify:
		case <-time.After(remaining):
		}
	}
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	var received []request
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	d.decoder.Decode(p, func(frame *Frame, err error) {
		if err != nil {
			return
		}
		kind, id, payload, err := ParseRequestBody(frame.Body())
		if err != nil {
			return
		}
		r := request{kind: kind, id: id, payload: payload}
		d.requests = append(d.requests, r)
		received = append(received, r)
	})
	hook := d.onRequest
	d.mu.Unlock()

	if hook != nil {
		for _, r := range received {
			hook(d, r)
		}
	}
	return len(p), nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// sendRaw makes bytes readable by the host
func (d *fakeDevice) sendRaw(data []byte) {
	d.mu.Lock()
	d.rx = append(d.rx, data...)
	d.mu.Unlock()
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// send frames a body and makes it readable by the host
func (d *fakeDevice) send(body []byte) {
	wire, err := EncodeFrame(body)
	if err != nil {
		panic(err)
	}
	d.sendRaw(wire)
}

func (d *fakeDevice) respond(kind ResponseKind, id uint32, payload []byte) {
	d.send(EncodeResponseBody(kind, id, payload))
}

func (d *fakeDevice) respondLater(delay time.Duration, kind ResponseKind, id uint32, payload []byte) {
	time.AfterFunc(delay, func() { d.respond(kind, id, payload) })
}

func (d *fakeDevice) observed() []request {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]request, len(d.requests))
	copy(out, d.requests)
	return out
}

// ackDone answers every request with ACK followed by DONE
func ackDone(d *fakeDevice, r request) {
	d.respond(ResponseAck, r.id, nil)
	d.respond(ResponseDone, r.id, nil)
}

// ============================================================
// Connection helpers
// ============================================================

func quietLogger() (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return logger, &buf
}

func newTestConn(t *testing.T, d *fakeDevice, opts Options) (*Conn, *Statistics) {
	t.Helper()
	stats := NewStatistics()
	if opts.Logger == nil {
		opts.Logger, _ = quietLogger()
	}
	if opts.AckTimeout == 0 {
		opts.AckTimeout = 500 * time.Millisecond
	}
	opts.Recorder = stats
	return NewConn(d, opts), stats
}
