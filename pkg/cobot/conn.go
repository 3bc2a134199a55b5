// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cobot

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Transport is a byte stream with per-read timeouts.
// A read that times out returns (0, nil), as go.bug.st/serial does.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadTimeout(t time.Duration) error
}

// Options configures a Conn
type Options struct {
	FirmwareVersion uint32
	AckTimeout      time.Duration // default DefaultAckTimeout
	DoneTimeout     time.Duration // default DoneTimeout
	Retention       time.Duration // default ResponseRetention
	Logger          logrus.FieldLogger
	Sink            LogSink  // default: LogrusSink on Logger
	Recorder        Recorder // optional
}

// Conn is one session with the device. It owns the transport exclusively.
//
// Conn is not safe for concurrent use; callers serialize access (see
// pkg/session). Log lines and responses are only drained while a caller
// is waiting.
type Conn struct {
	transport       Transport
	firmwareVersion uint32
	nextCommandID   uint32
	ackTimeout      time.Duration
	doneTimeout     time.Duration
	retention       time.Duration
	responses       []bufferedResponse
	decoder         *Decoder
	buf             []byte

	log      logrus.FieldLogger
	sink     LogSink
	recorder Recorder
	now      func() time.Time
}

// NewConn creates a connection over an open transport
func NewConn(transport Transport, opts Options) *Conn {
	c := &Conn{
		transport:       transport,
		firmwareVersion: opts.FirmwareVersion,
		ackTimeout:      opts.AckTimeout,
		doneTimeout:     opts.DoneTimeout,
		retention:       opts.Retention,
		decoder:         NewDecoder(),
		buf:             make([]byte, 256),
		log:             opts.Logger,
		sink:            opts.Sink,
		recorder:        opts.Recorder,
		now:             time.Now,
	}
	if c.ackTimeout <= 0 {
		c.ackTimeout = DefaultAckTimeout
	}
	if c.doneTimeout <= 0 {
		c.doneTimeout = DoneTimeout
	}
	if c.retention <= 0 {
		c.retention = ResponseRetention
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	if c.sink == nil {
		c.sink = NewLogrusSink(c.log)
	}
	if c.recorder == nil {
		c.recorder = MultiRecorder()
	}
	return c
}

// FirmwareVersion returns the firmware version sent on initialize
func (c *Conn) FirmwareVersion() uint32 {
	return c.firmwareVersion
}

// AckTimeout returns the configured acknowledgment timeout
func (c *Conn) AckTimeout() time.Duration {
	return c.ackTimeout
}

// Pending returns the number of buffered, unclaimed responses
func (c *Conn) Pending() int {
	return len(c.responses)
}

// Close drops the transport. Pending waits are implicitly aborted.
func (c *Conn) Close() error {
	if c.transport == nil {
		return ErrClosed
	}
	err := c.transport.Close()
	c.transport = nil
	c.responses = nil
	c.decoder.Reset()
	return err
}

// SendRequest allocates the next command ID, writes the request and
// returns the ID without waiting for the device.
func (c *Conn) SendRequest(kind RequestKind, payload []byte) (uint32, error) {
	if c.transport == nil {
		return 0, ErrClosed
	}

	commandID := c.nextCommandID
	wire, err := EncodeRequest(kind, commandID, payload)
	if err != nil {
		return 0, err
	}
	c.nextCommandID++

	if err := writeAll(c.transport, wire); err != nil {
		return 0, &TransportError{Op: "write", Err: err}
	}

	c.recorder.RequestSent(kind)
	c.log.WithFields(logrus.Fields{
		"source":     "host",
		"command_id": commandID,
		"kind":       FormatRequestKind(kind),
		"len":        len(payload),
	}).Debug("request sent")

	return commandID, nil
}

// WaitForResponse blocks until a response for commandID is buffered or the
// timeout elapses. It returns (nil, nil) on timeout. Responses for other
// IDs read meanwhile stay buffered for later waits.
func (c *Conn) WaitForResponse(commandID uint32, timeout time.Duration) (*Response, error) {
	if c.transport == nil {
		return nil, ErrClosed
	}

	start := c.now()
	deadline := start.Add(timeout)

	for {
		c.prune(start)

		if resp := c.take(commandID); resp != nil {
			return resp, nil
		}

		if c.now().Sub(start) >= timeout {
			return nil, nil
		}

		if err := c.readChunk(deadline); err != nil {
			return nil, err
		}
	}
}

// WaitForAck waits for an ACK using the configured timeout
func (c *Conn) WaitForAck(commandID uint32) error {
	return c.expect(commandID, ResponseAck, c.ackTimeout, StageAck)
}

// WaitForDone waits for a DONE using the long completion timeout
func (c *Conn) WaitForDone(commandID uint32) error {
	return c.expect(commandID, ResponseDone, c.doneTimeout, StageDone)
}

func (c *Conn) expect(commandID uint32, kind ResponseKind, timeout time.Duration, stage string) error {
	resp, err := c.await(commandID, timeout, stage)
	if err != nil {
		return err
	}

	switch resp.Kind {
	case kind:
		return nil
	case ResponseError:
		return parseCobotError(resp.Payload)
	default:
		return &ProtocolError{CommandID: commandID, Expected: kind, Got: resp.Kind}
	}
}

// await is WaitForResponse with the timeout mapped to a TimeoutError
func (c *Conn) await(commandID uint32, timeout time.Duration, stage string) (*Response, error) {
	resp, err := c.WaitForResponse(commandID, timeout)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		c.recorder.WaitTimedOut(stage)
		return nil, &TimeoutError{Stage: stage, CommandID: commandID, Timeout: timeout}
	}
	return resp, nil
}

// prune drops responses older than the retention window, measured from
// the start of the current wait.
func (c *Conn) prune(start time.Time) {
	kept := c.responses[:0]
	for _, br := range c.responses {
		if start.Before(br.receivedAt.Add(c.retention)) {
			kept = append(kept, br)
		}
	}
	if dropped := len(c.responses) - len(kept); dropped > 0 {
		c.recorder.ResponsesPruned(dropped)
		c.log.WithFields(logrus.Fields{"source": "host", "count": dropped}).Debug("pruned stale responses")
	}
	c.responses = kept
}

// take removes and returns the first buffered response for commandID
func (c *Conn) take(commandID uint32) *Response {
	for i, br := range c.responses {
		if br.response.CommandID == commandID {
			c.responses = append(c.responses[:i], c.responses[i+1:]...)
			return br.response
		}
	}
	return nil
}

// readChunk reads whatever arrives before deadline and dispatches every
// completed frame. A timeout is not an error; the caller re-checks its own
// budget. A frame left incomplete for longer than FrameGap is abandoned
// and its bytes rescanned.
func (c *Conn) readChunk(deadline time.Time) error {
	remaining := deadline.Sub(c.now())
	if remaining <= 0 {
		return nil
	}
	// Only a full FrameGap of silence abandons a partial frame
	gap := c.decoder.Pending() && remaining >= FrameGap
	if gap {
		remaining = FrameGap
	}
	if err := c.transport.SetReadTimeout(remaining); err != nil {
		return &TransportError{Op: "set timeout", Err: err}
	}

	n, err := c.transport.Read(c.buf)
	if n > 0 {
		c.decoder.Decode(c.buf[:n], c.handleFrame)
	}
	if err != nil && !isTimeout(err) {
		return &TransportError{Op: "read", Err: err}
	}
	if n == 0 && gap {
		c.decoder.Flush(c.handleFrame)
	}
	return nil
}

// handleFrame is the decoder callback for the read loop
func (c *Conn) handleFrame(frame *Frame, err error) {
	if err != nil {
		c.recorder.CorruptFrame()
		var corrupt *CorruptFrameError
		if errors.As(err, &corrupt) {
			c.log.WithFields(logrus.Fields{
				"source":     "host",
				"len":        corrupt.Length,
				"crc":        corrupt.Received,
				"calculated": corrupt.Calculated,
			}).Warn("received message with invalid CRC")
			return
		}
		c.log.WithField("source", "host").WithError(err).Warn("discarded incomplete message")
		return
	}

	c.recorder.FrameReceived(len(frame.body))
	c.dispatch(frame.body)
}

// dispatch classifies a checksum-valid body as a log line or a response
func (c *Conn) dispatch(body []byte) {
	if len(body) == 0 {
		c.recorder.UnknownFrame()
		c.log.WithField("source", "host").Warn("received empty message")
		return
	}

	switch body[0] {
	case BodyLog:
		c.handleLog(body)

	case BodyResponse:
		resp, err := ParseResponseBody(body)
		if err != nil {
			c.recorder.UnknownFrame()
			c.log.WithField("source", "host").WithError(err).Warn("received malformed response")
			return
		}
		c.responses = append(c.responses, bufferedResponse{response: resp, receivedAt: c.now()})
		c.recorder.ResponseBuffered(resp.Kind)
		c.log.WithFields(logrus.Fields{
			"source":     "host",
			"command_id": resp.CommandID,
			"kind":       FormatResponseKind(resp.Kind),
		}).Debug("response buffered")

	default:
		c.recorder.UnknownFrame()
		c.log.WithFields(logrus.Fields{"source": "host", "type": body[0]}).Warn("received message with invalid type")
	}
}

func (c *Conn) handleLog(body []byte) {
	msg, err := ParseLogBody(body)
	if err != nil {
		c.recorder.UnknownFrame()
		c.log.WithField("source", "host").WithError(err).Warn("received malformed log message")
		return
	}

	switch msg.Level {
	case LogDebug, LogInfo, LogWarn, LogError:
		c.recorder.LogReceived(msg.Level)
		c.sink.DeviceLog(msg)
	case LogNone:
		// suppressed
	default:
		c.recorder.UnknownFrame()
		c.log.WithFields(logrus.Fields{"source": "host", "level": uint8(msg.Level)}).Warn("received message with invalid log level")
	}
}

func writeAll(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
