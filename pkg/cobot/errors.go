// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cobot

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors
var (
	ErrTimeout           = errors.New("timed out waiting for response")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrBodyTooLarge      = errors.New("frame body too large")
	ErrTruncatedFrame    = errors.New("truncated frame")
	ErrClosed            = errors.New("connection closed")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// ErrorCodes maps device error codes to their names
var ErrorCodes = [8]string{
	"Other",
	"Malformed request",
	"Out of range",
	"Invalid joint",
	"Not initialized",
	"Not calibrated",
	"Cancelled",
	"Invalid firmware version",
}

// Device error codes
const (
	ErrCodeOther                  = 0
	ErrCodeMalformedRequest       = 1
	ErrCodeOutOfRange             = 2
	ErrCodeInvalidJoint           = 3
	ErrCodeNotInitialized         = 4
	ErrCodeNotCalibrated          = 5
	ErrCodeCancelled              = 6
	ErrCodeInvalidFirmwareVersion = 7
)

// CobotError is an error reported by the device
type CobotError struct {
	Code    uint8
	Message string
}

// Name returns the named cause for the error code
func (e *CobotError) Name() string {
	if int(e.Code) < len(ErrorCodes) {
		return ErrorCodes[e.Code]
	}
	return "Unknown error"
}

func (e *CobotError) Error() string {
	return fmt.Sprintf("COBOT ERROR %d (%s): %s", e.Code, e.Name(), e.Message)
}

// parseCobotError decodes an ERROR payload: code | declared_len | text.
// The declared length is not checked against the remaining bytes.
func parseCobotError(payload []byte) *CobotError {
	e := &CobotError{}
	if len(payload) > 0 {
		e.Code = payload[0]
	}
	if len(payload) > 2 {
		e.Message = string(payload[2:])
	}
	return e
}

// Wait stages
const (
	StageAck      = "ack"
	StageDone     = "done"
	StageResponse = "response"
)

// TimeoutError reports a wait that exhausted its budget
type TimeoutError struct {
	Stage     string
	CommandID uint32
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	switch e.Stage {
	case StageAck:
		return fmt.Sprintf("command %d: device did not acknowledge within %v", e.CommandID, e.Timeout)
	case StageDone:
		return fmt.Sprintf("command %d: device acknowledged but did not finish within %v", e.CommandID, e.Timeout)
	}
	return fmt.Sprintf("command %d: no response within %v", e.CommandID, e.Timeout)
}

// Is matches ErrTimeout
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ProtocolError reports a response of an unexpected kind
type ProtocolError struct {
	CommandID uint32
	Expected  ResponseKind
	Got       ResponseKind
	Detail    string
}

func (e *ProtocolError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("command %d: %s", e.CommandID, e.Detail)
	}
	return fmt.Sprintf("command %d: received unexpected response type %s (expected %s)",
		e.CommandID, FormatResponseKind(e.Got), FormatResponseKind(e.Expected))
}

// Is matches ErrProtocolViolation
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocolViolation
}

// TransportError wraps an I/O failure other than a timeout
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
