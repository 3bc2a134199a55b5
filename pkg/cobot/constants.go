// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package cobot implements the host side of the COBOT serial protocol.
//
// The device speaks a length-delimited, CRC-8 protected framing over a raw
// byte stream. Requests carry a host-allocated command ID; the device answers
// with ACK, DONE, ERROR or JOINTS responses tagged with the same ID, and
// interleaves diagnostic log lines on the same stream. This package provides
// frame encoding/decoding, response demultiplexing, command correlation and
// the typed command API.
package cobot

import "time"

// Frame layout
const (
	StartByte    = 0x24
	HeaderSize   = 3 // start + length + crc
	MaxBodySize  = 255
	CommandIDLen = 4
)

// Inbound body discriminators (device → host)
const (
	BodyLog      = 0x00
	BodyResponse = 0x01
)

// RequestKind identifies an outbound request (host → device)
type RequestKind uint8

// Request kinds
const (
	RequestInit             RequestKind = 0x00
	RequestCalibrate        RequestKind = 0x01
	RequestOverride         RequestKind = 0x02 // reserved
	RequestGetJoints        RequestKind = 0x03
	RequestMoveTo           RequestKind = 0x04
	RequestMoveSpeed        RequestKind = 0x05
	RequestFollowTrajectory RequestKind = 0x06 // reserved
	RequestStop             RequestKind = 0x07
	RequestGoHome           RequestKind = 0x08
	RequestReset            RequestKind = 0x09
	RequestSetLogLevel      RequestKind = 0x0A
	RequestSetFeedback      RequestKind = 0x0B
)

// ResponseKind identifies an inbound response
type ResponseKind uint8

// Response kinds
const (
	ResponseAck    ResponseKind = 0x00
	ResponseDone   ResponseKind = 0x01
	ResponseError  ResponseKind = 0x02
	ResponseJoints ResponseKind = 0x03
)

// LogLevel is the device-side log level
type LogLevel uint8

// Log levels
const (
	LogDebug LogLevel = 0x00
	LogInfo  LogLevel = 0x01
	LogWarn  LogLevel = 0x02
	LogError LogLevel = 0x03
	LogNone  LogLevel = 0x04
)

// Timing
const (
	DefaultAckTimeout = 1 * time.Second
	DoneTimeout       = 60 * time.Second
	ResponseRetention = 30 * time.Second

	// FrameGap is how long the line may go quiet inside a frame before
	// the partial frame is abandoned
	FrameGap = 100 * time.Millisecond
)

// Fixed-point scale for angles (milli-degrees) and speeds (milli-degrees/s)
const FixedPointScale = 1000.0

// AllJoints selects every joint in a bitfield
const AllJoints uint8 = 0xFF

// MaxJoint is the highest joint a bitfield can select
const MaxJoint = 7

// JointBit returns the bitfield selecting a single joint. Joints above
// MaxJoint select nothing.
func JointBit(joint uint8) uint8 {
	if joint > MaxJoint {
		return 0
	}
	return 1 << joint
}
