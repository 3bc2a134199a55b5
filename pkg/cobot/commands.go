// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cobot

import (
	"encoding/binary"
	"fmt"
	"math"
)

// JointTarget is one entry of a move-to request.
// A zero Speed lets the device use its default speed.
type JointTarget struct {
	Joint uint8
	Angle float64 // degrees
	Speed float64 // degrees/second
}

// JointSpeed is one entry of a move-speed request
type JointSpeed struct {
	Joint uint8
	Speed float64 // degrees/second
}

// JointSample is the state of one joint as reported by the device
type JointSample struct {
	Angle float64 // degrees
	Speed float64 // degrees/second
}

// ToFixed converts degree units to wire milli-units, truncating toward
// zero and saturating at the int32 range. NaN encodes as 0.
func ToFixed(v float64) int32 {
	scaled := math.Trunc(v * FixedPointScale)
	switch {
	case math.IsNaN(scaled):
		return 0
	case scaled > math.MaxInt32:
		return math.MaxInt32
	case scaled < math.MinInt32:
		return math.MinInt32
	}
	return int32(scaled)
}

// FromFixed converts wire milli-units to degree units
func FromFixed(v int32) float64 {
	return float64(v) / FixedPointScale
}

// Payload builders

// InitPayload encodes the expected firmware version
func InitPayload(firmwareVersion uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, firmwareVersion)
}

// MoveToPayload encodes id | angle | speed per joint
func MoveToPayload(targets []JointTarget) []byte {
	payload := make([]byte, 0, len(targets)*9)
	for _, t := range targets {
		payload = append(payload, t.Joint)
		payload = binary.LittleEndian.AppendUint32(payload, uint32(ToFixed(t.Angle)))
		payload = binary.LittleEndian.AppendUint32(payload, uint32(ToFixed(t.Speed)))
	}
	return payload
}

// MoveSpeedPayload encodes id | speed per joint
func MoveSpeedPayload(speeds []JointSpeed) []byte {
	payload := make([]byte, 0, len(speeds)*5)
	for _, s := range speeds {
		payload = append(payload, s.Joint)
		payload = binary.LittleEndian.AppendUint32(payload, uint32(ToFixed(s.Speed)))
	}
	return payload
}

// BitfieldPayload encodes a single joint-selection byte
func BitfieldPayload(joints uint8) []byte {
	return []byte{joints}
}

// StopPayload encodes immediate | bitfield
func StopPayload(joints uint8, immediate bool) []byte {
	var flag uint8
	if immediate {
		flag = 1
	}
	return []byte{flag, joints}
}

// DecodeJoints decodes a JOINTS payload: count | (angle i32, speed i32) * count
func DecodeJoints(payload []byte) ([]JointSample, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("empty JOINTS payload")
	}
	count := int(payload[0])
	if len(payload) < 1+count*8 {
		return nil, fmt.Errorf("JOINTS payload too short: %d joints need %d bytes, have %d", count, 1+count*8, len(payload))
	}

	joints := make([]JointSample, count)
	for i := range joints {
		offset := 1 + i*8
		joints[i] = JointSample{
			Angle: FromFixed(int32(binary.LittleEndian.Uint32(payload[offset:]))),
			Speed: FromFixed(int32(binary.LittleEndian.Uint32(payload[offset+4:]))),
		}
	}
	return joints, nil
}

// EncodeJoints builds a JOINTS payload (device side, used by simulators)
func EncodeJoints(joints []JointSample) []byte {
	payload := make([]byte, 0, 1+len(joints)*8)
	payload = append(payload, uint8(len(joints)))
	for _, j := range joints {
		payload = binary.LittleEndian.AppendUint32(payload, uint32(ToFixed(j.Angle)))
		payload = binary.LittleEndian.AppendUint32(payload, uint32(ToFixed(j.Speed)))
	}
	return payload
}

// EncodeErrorPayload builds an ERROR payload (device side, used by simulators)
func EncodeErrorPayload(code uint8, message string) []byte {
	payload := []byte{code, uint8(len(message))}
	return append(payload, message...)
}

// Command API

// Initialize sends the expected firmware version and waits for ACK
func (c *Conn) Initialize() error {
	id, err := c.SendRequest(RequestInit, InitPayload(c.firmwareVersion))
	if err != nil {
		return err
	}
	return c.WaitForAck(id)
}

// Calibrate calibrates the joints in the bitfield
func (c *Conn) Calibrate(joints uint8) error {
	return c.run(RequestCalibrate, BitfieldPayload(joints))
}

// ReadJoints returns the angle and speed of every joint.
// The device answers JOINTS directly, without a separate ACK.
func (c *Conn) ReadJoints() ([]JointSample, error) {
	id, err := c.SendRequest(RequestGetJoints, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.await(id, c.ackTimeout, StageResponse)
	if err != nil {
		return nil, err
	}

	switch resp.Kind {
	case ResponseJoints:
		joints, err := DecodeJoints(resp.Payload)
		if err != nil {
			return nil, &ProtocolError{CommandID: id, Expected: ResponseJoints, Got: resp.Kind, Detail: err.Error()}
		}
		return joints, nil
	case ResponseError:
		return nil, parseCobotError(resp.Payload)
	default:
		return nil, &ProtocolError{CommandID: id, Expected: ResponseJoints, Got: resp.Kind}
	}
}

// MoveTo moves joints to absolute angles and waits for completion
func (c *Conn) MoveTo(targets []JointTarget) error {
	return c.run(RequestMoveTo, MoveToPayload(targets))
}

// MoveSpeed drives joints at constant speeds and waits for completion
func (c *Conn) MoveSpeed(speeds []JointSpeed) error {
	return c.run(RequestMoveSpeed, MoveSpeedPayload(speeds))
}

// Stop stops the joints in the bitfield, decelerating unless immediate
func (c *Conn) Stop(joints uint8, immediate bool) error {
	return c.run(RequestStop, StopPayload(joints, immediate))
}

// GoHome returns the joints in the bitfield to their home position
func (c *Conn) GoHome(joints uint8) error {
	return c.run(RequestGoHome, BitfieldPayload(joints))
}

// Reset resets the device
func (c *Conn) Reset() error {
	return c.run(RequestReset, nil)
}

// SetLogLevel sets the device log level (LogDebug..LogError, or LogNone)
func (c *Conn) SetLogLevel(level LogLevel) error {
	if level > LogNone {
		return fmt.Errorf("%w: log level %d (max %d)", ErrInvalidArgument, level, LogNone)
	}
	return c.run(RequestSetLogLevel, []byte{uint8(level)})
}

// SetFeedback enables feedback for the joints in the bitfield
func (c *Conn) SetFeedback(joints uint8) error {
	return c.run(RequestSetFeedback, BitfieldPayload(joints))
}

// run sends a request and waits for ACK then DONE
func (c *Conn) run(kind RequestKind, payload []byte) error {
	id, err := c.SendRequest(kind, payload)
	if err != nil {
		return err
	}
	if err := c.WaitForAck(id); err != nil {
		return err
	}
	return c.WaitForDone(id)
}
