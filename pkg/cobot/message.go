// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cobot

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Response is a decoded response body awaiting correlation
type Response struct {
	CommandID uint32
	Kind      ResponseKind
	Payload   []byte
}

// LogMessage is a diagnostic line emitted by the device
type LogMessage struct {
	Level LogLevel
	Text  string
}

// bufferedResponse is a response plus its receipt time
type bufferedResponse struct {
	response   *Response
	receivedAt time.Time
}

// EncodeRequest builds the wire bytes for a request:
// start | len | crc | kind | command_id (LE) | payload
func EncodeRequest(kind RequestKind, commandID uint32, payload []byte) ([]byte, error) {
	body := make([]byte, 1+CommandIDLen, 1+CommandIDLen+len(payload))
	body[0] = uint8(kind)
	binary.LittleEndian.PutUint32(body[1:], commandID)
	body = append(body, payload...)
	return EncodeFrame(body)
}

// ParseRequestBody splits an outbound body into its parts
func ParseRequestBody(body []byte) (RequestKind, uint32, []byte, error) {
	if len(body) < 1+CommandIDLen {
		return 0, 0, nil, fmt.Errorf("request body too short: %d bytes", len(body))
	}
	return RequestKind(body[0]), binary.LittleEndian.Uint32(body[1:5]), body[5:], nil
}

// ParseLogBody decodes a log body: 0x00 | level | declared_len | text.
// The declared length is ignored; the frame length bounds the text.
func ParseLogBody(body []byte) (*LogMessage, error) {
	if len(body) < 2 || body[0] != BodyLog {
		return nil, fmt.Errorf("not a log body")
	}
	msg := &LogMessage{Level: LogLevel(body[1])}
	if len(body) > 3 {
		msg.Text = string(body[3:])
	}
	return msg, nil
}

// ParseResponseBody decodes a response body:
// 0x01 | kind | command_id (LE) | payload
func ParseResponseBody(body []byte) (*Response, error) {
	if len(body) < 2+CommandIDLen || body[0] != BodyResponse {
		return nil, fmt.Errorf("response body too short: %d bytes", len(body))
	}
	payload := make([]byte, len(body)-6)
	copy(payload, body[6:])
	return &Response{
		Kind:      ResponseKind(body[1]),
		CommandID: binary.LittleEndian.Uint32(body[2:6]),
		Payload:   payload,
	}, nil
}

// EncodeLogBody builds an inbound log body (device side, used by simulators)
func EncodeLogBody(level LogLevel, text string) []byte {
	body := []byte{BodyLog, uint8(level), uint8(len(text))}
	return append(body, text...)
}

// EncodeResponseBody builds an inbound response body (device side, used by simulators)
func EncodeResponseBody(kind ResponseKind, commandID uint32, payload []byte) []byte {
	body := make([]byte, 2+CommandIDLen, 2+CommandIDLen+len(payload))
	body[0] = BodyResponse
	body[1] = uint8(kind)
	binary.LittleEndian.PutUint32(body[2:], commandID)
	return append(body, payload...)
}
