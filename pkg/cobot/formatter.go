// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cobot

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// FormatRequestKind returns the human-readable name for a request kind
func FormatRequestKind(kind RequestKind) string {
	switch kind {
	case RequestInit:
		return "INIT"
	case RequestCalibrate:
		return "CALIBRATE"
	case RequestOverride:
		return "OVERRIDE"
	case RequestGetJoints:
		return "GET_JOINTS"
	case RequestMoveTo:
		return "MOVE_TO"
	case RequestMoveSpeed:
		return "MOVE_SPEED"
	case RequestFollowTrajectory:
		return "FOLLOW_TRAJECTORY"
	case RequestStop:
		return "STOP"
	case RequestGoHome:
		return "GO_HOME"
	case RequestReset:
		return "RESET"
	case RequestSetLogLevel:
		return "SET_LOG_LEVEL"
	case RequestSetFeedback:
		return "SET_FEEDBACK"
	default:
		return "UNKNOWN"
	}
}

// FormatResponseKind returns the human-readable name for a response kind
func FormatResponseKind(kind ResponseKind) string {
	switch kind {
	case ResponseAck:
		return "ACK"
	case ResponseDone:
		return "DONE"
	case ResponseError:
		return "ERROR"
	case ResponseJoints:
		return "JOINTS"
	default:
		return "UNKNOWN"
	}
}

// FormatLogLevel returns the human-readable name for a device log level
func FormatLogLevel(level LogLevel) string {
	switch level {
	case LogDebug:
		return "DEBUG"
	case LogInfo:
		return "INFO"
	case LogWarn:
		return "WARN"
	case LogError:
		return "ERROR"
	case LogNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// FormatFrame formats an inbound (device → host) frame
func FormatFrame(f *Frame) string {
	timestamp := f.timestamp.Format("15:04:05.000")
	body := f.body

	if len(body) == 0 {
		return fmt.Sprintf("[%s] EMPTY len=0\n", timestamp)
	}

	switch body[0] {
	case BodyLog:
		msg, err := ParseLogBody(body)
		if err != nil {
			break
		}
		return fmt.Sprintf("[%s] LOG %s: %s\n", timestamp, FormatLogLevel(msg.Level), msg.Text)

	case BodyResponse:
		resp, err := ParseResponseBody(body)
		if err != nil {
			break
		}
		result := fmt.Sprintf("[%s] %s (0x%02X) id=%d len=%d\n",
			timestamp, FormatResponseKind(resp.Kind), uint8(resp.Kind), resp.CommandID, len(resp.Payload))
		return result + formatResponsePayload(resp)
	}

	return fmt.Sprintf("[%s] UNKNOWN (0x%02X) len=%d\n", timestamp, body[0], len(body)) + formatHex(body)
}

// FormatRequestFrame formats an outbound (host → device) frame
func FormatRequestFrame(f *Frame) string {
	timestamp := f.timestamp.Format("15:04:05.000")
	kind, id, payload, err := ParseRequestBody(f.body)
	if err != nil {
		return fmt.Sprintf("[%s] MALFORMED REQUEST len=%d\n", timestamp, len(f.body)) + formatHex(f.body)
	}

	result := fmt.Sprintf("[%s] %s (0x%02X) id=%d len=%d\n", timestamp, FormatRequestKind(kind), uint8(kind), id, len(payload))
	return result + formatRequestPayload(kind, payload)
}

func formatResponsePayload(resp *Response) string {
	switch resp.Kind {
	case ResponseAck, ResponseDone:
		return ""

	case ResponseError:
		e := parseCobotError(resp.Payload)
		return fmt.Sprintf("  Code: %d (%s), Message: %q\n", e.Code, e.Name(), e.Message)

	case ResponseJoints:
		joints, err := DecodeJoints(resp.Payload)
		if err != nil {
			return fmt.Sprintf("  Malformed: %v\n", err) + formatHex(resp.Payload)
		}
		var s strings.Builder
		for i, j := range joints {
			s.WriteString(fmt.Sprintf("  Joint %d: %.3f° @ %.3f°/s\n", i, j.Angle, j.Speed))
		}
		return s.String()
	}

	return formatHex(resp.Payload)
}

func formatRequestPayload(kind RequestKind, payload []byte) string {
	switch kind {
	case RequestInit:
		if len(payload) >= 4 {
			return fmt.Sprintf("  Firmware: %d\n", binary.LittleEndian.Uint32(payload))
		}

	case RequestCalibrate, RequestGoHome, RequestSetFeedback:
		if len(payload) >= 1 {
			return fmt.Sprintf("  Joints: %08b\n", payload[0])
		}

	case RequestSetLogLevel:
		if len(payload) >= 1 {
			return fmt.Sprintf("  Level: %s\n", FormatLogLevel(LogLevel(payload[0])))
		}

	case RequestStop:
		if len(payload) >= 2 {
			return fmt.Sprintf("  Immediate: %t, Joints: %08b\n", payload[0] != 0, payload[1])
		}

	case RequestMoveTo:
		var s strings.Builder
		for offset := 0; offset+9 <= len(payload); offset += 9 {
			angle := FromFixed(int32(binary.LittleEndian.Uint32(payload[offset+1:])))
			speed := FromFixed(int32(binary.LittleEndian.Uint32(payload[offset+5:])))
			s.WriteString(fmt.Sprintf("  Joint %d -> %.3f° @ %.3f°/s\n", payload[offset], angle, speed))
		}
		return s.String()

	case RequestMoveSpeed:
		var s strings.Builder
		for offset := 0; offset+5 <= len(payload); offset += 5 {
			speed := FromFixed(int32(binary.LittleEndian.Uint32(payload[offset+1:])))
			s.WriteString(fmt.Sprintf("  Joint %d @ %.3f°/s\n", payload[offset], speed))
		}
		return s.String()

	case RequestGetJoints, RequestReset:
		return ""
	}

	return formatHex(payload)
}

// formatHex renders a hex dump, 16 bytes per line
func formatHex(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	result := "  Payload: "
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			result += "\n           "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}
