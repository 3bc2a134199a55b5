// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/Thermoquad/cobotlink/pkg/cobot"
)

// Describe flattens any session failure to a one-line message for display
func Describe(err error) string {
	if err == nil {
		return "OK"
	}

	var cobotErr *cobot.CobotError
	var timeoutErr *cobot.TimeoutError
	var protocolErr *cobot.ProtocolError
	var transportErr *cobot.TransportError

	switch {
	case errors.As(err, &cobotErr):
		if cobotErr.Message == "" {
			return fmt.Sprintf("Device error: %s (code %d)", cobotErr.Name(), cobotErr.Code)
		}
		return fmt.Sprintf("Device error: %s (code %d): %s", cobotErr.Name(), cobotErr.Code, cobotErr.Message)

	case errors.As(err, &timeoutErr):
		switch timeoutErr.Stage {
		case cobot.StageAck:
			return fmt.Sprintf("Device did not acknowledge within %v", timeoutErr.Timeout)
		case cobot.StageDone:
			return fmt.Sprintf("Device acknowledged but did not finish within %v", timeoutErr.Timeout)
		}
		return fmt.Sprintf("No response from device within %v", timeoutErr.Timeout)

	case errors.As(err, &protocolErr):
		return "Protocol violation: " + protocolErr.Error()

	case errors.As(err, &transportErr):
		return fmt.Sprintf("Connection failed during %s: %v", transportErr.Op, transportErr.Err)

	case errors.Is(err, ErrNotConnected), errors.Is(err, cobot.ErrClosed):
		return "Not connected"

	case errors.Is(err, context.DeadlineExceeded):
		return "Gave up waiting for the device"

	case errors.Is(err, context.Canceled):
		return "Cancelled"
	}

	return err.Error()
}
