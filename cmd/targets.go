// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/cobotlink/pkg/cobot"
)

// parseJoint parses a joint index in 0..7
func parseJoint(s string) (uint8, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil || n > cobot.MaxJoint {
		return 0, fmt.Errorf("invalid joint %q (expected 0-%d)", s, cobot.MaxJoint)
	}
	return uint8(n), nil
}

// parseJointMask parses "all" or a comma separated list of joint indices
// into a bitfield
func parseJointMask(s string) (uint8, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return cobot.AllJoints, nil
	}

	var mask uint8
	for _, part := range strings.Split(s, ",") {
		j, err := parseJoint(part)
		if err != nil {
			return 0, err
		}
		mask |= cobot.JointBit(j)
	}
	return mask, nil
}

// parseTarget parses "joint:angle[:speed]"; speed falls back to
// defaultSpeed
func parseTarget(s string, defaultSpeed float64) (cobot.JointTarget, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return cobot.JointTarget{}, fmt.Errorf("invalid target %q (expected joint:angle[:speed])", s)
	}

	joint, err := parseJoint(parts[0])
	if err != nil {
		return cobot.JointTarget{}, err
	}
	angle, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return cobot.JointTarget{}, fmt.Errorf("invalid angle in %q: %v", s, err)
	}
	speed := defaultSpeed
	if len(parts) == 3 {
		speed, err = strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return cobot.JointTarget{}, fmt.Errorf("invalid speed in %q: %v", s, err)
		}
	}

	return cobot.JointTarget{Joint: joint, Angle: angle, Speed: speed}, nil
}

// parseSpeed parses "joint:speed"
func parseSpeed(s string) (cobot.JointSpeed, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return cobot.JointSpeed{}, fmt.Errorf("invalid speed %q (expected joint:speed)", s)
	}

	joint, err := parseJoint(parts[0])
	if err != nil {
		return cobot.JointSpeed{}, err
	}
	speed, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return cobot.JointSpeed{}, fmt.Errorf("invalid speed in %q: %v", s, err)
	}

	return cobot.JointSpeed{Joint: joint, Speed: speed}, nil
}

// parseLogLevel parses a device log level name
func parseLogLevel(s string) (cobot.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return cobot.LogDebug, nil
	case "info":
		return cobot.LogInfo, nil
	case "warn", "warning":
		return cobot.LogWarn, nil
	case "error":
		return cobot.LogError, nil
	case "none", "off":
		return cobot.LogNone, nil
	}
	return 0, fmt.Errorf("invalid log level %q (expected debug, info, warn, error or none)", s)
}
