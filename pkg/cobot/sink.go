// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cobot

import "github.com/sirupsen/logrus"

// LogSink receives device log lines as they are demultiplexed
type LogSink interface {
	DeviceLog(msg *LogMessage)
}

// LogSinkFunc adapts a function to LogSink
type LogSinkFunc func(msg *LogMessage)

// DeviceLog calls f(msg)
func (f LogSinkFunc) DeviceLog(msg *LogMessage) {
	f(msg)
}

// LogrusSink forwards device log lines to a logrus logger
type LogrusSink struct {
	Logger logrus.FieldLogger
}

// NewLogrusSink creates a sink tagging entries with source=cobot
func NewLogrusSink(logger logrus.FieldLogger) *LogrusSink {
	return &LogrusSink{Logger: logger}
}

// DeviceLog emits msg at the matching logrus level
func (s *LogrusSink) DeviceLog(msg *LogMessage) {
	entry := s.Logger.WithField("source", "cobot")
	switch msg.Level {
	case LogDebug:
		entry.Debug(msg.Text)
	case LogInfo:
		entry.Info(msg.Text)
	case LogWarn:
		entry.Warn(msg.Text)
	case LogError:
		entry.Error(msg.Text)
	}
}
