// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session is the application-facing wrapper around a cobot.Conn.
//
// Every call runs on a worker goroutine and holds the session lock for the
// whole request/response exchange, so at most one command is in flight per
// connection. The caller's context bounds how long the caller waits; it
// does not abort a command the device has already received.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Thermoquad/cobotlink/pkg/cobot"
	"github.com/Thermoquad/cobotlink/pkg/transport"
	"github.com/sirupsen/logrus"
)

// ErrNotConnected is returned by calls made without an open connection
var ErrNotConnected = errors.New("not connected")

// Dialer opens a transport to port at baud
type Dialer func(ctx context.Context, port string, baud int) (cobot.Transport, error)

// DialSerial opens a serial port
func DialSerial(ctx context.Context, port string, baud int) (cobot.Transport, error) {
	return transport.OpenSerial(port, baud)
}

// Session serializes access to one connection
type Session struct {
	mu   sync.Mutex
	conn *cobot.Conn
	name string

	opts cobot.Options
	dial Dialer
	log  logrus.FieldLogger
}

// New creates a disconnected session. opts is applied to every connection;
// a nil dial uses DialSerial.
func New(opts cobot.Options, dial Dialer) *Session {
	if dial == nil {
		dial = DialSerial
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{opts: opts, dial: dial, log: log}
}

// Connect opens port and replaces any current connection
func (s *Session) Connect(ctx context.Context, port string, baud int) error {
	t, err := s.dial(ctx, port, baud)
	if err != nil {
		return err
	}
	s.attach(t, fmt.Sprintf("%s @ %d baud", port, baud))
	return nil
}

// ConnectTransport adopts an already open transport
func (s *Session) ConnectTransport(t cobot.Transport, name string) {
	s.attach(t, name)
}

func (s *Session) attach(t cobot.Transport, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = cobot.NewConn(t, s.opts)
	s.name = name
	s.log.WithFields(logrus.Fields{"source": "host", "connection": name}).Info("connected")
}

// Disconnect closes the connection. A command in flight finishes first.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrNotConnected
	}
	err := s.conn.Close()
	s.conn = nil
	s.log.WithFields(logrus.Fields{"source": "host", "connection": s.name}).Info("disconnected")
	return err
}

// Connected reports whether a connection is open
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Name describes the current connection
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// do runs fn on a worker goroutine under the session lock
func (s *Session) do(ctx context.Context, fn func(c *cobot.Conn) error) error {
	result := make(chan error, 1)

	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		// Abandoned before it started; never send it
		if err := ctx.Err(); err != nil {
			result <- err
			return
		}
		if s.conn == nil {
			result <- ErrNotConnected
			return
		}
		result <- fn(s.conn)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InitializeAndCalibrate initializes the device then calibrates joints
func (s *Session) InitializeAndCalibrate(ctx context.Context, joints uint8) error {
	return s.do(ctx, func(c *cobot.Conn) error {
		if err := c.Initialize(); err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		if err := c.Calibrate(joints); err != nil {
			return fmt.Errorf("calibrate: %w", err)
		}
		return nil
	})
}

// Initialize initializes the device without calibrating
func (s *Session) Initialize(ctx context.Context) error {
	return s.do(ctx, func(c *cobot.Conn) error { return c.Initialize() })
}

// Joints reads angle and speed of every joint
func (s *Session) Joints(ctx context.Context) ([]cobot.JointSample, error) {
	var joints []cobot.JointSample
	err := s.do(ctx, func(c *cobot.Conn) error {
		var err error
		joints, err = c.ReadJoints()
		return err
	})
	if err != nil {
		return nil, err
	}
	return joints, nil
}

// ReadAngles reads the current joint angles in degrees
func (s *Session) ReadAngles(ctx context.Context) ([]float64, error) {
	joints, err := s.Joints(ctx)
	if err != nil {
		return nil, err
	}
	angles := make([]float64, len(joints))
	for i, j := range joints {
		angles[i] = j.Angle
	}
	return angles, nil
}

// MoveJoint moves one joint to angle at speed and waits for completion
func (s *Session) MoveJoint(ctx context.Context, joint uint8, angle, speed float64) error {
	return s.MoveAllJoints(ctx, []cobot.JointTarget{{Joint: joint, Angle: angle, Speed: speed}})
}

// MoveAllJoints moves several joints in one request
func (s *Session) MoveAllJoints(ctx context.Context, targets []cobot.JointTarget) error {
	if len(targets) == 0 {
		return fmt.Errorf("%w: no joints to move", cobot.ErrInvalidArgument)
	}
	return s.do(ctx, func(c *cobot.Conn) error { return c.MoveTo(targets) })
}

// MoveSpeed drives joints at constant speeds
func (s *Session) MoveSpeed(ctx context.Context, speeds []cobot.JointSpeed) error {
	if len(speeds) == 0 {
		return fmt.Errorf("%w: no joints to drive", cobot.ErrInvalidArgument)
	}
	return s.do(ctx, func(c *cobot.Conn) error { return c.MoveSpeed(speeds) })
}

// StopJoint stops one joint smoothly
func (s *Session) StopJoint(ctx context.Context, joint uint8) error {
	if joint > cobot.MaxJoint {
		return fmt.Errorf("%w: joint %d (max %d)", cobot.ErrInvalidArgument, joint, cobot.MaxJoint)
	}
	return s.do(ctx, func(c *cobot.Conn) error { return c.Stop(cobot.JointBit(joint), false) })
}

// StopAll stops every joint, decelerating when smooth
func (s *Session) StopAll(ctx context.Context, smooth bool) error {
	return s.do(ctx, func(c *cobot.Conn) error { return c.Stop(cobot.AllJoints, !smooth) })
}

// Stop stops the selected joints
func (s *Session) Stop(ctx context.Context, joints uint8, immediate bool) error {
	return s.do(ctx, func(c *cobot.Conn) error { return c.Stop(joints, immediate) })
}

// GoHome returns the selected joints to their home position
func (s *Session) GoHome(ctx context.Context, joints uint8) error {
	return s.do(ctx, func(c *cobot.Conn) error { return c.GoHome(joints) })
}

// Reset resets the device
func (s *Session) Reset(ctx context.Context) error {
	return s.do(ctx, func(c *cobot.Conn) error { return c.Reset() })
}

// SetLogLevel sets the device log level
func (s *Session) SetLogLevel(ctx context.Context, level cobot.LogLevel) error {
	return s.do(ctx, func(c *cobot.Conn) error { return c.SetLogLevel(level) })
}

// SetFeedback enables feedback for the selected joints
func (s *Session) SetFeedback(ctx context.Context, joints uint8) error {
	return s.do(ctx, func(c *cobot.Conn) error { return c.SetFeedback(joints) })
}
