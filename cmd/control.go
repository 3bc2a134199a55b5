// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/cobotlink/pkg/cobot"
	"github.com/Thermoquad/cobotlink/pkg/session"
	"github.com/Thermoquad/cobotlink/pkg/transport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	controlPollInterval time.Duration
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling the arm",
	Long: `Control the COBOT arm via an interactive terminal UI.

Features:
  - Live joint angles and speeds (polled with GET_JOINTS)
  - Move a selected joint to an angle at a speed
  - Stop, home, initialize and calibrate
  - Device log lines and command results in the event log
  - Link statistics
  - Automatic reconnection on connection loss

Tab cycles between the joint list, the angle and speed inputs and the Move
button. Outside the inputs: i=init+calibrate, s=stop joint, x=stop all
immediately, h=home all, r=reset.

For WebSocket reconnects, the password is taken from COBOT_PASSWORD.

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().DurationVar(&controlPollInterval, "poll", 500*time.Millisecond, "Joint poll interval")
}

// connectionManager polls the arm and handles reconnection
type connectionManager struct {
	sess     *session.Session
	stats    *cobot.Statistics
	mu       sync.RWMutex
	p        *tea.Program
	done     chan struct{}
	interval time.Duration
	wait     time.Duration // per-poll budget
}

func (cm *connectionManager) send(msg tea.Msg) {
	cm.mu.RLock()
	p := cm.p
	cm.mu.RUnlock()
	if p != nil {
		p.Send(msg)
	}
}

func (cm *connectionManager) setProgram(p *tea.Program) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.p = p
}

// DeviceLog forwards device log lines to the event log
func (cm *connectionManager) DeviceLog(msg *cobot.LogMessage) {
	if msg.Level == cobot.LogNone {
		return
	}
	cm.send(deviceLogMsg{level: msg.Level, text: msg.Text})
}

func runControl(cmd *cobra.Command, args []string) error {
	// Open initial connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	cm := &connectionManager{
		stats:    cobot.NewStatistics(),
		done:     make(chan struct{}),
		interval: controlPollInterval,
		wait:     controlPollInterval + cfg.Protocol.AckTimeout,
	}
	cm.sess = session.New(connOptions(cm, cm.stats), nil)
	cm.sess.ConnectTransport(conn, connInfo)

	// Create TUI model with connection manager
	m := initialControlModel(cm.sess, cm.stats, connInfo)

	// Create TUI program with alt screen
	p := tea.NewProgram(m, tea.WithAltScreen())
	cm.setProgram(p)

	go cm.pollLoop()

	// Run TUI
	_, err = p.Run()
	close(cm.done) // Signal goroutines to stop
	cm.sess.Disconnect()
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// pollLoop reads the joints at a fixed rate, reconnecting when the link fails
func (cm *connectionManager) pollLoop() {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-cm.done:
			return
		case <-ticker.C:
		}

		// Skip this tick if a command still holds the session
		ctx, cancel := context.WithTimeout(context.Background(), cm.wait)
		start := time.Now()
		joints, err := cm.sess.Joints(ctx)
		cancel()

		switch {
		case err == nil:
			cm.send(jointsMsg{joints: joints, rtt: time.Since(start)})

		case errors.Is(err, context.DeadlineExceeded):
			// Busy, not broken

		case connectionLost(err):
			cm.send(connectionLostMsg{err: err})
			if !cm.reconnect() {
				return // Shutdown requested during reconnect
			}

		default:
			cm.send(pollFailedMsg{err: err})
		}
	}
}

// connectionLost reports whether err means the transport is unusable
func connectionLost(err error) bool {
	var te *cobot.TransportError
	return errors.As(err, &te) ||
		errors.Is(err, transport.ErrConnectionClosed) ||
		errors.Is(err, session.ErrNotConnected) ||
		errors.Is(err, cobot.ErrClosed)
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	// Close old connection
	cm.sess.Disconnect()

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		// Attempt to reconnect
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		t, connInfo, err := redial(ctx)
		cancel()
		if err == nil {
			cm.sess.ConnectTransport(t, connInfo)

			// Notify TUI about reconnection
			cm.send(reconnectedMsg{connInfo: connInfo})
			return true
		}

		// Exponential backoff
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
