// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/cobotlink/pkg/cobot"
	"github.com/Thermoquad/cobotlink/pkg/session"
	"github.com/Thermoquad/cobotlink/pkg/transport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
)

// ============================================================
// Helpers
// ============================================================

func newTestModel(t *testing.T) controlModel {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	sess := session.New(cobot.Options{Logger: log}, nil)
	return initialControlModel(sess, cobot.NewStatistics(), "test")
}

func update(t *testing.T, m controlModel, msg tea.Msg) (controlModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	cm, ok := next.(controlModel)
	if !ok {
		t.Fatalf("Update returned %T, want controlModel", next)
	}
	return cm, cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func lastEvent(m controlModel) eventLogEntry {
	entries := m.events.tail(1)
	if len(entries) == 0 {
		return eventLogEntry{}
	}
	return entries[0]
}

var twoJoints = []cobot.JointSample{{Angle: 10, Speed: 0}, {Angle: -20.5, Speed: 1}}

// ============================================================
// Control Model Tests
// ============================================================

func TestControlModel_JointsUpdateList(t *testing.T) {
	m := newTestModel(t)

	if _, ok := m.selectedJoint(); ok {
		t.Error("selectedJoint before any poll should be false")
	}

	m, _ = update(t, m, jointsMsg{joints: twoJoints, rtt: 12 * time.Millisecond})

	if len(m.jointList.Items()) != 2 {
		t.Fatalf("list has %d items, want 2", len(m.jointList.Items()))
	}
	item := m.jointList.Items()[1].(jointItem)
	if item.Title() != "Joint 1" || !strings.Contains(item.Description(), "-20.50°") {
		t.Errorf("item = %q / %q", item.Title(), item.Description())
	}
	if joint, ok := m.selectedJoint(); !ok || joint != 0 {
		t.Errorf("selectedJoint = %d, %v", joint, ok)
	}
	if m.lastRTT != 12*time.Millisecond {
		t.Errorf("lastRTT = %v", m.lastRTT)
	}
	if !strings.Contains(lastEvent(m).message, "2 joint(s)") {
		t.Errorf("last event = %q", lastEvent(m).message)
	}
}

func TestControlModel_FocusCycle(t *testing.T) {
	m := newTestModel(t)

	order := []int{focusAngleInput, focusSpeedInput, focusButton, focusJointList}
	for _, want := range order {
		m, _ = update(t, m, key("tab"))
		if m.focusedField != want {
			t.Fatalf("focus = %d, want %d", m.focusedField, want)
		}
	}

	m, _ = update(t, m, key("tab"))
	if !m.angleInput.Focused() || m.speedInput.Focused() {
		t.Error("angle input should hold focus")
	}
}

func TestControlModel_MoveValidation(t *testing.T) {
	tests := []struct {
		name  string
		angle string
		speed string
		want  string
	}{
		{"bad angle", "abc", "", "Invalid angle"},
		{"angle out of range", "400", "", "Invalid angle"},
		{"bad speed", "10", "fast", "Invalid speed"},
		{"speed out of range", "10", "-200", "Invalid speed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel(t)
			m, _ = update(t, m, jointsMsg{joints: twoJoints})
			m.angleInput.SetValue(tt.angle)
			m.speedInput.SetValue(tt.speed)
			m.focusedField = focusButton

			m, cmd := update(t, m, key("enter"))
			if cmd != nil {
				t.Error("expected no command")
			}
			if m.busy != "" {
				t.Errorf("busy = %q", m.busy)
			}
			if e := lastEvent(m); !e.isError || !strings.HasPrefix(e.message, tt.want) {
				t.Errorf("last event = %+v, want prefix %q", e, tt.want)
			}
		})
	}
}

func TestControlModel_MoveUsesPlaceholders(t *testing.T) {
	m := newTestModel(t)
	m, _ = update(t, m, jointsMsg{joints: twoJoints})
	m.focusedField = focusButton

	m, cmd := update(t, m, key("enter"))
	if cmd == nil {
		t.Fatal("expected a command")
	}
	if m.busy != "Move joint 0 to 0.00° @ 10.00°/s" {
		t.Errorf("busy = %q", m.busy)
	}

	// The session is not connected, so the command reports that
	done, ok := cmd().(commandDoneMsg)
	if !ok {
		t.Fatalf("command returned %T", cmd())
	}
	if !errors.Is(done.err, session.ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", done.err)
	}

	m, _ = update(t, m, done)
	if m.busy != "" {
		t.Errorf("busy after done = %q", m.busy)
	}
	if e := lastEvent(m); !e.isError || !strings.HasSuffix(e.message, "failed: Not connected") {
		t.Errorf("last event = %+v", e)
	}
}

func TestControlModel_BusyRejectsSecondCommand(t *testing.T) {
	m := newTestModel(t)

	m, cmd := update(t, m, key("h"))
	if cmd == nil || m.busy != "Home" {
		t.Fatalf("home: cmd=%v busy=%q", cmd != nil, m.busy)
	}

	m, cmd = update(t, m, key("x"))
	if cmd != nil {
		t.Error("second command should be rejected while busy")
	}
	if e := lastEvent(m); !e.isError || e.message != "Busy: Home in progress" {
		t.Errorf("last event = %+v", e)
	}
}

func TestControlModel_KeysIgnoredInInputs(t *testing.T) {
	m := newTestModel(t)
	m, _ = update(t, m, key("tab")) // angle input

	m, cmd := update(t, m, key("h"))
	if m.busy != "" || m.quitting {
		t.Errorf("busy = %q, quitting = %v", m.busy, m.quitting)
	}
	_ = cmd
	if m.angleInput.Value() != "h" {
		t.Errorf("angle input = %q, want typed text", m.angleInput.Value())
	}

	m, _ = update(t, m, key("tab"))
	m, _ = update(t, m, key("tab")) // button
	m, cmd = update(t, m, key("q"))
	if !m.quitting || cmd == nil {
		t.Error("q outside inputs should quit")
	}
}

func TestControlModel_ConnectionLost(t *testing.T) {
	m := newTestModel(t)

	m, _ = update(t, m, connectionLostMsg{err: &cobot.TransportError{Op: "read", Err: io.EOF}})
	if !m.connectionLost {
		t.Fatal("connectionLost not set")
	}
	if !strings.Contains(m.View(), "RECONNECTING") {
		t.Error("view should show reconnecting")
	}

	m, cmd := update(t, m, key("r"))
	if cmd != nil {
		t.Error("commands should be refused while the connection is lost")
	}
	if e := lastEvent(m); e.message != "Cannot send command: connection lost" {
		t.Errorf("last event = %q", e.message)
	}

	m, _ = update(t, m, reconnectedMsg{connInfo: "Serial: /dev/ttyUSB1 @ 115200 baud"})
	if m.connectionLost || m.connInfo != "Serial: /dev/ttyUSB1 @ 115200 baud" {
		t.Errorf("after reconnect: lost=%v info=%q", m.connectionLost, m.connInfo)
	}
}

func TestControlModel_DeviceLog(t *testing.T) {
	m := newTestModel(t)

	m, _ = update(t, m, deviceLogMsg{level: cobot.LogWarn, text: "joint 2 near limit"})
	if e := lastEvent(m); e.isError || e.message != "[device WARN] joint 2 near limit" {
		t.Errorf("warn event = %+v", e)
	}

	m, _ = update(t, m, deviceLogMsg{level: cobot.LogError, text: "overcurrent"})
	if e := lastEvent(m); !e.isError {
		t.Errorf("error event = %+v", e)
	}
}

func TestControlModel_View(t *testing.T) {
	m := newTestModel(t)
	if !strings.Contains(m.View(), "Waiting for joint data") {
		t.Error("view before poll should wait for joints")
	}

	m, _ = update(t, m, jointsMsg{joints: twoJoints})
	view := m.View()
	for _, want := range []string{"COBOTLINK CONTROL", "Joint 0", "[ Move ]", "EVENTS"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

// ============================================================
// Connection Manager Tests
// ============================================================

func TestConnectionLost(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&cobot.TransportError{Op: "write", Err: io.ErrClosedPipe}, true},
		{fmt.Errorf("wrapped: %w", transport.ErrConnectionClosed), true},
		{session.ErrNotConnected, true},
		{cobot.ErrClosed, true},
		{&cobot.TimeoutError{Stage: cobot.StageResponse, Timeout: time.Second}, false},
		{&cobot.CobotError{Code: cobot.ErrCodeNotInitialized}, false},
	}

	for _, tt := range tests {
		if got := connectionLost(tt.err); got != tt.want {
			t.Errorf("connectionLost(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

// ============================================================
// Helper Tests
// ============================================================

func TestEventLog_Capacity(t *testing.T) {
	l := newEventLog(3)
	now := time.Now()
	for i := 0; i < 5; i++ {
		l.add(now, fmt.Sprintf("event %d", i), false)
	}

	tail := l.tail(10)
	if len(tail) != 3 {
		t.Fatalf("len = %d, want 3", len(tail))
	}
	if tail[0].message != "event 2" || tail[2].message != "event 4" {
		t.Errorf("tail = %+v", tail)
	}
	if got := l.tail(1); got[0].message != "event 4" {
		t.Errorf("tail(1) = %+v", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 seconds"},
		{500 * time.Millisecond, "0 seconds"},
		{time.Second, "1 second"},
		{59 * time.Second, "59 seconds"},
		{61 * time.Second, "1 minute and 1 second"},
		{time.Hour + 2*time.Minute + 5*time.Second, "1 hour, 2 minutes, and 5 seconds"},
		{48 * time.Hour, "2 days"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
