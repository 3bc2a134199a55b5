// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/cobotlink/pkg/cobot"
	"github.com/Thermoquad/cobotlink/pkg/session"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	maxAngle        = 360.0
	maxSpeed        = 180.0
	defaultAngle    = "0"
	defaultSpeed    = "10"
	eventLogHeight  = 8
	maxEventEntries = 100
)

// Focus states
const (
	focusJointList = iota
	focusAngleInput
	focusSpeedInput
	focusButton
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// jointItem is one row of the joint list
type jointItem struct {
	index  int
	sample cobot.JointSample
}

// Implement list.Item interface
func (j jointItem) Title() string       { return fmt.Sprintf("Joint %d", j.index) }
func (j jointItem) Description() string { return fmt.Sprintf("%8.2f° @ %6.2f°/s", j.sample.Angle, j.sample.Speed) }
func (j jointItem) FilterValue() string { return strconv.Itoa(j.index) }

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	// Session (commands run on it from tea.Cmd goroutines)
	sess     *session.Session
	connInfo string

	// Joint state
	joints    []cobot.JointSample
	jointList list.Model
	lastPoll  time.Time
	lastRTT   time.Duration

	// Monitoring
	stats     *cobot.Statistics
	events    eventLog
	startTime time.Time

	// Control
	angleInput   textinput.Model
	speedInput   textinput.Model
	focusedField int
	busy         string // command in flight, empty when idle

	// UI state
	styles         tuiStyles
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type jointsMsg struct {
	joints []cobot.JointSample
	rtt    time.Duration
}

type pollFailedMsg struct {
	err error
}

type deviceLogMsg struct {
	level cobot.LogLevel
	text  string
}

type commandDoneMsg struct {
	label   string
	err     error
	elapsed time.Duration
}

type connectionLostMsg struct {
	err error
}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(sess *session.Session, stats *cobot.Statistics, connInfo string) controlModel {
	angle := textinput.New()
	angle.Placeholder = defaultAngle
	angle.CharLimit = 9
	angle.Width = 10

	speed := textinput.New()
	speed.Placeholder = defaultSpeed
	speed.CharLimit = 7
	speed.Width = 10

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	jointList := list.New([]list.Item{}, delegate, 30, 10)
	jointList.Title = "Joints"
	jointList.SetShowStatusBar(false)
	jointList.SetShowHelp(false)
	jointList.SetFilteringEnabled(false)

	return controlModel{
		sess:         sess,
		connInfo:     connInfo,
		jointList:    jointList,
		stats:        stats,
		events:       newEventLog(maxEventEntries),
		startTime:    time.Now(),
		angleInput:   angle,
		speedInput:   speed,
		focusedField: focusJointList,
		styles:       newTUIStyles(),
		width:        80,
		height:       24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		m.stats.CalculateRates()
		return m, controlTickCmd()

	case jointsMsg:
		m.setJoints(msg.joints)
		m.lastPoll = time.Now()
		m.lastRTT = msg.rtt

	case pollFailedMsg:
		m.addLogEntry("Poll failed: "+session.Describe(msg.err), true)

	case deviceLogMsg:
		m.addLogEntry(fmt.Sprintf("[device %s] %s", cobot.FormatLogLevel(msg.level), msg.text), msg.level >= cobot.LogError)

	case commandDoneMsg:
		m.busy = ""
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s failed: %s", msg.label, session.Describe(msg.err)), true)
		} else {
			m.addLogEntry(fmt.Sprintf("%s done in %v", msg.label, msg.elapsed.Round(time.Millisecond)), false)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry("Connection lost - reconnecting... ("+session.Describe(msg.err)+")", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected: "+msg.connInfo, false)
	}

	// Update child components
	var cmd tea.Cmd
	switch m.focusedField {
	case focusAngleInput:
		m.angleInput, cmd = m.angleInput.Update(msg)
		cmds = append(cmds, cmd)
	case focusSpeedInput:
		m.speedInput, cmd = m.speedInput.Update(msg)
		cmds = append(cmds, cmd)
	case focusJointList:
		m.jointList, cmd = m.jointList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	inInput := m.focusedField == focusAngleInput || m.focusedField == focusSpeedInput
	sess := m.sess

	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return *m, tea.Quit

	case "tab":
		m.cycleFocus(1)
		return *m, nil

	case "shift+tab":
		m.cycleFocus(-1)
		return *m, nil

	case "enter":
		if m.focusedField != focusJointList {
			return *m, m.moveSelected()
		}
	}

	// Single-key commands only apply outside the inputs
	if !inInput {
		switch msg.String() {
		case "q":
			m.quitting = true
			return *m, tea.Quit
		case "i":
			return *m, m.runCommand("Init+calibrate", func(ctx context.Context) error {
				return sess.InitializeAndCalibrate(ctx, cobot.AllJoints)
			})
		case "s":
			joint, ok := m.selectedJoint()
			if !ok {
				return *m, nil
			}
			return *m, m.runCommand(fmt.Sprintf("Stop joint %d", joint), func(ctx context.Context) error {
				return sess.StopJoint(ctx, joint)
			})
		case "x":
			return *m, m.runCommand("Stop all", func(ctx context.Context) error {
				return sess.StopAll(ctx, false)
			})
		case "h":
			return *m, m.runCommand("Home", func(ctx context.Context) error {
				return sess.GoHome(ctx, cobot.AllJoints)
			})
		case "r":
			return *m, m.runCommand("Reset", func(ctx context.Context) error {
				return sess.Reset(ctx)
			})
		}
	}

	// Pass through to focused component
	var cmd tea.Cmd
	switch m.focusedField {
	case focusAngleInput:
		m.angleInput, cmd = m.angleInput.Update(msg)
	case focusSpeedInput:
		m.speedInput, cmd = m.speedInput.Update(msg)
	case focusJointList:
		m.jointList, cmd = m.jointList.Update(msg)
	}
	return *m, cmd
}

func (m *controlModel) cycleFocus(delta int) {
	count := focusButton + 1
	m.focusedField = (m.focusedField + delta + count) % count

	m.angleInput.Blur()
	m.speedInput.Blur()
	switch m.focusedField {
	case focusAngleInput:
		m.angleInput.Focus()
	case focusSpeedInput:
		m.speedInput.Focus()
	}
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	st := m.styles
	var s strings.Builder

	// Header
	s.WriteString(st.title.Render("COBOTLINK CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = st.warning.Render("RECONNECTING...")
	}
	s.WriteString(st.header.Render(fmt.Sprintf("| %s | q=quit Tab=switch i=init s=stop x=stop all h=home r=reset", connStatus)))
	s.WriteString("\n\n")

	// Layout: left panel (joints) | right panel (control)
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6

	listStyle := st.box.Width(leftWidth)
	if m.focusedField == focusJointList {
		listStyle = st.focusedBox.Width(leftWidth)
	}
	jointPanel := listStyle.Render(m.jointList.View())
	controlPanel := st.box.Width(rightWidth).Render(m.renderControlPanel())

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, jointPanel, " ", controlPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar())
	s.WriteString("\n\n")

	s.WriteString(m.renderEventLog())

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderControlPanel() string {
	st := m.styles
	var s strings.Builder

	joint, ok := m.selectedJoint()
	if !ok {
		s.WriteString(st.header.Render("Waiting for joint data..."))
		return s.String()
	}

	sample := m.joints[joint]
	s.WriteString(fmt.Sprintf("%s Joint %d\n", st.label.Render("Selected:"), joint))
	s.WriteString(fmt.Sprintf("%s %s\n\n", st.label.Render("Position:"),
		st.value.Render(fmt.Sprintf("%.3f° @ %.3f°/s", sample.Angle, sample.Speed))))

	s.WriteString(st.label.Render("Angle (°):   "))
	s.WriteString(renderInput(m.angleInput, m.focusedField == focusAngleInput))
	s.WriteString("\n")
	s.WriteString(st.label.Render("Speed (°/s): "))
	s.WriteString(renderInput(m.speedInput, m.focusedField == focusSpeedInput))
	s.WriteString("\n\n")

	btnText := "[ Move ]"
	if m.focusedField == focusButton {
		s.WriteString(st.focusedButton.Render(btnText))
	} else {
		s.WriteString(st.button.Render(btnText))
	}

	if m.busy != "" {
		s.WriteString("  ")
		s.WriteString(st.warning.Render(m.busy + "..."))
	}

	return s.String()
}

// renderInput shows the live input when focused and plain text otherwise
func renderInput(in textinput.Model, focused bool) string {
	if focused {
		return in.View()
	}
	val := in.Value()
	if val == "" {
		val = in.Placeholder
	}
	return fmt.Sprintf("[%s]", val)
}

func (m controlModel) renderStatisticsBar() string {
	st := m.styles
	snap := m.stats.Snapshot()

	errors := snap.CRCErrors + snap.UnknownFrames
	errorText := st.value.Render("0")
	if errors > 0 {
		errorText = st.err.Render(fmt.Sprintf("%d", errors))
	}
	timeouts := snap.AckTimeouts + snap.DoneTimeouts + snap.ResponseTimeouts

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s  %s %s",
		st.label.Render("Frames:"), st.value.Render(fmt.Sprintf("%d", snap.TotalFrames)),
		st.label.Render("Errors:"), errorText,
		st.label.Render("Timeouts:"), st.value.Render(fmt.Sprintf("%d", timeouts)),
		st.label.Render("Rate:"), st.value.Render(fmt.Sprintf("%.1f fr/s", snap.FrameRate)),
		st.label.Render("RTT:"), st.value.Render(m.lastRTT.Round(time.Millisecond).String()),
		st.label.Render("Up:"), st.value.Render(formatDuration(time.Since(m.startTime))),
	)

	return st.box.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog() string {
	st := m.styles
	var s strings.Builder
	s.WriteString(st.label.Render("EVENTS"))
	s.WriteString("\n")

	entries := m.events.tail(eventLogHeight)
	if len(entries) == 0 {
		s.WriteString(st.header.Render("  (no events yet)"))
	}
	for _, entry := range entries {
		icon := "i"
		style := st.warning
		if entry.isError {
			icon = "x"
			style = st.err
		}
		s.WriteString(fmt.Sprintf("%s %s %s\n",
			st.header.Render(entry.timestamp.Format("15:04:05.000")),
			style.Render(icon),
			entry.message))
	}

	return st.box.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

// runCommand starts fn on a tea.Cmd goroutine unless another command is
// still running
func (m *controlModel) runCommand(label string, fn func(ctx context.Context) error) tea.Cmd {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return nil
	}
	if m.busy != "" {
		m.addLogEntry(fmt.Sprintf("Busy: %s in progress", m.busy), true)
		return nil
	}

	m.busy = label
	m.addLogEntry("Sent: "+label, false)
	return func() tea.Msg {
		start := time.Now()
		err := fn(context.Background())
		return commandDoneMsg{label: label, err: err, elapsed: time.Since(start)}
	}
}

// moveSelected moves the selected joint to the entered angle and speed
func (m *controlModel) moveSelected() tea.Cmd {
	joint, ok := m.selectedJoint()
	if !ok {
		m.addLogEntry("No joint selected", true)
		return nil
	}

	angle, err := parseInputFloat(m.angleInput, maxAngle)
	if err != nil {
		m.addLogEntry("Invalid angle: "+err.Error(), true)
		return nil
	}
	speed, err := parseInputFloat(m.speedInput, maxSpeed)
	if err != nil {
		m.addLogEntry("Invalid speed: "+err.Error(), true)
		return nil
	}

	sess := m.sess
	label := fmt.Sprintf("Move joint %d to %.2f° @ %.2f°/s", joint, angle, speed)
	return m.runCommand(label, func(ctx context.Context) error {
		return sess.MoveJoint(ctx, joint, angle, speed)
	})
}

// parseInputFloat reads an input, falling back to its placeholder, and
// checks it lies within ±limit
func parseInputFloat(in textinput.Model, limit float64) (float64, error) {
	text := strings.TrimSpace(in.Value())
	if text == "" {
		text = in.Placeholder
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", text)
	}
	if math.IsNaN(v) || math.Abs(v) > limit {
		return 0, fmt.Errorf("%s must be between %.0f and %.0f", text, -limit, limit)
	}
	return v, nil
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.events.add(time.Now(), message, isError)
}

func (m controlModel) selectedJoint() (uint8, bool) {
	idx := m.jointList.Index()
	if idx < 0 || idx >= len(m.joints) || idx > cobot.MaxJoint {
		return 0, false
	}
	return uint8(idx), true
}

func (m *controlModel) setJoints(joints []cobot.JointSample) {
	if len(joints) != len(m.joints) {
		m.addLogEntry(fmt.Sprintf("Device reports %d joint(s)", len(joints)), false)
	}
	m.joints = joints

	items := make([]list.Item, len(joints))
	for i, j := range joints {
		items[i] = jointItem{index: i, sample: j}
	}
	m.jointList.SetItems(items)
}

func (m *controlModel) updateListSize() {
	// Adjust list size based on terminal size
	listHeight := m.height / 3
	if listHeight < 5 {
		listHeight = 5
	}
	m.jointList.SetSize(28, listHeight)
}
