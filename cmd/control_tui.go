// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/trackside/pkg/operations"
	"github.com/Thermoquad/trackside/pkg/tracklink"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	controlTickInterval = 100 * time.Millisecond
	currentInterval     = time.Second // Track current is sampled this often
	speedStep           = 8
	speedBarWidth       = 24
)

// Focus states
const (
	focusLocoList = iota
	focusCommandInput
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// locoItem shows one registered loco in the list
type locoItem struct {
	loco   *operations.Loco
	active bool
}

// Implement list.Item interface
func (i locoItem) Title() string {
	mark := " "
	if i.active {
		mark = ">"
	}
	return fmt.Sprintf("%s %-5d %s", mark, i.loco.Address, i.loco.Name)
}
func (i locoItem) Description() string {
	return fmt.Sprintf("  %s %d, %d steps", i.loco.Direction(), i.loco.Speed, i.loco.SpeedSteps)
}
func (i locoItem) FilterValue() string { return fmt.Sprintf("%d", i.loco.Address) }

type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// controlModel is the Bubble Tea model for the control TUI. Every
// controller call happens in Update, so the controller stays on one
// goroutine.
type controlModel struct {
	ctx      context.Context
	ctrl     *operations.Controller
	client   *tracklink.Client
	connInfo string
	output   *bytes.Buffer // Controller output, moved to the event log

	// Loco tracking
	locoList list.Model

	// Command line
	commandInput textinput.Model
	focusedField int

	// Event log
	eventLog      []logEntry
	maxLogEntries int

	// Track current
	milliamps   int
	hasCurrent  bool
	lastCurrent time.Time

	// UI state
	width    int
	height   int
	quitting bool
	idle     bool
	linkLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type linkLostMsg struct {
	err error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(ctx context.Context, ctrl *operations.Controller, client *tracklink.Client, connInfo string, output *bytes.Buffer) *controlModel {
	ti := textinput.New()
	ti.Placeholder = "l3#v40#f0"
	ti.Prompt = "> "
	ti.CharLimit = 128
	ti.Width = 40

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	locoList := list.New([]list.Item{}, delegate, 30, 10)
	locoList.Title = "Locos"
	locoList.SetShowStatusBar(false)
	locoList.SetShowHelp(false)
	locoList.SetFilteringEnabled(false)

	m := &controlModel{
		ctx:           ctx,
		ctrl:          ctrl,
		client:        client,
		connInfo:      connInfo,
		output:        output,
		locoList:      locoList,
		commandInput:  ti,
		focusedField:  focusLocoList,
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
	m.flushOutput()
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m *controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(controlTickInterval, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m *controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		if m.tick(time.Time(msg)) {
			return m, tea.Quit
		}
		return m, controlTickCmd()

	case linkLostMsg:
		m.linkLost = true
		m.addLogEntry(fmt.Sprintf("Link lost: %v", msg.err), true)
	}

	return m, nil
}

func (m *controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab", "shift+tab":
		m.cycleFocus()
		return m, nil
	}

	if m.focusedField == focusCommandInput {
		switch msg.String() {
		case "enter":
			line := m.commandInput.Value()
			m.commandInput.SetValue("")
			if m.execute(line) {
				m.quitting = true
				return m, tea.Quit
			}
			return m, nil
		case "esc":
			m.cycleFocus()
			return m, nil
		}
		var cmd tea.Cmd
		m.commandInput, cmd = m.commandInput.Update(msg)
		return m, cmd
	}

	key := msg.String()
	switch key {
	case "q":
		m.quitting = true
		return m, tea.Quit

	case "enter":
		if item, ok := m.locoList.SelectedItem().(locoItem); ok {
			m.execute(fmt.Sprintf("l%d", item.loco.Address))
		}

	case "+", "=":
		m.changeSpeed(speedStep)

	case "-":
		m.changeSpeed(-speedStep)

	case " ":
		m.execute("h")

	case "<":
		m.setDirection(false)

	case ">":
		m.setDirection(true)

	case "e":
		m.ctrl.Post(operations.EventEmergencyButton)

	case "x":
		m.ctrl.Post(operations.EventResetButton)

	case "0", "1", "2", "3", "4", "5", "6", "7", "8", "9":
		m.execute("f" + key)

	case "up", "k", "down", "j":
		m.locoList, _ = m.locoList.Update(msg)
	}

	return m, nil
}

func (m *controlModel) cycleFocus() {
	if m.focusedField == focusLocoList {
		m.focusedField = focusCommandInput
		m.commandInput.Focus()
		return
	}
	m.focusedField = focusLocoList
	m.commandInput.Blur()
}

func (m *controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	s.WriteString(titleStyle.Render("TRACKSIDE CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.linkLost {
		connStatus = errorStyle.Render("LINK LOST")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=command e=stop", connStatus)))
	s.WriteString("\n")
	if m.ctrl.Emergency() {
		s.WriteString(errorStyle.Render(" EMERGENCY STOP - press e to resume"))
	}
	s.WriteString("\n\n")

	// Layout: left panel (locos) | right panel (active loco)
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6
	if rightWidth < 20 {
		rightWidth = 20
	}

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusLocoList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	locoPanel := listStyle.Render(m.locoList.View())
	locoInfo := boxStyle.Width(rightWidth).Render(m.renderActiveLoco(labelStyle, valueStyle, headerStyle))
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, locoPanel, " ", locoInfo))
	s.WriteString("\n")

	s.WriteString(m.renderAccessories(labelStyle, headerStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle))
	s.WriteString("\n")

	// Command line
	inputStyle := boxStyle.Width(m.width - 4)
	if m.focusedField == focusCommandInput {
		inputStyle = focusedBoxStyle.Width(m.width - 4)
	}
	s.WriteString(inputStyle.Render(m.commandInput.View()))
	s.WriteString("\n")

	s.WriteString(m.renderEventLog(labelStyle, warningStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) renderActiveLoco(labelStyle, valueStyle, headerStyle lipgloss.Style) string {
	var s strings.Builder

	loco := m.ctrl.Active()
	if loco == nil {
		s.WriteString(headerStyle.Render("No active loco (select one or enter l<address>)"))
		return s.String()
	}

	s.WriteString(fmt.Sprintf("%s %s [%d]\n", labelStyle.Render("Loco:"), valueStyle.Render(loco.Name), loco.Address))

	dir := "forward"
	if !loco.Forward {
		dir = "reverse"
	}
	s.WriteString(fmt.Sprintf("%s %s  %s %d\n", labelStyle.Render("Direction:"), valueStyle.Render(dir),
		labelStyle.Render("Steps:"), loco.SpeedSteps))

	filled := 0
	if settings.MaxSpeed > 0 {
		filled = loco.Speed * speedBarWidth / settings.MaxSpeed
	}
	if filled > speedBarWidth {
		filled = speedBarWidth
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", speedBarWidth-filled)
	s.WriteString(fmt.Sprintf("%s %s %d\n\n", labelStyle.Render("Speed:"), valueStyle.Render(bar), loco.Speed))

	s.WriteString(loco.FunctionTable())
	return s.String()
}

func (m *controlModel) renderAccessories(labelStyle, headerStyle, boxStyle lipgloss.Style) string {
	var content strings.Builder
	content.WriteString(labelStyle.Render("ACCESSORIES"))
	content.WriteString(" | ")

	accessories := m.ctrl.Accessories()
	if len(accessories) == 0 {
		content.WriteString(headerStyle.Render("none commanded"))
		return boxStyle.Width(m.width - 4).Render(content.String())
	}

	parts := make([]string, 0, len(accessories))
	for _, a := range accessories {
		if a.Signal {
			parts = append(parts, fmt.Sprintf("S%d=%d", a.Address, a.Aspect))
			continue
		}
		pos := "-"
		if a.Direction != 0 {
			pos = "/"
		}
		parts = append(parts, fmt.Sprintf("W%d%s", a.Address, pos))
	}
	content.WriteString(strings.Join(parts, "  "))
	return boxStyle.Width(m.width - 4).Render(content.String())
}

func (m *controlModel) renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle lipgloss.Style) string {
	stats := m.client.Stats().Snapshot()
	var validPercent, errorPercent float64
	if stats.TotalPackets > 0 {
		validPercent = float64(stats.ValidPackets) * 100.0 / float64(stats.TotalPackets)
		totalErrors := stats.CRCErrors + stats.DecodeErrors + stats.InvalidPackets
		errorPercent = float64(totalErrors) * 100.0 / float64(stats.TotalPackets)
	}

	current := "-"
	if m.hasCurrent {
		current = fmt.Sprintf("%d mA", m.milliamps)
	}

	errText := valueStyle.Render("0.0%")
	if errorPercent > 0 {
		errText = errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Current:"), valueStyle.Render(current),
		labelStyle.Render("Packets:"), valueStyle.Render(fmt.Sprintf("%d", stats.TotalPackets)),
		labelStyle.Render("Valid:"), valueStyle.Render(fmt.Sprintf("%.1f%%", validPercent)),
		labelStyle.Render("Errors:"), errText,
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f pkt/s", stats.PacketRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m *controlModel) renderEventLog(labelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := 8
	if len(m.eventLog) < logHeight {
		logHeight = len(m.eventLog)
	}
	startIdx := len(m.eventLog) - logHeight

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

// execute runs one command line and reports whether it asked to quit
func (m *controlModel) execute(line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	if m.linkLost {
		m.addLogEntry("Cannot send command: link lost", true)
		return false
	}

	quit, err := m.ctrl.Execute(m.ctx, line)
	m.flushOutput()
	if err != nil && !operations.Recoverable(err) {
		m.addLogEntry(fmt.Sprintf("%s: %v", line, err), true)
	}
	m.refreshLocoList()
	return quit
}

func (m *controlModel) changeSpeed(delta int) {
	loco := m.ctrl.Active()
	if loco == nil {
		m.addLogEntry("No active loco", true)
		return
	}
	speed := loco.Speed + delta
	if speed < 0 {
		speed = 0
	}
	m.execute(fmt.Sprintf("%s%d", directionVerb(loco.Forward), speed))
}

func (m *controlModel) setDirection(forward bool) {
	loco := m.ctrl.Active()
	if loco == nil {
		m.addLogEntry("No active loco", true)
		return
	}
	m.execute(fmt.Sprintf("%s%d", directionVerb(forward), loco.Speed))
}

func directionVerb(forward bool) string {
	if forward {
		return "v"
	}
	return "r"
}

// tick runs one controller iteration and reports whether the TUI should
// quit
func (m *controlModel) tick(now time.Time) bool {
	if m.linkLost {
		return false
	}

	err := m.ctrl.Tick(m.ctx)
	m.flushOutput()
	switch {
	case errors.Is(err, operations.ErrIdle):
		m.idle = true
		return true
	case err != nil:
		m.addLogEntry(fmt.Sprintf("Track: %v", err), true)
	}

	if now.Sub(m.lastCurrent) >= currentInterval {
		m.lastCurrent = now
		mA, err := m.ctrl.Current()
		if err != nil {
			m.hasCurrent = false
			var boardErr *tracklink.BoardError
			if errors.As(err, &boardErr) {
				m.addLogEntry(boardErr.Error(), true)
			}
		} else {
			m.milliamps = mA
			m.hasCurrent = true
		}
	}

	m.refreshLocoList()
	return false
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

// flushOutput moves controller output lines into the event log
func (m *controlModel) flushOutput() {
	if m.output.Len() == 0 {
		return
	}
	for _, line := range strings.Split(m.output.String(), "\n") {
		line = strings.TrimRight(line, " \r")
		if line == "" {
			continue
		}
		m.addLogEntry(line, false)
	}
	m.output.Reset()
}

func (m *controlModel) addLogEntry(message string, isError bool) {
	entry := logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m *controlModel) refreshLocoList() {
	locos := m.ctrl.Locos()
	active := m.ctrl.Active()
	items := make([]list.Item, len(locos))
	for i, l := range locos {
		items[i] = locoItem{loco: l, active: l == active}
	}
	m.locoList.SetItems(items)
}

func (m *controlModel) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 5 {
		listHeight = 5
	}
	m.locoList.SetSize(28, listHeight)
}
