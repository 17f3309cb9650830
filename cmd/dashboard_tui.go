// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/flightlink/pkg/flightlink"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	dashboardPingInterval = 5 * time.Second
	dashboardPingTimeout  = 2 * time.Second
	maxLogEntries         = 100
	listWidth             = 34
)

// Focus states
const (
	focusCommandList = iota
	focusCommandLine
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// dashboardLink is what the TUI needs from the session
type dashboardLink interface {
	Send(id flightlink.CommandID, p flightlink.Payload) error
	Stats() flightlink.Statistics
}

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// commandItem is the latest state of one command
type commandItem struct {
	id       flightlink.CommandID
	count    uint64
	lastSeen time.Time
	payload  flightlink.Payload
}

// Implement list.Item interface
func (c commandItem) Title() string {
	return fmt.Sprintf("%-22s %5d", flightlink.FormatCommand(c.id), c.count)
}

func (c commandItem) Description() string {
	if c.count == 0 {
		return "no data"
	}
	return fmt.Sprintf("%s ago", time.Since(c.lastSeen).Round(time.Second))
}

func (c commandItem) FilterValue() string {
	return strings.ToLower(flightlink.FormatCommand(c.id))
}

// dashboardModel is the Bubble Tea model for the dashboard
type dashboardModel struct {
	link     dashboardLink
	connInfo string

	commands    []commandItem
	commandList list.Model

	stats     flightlink.Statistics
	eventLog  []logEntry
	logFrames bool

	input        textinput.Model
	focusedField int

	// Ping state
	pingSeq     uint8
	pingSent    time.Time
	pingPending bool
	lastRTT     time.Duration
	hasRTT      bool

	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type dashboardTickMsg time.Time

type frameBatchMsg struct {
	frames []frameEvent
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

func initialDashboardModel(l dashboardLink, connInfo string, logFrames bool) dashboardModel {
	ti := textinput.New()
	ti.Placeholder = "mode 2 | request gps | ping | help"
	ti.Prompt = "> "
	ti.CharLimit = 128
	ti.Width = 50

	commands := make([]commandItem, flightlink.CommandCount)
	items := make([]list.Item, flightlink.CommandCount)
	for i := range commands {
		commands[i] = commandItem{id: flightlink.CommandID(i)}
		items[i] = commands[i]
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	commandList := list.New(items, delegate, listWidth-2, 20)
	commandList.Title = "Commands"
	commandList.SetShowStatusBar(false)
	commandList.SetShowHelp(false)
	commandList.SetFilteringEnabled(false)

	return dashboardModel{
		link:         l,
		connInfo:     connInfo,
		commands:     commands,
		commandList:  commandList,
		stats:        flightlink.NewStatistics(),
		eventLog:     make([]logEntry, 0),
		logFrames:    logFrames,
		input:        ti,
		focusedField: focusCommandList,
		width:        80,
		height:       24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m dashboardModel) Init() tea.Cmd {
	return dashboardTickCmd()
}

func dashboardTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return dashboardTickMsg(t)
	})
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case dashboardTickMsg:
		m.stats = m.link.Stats()
		m.stats.CalculateRates()

		if m.pingPending && time.Since(m.pingSent) > dashboardPingTimeout {
			m.pingPending = false
			m.addLogEntry(fmt.Sprintf("Ping seq=%d timed out", m.pingSeq), true)
		}
		if !m.connectionLost && !m.pingPending && time.Since(m.pingSent) >= dashboardPingInterval {
			m.sendPing()
		}
		m.refreshList()
		return m, dashboardTickCmd()

	case frameBatchMsg:
		for _, ev := range msg.frames {
			m.applyFrame(ev)
		}
		m.refreshList()

	case connectionLostMsg:
		m.connectionLost = true
		m.pingPending = false
		m.addLogEntry(fmt.Sprintf("Connection lost (%v) - reconnecting...", msg.err), true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", false)
	}

	return m, nil
}

func (m dashboardModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focusedField == focusCommandList {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab", "shift+tab":
		return m.toggleFocus()

	case "enter":
		if m.focusedField == focusCommandLine {
			line := m.input.Value()
			m.input.Reset()
			m.executeLine(line)
			return m, nil
		}
		if idx := m.commandList.Index(); idx >= 0 && idx < len(m.commands) {
			m.sendCommand(flightlink.CmdRequest, &flightlink.Request{ID: m.commands[idx].id})
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.focusedField == focusCommandLine {
		m.input, cmd = m.input.Update(msg)
	} else {
		m.commandList, cmd = m.commandList.Update(msg)
	}
	return m, cmd
}

func (m dashboardModel) toggleFocus() (tea.Model, tea.Cmd) {
	if m.focusedField == focusCommandList {
		m.focusedField = focusCommandLine
		return m, m.input.Focus()
	}
	m.focusedField = focusCommandList
	m.input.Blur()
	return m, nil
}

func (m dashboardModel) View() string {
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

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
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
	s.WriteString(titleStyle.Render("FLIGHTLINK DASHBOARD"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch Enter=request", connStatus)))
	s.WriteString("\n\n")

	// Statistics bar
	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n")

	// Command list | selected command
	listStyle := boxStyle.Width(listWidth)
	if m.focusedField == focusCommandList {
		listStyle = focusedBoxStyle.Width(listWidth)
	}
	left := listStyle.Render(m.commandList.View())
	rightWidth := m.width - listWidth - 6
	if rightWidth < 20 {
		rightWidth = 20
	}
	right := boxStyle.Width(rightWidth).Render(m.renderSelected(statsLabelStyle, statsValueStyle, headerStyle))
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right))
	s.WriteString("\n")

	// Command line
	inputStyle := boxStyle.Width(m.width - 4)
	if m.focusedField == focusCommandLine {
		inputStyle = focusedBoxStyle.Width(m.width - 4)
	}
	s.WriteString(inputStyle.Render(m.input.View()))
	s.WriteString("\n")

	// Event log
	s.WriteString(m.renderEventLog(statsLabelStyle, headerStyle, warningStyle, errorStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m dashboardModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle lipgloss.Style, boxStyle lipgloss.Style) string {
	errors := m.stats.Errors()
	errorValue := statsValueStyle.Render("0")
	if errors > 0 {
		errorValue = errorStyle.Render(fmt.Sprintf("%d", errors))
	}

	rtt := "-"
	if m.hasRTT {
		rtt = m.lastRTT.Round(time.Microsecond).String()
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.FramesReceived)),
		statsLabelStyle.Render("Sent:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.FramesSent)),
		statsLabelStyle.Render("Errors:"), errorValue,
		statsLabelStyle.Render("Skipped:"), statsValueStyle.Render(fmt.Sprintf("%d B", m.stats.SkippedBytes)),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f fr/s", m.stats.FrameRate)),
		statsLabelStyle.Render("RTT:"), statsValueStyle.Render(rtt),
	)
	return boxStyle.Width(m.width - 4).Render(content)
}

func (m dashboardModel) renderSelected(statsLabelStyle, statsValueStyle, headerStyle lipgloss.Style) string {
	idx := m.commandList.Index()
	if idx < 0 || idx >= len(m.commands) {
		return headerStyle.Render("No command selected")
	}
	c := m.commands[idx]

	var s strings.Builder
	s.WriteString(fmt.Sprintf("%s %s (0x%02X)\n", statsLabelStyle.Render("Command:"),
		statsValueStyle.Render(flightlink.FormatCommand(c.id)), uint8(c.id)))
	s.WriteString(fmt.Sprintf("%s %d bytes\n", statsLabelStyle.Render("Body:"), flightlink.BodyLen(c.id)))
	s.WriteString(fmt.Sprintf("%s %d\n", statsLabelStyle.Render("Received:"), c.count))
	if c.payload == nil {
		s.WriteString("\n")
		s.WriteString(headerStyle.Render("No data yet. Press Enter to request it."))
		return s.String()
	}
	s.WriteString(fmt.Sprintf("%s %s\n\n", statsLabelStyle.Render("Last seen:"), c.lastSeen.Format("15:04:05.000")))
	s.WriteString(flightlink.FormatPayload(c.payload))
	return s.String()
}

func (m dashboardModel) renderEventLog(statsLabelStyle, headerStyle, warningStyle, errorStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := m.height - 32
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for _, entry := range m.eventLog[startIdx:] {
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyle
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *dashboardModel) applyFrame(ev frameEvent) {
	if !ev.id.Valid() {
		return
	}
	if m.logFrames {
		m.addLogEntry(fmt.Sprintf("%s %s %s", ev.dir, flightlink.FormatCommand(ev.id), flightlink.FormatHex(ev.body)), false)
	}
	if ev.dir == flightlink.DirectionTx {
		return
	}

	item := &m.commands[ev.id]
	item.count++
	item.lastSeen = ev.at
	p, err := flightlink.DecodeBody(ev.id, ev.body)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("%s: %v", flightlink.FormatCommand(ev.id), err), true)
		return
	}
	item.payload = p

	if c, ok := p.(*flightlink.ConnectionCheck); ok && c.Loopback && m.pingPending && c.Value == m.pingSeq {
		m.pingPending = false
		m.lastRTT = ev.at.Sub(m.pingSent)
		m.hasRTT = true
	}
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

func (m *dashboardModel) executeLine(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	switch strings.ToLower(fields[0]) {
	case "help":
		m.addLogEntry("ping | clear | <command> [args...], e.g. mode 2, request gps, goal 52.5 13.4", false)
		return
	case "clear":
		m.eventLog = m.eventLog[:0]
		return
	case "ping":
		m.sendPing()
		return
	}

	id, payload, err := parseCommandArgs(fields)
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return
	}
	m.sendCommand(id, payload)
}

func (m *dashboardModel) sendCommand(id flightlink.CommandID, p flightlink.Payload) {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return
	}
	if err := m.link.Send(id, p); err != nil {
		m.addLogEntry(fmt.Sprintf("Failed to send %s: %v", flightlink.FormatCommand(id), err), true)
		return
	}
	m.addLogEntry(fmt.Sprintf("Sent %s: %s", flightlink.FormatCommand(id), strings.TrimSpace(flightlink.FormatPayload(p))), false)
}

func (m *dashboardModel) sendPing() {
	m.pingSeq = (m.pingSeq + 1) & flightlink.ConnectionCheckValueMask
	m.pingSent = time.Now()
	if err := m.link.Send(flightlink.CmdConnectionCheck, &flightlink.ConnectionCheck{Value: m.pingSeq}); err != nil {
		m.addLogEntry(fmt.Sprintf("Ping failed: %v", err), true)
		return
	}
	m.pingPending = true
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *dashboardModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}

func (m *dashboardModel) refreshList() {
	items := make([]list.Item, len(m.commands))
	for i, c := range m.commands {
		items[i] = c
	}
	m.commandList.SetItems(items)
}

func (m *dashboardModel) updateListSize() {
	listHeight := m.height - 16
	if listHeight < 6 {
		listHeight = 6
	}
	m.commandList.SetSize(listWidth-2, listHeight)
}
