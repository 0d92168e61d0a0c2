// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jmcp/jfy-monitor/pkg/config"
	"github.com/jmcp/jfy-monitor/pkg/jfy"
	"github.com/jmcp/jfy-monitor/pkg/monitor"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// Latest state of one inverter
type inverterRow struct {
	name     string
	device   string
	state    string
	serial   string
	address  uint8
	readings jfy.Readings
	lastSeen time.Time
	stats    jfy.StatisticsSnapshot
}

// Dashboard model
type dashboardModel struct {
	configPath    string
	events        <-chan monitor.Event
	cancel        context.CancelFunc
	rows          map[string]*inverterRow
	order         []string
	table         table.Model
	eventLog      []eventLogEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
	finished      bool
	finishErr     error
}

// Messages
type workerEventMsg monitor.Event
type supervisorDoneMsg struct {
	err error
}

var dashboardColumns = []table.Column{
	{Title: "Inverter", Width: 14},
	{Title: "State", Width: 11},
	{Title: "Serial", Width: 14},
	{Title: "Addr", Width: 4},
	{Title: "Temp °C", Width: 8},
	{Title: "Power W", Width: 8},
	{Title: "DC V", Width: 7},
	{Title: "DC A", Width: 6},
	{Title: "Energy 10Wh", Width: 11},
	{Title: "AC V", Width: 7},
	{Title: "Resp %", Width: 7},
	{Title: "Last", Width: 8},
}

func newDashboardModel(cfg *config.Config, events <-chan monitor.Event, cancel context.CancelFunc) dashboardModel {
	m := dashboardModel{
		configPath:    configPath,
		events:        events,
		cancel:        cancel,
		rows:          make(map[string]*inverterRow),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
	for _, inv := range cfg.Inverters {
		m.rows[inv.DevName] = &inverterRow{name: inv.Name, device: inv.DevName, state: "registering"}
		m.order = append(m.order, inv.DevName)
	}

	t := table.New(
		table.WithColumns(dashboardColumns),
		table.WithHeight(len(m.order)+1),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = lipgloss.NewStyle()
	t.SetStyles(styles)
	m.table = t
	m.refreshTable()
	return m
}

// runMonitorTUI runs the supervisor behind the dashboard
func runMonitorTUI(ctx context.Context, cfg *config.Config, opts monitor.Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan monitor.Event, 64)
	opts.Events = events

	p := tea.NewProgram(newDashboardModel(cfg, events, cancel), tea.WithAltScreen())

	done := make(chan error, 1)
	go func() {
		err := monitor.New(cfg, opts).Run(ctx)
		done <- err
		p.Send(supervisorDoneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return fmt.Errorf("TUI error: %v", err)
	}
	cancel()
	return <-done
}

func waitForEvent(events <-chan monitor.Event) tea.Cmd {
	return func() tea.Msg {
		return workerEventMsg(<-events)
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case workerEventMsg:
		m.applyEvent(monitor.Event(msg))
		m.refreshTable()
		return m, waitForEvent(m.events)

	case supervisorDoneMsg:
		m.finished = true
		m.finishErr = msg.err
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Monitor stopped: %v", msg.err), true)
		} else {
			m.addLogEntry("Monitor stopped", false)
		}
	}

	return m, nil
}

func (m *dashboardModel) applyEvent(e monitor.Event) {
	row, ok := m.rows[e.Device]
	if !ok {
		row = &inverterRow{name: e.Name, device: e.Device}
		m.rows[e.Device] = row
		m.order = append(m.order, e.Device)
	}
	row.stats = e.Stats
	if e.Inverter != nil {
		row.serial = e.Inverter.Serial
		row.address = e.Inverter.Address
	}

	switch e.Kind {
	case monitor.EventRegistered:
		row.state = "polling"
		m.addLogEntry(fmt.Sprintf("%s registered: serial %s at address %d", row.name, row.serial, row.address), false)
	case monitor.EventAbandoned:
		row.state = "abandoned"
		m.addLogEntry(fmt.Sprintf("%s abandoned: %v", row.name, e.Err), true)
	case monitor.EventReading:
		row.lastSeen = e.Time
		row.readings = e.Readings
		if e.Readings.IsZero() {
			m.addLogEntry(fmt.Sprintf("%s: no readings", row.name), true)
		}
	case monitor.EventStopped:
		row.state = "stopped"
	}
}

func (m *dashboardModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.order))
	for _, dev := range m.order {
		r := m.rows[dev]
		values := make([]string, jfy.NumQuantities)
		for q := jfy.Quantity(0); q < jfy.NumQuantities; q++ {
			if r.lastSeen.IsZero() {
				values[q] = "-"
			} else {
				values[q] = fmt.Sprintf("%.1f", r.readings.Scaled(q))
			}
		}
		address, last, rate := "-", "-", "-"
		if r.address != 0 {
			address = fmt.Sprintf("%d", r.address)
		}
		if !r.lastSeen.IsZero() {
			last = r.lastSeen.Format("15:04:05")
		}
		if r.stats.Exchanges > 0 {
			rate = fmt.Sprintf("%.0f", r.stats.ResponseRate)
		}
		rows = append(rows, table.Row{
			r.name, r.state, r.serial, address,
			values[jfy.Temperature], values[jfy.PowerGenerated], values[jfy.VoltageDC],
			values[jfy.Current], values[jfy.EnergyGenerated], values[jfy.VoltageAC],
			rate, last,
		})
	}
	m.table.SetRows(rows)
	m.table.SetHeight(len(rows) + 1)
}

func (m *dashboardModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m dashboardModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

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

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("JFYMON - INVERTERS"))
	s.WriteString("\n")
	status := "running"
	if m.finished {
		status = "stopped"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("Config: %s | Monitor: %s | Press 'q' to quit", m.configPath, status)))
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.table.View()))
	s.WriteString("\n\n")

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - len(m.order) - 12
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	var logContent strings.Builder
	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.eventLog[startIdx:] {
		timestamp := headerStyle.Render(entry.timestamp.Format("01/02/06 15:04:05"))
		if entry.isError {
			logContent.WriteString(fmt.Sprintf("%s %s\n", timestamp, errorStyle.Render("✗ "+entry.message)))
		} else {
			logContent.WriteString(fmt.Sprintf("%s %s\n", timestamp, infoStyle.Render("ℹ "+entry.message)))
		}
	}

	width := m.width - 4
	if width < 20 {
		width = 20
	}
	s.WriteString(boxStyle.Width(width).Render(logContent.String()))

	return s.String()
}
