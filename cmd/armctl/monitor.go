package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	log "github.com/sirupsen/logrus"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/armctl/pkg/monitor"
	"github.com/gwillem/armctl/pkg/robot"
)

type MonitorCommand struct {
	Hz   int `long:"hz" default:"10" description:"Sampling frequency"`
	Step int `long:"step" default:"50" description:"Jog step in ticks (servo) or velocity units (wheel)"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Colors per joint id; other ids cycle through the same palette.
var motorColors = []string{"196", "208", "226", "46", "51", "201"}

func motorColor(id int) string {
	return motorColors[(id-1+len(motorColors))%len(motorColors)]
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle = lipgloss.NewStyle().Reverse(true)
)

type monitorModel struct {
	ctrl     *monitor.Controller
	session  *robot.Session
	chart    *streamlinechart.Model
	ids      []int
	selected int // index into ids
	step     int
	width    int
	height   int
	logs     []string
	last     monitor.State
	quitting bool
}

func (m *monitorModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the controller
type stateMsg monitor.State
type logMsg string

func waitForState(ctrl *monitor.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *monitor.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *monitorModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize-len(m.ids)-4, 10)
	return width, height
}

func newMonitorModel(ctrl *monitor.Controller, s *robot.Session, step int) monitorModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-100, 100),
	)
	ids := s.IDs()
	for _, id := range ids {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(motorColor(id)))
		chart.SetDataSetStyles(strconv.Itoa(id), runes.ThinLineStyle, style)
	}
	return monitorModel{
		ctrl:    ctrl,
		session: s,
		chart:   &chart,
		ids:     ids,
		step:    step,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.ids)-1 {
				m.selected++
			}
		case "left", "h":
			m.jog(-m.step)
		case "right", "l":
			m.jog(m.step)
		case " ":
			m.jog(0)
		case "[":
			m.step = max(m.step/2, 1)
		case "]":
			m.step = min(m.step*2, robot.MaxVelocity)
		}
		return m, nil

	case stateMsg:
		state := monitor.State(msg)
		if state.Error != nil {
			m.addLog(state.Error.Error())
		}
		for id, t := range state.Telemetry {
			if t.Position == nil {
				continue
			}
			mot, ok := m.session.Motor(id)
			if !ok {
				continue
			}
			m.chart.PushDataSet(strconv.Itoa(id), mot.Bounds().Normalize(*t.Position))
		}
		m.chart.DrawAll()
		m.last = state
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)
	}

	return m, nil
}

func (m *monitorModel) jog(delta int) {
	if len(m.ids) == 0 {
		return
	}
	if !m.ctrl.Jog(m.ids[m.selected], delta) {
		m.addLog("jog queue full")
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Monitor stopped.\n"
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render("armctl monitor"))
	sb.WriteString(fmt.Sprintf(" - %s - %d Hz - step %d", m.session.Port(), m.ctrl.Hz(), m.step))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(m.renderLegend())
	sb.WriteString("\n\n")
	sb.WriteString(m.renderMotors())
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20)).
		Foreground(lipgloss.Color("9"))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("↑/↓ select  ←/→ jog  space stop  [/] step  q quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m monitorModel) renderLegend() string {
	var items []string
	for _, id := range m.ids {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(motorColor(id))).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+string(robot.NameOf(id)))
	}
	return strings.Join(items, "  ")
}

func (m monitorModel) renderMotors() string {
	var lines []string
	for i, id := range m.ids {
		t := m.last.Telemetry[id]
		line := fmt.Sprintf("%3d %-14s %-9s pos %5s  spd %5s  load %5s  %3s°C",
			id, robot.NameOf(id), m.last.Modes[id],
			robot.Field(t.Position), robot.Field(t.Speed), robot.Field(t.Load), robot.Field(t.Temperature))
		if i == m.selected {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (c *MonitorCommand) Execute(args []string) error {
	s, _, err := openSession(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()
	return runMonitor(s, c.Hz, c.Step)
}

func runMonitor(s *robot.Session, hz, step int) error {
	if len(s.IDs()) == 0 {
		return fmt.Errorf("no motors answered on %s", s.Port())
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The TUI owns the terminal; keep log lines out of it.
	log.SetLevel(log.ErrorLevel)

	ctrl := monitor.NewController(s, monitor.Config{Hz: hz})
	go func() {
		if err := ctrl.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("monitor stopped")
		}
	}()

	p := tea.NewProgram(newMonitorModel(ctrl, s, step), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run monitor: %w", err)
	}
	return nil
}
