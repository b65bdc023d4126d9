package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	log "github.com/sirupsen/logrus"

	"github.com/gwillem/armctl/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableMotorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// loadConfig reads the config file, if any, and applies the global flags.
func loadConfig() (*robot.Config, error) {
	cfg, err := robot.LoadConfigFrom(configPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = &robot.Config{}
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", configPath(), err)
	}
	if opts.Port != "" {
		cfg.Port = opts.Port
	}
	if opts.Baud != 0 {
		cfg.BaudRate = opts.Baud
	}
	return cfg, nil
}

// openSession opens the configured port and discovers the motors. Every
// motor starts uncalibrated.
func openSession(ctx context.Context, tune ...func(*robot.SessionConfig)) (*robot.Session, *robot.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Port == "" {
		return nil, nil, fmt.Errorf("no port configured: run 'armctl setup' or pass --port")
	}

	sc := cfg.SessionConfig()
	sc.Logger = log.StandardLogger()
	for _, f := range tune {
		f(&sc)
	}
	s, err := robot.Open(ctx, sc)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.Discover(ctx); err != nil {
		s.Close()
		return nil, nil, fmt.Errorf("discover: %w", err)
	}
	return s, cfg, nil
}

// signalContext is canceled on interrupt so a running motion loop can stop.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func requireMotor(s *robot.Session, id int) error {
	if _, ok := s.Motor(id); !ok {
		return fmt.Errorf("motor %d: %w (found %v)", id, robot.ErrUnknownMotor, s.IDs())
	}
	return nil
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if col == 0 {
				return tableMotorStyle
			}
			return tableCellStyle
		}).
		Render()
}

func limitsCell(m robot.Motor) string {
	if !m.Calibrated || m.Limits == nil {
		return dimStyle.Render("uncalibrated")
	}
	return fmt.Sprintf("%d..%d", m.Limits.Min, m.Limits.Max)
}
