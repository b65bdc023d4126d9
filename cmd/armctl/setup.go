package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	log "github.com/sirupsen/logrus"

	"github.com/gwillem/armctl/pkg/discovery"
	"github.com/gwillem/armctl/pkg/robot"
)

type SetupCommand struct {
	MaxID int `long:"max-id" default:"20" description:"Highest servo id to probe"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("armctl setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	baud := cfg.BaudRate
	if baud == 0 {
		baud = robot.DefaultBaudRate
	}

	ports, err := discovery.Candidates(discovery.SystemPorts)
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Println("No USB serial adapters found.")
		fmt.Println("Make sure the bus adapter is connected and the arm is powered on.")
		return nil
	}

	fmt.Printf("Probing %d port(s) at %d baud...\n\n", len(ports), baud)
	scanner := &discovery.Scanner{BaudRate: baud, MinID: 1, MaxID: c.MaxID, Logger: log.StandardLogger()}
	found, err := scanner.Scan(context.Background(), ports)
	if err != nil {
		return err
	}
	servos := make(map[string][]int, len(found))
	for _, f := range found {
		servos[f.Port.Name] = f.IDs
	}

	var options []huh.Option[string]
	for _, p := range ports {
		label := p.Name + dimStyle.Render("  no servos")
		if ids := servos[p.Name]; len(ids) > 0 {
			label = fmt.Sprintf("%s  %d servo(s) %v", p.Name, len(ids), ids)
		}
		options = append(options, huh.NewOption(label, p.Name))
	}

	port := cfg.Port
	if port == "" && len(found) > 0 {
		port = found[0].Port.Name
	}
	baudStr := strconv.Itoa(baud)
	var baudOptions []huh.Option[string]
	for _, b := range []int{1_000_000, 500_000, 250_000, 128_000, 115_200, 76_800, 57_600, 38_400} {
		baudOptions = append(baudOptions, huh.NewOption(strconv.Itoa(b), strconv.Itoa(b)))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which port is the servo bus on?").
				Options(options...).
				Value(&port),
			huh.NewSelect[string]().
				Title("Baud rate").
				Options(baudOptions...).
				Value(&baudStr),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		return nil
	}

	cfg.Port = port
	cfg.BaudRate, _ = strconv.Atoi(baudStr)
	if err := cfg.SaveTo(configPath()); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", configPath())
	fmt.Println()
	fmt.Println("Calibrate the arm with: " + headerStyle.Render("armctl calibrate"))
	return nil
}
