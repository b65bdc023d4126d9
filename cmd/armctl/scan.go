package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gwillem/armctl/pkg/discovery"
	"github.com/gwillem/armctl/pkg/robot"
)

type ScanCommand struct {
	MinID int `long:"min-id" default:"1" description:"Lowest servo id to probe"`
	MaxID int `long:"max-id" default:"20" description:"Highest servo id to probe"`
}

func (c *ScanCommand) Execute(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	ports, err := discovery.Candidates(discovery.SystemPorts)
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Println("No USB serial adapters found.")
		return nil
	}

	found, err := newScanner(c.MinID, c.MaxID).Scan(ctx, ports)
	if err != nil {
		return err
	}
	ids := make(map[string][]int, len(found))
	for _, f := range found {
		ids[f.Port.Name] = f.IDs
	}

	rows := make([][]string, 0, len(ports))
	for _, p := range ports {
		servos := dimStyle.Render("-")
		if len(ids[p.Name]) > 0 {
			servos = fmt.Sprint(ids[p.Name])
		}
		rows = append(rows, []string{p.Name, p.VID + ":" + p.PID, p.Serial, servos})
	}
	fmt.Println(renderTable([]string{"Port", "USB id", "Serial", "Servos"}, rows))
	return nil
}

func newScanner(lo, hi int) *discovery.Scanner {
	baud := opts.Baud
	if baud == 0 {
		baud = robot.DefaultBaudRate
	}
	return &discovery.Scanner{BaudRate: baud, MinID: lo, MaxID: hi, Logger: log.StandardLogger()}
}

type WatchCommand struct {
	MaxID int `long:"max-id" default:"20" description:"Highest servo id to probe on new ports"`
}

func (c *WatchCommand) Execute(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	fmt.Println(headerStyle.Render("Watching for servo adapters") + dimStyle.Render("  (ctrl+c to stop)"))

	w := discovery.NewWatcher(discovery.SystemPorts, discovery.DefaultPollInterval)
	scanner := newScanner(1, c.MaxID)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(ctx) })
	g.Go(func() error {
		for ev := range w.Events() {
			if ev.Kind == discovery.PortRemoved {
				fmt.Println(warnStyle.Render("- " + ev.Port.Name))
				continue
			}
			found, err := scanner.Scan(ctx, []discovery.Port{ev.Port})
			if err != nil {
				return err
			}
			line := "+ " + ev.Port.Name
			if len(found) > 0 {
				line += fmt.Sprintf("  servos %v", found[0].IDs)
				fmt.Println(successStyle.Render(line))
			} else {
				fmt.Println(line + dimStyle.Render("  no servos"))
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
