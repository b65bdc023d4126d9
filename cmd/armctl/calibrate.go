package main

import (
	"context"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/gwillem/armctl/pkg/robot"
)

type CalibrateCommand struct {
	IDs     []int `long:"id" short:"i" description:"Motor to calibrate; repeat for more (default: all)"`
	Speed   int   `long:"speed" default:"400" description:"Wheel speed while seeking a stop"`
	Center  bool  `long:"center" description:"Move each calibrated motor to the middle of its range"`
	Monitor bool  `long:"monitor" description:"Open the monitor with the new limits afterwards"`
	Save    bool  `long:"save-seeds" description:"Store the stops found as seeds for the next calibration"`
}

func (c *CalibrateCommand) Execute(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, cfg, err := openSession(ctx, func(sc *robot.SessionConfig) {
		sc.Calibration.Speed = c.Speed
	})
	if err != nil {
		return err
	}
	defer s.Close()

	ids := c.IDs
	if len(ids) == 0 {
		ids = s.IDs()
	}
	for _, id := range ids {
		if err := requireMotor(s, id); err != nil {
			return err
		}
	}

	fmt.Println(headerStyle.Render("Calibration"))
	fmt.Println(warnStyle.Render("Each motor is driven into both mechanical stops. Keep clear of the arm."))
	fmt.Println()

	var rows [][]string
	var results []robot.CalibrationResult
	for _, id := range ids {
		seed := seedFor(ctx, s, cfg, id)
		fmt.Printf("%s motor %d (%s), seeds %d..%d\n", subHeaderStyle.Render("▸"), id, robot.NameOf(id), seed.Min, seed.Max)

		res, err := s.Calibrate(ctx, id, seed.Min, seed.Max)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithField("motor", id).WithError(err).Error("calibration failed")
			rows = append(rows, []string{strconv.Itoa(id), "-", "-", warnStyle.Render(err.Error())})
			continue
		}
		results = append(results, res)
		rows = append(rows, []string{
			strconv.Itoa(id),
			fmt.Sprintf("%d..%d", res.RawMin, res.RawMax),
			fmt.Sprintf("%d..%d", res.Min, res.Max),
			successStyle.Render("ok"),
		})
	}

	fmt.Println()
	fmt.Println(renderTable([]string{"ID", "Stops", "Limits", "Result"}, rows))
	fmt.Println(dimStyle.Render("Limits are kept for this session only."))

	if c.Save && len(results) > 0 {
		n := cfg.RecordSeeds(results...)
		if err := cfg.SaveTo(configPath()); err != nil {
			return fmt.Errorf("save seeds: %w", err)
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("Saved seeds for %d motor(s) to %s", n, configPath())))
	}

	if c.Center {
		for _, id := range ids {
			m, _ := s.Motor(id)
			if !m.Calibrated {
				continue
			}
			if _, err := s.MoveTo(ctx, id, robot.Center(&m), robot.DefaultSpeed, robot.DefaultAccel); err != nil {
				log.WithField("motor", id).WithError(err).Warn("centering failed")
			}
		}
	}
	if c.Monitor {
		return runMonitor(s, 10, 50)
	}
	return nil
}

// seedFor picks the range the motor is positioned in before each search:
// the configured seeds, else the angle limits stored on the servo, else
// the full encoder range.
func seedFor(ctx context.Context, s *robot.Session, cfg *robot.Config, id int) robot.Limits {
	if l, ok := cfg.Seed(id); ok {
		return l
	}
	l, err := s.FactoryLimits(ctx, id)
	if err == nil && l.Valid() {
		return l
	}
	return robot.DefaultLimits
}
