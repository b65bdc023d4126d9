package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/gwillem/armctl/pkg/robot"
)

type InfoCommand struct {
	JSON bool `long:"json" description:"Print the registry as JSON"`
}

func (c *InfoCommand) Execute(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, _, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	motors := s.Motors()
	if c.JSON {
		return printJSON(motors)
	}
	if len(motors) == 0 {
		fmt.Println("No motors answered on " + s.Port())
		return nil
	}

	rows := make([][]string, 0, len(motors))
	for _, id := range s.IDs() {
		m := motors[id]
		rows = append(rows, []string{
			strconv.Itoa(id),
			string(robot.NameOf(id)),
			m.Mode.String(),
			strconv.Itoa(m.Position),
			limitsCell(m),
		})
	}
	fmt.Println(headerStyle.Render(s.Port()))
	fmt.Println(renderTable([]string{"ID", "Joint", "Mode", "Position", "Limits"}, rows))
	return nil
}

type TelemetryCommand struct {
	ID   int  `long:"id" short:"i" description:"Only this motor"`
	JSON bool `long:"json" description:"Print JSON"`
}

func (c *TelemetryCommand) Execute(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, _, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	ids := s.IDs()
	if c.ID != 0 {
		if err := requireMotor(s, c.ID); err != nil {
			return err
		}
		ids = []int{c.ID}
	}

	readings := make(map[int]robot.Telemetry, len(ids))
	for _, id := range ids {
		t, err := s.ReadTelemetry(ctx, id)
		if err != nil {
			return err
		}
		readings[id] = t
	}
	if c.JSON {
		return printJSON(readings)
	}

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		t := readings[id]
		m, _ := s.Motor(id)
		norm := "-"
		if t.Position != nil && m.Calibrated {
			norm = fmt.Sprintf("%.1f", m.Bounds().Normalize(*t.Position))
		}
		volts := "-"
		if v, ok := t.Volts(); ok {
			volts = fmt.Sprintf("%.1f", v)
		}
		rows = append(rows, []string{
			strconv.Itoa(id),
			robot.Field(t.Position),
			norm,
			robot.Field(t.Speed),
			robot.Field(t.Load),
			volts,
			robot.Field(t.Temperature),
			robot.Field(t.Current),
			robot.Field(t.Moving),
		})
	}
	fmt.Println(renderTable([]string{"ID", "Position", "Norm", "Speed", "Load", "Volts", "Temp", "Current", "Moving"}, rows))
	return nil
}

type ModeCommand struct {
	ID   int    `long:"id" short:"i" required:"true" description:"Motor id"`
	Mode string `long:"mode" short:"m" required:"true" choice:"servo" choice:"wheel" choice:"no-torque" description:"Target mode"`
}

func (c *ModeCommand) Execute(args []string) error {
	mode, err := robot.ParseMode(c.Mode)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	s, _, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := requireMotor(s, c.ID); err != nil {
		return err
	}
	if err := s.SetMode(ctx, c.ID, mode); err != nil {
		return err
	}
	got, err := s.Mode(ctx, c.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Motor %d is in %s mode\n", c.ID, successStyle.Render(got.String()))
	return nil
}

type MoveCommand struct {
	ID      int           `long:"id" short:"i" required:"true" description:"Motor id"`
	To      float64       `long:"to" short:"t" required:"true" description:"Target position in ticks"`
	Norm    bool          `long:"norm" description:"Target is -100..100 across the soft limits"`
	Min     *int          `long:"min" description:"Soft lower limit for this move"`
	Max     *int          `long:"max" description:"Soft upper limit for this move"`
	Speed   int           `long:"speed" default:"1000" description:"Speed in ticks per second"`
	Accel   int           `long:"accel" default:"50" description:"Acceleration"`
	Wait    bool          `long:"wait" short:"w" description:"Wait until the motor stops"`
	Timeout time.Duration `long:"timeout" default:"10s" description:"How long --wait waits"`
}

func (c *MoveCommand) Execute(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, _, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := requireMotor(s, c.ID); err != nil {
		return err
	}
	if c.Min != nil || c.Max != nil {
		l := robot.DefaultLimits
		if c.Min != nil {
			l.Min = *c.Min
		}
		if c.Max != nil {
			l.Max = *c.Max
		}
		if err := s.ApplyLimits(c.ID, l); err != nil {
			return err
		}
	}
	ticks := int(c.To)
	if c.Norm {
		m, _ := s.Motor(c.ID)
		if !m.Calibrated {
			return fmt.Errorf("motor %d has no soft limits; pass --min/--max", c.ID)
		}
		ticks = m.Bounds().Denormalize(c.To)
	}

	target, err := s.MoveTo(ctx, c.ID, ticks, c.Speed, c.Accel)
	if err != nil {
		return err
	}
	if target != ticks {
		fmt.Println(warnStyle.Render(fmt.Sprintf("Target %d clamped to %d", ticks, target)))
	}
	if !c.Wait {
		fmt.Printf("Motor %d moving to %d\n", c.ID, target)
		return nil
	}
	if err := s.WaitIdle(ctx, c.ID, c.Timeout); err != nil {
		return err
	}
	pos, err := s.ReadPosition(ctx, c.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Motor %d stopped at %d (target %d)\n", c.ID, pos, target)
	return nil
}

type VelocityCommand struct {
	ID    int `long:"id" short:"i" required:"true" description:"Motor id"`
	Speed int `long:"speed" short:"s" required:"true" description:"Velocity, -1000..1000; 0 stops"`
}

func (c *VelocityCommand) Execute(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, _, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := requireMotor(s, c.ID); err != nil {
		return err
	}
	v, err := s.SetVelocity(ctx, c.ID, c.Speed)
	if err != nil {
		return err
	}
	fmt.Printf("Motor %d velocity %d\n", c.ID, v)
	return nil
}

type TorqueCommand struct {
	ID  int  `long:"id" short:"i" required:"true" description:"Motor id"`
	Off bool `long:"off" description:"Disable torque"`
}

func (c *TorqueCommand) Execute(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, _, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := requireMotor(s, c.ID); err != nil {
		return err
	}
	if err := s.SetTorque(ctx, c.ID, !c.Off); err != nil {
		return err
	}
	state := "enabled"
	if c.Off {
		state = "disabled"
	}
	fmt.Printf("Motor %d torque %s\n", c.ID, state)
	return nil
}

type TagCommand struct {
	From int  `long:"from" required:"true" description:"Current id"`
	To   int  `long:"to" required:"true" description:"New id, 1..253"`
	Yes  bool `long:"yes" short:"y" description:"Do not ask for confirmation"`
}

func (c *TagCommand) Execute(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, _, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if ids := s.IDs(); len(ids) != 1 {
		return fmt.Errorf("connect exactly one motor to change its id (found %v)", ids)
	}
	if err := requireMotor(s, c.From); err != nil {
		return err
	}

	if !c.Yes {
		confirmed := false
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Change motor id %d to %d?", c.From, c.To)).
					Description("The new id is written to EEPROM.").
					Value(&confirmed),
			),
		)
		if err := form.Run(); err != nil || !confirmed {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := s.TagID(ctx, c.From, c.To); err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Motor %d is now motor %d", c.From, c.To)))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
