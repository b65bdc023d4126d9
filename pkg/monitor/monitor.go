// Package monitor runs a telemetry loop over a robot session and accepts
// jog commands from an interactive front end.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gwillem/armctl/pkg/robot"
)

// Arm is the part of robot.Session the monitor drives.
type Arm interface {
	IDs() []int
	Motor(id int) (robot.Motor, bool)
	ReadTelemetry(ctx context.Context, id int) (robot.Telemetry, error)
	MoveTo(ctx context.Context, id, ticks, speed, accel int) (int, error)
	SetVelocity(ctx context.Context, id, speed int) (int, error)
	Reconnect(ctx context.Context) error
}

// ErrLinkLost is reported when no motor answered and reconnecting failed.
var ErrLinkLost = errors.New("link lost")

// State is one telemetry sample of every motor.
type State struct {
	Telemetry map[int]robot.Telemetry
	Modes     map[int]robot.Mode
	Timestamp time.Time
	Error     error
}

// command is a pending jog; delta is ticks in servo mode or a velocity in
// wheel mode.
type command struct {
	id    int
	delta int
}

// Controller manages the telemetry loop.
type Controller struct {
	arm   Arm
	hz    int
	speed int
	accel int

	mu      sync.RWMutex
	running bool
	stateCh chan State
	logCh   chan string
	cmdCh   chan command
}

// Config holds configuration for the controller.
type Config struct {
	Hz    int
	Speed int // servo-mode jog speed
	Accel int
}

// NewController creates a controller over an open arm.
func NewController(arm Arm, cfg Config) *Controller {
	if cfg.Hz <= 0 {
		cfg.Hz = 10
	}
	if cfg.Speed <= 0 {
		cfg.Speed = robot.DefaultSpeed
	}
	if cfg.Accel <= 0 {
		cfg.Accel = robot.DefaultAccel
	}
	return &Controller{
		arm:     arm,
		hz:      cfg.Hz,
		speed:   cfg.Speed,
		accel:   cfg.Accel,
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
		cmdCh:   make(chan command, 8),
	}
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Hz returns the sampling frequency.
func (c *Controller) Hz() int {
	return c.hz
}

// Jog queues a relative move in servo mode, or a velocity in wheel mode.
// It reports false if the queue is full.
func (c *Controller) Jog(id, delta int) bool {
	select {
	case c.cmdCh <- command{id: id, delta: delta}:
		return true
	default:
		return false
	}
}

func (c *Controller) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start runs the loop until ctx is done.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("already running")
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	c.log("Monitoring %d motors at %d Hz", len(c.arm.IDs()), c.hz)

	ticker := time.NewTicker(time.Second / time.Duration(c.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log("Monitor stopped")
			return ctx.Err()
		case cmd := <-c.cmdCh:
			c.jog(ctx, cmd)
		case <-ticker.C:
			c.step(ctx)
		}
	}
}

func (c *Controller) step(ctx context.Context) {
	s := c.sample(ctx)
	if !s.anyAnswered() && len(s.Telemetry) > 0 {
		c.log("No motor answered, reconnecting")
		if err := c.arm.Reconnect(ctx); err != nil {
			c.log("Reconnect failed: %v", err)
			s.Error = fmt.Errorf("%w: %w", ErrLinkLost, err)
			c.sendState(s)
			return
		}
		s = c.sample(ctx)
	}
	c.sendState(s)
}

func (c *Controller) sample(ctx context.Context) State {
	ids := c.arm.IDs()
	s := State{
		Telemetry: make(map[int]robot.Telemetry, len(ids)),
		Modes:     make(map[int]robot.Mode, len(ids)),
		Timestamp: time.Now(),
	}
	for _, id := range ids {
		t, err := c.arm.ReadTelemetry(ctx, id)
		if err != nil {
			c.log("Motor %d: %v", id, err)
			continue
		}
		s.Telemetry[id] = t
		if m, ok := c.arm.Motor(id); ok {
			s.Modes[id] = m.Mode
		}
	}
	return s
}

func (s State) anyAnswered() bool {
	for _, t := range s.Telemetry {
		if t.Position != nil {
			return true
		}
	}
	return false
}

func (c *Controller) jog(ctx context.Context, cmd command) {
	m, ok := c.arm.Motor(cmd.id)
	if !ok {
		c.log("Motor %d: not found", cmd.id)
		return
	}
	if m.Mode == robot.ModeWheel {
		c.spin(ctx, cmd)
		return
	}
	target, err := c.arm.MoveTo(ctx, cmd.id, m.Position+cmd.delta, c.speed, c.accel)
	if errors.Is(err, robot.ErrModeMismatch) {
		// The cached mode was stale; MoveTo has refreshed it.
		if m, ok := c.arm.Motor(cmd.id); ok && m.Mode == robot.ModeWheel {
			c.spin(ctx, cmd)
			return
		}
	}
	if err != nil {
		c.log("Motor %d: %v", cmd.id, err)
		return
	}
	c.log("Motor %d: target %d", cmd.id, target)
}

func (c *Controller) spin(ctx context.Context, cmd command) {
	v, err := c.arm.SetVelocity(ctx, cmd.id, cmd.delta)
	if err != nil {
		c.log("Motor %d: %v", cmd.id, err)
		return
	}
	c.log("Motor %d: velocity %d", cmd.id, v)
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		c.stateCh <- s
	}
}
