package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/armctl/pkg/robot"
)

type fakeArm struct {
	mu         sync.Mutex
	motors     map[int]robot.Motor
	down       bool // no motor answers
	reconnects int
	reconnErr  error
	moves      map[int]int
	velocities map[int]int
}

func newFakeArm(motors ...robot.Motor) *fakeArm {
	a := &fakeArm{
		motors:     make(map[int]robot.Motor),
		moves:      make(map[int]int),
		velocities: make(map[int]int),
	}
	for _, m := range motors {
		a.motors[m.ID] = m
	}
	return a
}

func (a *fakeArm) IDs() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	var ids []int
	for id := range a.motors {
		ids = append(ids, id)
	}
	return ids
}

func (a *fakeArm) Motor(id int) (robot.Motor, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.motors[id]
	return m, ok
}

func (a *fakeArm) ReadTelemetry(ctx context.Context, id int) (robot.Telemetry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.down {
		return robot.Telemetry{}, nil
	}
	pos := a.motors[id].Position
	return robot.Telemetry{Position: &pos}, nil
}

func (a *fakeArm) MoveTo(ctx context.Context, id, ticks, speed, accel int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := a.motors[id]
	if m.Mode == robot.ModeUnknown {
		m.Mode = robot.ModeWheel
		a.motors[id] = m
	}
	if m.Mode != robot.ModeServo {
		return 0, robot.ErrModeMismatch
	}
	target := m.Bounds().Clamp(ticks)
	a.moves[id] = target
	return target, nil
}

func (a *fakeArm) SetVelocity(ctx context.Context, id, speed int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := robot.ClampVelocity(speed)
	a.velocities[id] = v
	return v, nil
}

func (a *fakeArm) Reconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reconnects++
	if a.reconnErr != nil {
		return a.reconnErr
	}
	a.down = false
	return nil
}

func TestStep_PublishesTelemetry(t *testing.T) {
	arm := newFakeArm(robot.Motor{ID: 1, Position: 1000, Mode: robot.ModeServo}, robot.Motor{ID: 2, Position: 3000})
	c := NewController(arm, Config{})

	c.step(context.Background())

	s := <-c.States()
	require.NoError(t, s.Error)
	require.Len(t, s.Telemetry, 2)
	assert.Equal(t, 1000, *s.Telemetry[1].Position)
	assert.Equal(t, 3000, *s.Telemetry[2].Position)
	assert.Equal(t, robot.ModeServo, s.Modes[1])
	assert.Equal(t, 0, arm.reconnects)
}

func TestStep_ReconnectsWhenSilent(t *testing.T) {
	arm := newFakeArm(robot.Motor{ID: 1, Position: 1000})
	arm.down = true
	c := NewController(arm, Config{})

	c.step(context.Background())

	s := <-c.States()
	require.NoError(t, s.Error)
	assert.Equal(t, 1, arm.reconnects)
	require.NotNil(t, s.Telemetry[1].Position)
}

func TestStep_ReconnectFailure(t *testing.T) {
	arm := newFakeArm(robot.Motor{ID: 1})
	arm.down = true
	arm.reconnErr = robot.ErrTransport
	c := NewController(arm, Config{})

	c.step(context.Background())

	s := <-c.States()
	require.ErrorIs(t, s.Error, ErrLinkLost)
	require.ErrorIs(t, s.Error, robot.ErrTransport)
}

func TestSendState_KeepsLatest(t *testing.T) {
	c := NewController(newFakeArm(), Config{})
	c.sendState(State{Error: errors.New("old")})
	c.sendState(State{Error: errors.New("new")})

	s := <-c.States()
	assert.EqualError(t, s.Error, "new")
}

func TestJog(t *testing.T) {
	arm := newFakeArm(
		robot.Motor{ID: 1, Position: 4000, Mode: robot.ModeServo},
		robot.Motor{ID: 2, Mode: robot.ModeWheel},
		robot.Motor{ID: 3, Mode: robot.ModeUnknown},
	)
	c := NewController(arm, Config{})
	ctx := context.Background()

	c.jog(ctx, command{id: 1, delta: 200})
	assert.Equal(t, robot.MaxTicks, arm.moves[1])

	c.jog(ctx, command{id: 2, delta: -1500})
	assert.Equal(t, -robot.MaxVelocity, arm.velocities[2])

	// A stale mode is refreshed by the failed move.
	c.jog(ctx, command{id: 3, delta: 300})
	assert.Equal(t, 300, arm.velocities[3])

	c.jog(ctx, command{id: 9, delta: 1})
	assert.NotContains(t, arm.moves, 9)
}

func TestJog_QueueFull(t *testing.T) {
	c := NewController(newFakeArm(), Config{})
	for range cap(c.cmdCh) {
		require.True(t, c.Jog(1, 10))
	}
	assert.False(t, c.Jog(1, 10))
}

func TestStart(t *testing.T) {
	arm := newFakeArm(robot.Motor{ID: 1, Position: 1234, Mode: robot.ModeServo})
	c := NewController(arm, Config{Hz: 100})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	select {
	case s := <-c.States():
		assert.Equal(t, 1234, *s.Telemetry[1].Position)
	case <-time.After(2 * time.Second):
		t.Fatal("no state")
	}

	require.True(t, c.Jog(1, -34))
	require.Eventually(t, func() bool {
		arm.mu.Lock()
		defer arm.mu.Unlock()
		return arm.moves[1] == 1200
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestStart_AlreadyRunning(t *testing.T) {
	c := NewController(newFakeArm(), Config{Hz: 100})
	c.running = true
	require.Error(t, c.Start(context.Background()))
}
