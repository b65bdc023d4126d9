package robot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/armctl/pkg/servolink"
)

func TestOpen_RetriesThenFails(t *testing.T) {
	sl := &sleepLog{}
	attempts := 0
	cfg := SessionConfig{
		Port: "/dev/missing",
		Dial: func(string, int, time.Duration) (servolink.Link, error) {
			attempts++
			return nil, errors.New("no such device")
		},
		sleep: sl.sleep,
	}

	_, err := Open(context.Background(), cfg)
	require.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, DefaultOpenAttempts, attempts)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, sl.sleeps)
}

func TestOpen_SucceedsAfterRetry(t *testing.T) {
	bus := newSimBus()
	sl := &sleepLog{}
	attempts := 0
	cfg := SessionConfig{
		Port: "/dev/flaky",
		Dial: func(port string, baud int, _ time.Duration) (servolink.Link, error) {
			attempts++
			assert.Equal(t, "/dev/flaky", port)
			assert.Equal(t, DefaultBaudRate, baud)
			if attempts < 2 {
				return nil, errors.New("busy")
			}
			return bus, nil
		},
		sleep: sl.sleep,
	}

	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "/dev/flaky", s.Port())
}

func TestOpen_UnsupportedBaud(t *testing.T) {
	cfg := testConfig(newSimBus(), &sleepLog{})
	cfg.BaudRate = 12345
	_, err := Open(context.Background(), cfg)
	require.ErrorIs(t, err, ErrTransport)
}

func TestOpen_CanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := SessionConfig{
		Port: "/dev/missing",
		Dial: func(string, int, time.Duration) (servolink.Link, error) {
			return nil, errors.New("no such device")
		},
		sleep: (&sleepLog{}).sleep,
	}
	_, err := Open(ctx, cfg)
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDiscover(t *testing.T) {
	bus := newSimBus(1, 3, 6)
	bus.setByte(3, servolink.RegMode, servolink.ModeWheel)
	bus.setWord(6, servolink.RegPresentPosition, 1234)

	s, _ := openSim(t, bus)

	assert.Equal(t, []int{1, 3, 6}, s.IDs())
	motors := s.Motors()
	assert.Equal(t, ModeServo, motors[1].Mode)
	assert.Equal(t, ModeWheel, motors[3].Mode)
	assert.Equal(t, 1234, motors[6].Position)
	assert.False(t, motors[6].Calibrated)
}

func TestDiscover_UnknownModeRegister(t *testing.T) {
	bus := newSimBus(2)
	bus.setByte(2, servolink.RegMode, 9)

	s, _ := openSim(t, bus)

	m, ok := s.Motor(2)
	require.True(t, ok)
	assert.Equal(t, ModeUnknown, m.Mode)
}

func TestDiscover_DropsMissingKeepsCalibration(t *testing.T) {
	bus := newSimBus(1, 2)
	s, _ := openSim(t, bus)
	require.NoError(t, s.ApplyLimits(1, Limits{Min: 500, Max: 3500}))

	bus.mu.Lock()
	delete(bus.regs, 2)
	bus.mu.Unlock()

	motors, err := s.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, motors, 1)
	assert.True(t, motors[1].Calibrated)
	assert.Equal(t, Limits{Min: 500, Max: 3500}, *motors[1].Limits)
}

func TestApplyLimits(t *testing.T) {
	s, _ := openSim(t, newSimBus(1))

	require.ErrorIs(t, s.ApplyLimits(9, Limits{Min: 0, Max: 10}), ErrUnknownMotor)
	require.ErrorIs(t, s.ApplyLimits(1, Limits{Min: 10, Max: 10}), ErrCalibrationRange)
	require.NoError(t, s.ApplyLimits(1, Limits{Min: 10, Max: 20}))

	m, _ := s.Motor(1)
	assert.Equal(t, Limits{Min: 10, Max: 20}, m.Bounds())
}

func TestMotorReturnsCopy(t *testing.T) {
	s, _ := openSim(t, newSimBus(1))
	require.NoError(t, s.ApplyLimits(1, Limits{Min: 10, Max: 20}))

	m, _ := s.Motor(1)
	m.Limits.Max = 4000

	again, _ := s.Motor(1)
	assert.Equal(t, 20, again.Limits.Max)
}

func TestReconnect(t *testing.T) {
	bus := newSimBus(1)
	s, _ := openSim(t, bus)
	_, err := s.ReadTelemetry(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, s.Reconnect(context.Background()))
	assert.Equal(t, 1, bus.closeCnt)

	m, ok := s.Motor(1)
	require.True(t, ok)
	assert.Equal(t, ModeUnknown, m.Mode)

	// The stale mode is read again before the next move.
	_, err = s.MoveTo(context.Background(), 1, 1000, DefaultSpeed, DefaultAccel)
	require.NoError(t, err)
	assert.Equal(t, 2, bus.readCount(1, servolink.RegMode))
}

func TestClose(t *testing.T) {
	bus := newSimBus(1)
	s, _ := openSim(t, bus)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, bus.closed)

	_, err := s.MoveTo(context.Background(), 1, 1000, DefaultSpeed, DefaultAccel)
	require.ErrorIs(t, err, ErrClosed)
	_, err = s.Discover(context.Background())
	require.ErrorIs(t, err, ErrClosed)

	// The registry stays readable.
	assert.Equal(t, []int{1}, s.IDs())
}

func TestUnknownMotor(t *testing.T) {
	s, _ := openSim(t, newSimBus(1))

	_, err := s.MoveTo(context.Background(), 7, 1000, DefaultSpeed, DefaultAccel)
	require.ErrorIs(t, err, ErrUnknownMotor)
	_, err = s.ReadTelemetry(context.Background(), 7)
	require.ErrorIs(t, err, ErrUnknownMotor)
}
