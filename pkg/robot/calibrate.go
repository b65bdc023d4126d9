package robot

import (
	"context"
	"fmt"
	"time"
)

// CalibrationConfig tunes stall-based limit detection.
type CalibrationConfig struct {
	Speed          int           // wheel speed while seeking a stop
	Acceleration   int           // acceleration for seed moves and velocity commands
	SettleDelay    time.Duration // wait after the seed move
	RampDelay      time.Duration // wait after starting rotation
	PollInterval   time.Duration // time between position samples
	StallThreshold int           // max tick change between samples that counts as stalled
	Backoff        int           // ticks kept clear of each mechanical stop
	MaxSamples     int           // bound on samples per direction
	Timeout        time.Duration // bound on time per direction
}

// DefaultCalibrationConfig returns the settings used when none are given.
func DefaultCalibrationConfig() CalibrationConfig {
	return CalibrationConfig{
		Speed:          400,
		Acceleration:   50,
		SettleDelay:    2 * time.Second,
		RampDelay:      300 * time.Millisecond,
		PollInterval:   100 * time.Millisecond,
		StallThreshold: 2,
		Backoff:        50,
		MaxSamples:     300,
		Timeout:        45 * time.Second,
	}
}

func (c *CalibrationConfig) setDefaults() {
	d := DefaultCalibrationConfig()
	if c.Speed <= 0 {
		c.Speed = d.Speed
	}
	c.Speed = min(c.Speed, MaxVelocity)
	if c.Acceleration <= 0 {
		c.Acceleration = d.Acceleration
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = d.SettleDelay
	}
	if c.RampDelay <= 0 {
		c.RampDelay = d.RampDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.StallThreshold <= 0 {
		c.StallThreshold = d.StallThreshold
	}
	if c.Backoff <= 0 {
		c.Backoff = d.Backoff
	}
	if c.MaxSamples <= 0 {
		c.MaxSamples = d.MaxSamples
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
}

// CalibrationResult is the outcome of one calibration run.
type CalibrationResult struct {
	MotorID int `json:"motor_id"`
	Min     int `json:"min"`
	Max     int `json:"max"`
	RawMin  int `json:"raw_min"`
	RawMax  int `json:"raw_max"`
}

// Limits returns the calibrated range.
func (r CalibrationResult) Limits() Limits {
	return Limits{Min: r.Min, Max: r.Max}
}

// Calibrate finds the mechanical limits of one motor by driving it into
// each stop in wheel mode and watching for the position to stop changing.
// The stored soft limits are backed off from the stall points. The motor
// is left in servo mode.
//
// The session is held for the whole run, so no other command can reach
// the bus meanwhile.
func (s *Session) Calibrate(ctx context.Context, id, seedMin, seedMax int) (CalibrationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.motor(id)
	if err != nil {
		return CalibrationResult{}, err
	}
	cfg := s.cfg.Calibration
	logger := s.log.WithField("motor", id)
	logger.WithField("seed_min", seedMin).WithField("seed_max", seedMax).Info("calibration started")

	rawMin, err := s.seekLimit(ctx, m, seedMin, -1)
	if err != nil {
		return CalibrationResult{}, fmt.Errorf("calibrate motor %d min: %w", id, err)
	}
	logger.WithField("raw_min", rawMin).Debug("min stop found")

	rawMax, err := s.seekLimit(ctx, m, seedMax, 1)
	if err != nil {
		return CalibrationResult{}, fmt.Errorf("calibrate motor %d max: %w", id, err)
	}
	logger.WithField("raw_max", rawMax).Debug("max stop found")

	if err := s.setMode(ctx, m, ModeServo); err != nil {
		return CalibrationResult{}, fmt.Errorf("calibrate motor %d: %w", id, err)
	}

	res := CalibrationResult{
		MotorID: id,
		Min:     DefaultLimits.Clamp(rawMin + cfg.Backoff),
		Max:     DefaultLimits.Clamp(rawMax - cfg.Backoff),
		RawMin:  rawMin,
		RawMax:  rawMax,
	}
	lim := res.Limits()
	if !lim.Valid() {
		return res, fmt.Errorf("calibrate motor %d: %w: [%d, %d]", id, ErrCalibrationRange, res.Min, res.Max)
	}
	m.Limits = &lim
	m.Calibrated = true

	logger.WithField("min", res.Min).WithField("max", res.Max).Info("calibration done")
	return res, nil
}

// seekLimit seeds the motor near one end in servo mode, then rotates it
// toward that end in wheel mode until it stalls. dir is -1 or 1.
func (s *Session) seekLimit(ctx context.Context, m *Motor, seed, dir int) (int, error) {
	cfg := s.cfg.Calibration

	if err := s.setMode(ctx, m, ModeServo); err != nil {
		return 0, err
	}
	if err := s.writeTorque(ctx, m, true); err != nil {
		return 0, err
	}
	if err := s.writeMotion(ctx, m.ID, DefaultLimits.Clamp(seed), cfg.Speed, cfg.Acceleration); err != nil {
		return 0, err
	}
	// The seed move is not confirmed; the settle delay has to cover it.
	if err := s.cfg.sleep(ctx, cfg.SettleDelay); err != nil {
		return 0, err
	}

	if err := s.setMode(ctx, m, ModeWheel); err != nil {
		return 0, err
	}
	if err := s.writeVelocity(ctx, m, ClampVelocity(dir*cfg.Speed), cfg.Acceleration); err != nil {
		return 0, err
	}

	raw, err := s.rampAndFind(ctx, m.ID)
	if stopErr := s.writeVelocity(ctx, m, 0, cfg.Acceleration); stopErr != nil {
		s.log.WithField("motor", m.ID).WithError(stopErr).Warn("stop after limit search failed")
		if err == nil {
			err = stopErr
		}
	}
	return raw, err
}

func (s *Session) rampAndFind(ctx context.Context, id int) (int, error) {
	if err := s.cfg.sleep(ctx, s.cfg.Calibration.RampDelay); err != nil {
		return 0, err
	}
	return s.findLimit(ctx, id)
}

// findLimit samples the position until two consecutive samples differ by
// no more than the stall threshold and returns the later one. Failed reads
// break the pair. The search gives up after MaxSamples samples or Timeout.
func (s *Session) findLimit(ctx context.Context, id int) (int, error) {
	cfg := s.cfg.Calibration
	deadline := time.Now().Add(cfg.Timeout)

	var prev int
	havePrev := false
	samples := 0
	for ; samples < cfg.MaxSamples; samples++ {
		if samples > 0 {
			if err := s.cfg.sleep(ctx, cfg.PollInterval); err != nil {
				return 0, err
			}
			if time.Now().After(deadline) {
				break
			}
		}
		pos, err := s.readPosition(ctx, id)
		if err != nil {
			s.log.WithField("motor", id).WithError(err).Debug("limit sample failed")
			havePrev = false
			continue
		}
		if havePrev && abs(pos-prev) <= cfg.StallThreshold {
			return pos, nil
		}
		prev, havePrev = pos, true
	}
	return 0, fmt.Errorf("motor %d did not stall after %d samples: %w", id, samples, ErrCalibrationTimeout)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
