package robot

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gwillem/armctl/pkg/servolink"
)

// Defaults for opening a session.
const (
	DefaultBaudRate     = 1_000_000
	DefaultOpenAttempts = 3
	DefaultOpenBackoff  = time.Second
	DefaultProbeMin     = 1
	DefaultProbeMax     = 20
)

// Dialer opens a link to a transport endpoint.
type Dialer func(port string, baud int, timeout time.Duration) (servolink.Link, error)

// DialSerial opens a serial servo link.
func DialSerial(port string, baud int, timeout time.Duration) (servolink.Link, error) {
	p, err := servolink.Open(port, baud, timeout)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SessionConfig holds everything needed to open a Session.
type SessionConfig struct {
	Port         string
	BaudRate     int
	Timeout      time.Duration // per round trip
	OpenAttempts int
	OpenBackoff  time.Duration
	ProbeMin     int
	ProbeMax     int
	Calibration  CalibrationConfig
	Dial         Dialer
	Logger       log.FieldLogger

	sleep func(context.Context, time.Duration) error
}

func (c *SessionConfig) setDefaults() {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.Timeout <= 0 {
		c.Timeout = servolink.DefaultTimeout
	}
	if c.OpenAttempts <= 0 {
		c.OpenAttempts = DefaultOpenAttempts
	}
	if c.OpenBackoff <= 0 {
		c.OpenBackoff = DefaultOpenBackoff
	}
	if c.ProbeMin <= 0 {
		c.ProbeMin = DefaultProbeMin
	}
	if c.ProbeMax <= 0 {
		c.ProbeMax = DefaultProbeMax
	}
	c.ProbeMax = min(c.ProbeMax, servolink.MaxID)
	c.Calibration.setDefaults()
	if c.Dial == nil {
		c.Dial = DialSerial
	}
	if c.Logger == nil {
		c.Logger = log.StandardLogger()
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}
}

// Session owns one servo link and the registry of motors behind it. All
// commands on a session are serialized.
type Session struct {
	cfg SessionConfig
	log log.FieldLogger

	mu     sync.Mutex
	link   servolink.Link
	motors *Registry
}

// Open dials cfg.Port, retrying a bounded number of times.
func Open(ctx context.Context, cfg SessionConfig) (*Session, error) {
	cfg.setDefaults()
	if !servolink.SupportedBaud(cfg.BaudRate) {
		return nil, fmt.Errorf("open %s: %w: unsupported baud rate %d", cfg.Port, ErrTransport, cfg.BaudRate)
	}

	s := &Session{
		cfg:    cfg,
		log:    cfg.Logger.WithField("port", cfg.Port),
		motors: NewRegistry(),
	}
	link, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.link = link
	s.log.WithField("baud", cfg.BaudRate).Info("session opened")
	return s, nil
}

func (s *Session) dial(ctx context.Context) (servolink.Link, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.OpenAttempts; attempt++ {
		link, err := s.cfg.Dial(s.cfg.Port, s.cfg.BaudRate, s.cfg.Timeout)
		if err == nil {
			return link, nil
		}
		lastErr = err
		s.log.WithError(err).WithField("attempt", attempt).Warn("open failed")
		if attempt == s.cfg.OpenAttempts {
			break
		}
		if err := s.cfg.sleep(ctx, s.cfg.OpenBackoff); err != nil {
			return nil, fmt.Errorf("open %s: %w: %w", s.cfg.Port, ErrTransport, err)
		}
	}
	return nil, fmt.Errorf("open %s after %d attempts: %w: %w", s.cfg.Port, s.cfg.OpenAttempts, ErrTransport, lastErr)
}

// Port returns the endpoint the session was opened on.
func (s *Session) Port() string {
	return s.cfg.Port
}

// Close closes the link. The registry stays readable.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link == nil {
		return nil
	}
	err := s.link.Close()
	s.link = nil
	return err
}

// Reconnect closes the link and dials the endpoint again, keeping the
// registry. Cached modes are invalidated.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link != nil {
		if err := s.link.Close(); err != nil {
			s.log.WithError(err).Debug("close before reconnect")
		}
		s.link = nil
	}
	link, err := s.dial(ctx)
	if err != nil {
		return err
	}
	s.link = link
	for _, id := range s.motors.IDs() {
		m, _ := s.motors.Get(id)
		m.Mode = ModeUnknown
		m.torque = false
	}
	s.log.Info("reconnected")
	return nil
}

// Discover probes the configured id range with a position read and
// rebuilds the registry from the servos that answer. Calibration of motors
// that are still present is kept.
func (s *Session) Discover(ctx context.Context) (map[int]Motor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link == nil {
		return nil, ErrClosed
	}

	found := make(map[int]bool)
	for id := s.cfg.ProbeMin; id <= s.cfg.ProbeMax; id++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pos, err := s.readPosition(ctx, id)
		if err != nil {
			s.log.WithField("motor", id).Debug("no answer")
			continue
		}
		m, ok := s.motors.Get(id)
		if !ok {
			m = &Motor{ID: id}
			s.motors.Put(m)
		}
		m.Position = pos
		if _, err := s.readMode(ctx, m); err != nil {
			s.log.WithField("motor", id).WithError(err).Warn("mode unknown")
		}
		found[id] = true
	}

	for _, id := range s.motors.IDs() {
		if !found[id] {
			s.motors.Delete(id)
		}
	}
	s.log.WithField("motors", s.motors.Len()).Info("discovery done")
	return s.motors.Snapshot(), nil
}

// Motors returns a copy of the registry.
func (s *Session) Motors() map[int]Motor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.motors.Snapshot()
}

// Motor returns a copy of one registry entry.
func (s *Session) Motor(id int) (Motor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.motors.Get(id)
	if !ok {
		return Motor{}, false
	}
	return m.clone(), true
}

// ApplyLimits sets soft limits on a discovered motor without running a
// calibration. They last for the session only.
func (s *Session) ApplyLimits(id int, l Limits) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.motors.Get(id)
	if !ok {
		return fmt.Errorf("motor %d: %w", id, ErrUnknownMotor)
	}
	if !l.Valid() {
		return fmt.Errorf("motor %d: %w: [%d, %d]", id, ErrCalibrationRange, l.Min, l.Max)
	}
	m.Limits = &l
	m.Calibrated = true
	return nil
}

// IDs returns the discovered ids in ascending order.
func (s *Session) IDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.motors.IDs()
}

// motor returns the registry entry for id. The caller holds s.mu.
func (s *Session) motor(id int) (*Motor, error) {
	if s.link == nil {
		return nil, ErrClosed
	}
	m, ok := s.motors.Get(id)
	if !ok {
		return nil, fmt.Errorf("motor %d: %w", id, ErrUnknownMotor)
	}
	return m, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
