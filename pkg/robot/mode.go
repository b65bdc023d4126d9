package robot

import (
	"context"
	"fmt"

	"github.com/gwillem/armctl/pkg/servolink"
)

// SetMode switches a motor between servo, wheel and no-torque modes.
//
// The sequence is EEPROM unlock, mode register write, mode entry actions,
// EEPROM lock. Entering wheel mode enables torque and stops the motor;
// entering no-torque disables torque. The cached mode is invalidated
// whether or not the switch succeeds.
func (s *Session) SetMode(ctx context.Context, id int, target Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.motor(id)
	if err != nil {
		return err
	}
	return s.setMode(ctx, m, target)
}

// Mode reads the motor's mode from the device and refreshes the cache.
// On failure it returns ModeUnknown; callers must not command movement.
func (s *Session) Mode(ctx context.Context, id int) (Mode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.motor(id)
	if err != nil {
		return ModeUnknown, err
	}
	return s.readMode(ctx, m)
}

func (s *Session) setMode(ctx context.Context, m *Motor, target Mode) error {
	reg, ok := target.register()
	if !ok {
		return fmt.Errorf("set mode motor %d: cannot enter mode %s", m.ID, target)
	}

	m.Mode = ModeUnknown
	m.torque = false

	if err := s.unlockEEPROM(ctx, m.ID); err != nil {
		return err
	}
	if err := servolink.WriteByte(ctx, s.link, m.ID, servolink.RegMode, reg); err != nil {
		s.relock(ctx, m.ID)
		return classify("write mode", m.ID, err)
	}
	if err := s.enterMode(ctx, m, target); err != nil {
		s.relock(ctx, m.ID)
		return err
	}
	s.relock(ctx, m.ID)

	s.log.WithField("motor", m.ID).WithField("mode", target).Debug("mode set")
	return nil
}

func (s *Session) enterMode(ctx context.Context, m *Motor, target Mode) error {
	switch target {
	case ModeWheel:
		if err := s.writeTorque(ctx, m, true); err != nil {
			return err
		}
		return s.writeVelocity(ctx, m, 0, DefaultAccel)
	case ModeNoTorque:
		return s.writeTorque(ctx, m, false)
	}
	return nil
}

func (s *Session) readMode(ctx context.Context, m *Motor) (Mode, error) {
	v, err := servolink.ReadByte(ctx, s.link, m.ID, servolink.RegMode)
	if err != nil {
		m.Mode = ModeUnknown
		return ModeUnknown, classify("read mode", m.ID, err)
	}
	mode := modeFromRegister(v)
	m.Mode = mode
	if mode == ModeUnknown {
		return ModeUnknown, fmt.Errorf("read mode motor %d: %w: register value %d", m.ID, ErrProtocol, v)
	}
	return mode, nil
}

// requireMode checks the cached mode, reading it from the device when the
// cache is stale.
func (s *Session) requireMode(ctx context.Context, m *Motor, want Mode, op string) error {
	mode := m.Mode
	if mode == ModeUnknown {
		var err error
		if mode, err = s.readMode(ctx, m); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if mode != want {
		return fmt.Errorf("%s motor %d: %w: mode is %s, need %s", op, m.ID, ErrModeMismatch, mode, want)
	}
	return nil
}
