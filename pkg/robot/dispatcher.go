package robot

import (
	"context"
	"fmt"
	"time"

	"github.com/gwillem/armctl/pkg/servolink"
)

// Command limits.
const (
	MaxSpeed        = 3400
	MaxAcceleration = 254
	DefaultSpeed    = 1000
	DefaultAccel    = 50
)

// MoveTo sends a position command to a motor in servo mode. The target is
// clamped to the motor's bounds first; the clamped target is returned.
func (s *Session) MoveTo(ctx context.Context, id, ticks, speed, accel int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.motor(id)
	if err != nil {
		return 0, err
	}
	if err := s.requireMode(ctx, m, ModeServo, "move"); err != nil {
		return 0, err
	}

	if m.Limits == nil || !m.Calibrated {
		s.log.WithField("motor", id).Debug("uncalibrated, using default bounds")
	}
	target := ClampTarget(m, ticks)
	if !m.torque {
		if err := s.writeTorque(ctx, m, true); err != nil {
			return 0, err
		}
	}
	if err := s.writeMotion(ctx, id, target, speed, accel); err != nil {
		return 0, err
	}
	s.log.WithField("motor", id).WithField("target", target).Debug("move")
	return target, nil
}

// SetVelocity commands a motor in wheel mode to rotate at speed, clamped to
// [-1000, 1000]. Zero stops the motor. The applied velocity is returned.
func (s *Session) SetVelocity(ctx context.Context, id, speed int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.motor(id)
	if err != nil {
		return 0, err
	}
	if err := s.requireMode(ctx, m, ModeWheel, "set velocity"); err != nil {
		return 0, err
	}

	v := ClampVelocity(speed)
	if !m.torque {
		if err := s.writeTorque(ctx, m, true); err != nil {
			return 0, err
		}
	}
	if err := s.writeVelocity(ctx, m, v, DefaultAccel); err != nil {
		return 0, err
	}
	return v, nil
}

// SetTorque enables or disables torque without changing the mode.
func (s *Session) SetTorque(ctx context.Context, id int, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.motor(id)
	if err != nil {
		return err
	}
	return s.writeTorque(ctx, m, on)
}

// ReadTelemetry reads every sensor of a motor. Sub-reads that fail leave
// their field nil; only an unknown motor or a closed session is an error.
func (s *Session) ReadTelemetry(ctx context.Context, id int) (Telemetry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.motor(id)
	if err != nil {
		return Telemetry{}, err
	}

	var t Telemetry
	if v, err := s.readPosition(ctx, id); err == nil {
		t.Position = &v
		m.Position = v
	}
	if raw, err := servolink.ReadWord(ctx, s.link, id, servolink.RegPresentSpeed); err == nil {
		v := servolink.DecodeSigned(raw, 15)
		t.Speed = &v
		m.Speed = v
	}
	if raw, err := servolink.ReadByte(ctx, s.link, id, servolink.RegPresentVoltage); err == nil {
		v := int(raw)
		t.Voltage = &v
	}
	if raw, err := servolink.ReadByte(ctx, s.link, id, servolink.RegPresentTemperature); err == nil {
		v := int(raw)
		t.Temperature = &v
	}
	if raw, err := servolink.ReadWord(ctx, s.link, id, servolink.RegPresentCurrent); err == nil {
		v := servolink.DecodeSigned(raw, 15)
		t.Current = &v
	}
	if raw, err := servolink.ReadWord(ctx, s.link, id, servolink.RegPresentLoad); err == nil {
		v := servolink.DecodeSigned(raw, 10)
		t.Load = &v
	}
	if raw, err := servolink.ReadByte(ctx, s.link, id, servolink.RegMoving); err == nil {
		v := raw != 0
		t.Moving = &v
	}
	m.Telemetry = t
	return t, nil
}

// ReadPosition reads only the present position.
func (s *Session) ReadPosition(ctx context.Context, id int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.motor(id)
	if err != nil {
		return 0, err
	}
	pos, err := s.readPosition(ctx, id)
	if err != nil {
		return 0, err
	}
	m.Position = pos
	return pos, nil
}

// TagID moves a motor to a new bus address. Exactly one motor must be on
// the bus. The registry entry follows the motor only once the id write
// succeeded.
func (s *Session) TagID(ctx context.Context, oldID, newID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if newID < 1 || newID > servolink.MaxID || newID == oldID {
		return fmt.Errorf("tag motor %d as %d: %w", oldID, newID, ErrInvalidID)
	}
	if _, err := s.motor(oldID); err != nil {
		return err
	}
	if _, taken := s.motors.Get(newID); taken {
		return fmt.Errorf("tag motor %d as %d: %w: already registered", oldID, newID, ErrInvalidID)
	}

	if err := s.unlockEEPROM(ctx, oldID); err != nil {
		return err
	}
	err := servolink.WriteByte(ctx, s.link, oldID, servolink.RegID, byte(newID))
	if err != nil {
		s.relock(ctx, oldID)
		return classify("write id", oldID, err)
	}
	s.relock(ctx, newID)

	s.motors.Move(oldID, newID)
	s.log.WithField("motor", oldID).WithField("new_id", newID).Info("id changed")
	return nil
}

// WaitIdle polls the moving flag until the motor stops or timeout passes.
func (s *Session) WaitIdle(ctx context.Context, id int, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.motor(id); err != nil {
		return err
	}
	poll := s.cfg.Calibration.PollInterval
	polls := max(int(timeout/poll), 0) + 1
	for n := 0; n < polls; n++ {
		if n > 0 {
			if err := s.cfg.sleep(ctx, poll); err != nil {
				return err
			}
		}
		moving, err := servolink.ReadByte(ctx, s.link, id, servolink.RegMoving)
		if err != nil {
			return classify("read moving", id, err)
		}
		if moving == 0 {
			return nil
		}
	}
	return fmt.Errorf("motor %d still moving after %s: %w", id, timeout, ErrMotionTimeout)
}

// FactoryLimits reads the angle limits stored on the device.
func (s *Session) FactoryLimits(ctx context.Context, id int) (Limits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.motor(id); err != nil {
		return Limits{}, err
	}
	lo, err := servolink.ReadWord(ctx, s.link, id, servolink.RegMinAngleLimit)
	if err != nil {
		return Limits{}, classify("read min angle", id, err)
	}
	hi, err := servolink.ReadWord(ctx, s.link, id, servolink.RegMaxAngleLimit)
	if err != nil {
		return Limits{}, classify("read max angle", id, err)
	}
	return Limits{Min: int(lo), Max: int(hi)}, nil
}

// The helpers below assume s.mu is held.

func (s *Session) readPosition(ctx context.Context, id int) (int, error) {
	raw, err := servolink.ReadWord(ctx, s.link, id, servolink.RegPresentPosition)
	if err != nil {
		return 0, classify("read position", id, err)
	}
	return servolink.DecodeSigned(raw, 15), nil
}

func (s *Session) writeTorque(ctx context.Context, m *Motor, on bool) error {
	var v byte
	if on {
		v = 1
	}
	if err := servolink.WriteByte(ctx, s.link, m.ID, servolink.RegTorqueEnable, v); err != nil {
		return classify("write torque", m.ID, err)
	}
	m.torque = on
	return nil
}

func (s *Session) writeMotion(ctx context.Context, id, target, speed, accel int) error {
	speed = max(min(speed, MaxSpeed), 0)
	accel = max(min(accel, MaxAcceleration), 0)
	block := servolink.MotionBlock(byte(accel), uint16(target), uint16(speed))
	if err := s.link.Write(ctx, id, servolink.RegAcceleration, block); err != nil {
		return classify("write position", id, err)
	}
	return nil
}

func (s *Session) writeVelocity(ctx context.Context, m *Motor, v, accel int) error {
	accel = max(min(accel, MaxAcceleration), 0)
	block := servolink.MotionBlock(byte(accel), 0, servolink.EncodeSigned(ClampVelocity(v), 15))
	if err := s.link.Write(ctx, m.ID, servolink.RegAcceleration, block); err != nil {
		return classify("write velocity", m.ID, err)
	}
	return nil
}

func (s *Session) unlockEEPROM(ctx context.Context, id int) error {
	err := servolink.WriteByte(ctx, s.link, id, servolink.RegLock, servolink.EEPROMUnlocked)
	return classify("unlock eeprom", id, err)
}

// relock locks the EEPROM. A failure only warrants a warning: whatever was
// written before has already taken effect.
func (s *Session) relock(ctx context.Context, id int) {
	err := servolink.WriteByte(ctx, s.link, id, servolink.RegLock, servolink.EEPROMLocked)
	if err != nil {
		s.log.WithField("motor", id).WithError(err).Warn("eeprom lock failed")
	}
}
