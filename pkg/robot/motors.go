// Package robot provides the motor control and calibration engine for a
// servo-bus arm.
package robot

import (
	"fmt"
	"sort"

	"github.com/gwillem/armctl/pkg/servolink"
)

// MotorName identifies a joint of the arm.
type MotorName string

// Joint names for the SO-101 arm, wired to ids 1-6.
const (
	ShoulderPan  MotorName = "shoulder_pan"
	ShoulderLift MotorName = "shoulder_lift"
	ElbowFlex    MotorName = "elbow_flex"
	WristFlex    MotorName = "wrist_flex"
	WristRoll    MotorName = "wrist_roll"
	Gripper      MotorName = "gripper"
)

// AllMotors returns all joint names in order (matching servo IDs 1-6).
func AllMotors() []MotorName {
	return []MotorName{
		ShoulderPan,
		ShoulderLift,
		ElbowFlex,
		WristFlex,
		WristRoll,
		Gripper,
	}
}

// NameOf returns the joint name conventionally wired to id, or "motor_<id>".
func NameOf(id int) MotorName {
	if all := AllMotors(); id >= 1 && id <= len(all) {
		return all[id-1]
	}
	return MotorName(fmt.Sprintf("motor_%d", id))
}

// Mode is a motor operating mode.
type Mode int

const (
	// ModeUnknown means the mode has not been read since the last mode change.
	ModeUnknown Mode = iota
	// ModeServo is position control.
	ModeServo
	// ModeWheel is continuous rotation under velocity control.
	ModeWheel
	// ModeNoTorque leaves the output shaft free.
	ModeNoTorque
)

func (m Mode) String() string {
	switch m {
	case ModeServo:
		return "servo"
	case ModeWheel:
		return "wheel"
	case ModeNoTorque:
		return "no-torque"
	default:
		return "unknown"
	}
}

// ParseMode parses the names returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "servo", "position":
		return ModeServo, nil
	case "wheel", "velocity":
		return ModeWheel, nil
	case "no-torque", "notorque", "free":
		return ModeNoTorque, nil
	}
	return ModeUnknown, fmt.Errorf("unknown mode %q", s)
}

func (m Mode) register() (byte, bool) {
	switch m {
	case ModeServo:
		return servolink.ModePosition, true
	case ModeWheel:
		return servolink.ModeWheel, true
	case ModeNoTorque:
		return servolink.ModeOpenLoop, true
	}
	return 0, false
}

func modeFromRegister(v byte) Mode {
	switch v {
	case servolink.ModePosition:
		return ModeServo
	case servolink.ModeWheel:
		return ModeWheel
	case servolink.ModeOpenLoop:
		return ModeNoTorque
	}
	return ModeUnknown
}

// Motor is the last known state of one servo on the bus.
type Motor struct {
	ID         int       `json:"id"`
	Mode       Mode      `json:"mode"`
	Position   int       `json:"position"`
	Speed      int       `json:"speed"`
	Limits     *Limits   `json:"limits,omitempty"`
	Calibrated bool      `json:"calibrated"`
	Telemetry  Telemetry `json:"telemetry"`

	// torque caches whether torque was enabled by this session; cleared on
	// every mode change.
	torque bool
}

// Bounds returns the active position bounds.
func (m *Motor) Bounds() Limits {
	if m.Calibrated && m.Limits != nil {
		return *m.Limits
	}
	return DefaultLimits
}

// Registry maps motor ids to motors. It is owned by a Session and is not
// safe for concurrent use on its own.
type Registry struct {
	motors map[int]*Motor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{motors: make(map[int]*Motor)}
}

// Get returns the motor for id.
func (r *Registry) Get(id int) (*Motor, bool) {
	m, ok := r.motors[id]
	return m, ok
}

// Put stores m under m.ID.
func (r *Registry) Put(m *Motor) {
	r.motors[m.ID] = m
}

// Delete removes id.
func (r *Registry) Delete(id int) {
	delete(r.motors, id)
}

// Move re-keys the motor at oldID to newID. It reports false, changing
// nothing, if oldID is absent or newID is taken.
func (r *Registry) Move(oldID, newID int) bool {
	m, ok := r.motors[oldID]
	if !ok {
		return false
	}
	if _, taken := r.motors[newID]; taken {
		return false
	}
	delete(r.motors, oldID)
	m.ID = newID
	r.motors[newID] = m
	return true
}

// Len returns the number of motors.
func (r *Registry) Len() int {
	return len(r.motors)
}

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []int {
	ids := make([]int, 0, len(r.motors))
	for id := range r.motors {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Snapshot returns copies of all motors keyed by id.
func (r *Registry) Snapshot() map[int]Motor {
	out := make(map[int]Motor, len(r.motors))
	for id, m := range r.motors {
		out[id] = m.clone()
	}
	return out
}

func (m *Motor) clone() Motor {
	c := *m
	if m.Limits != nil {
		l := *m.Limits
		c.Limits = &l
	}
	return c
}
