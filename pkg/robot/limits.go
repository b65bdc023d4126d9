package robot

// Encoder range and velocity bounds.
const (
	MinTicks      = 0
	MaxTicks      = 4095
	DefaultCenter = 2047
	MaxVelocity   = 1000
)

// DefaultLimits are the bounds used for uncalibrated motors.
var DefaultLimits = Limits{Min: MinTicks, Max: MaxTicks}

// Limits is a software position range in ticks.
type Limits struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Valid reports whether the limits satisfy 0 <= Min < Max <= 4095.
func (l Limits) Valid() bool {
	return l.Min >= MinTicks && l.Min < l.Max && l.Max <= MaxTicks
}

// Clamp returns v bounded to [Min, Max].
func (l Limits) Clamp(v int) int {
	return max(min(v, l.Max), l.Min)
}

// Center returns the midpoint of the range.
func (l Limits) Center() int {
	return l.Min + (l.Max-l.Min)/2
}

// Normalize converts a raw position to a value in the range [-100, 100].
func (l Limits) Normalize(raw int) float64 {
	rangeSize := float64(l.Max - l.Min)
	if rangeSize == 0 {
		return 0
	}
	return (float64(raw-l.Min)/rangeSize)*200 - 100
}

// Denormalize converts a value in [-100, 100] to a raw position.
func (l Limits) Denormalize(norm float64) int {
	rangeSize := float64(l.Max - l.Min)
	return int((norm+100)/200*rangeSize) + l.Min
}

// ClampTarget bounds a requested servo-mode target to the motor's
// calibrated limits, or to the full encoder range when uncalibrated.
func ClampTarget(m *Motor, requested int) int {
	return m.Bounds().Clamp(requested)
}

// Center returns the midpoint of the motor's active bounds.
func Center(m *Motor) int {
	if !m.Calibrated || m.Limits == nil {
		return DefaultCenter
	}
	return m.Limits.Center()
}

// ClampVelocity bounds a wheel-mode velocity to [-1000, 1000].
func ClampVelocity(v int) int {
	return max(min(v, MaxVelocity), -MaxVelocity)
}
