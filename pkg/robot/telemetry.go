package robot

import "fmt"

// Telemetry is a best-effort snapshot of a motor's sensors. A nil field
// means that sub-read failed.
type Telemetry struct {
	Position    *int  `json:"position,omitempty"`
	Speed       *int  `json:"speed,omitempty"`
	Voltage     *int  `json:"voltage,omitempty"` // 0.1 V
	Temperature *int  `json:"temperature,omitempty"`
	Current     *int  `json:"current,omitempty"`
	Load        *int  `json:"load,omitempty"`
	Moving      *bool `json:"moving,omitempty"`
}

// Complete reports whether every sub-read succeeded.
func (t Telemetry) Complete() bool {
	return t.Position != nil && t.Speed != nil && t.Voltage != nil &&
		t.Temperature != nil && t.Current != nil && t.Load != nil && t.Moving != nil
}

// Volts returns the supply voltage in volts.
func (t Telemetry) Volts() (float64, bool) {
	if t.Voltage == nil {
		return 0, false
	}
	return float64(*t.Voltage) / 10, true
}

// Field formats one optional value for display, "-" when absent.
func Field[T any](v *T) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}
