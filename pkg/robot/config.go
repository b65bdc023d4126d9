package robot

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

const DefaultConfigFile = "armctl.json"

// Config holds the settings persisted between runs.
type Config struct {
	Port      string `json:"port"`
	BaudRate  int    `json:"baud_rate,omitempty"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
	ProbeMin  int    `json:"probe_min,omitempty"`
	ProbeMax  int    `json:"probe_max,omitempty"`

	// Seeds are the approximate ends of travel per motor id, used to
	// position a motor before each limit search. Calibration results are
	// never stored here.
	Seeds map[string]Limits `json:"seeds,omitempty"`
}

// SessionConfig converts the stored settings into session options.
func (c *Config) SessionConfig() SessionConfig {
	return SessionConfig{
		Port:     c.Port,
		BaudRate: c.BaudRate,
		Timeout:  time.Duration(c.TimeoutMS) * time.Millisecond,
		ProbeMin: c.ProbeMin,
		ProbeMax: c.ProbeMax,
	}
}

// Seed returns the seed range for a motor, if one is stored.
func (c *Config) Seed(id int) (Limits, bool) {
	l, ok := c.Seeds[strconv.Itoa(id)]
	return l, ok
}

// SetSeed stores the seed range for a motor.
func (c *Config) SetSeed(id int, l Limits) {
	if c.Seeds == nil {
		c.Seeds = make(map[string]Limits)
	}
	c.Seeds[strconv.Itoa(id)] = l
}

// RecordSeeds stores the raw stops found by calibration runs as seeds for
// the next run. The backed-off limits themselves are not kept.
func (c *Config) RecordSeeds(results ...CalibrationResult) int {
	n := 0
	for _, r := range results {
		if r.RawMin >= r.RawMax {
			continue
		}
		c.SetSeed(r.MotorID, Limits{Min: r.RawMin, Max: r.RawMax})
		n++
	}
	return n
}

// LoadConfigFrom loads configuration from a specific file
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
