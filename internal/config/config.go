// Package config holds the settings of a triggered-average session.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration is a time.Duration that reads and writes as a string such as "100ms".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration as a string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DisplayMode selects which traces are produced for each source.
type DisplayMode int

const (
	DisplayInvalid DisplayMode = iota
	// DisplayIndividual produces every stored trial.
	DisplayIndividual
	// DisplayAverage produces the average and its standard deviation.
	DisplayAverage
	// DisplayAll produces both.
	DisplayAll
)

func (m DisplayMode) String() string {
	switch m {
	case DisplayIndividual:
		return "individual"
	case DisplayAverage:
		return "average"
	case DisplayAll:
		return "all"
	default:
		return "invalid"
	}
}

// ShowsAverage reports whether the mode includes the average trace.
func (m DisplayMode) ShowsAverage() bool { return m == DisplayAverage || m == DisplayAll }

// ShowsTrials reports whether the mode includes individual trials.
func (m DisplayMode) ShowsTrials() bool { return m == DisplayIndividual || m == DisplayAll }

// ParseDisplayMode converts a mode name to a DisplayMode.
func ParseDisplayMode(s string) (DisplayMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "individual", "trials":
		return DisplayIndividual, nil
	case "average", "avg":
		return DisplayAverage, nil
	case "all", "average+individual":
		return DisplayAll, nil
	default:
		return DisplayInvalid, fmt.Errorf("unknown display mode %q", s)
	}
}

// UnmarshalText parses a display mode name.
func (m *DisplayMode) UnmarshalText(text []byte) error {
	v, err := ParseDisplayMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// MarshalText formats the display mode as its name.
func (m DisplayMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Trigger describes one level trigger and the source it feeds.
type Trigger struct {
	Name           string  `toml:"name" yaml:"name" json:"name"`
	Channel        int     `toml:"channel" yaml:"channel" json:"channel"`
	Threshold      float64 `toml:"threshold" yaml:"threshold" json:"threshold"`
	Falling        bool    `toml:"falling" yaml:"falling" json:"falling"`
	HoldoffSamples int     `toml:"holdoff_samples" yaml:"holdoff_samples" json:"holdoff_samples"`
	// SmoothingTau is the time constant in seconds of the low-pass applied
	// before threshold detection. Zero disables it.
	SmoothingTau float64 `toml:"smoothing_tau" yaml:"smoothing_tau" json:"smoothing_tau"`
}

// Config holds all the configuration parameters for the application.
type Config struct {
	RingBufferSize int         `toml:"ring_buffer_size" yaml:"ring_buffer_size" json:"ring_buffer_size"`
	ChunkSize      int         `toml:"chunk_size" yaml:"chunk_size" json:"chunk_size"`
	PreSamples     int         `toml:"pre_samples" yaml:"pre_samples" json:"pre_samples"`
	PostSamples    int         `toml:"post_samples" yaml:"post_samples" json:"post_samples"`
	MaxTrials      int         `toml:"max_trials" yaml:"max_trials" json:"max_trials"`
	RetryInterval  Duration    `toml:"retry_interval" yaml:"retry_interval" json:"retry_interval"`
	MaxRetries     int         `toml:"max_retries" yaml:"max_retries" json:"max_retries"`
	WakeInterval   Duration    `toml:"wake_interval" yaml:"wake_interval" json:"wake_interval"`
	DisplayMode    DisplayMode `toml:"display_mode" yaml:"display_mode" json:"display_mode"`
	OutputBitDepth int         `toml:"output_bit_depth" yaml:"output_bit_depth" json:"output_bit_depth"`
	LogLevel       string      `toml:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat      string      `toml:"log_format" yaml:"log_format" json:"log_format"`
	Triggers       []Trigger   `toml:"triggers" yaml:"triggers" json:"triggers"`
}

// New returns a new Config with default values.
func New() *Config {
	return &Config{
		RingBufferSize: 10 * 30_000, // 10s at 30 kHz
		ChunkSize:      1024,
		PreSamples:     1500,
		PostSamples:    3000,
		MaxTrials:      50,
		RetryInterval:  Duration{100 * time.Millisecond},
		MaxRetries:     500,
		WakeInterval:   Duration{100 * time.Millisecond},
		DisplayMode:    DisplayAll,
		OutputBitDepth: 16,
		LogLevel:       "info",
		LogFormat:      "text",
		Triggers: []Trigger{
			{Name: "ttl", Channel: 0, Threshold: 0.5, HoldoffSamples: 3000},
		},
	}
}

// WindowSamples returns the length of one capture window.
func (c *Config) WindowSamples() int { return c.PreSamples + c.PostSamples }
