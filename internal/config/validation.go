package config

import (
	"errors"
	"fmt"
	"strings"

	"triggered-average/internal/logging"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationErrors) Unwrap() error { return ErrInvalid }

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.RingBufferSize <= 0 {
		add("ring_buffer_size", "must be positive, got %d", c.RingBufferSize)
	}
	if c.ChunkSize <= 0 {
		add("chunk_size", "must be positive, got %d", c.ChunkSize)
	}
	if c.PreSamples < 0 || c.PostSamples < 0 {
		add("pre_samples/post_samples", "must not be negative")
	} else if c.WindowSamples() == 0 {
		add("pre_samples/post_samples", "window is empty")
	} else if c.WindowSamples() > c.RingBufferSize {
		add("pre_samples/post_samples", "window of %d samples exceeds ring buffer of %d", c.WindowSamples(), c.RingBufferSize)
	} else if c.ChunkSize > 0 && c.WindowSamples()+c.ChunkSize > c.RingBufferSize {
		add("chunk_size", "window of %d samples plus chunk of %d exceeds ring buffer of %d",
			c.WindowSamples(), c.ChunkSize, c.RingBufferSize)
	}
	if c.MaxTrials < 1 {
		add("max_trials", "must be at least 1, got %d", c.MaxTrials)
	}
	if c.RetryInterval.Duration <= 0 {
		add("retry_interval", "must be positive")
	}
	if c.MaxRetries < 1 {
		add("max_retries", "must be at least 1, got %d", c.MaxRetries)
	}
	if c.WakeInterval.Duration <= 0 {
		add("wake_interval", "must be positive")
	}
	if c.DisplayMode == DisplayInvalid {
		add("display_mode", "must be individual, average or all")
	}
	switch c.OutputBitDepth {
	case 16, 24, 32:
	default:
		add("output_bit_depth", "unsupported bit depth %d", c.OutputBitDepth)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		add("log_level", "%v", err)
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		add("log_format", "%v", err)
	}

	if len(c.Triggers) == 0 {
		add("triggers", "at least one trigger is required")
	}
	names := make(map[string]bool, len(c.Triggers))
	for i, t := range c.Triggers {
		field := fmt.Sprintf("triggers[%d]", i)
		if t.Name == "" {
			add(field+".name", "must not be empty")
		} else if names[t.Name] {
			add(field+".name", "duplicate trigger %q", t.Name)
		}
		names[t.Name] = true
		if t.Channel < 0 {
			add(field+".channel", "must not be negative")
		}
		if t.HoldoffSamples < 0 {
			add(field+".holdoff_samples", "must not be negative")
		}
		if t.SmoothingTau < 0 {
			add(field+".smoothing_tau", "must not be negative")
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
