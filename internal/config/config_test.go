package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNew_DefaultsAreValid(t *testing.T) {
	cfg := New()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100*time.Millisecond, cfg.RetryInterval.Duration)
	assert.Equal(t, 500, cfg.MaxRetries)
	assert.Equal(t, 4500, cfg.WindowSamples())
	assert.Equal(t, DisplayAll, cfg.DisplayMode)
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "session.toml", `
ring_buffer_size = 20000
pre_samples = 100
post_samples = 200
max_trials = 12
retry_interval = "20ms"
display_mode = "average"

[[triggers]]
name = "stim"
channel = 3
threshold = 0.25
falling = true
holdoff_samples = 50

[[triggers]]
name = "reward"
channel = 4
threshold = 1.0
smoothing_tau = 0.001
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20000, cfg.RingBufferSize)
	assert.Equal(t, 300, cfg.WindowSamples())
	assert.Equal(t, 12, cfg.MaxTrials)
	assert.Equal(t, 20*time.Millisecond, cfg.RetryInterval.Duration)
	assert.Equal(t, 100*time.Millisecond, cfg.WakeInterval.Duration, "unset fields keep defaults")
	assert.Equal(t, DisplayAverage, cfg.DisplayMode)
	require.Len(t, cfg.Triggers, 2)
	assert.Equal(t, Trigger{Name: "stim", Channel: 3, Threshold: 0.25, Falling: true, HoldoffSamples: 50}, cfg.Triggers[0])
	assert.Equal(t, 0.001, cfg.Triggers[1].SmoothingTau)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "session.yaml", `
chunk_size: 256
max_retries: 7
wake_interval: 250ms
display_mode: individual
triggers:
  - name: ttl
    channel: 1
    threshold: 0.1
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.ChunkSize)
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.WakeInterval.Duration)
	assert.Equal(t, DisplayIndividual, cfg.DisplayMode)
	require.Len(t, cfg.Triggers, 1)
	assert.Equal(t, 1, cfg.Triggers[0].Channel)
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "session.json", `{"max_trials": 3, "retry_interval": "1s", "log_format": "json"}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxTrials)
	assert.Equal(t, time.Second, cfg.RetryInterval.Duration)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, New().Triggers, cfg.Triggers, "missing triggers fall back to defaults")
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeFile(t, dir, "session.ini", "x=1"))
	assert.ErrorContains(t, err, "unsupported config format")

	_, err = Load(writeFile(t, dir, "bad.toml", `retry_interval = "soon"`))
	assert.ErrorContains(t, err, "decode TOML")

	_, err = Load(writeFile(t, dir, "bad.yaml", "display_mode: sideways\n"))
	assert.ErrorContains(t, err, "decode YAML")

	_, err = Load(writeFile(t, dir, "invalid.toml", "max_trials = 0\npre_samples = -1\n"))
	assert.ErrorIs(t, err, ErrInvalid)
	assert.ErrorContains(t, err, "max_trials")
	assert.ErrorContains(t, err, "pre_samples")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"window too large", func(c *Config) { c.RingBufferSize = 100 }, "pre_samples/post_samples"},
		{"chunk does not fit beside window", func(c *Config) { c.RingBufferSize = c.WindowSamples() + c.ChunkSize - 1 }, "chunk_size"},
		{"empty window", func(c *Config) { c.PreSamples, c.PostSamples = 0, 0 }, "window is empty"},
		{"zero retry interval", func(c *Config) { c.RetryInterval = Duration{} }, "retry_interval"},
		{"bad bit depth", func(c *Config) { c.OutputBitDepth = 12 }, "output_bit_depth"},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }, "log_level"},
		{"no display mode", func(c *Config) { c.DisplayMode = DisplayInvalid }, "display_mode"},
		{"no triggers", func(c *Config) { c.Triggers = nil }, "triggers"},
		{"duplicate trigger", func(c *Config) { c.Triggers = append(c.Triggers, c.Triggers[0]) }, "duplicate"},
		{"negative channel", func(c *Config) { c.Triggers[0].Channel = -1 }, "triggers[0].channel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestDisplayMode(t *testing.T) {
	for _, m := range []DisplayMode{DisplayIndividual, DisplayAverage, DisplayAll} {
		parsed, err := ParseDisplayMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	assert.True(t, DisplayAll.ShowsAverage())
	assert.True(t, DisplayAll.ShowsTrials())
	assert.False(t, DisplayAverage.ShowsTrials())
	assert.False(t, DisplayIndividual.ShowsAverage())

	_, err := ParseDisplayMode("none")
	assert.Error(t, err)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "session.toml", "max_trials = 10\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	errs := make(chan error, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { changes <- c }, func(err error) { errs <- err })
	}()

	// give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "other.toml", "max_trials = 99\n")
	writeFile(t, dir, "session.toml", "max_trials = 0\n")
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrInvalid)
	case <-time.After(5 * time.Second):
		t.Fatal("invalid config was not reported")
	}

	writeFile(t, dir, "session.toml", "max_trials = 25\n")
	select {
	case cfg := <-changes:
		assert.Equal(t, 25, cfg.MaxTrials)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
