package main

import (
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"triggered-average/internal/config"
	"triggered-average/internal/logging"
)

const (
	AppName    = "triggered-average"
	AppVersion = "0.3.0"
	AppDesc    = "Trigger-locked averaging of multichannel recordings"
)

func createCliApp() *cli.App {
	return &cli.App{
		Name:     AppName,
		Version:  AppVersion,
		Usage:    AppDesc,
		Flags:    createCliFlags(),
		Commands: createCommands(),
	}
}

func createCliFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "session config file (.toml, .yaml or .json)",
			EnvVars: []string{"TRIGGERED_AVERAGE_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "override the configured log level (debug, info, warn, error)",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "override the configured log format (text, json)",
		},
	}
}

func createCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "average",
			Aliases:   []string{"avg"},
			Usage:     "stream a WAV file through the triggers and write the averages",
			ArgsUsage: "<input.wav>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "out",
					Aliases: []string{"o"},
					Value:   ".",
					Usage:   "directory for the output WAV files",
				},
				&cli.BoolFlag{
					Name:  "listen",
					Usage: "play the first channel of each average when done",
				},
				&cli.BoolFlag{
					Name:  "watch",
					Usage: "reload the config file when it changes",
				},
				&cli.BoolFlag{
					Name:  "realtime",
					Usage: "feed the input at its sample rate instead of as fast as possible",
				},
				&cli.DurationFlag{
					Name:  "timeout",
					Value: 0,
					Usage: "stop after this long, 0 for no limit (e.g. 30s)",
				},
			},
			Action: runAverage,
		},
		{
			Name:      "inspect",
			Usage:     "print the WAV header and the trigger crossings found in a file",
			ArgsUsage: "<input.wav>",
			Action:    runInspect,
		},
	}
}

// loadConfig reads the --config file, or the defaults when none is given,
// and applies the logging overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.New()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.LogFormat = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	lc := logging.DefaultConfig()
	lc.Level = cfg.LogLevel
	lc.Format = cfg.LogFormat
	return logging.New(lc)
}

func inputPath(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", cli.Exit(fmt.Sprintf("%s: expected one input file, got %d", c.Command.Name, c.NArg()), 2)
	}
	return c.Args().First(), nil
}

