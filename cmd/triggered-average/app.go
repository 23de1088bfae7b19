package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"triggered-average/internal/config"
)

func runAverage(c *cli.Context) error {
	path, err := inputPath(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := c.Duration("timeout"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	in, err := openInput(path)
	if err != nil {
		return err
	}
	defer in.Close()

	s, err := newSession(cfg, in.format(), logger)
	if err != nil {
		return err
	}

	if cfgPath := c.String("config"); c.Bool("watch") {
		if cfgPath == "" {
			return cli.Exit("--watch needs --config", 2)
		}
		go func() {
			err := config.Watch(ctx, cfgPath, s.reconfigure, func(err error) {
				logger.Warn("config reload failed", "path", cfgPath, "error", err)
			})
			if err != nil {
				logger.Error("config watcher stopped", "error", err)
			}
		}()
	}

	sum, err := s.run(ctx, in.dec, c.Bool("realtime"))
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	logger.Info("input processed",
		"samples", sum.Samples,
		"triggers", sum.Registered,
		"captured", sum.Stats.Captured,
		"too_old", sum.Stats.TooOld,
		"abandoned", sum.Stats.Abandoned,
		"past_end", sum.PastEnd)

	written, err := s.writeOutputs(c.String("out"))
	if err != nil {
		return err
	}
	for _, p := range written {
		fmt.Println(p)
	}

	if c.Bool("listen") && ctx.Err() == nil {
		if err := audition(ctx, s.averages(), s.sampleRate, logger); err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}
	return nil
}

func runInspect(c *cli.Context) error {
	path, err := inputPath(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	return inspectFile(c.App.Writer, path, cfg)
}
