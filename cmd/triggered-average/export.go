package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"

	"triggered-average/internal/dsp"
)

// namedBlock is an output trace and the name it is exported under.
type namedBlock struct {
	name  string
	block *dsp.Block
}

// averages returns the mean of every source with at least one trial.
func (s *session) averages() []namedBlock {
	var out []namedBlock
	for _, src := range s.sources {
		snap, ok := s.store.Snapshot(src.id)
		if !ok || snap.NumTrials == 0 {
			continue
		}
		out = append(out, namedBlock{name: src.name, block: snap.Mean})
	}
	return out
}

// writeOutputs writes the traces selected by the display mode into dir and
// returns the paths written.
func (s *session) writeOutputs(dir string) ([]string, error) {
	cfg := s.config()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	var blocks []namedBlock
	for _, src := range s.sources {
		snap, ok := s.store.Snapshot(src.id)
		if !ok || snap.NumTrials == 0 {
			s.log.Info("no trials captured", "source", src.name)
			continue
		}
		base := fileSafe(src.name)
		if cfg.DisplayMode.ShowsAverage() {
			blocks = append(blocks,
				namedBlock{name: base + "_mean", block: snap.Mean},
				namedBlock{name: base + "_stddev", block: snap.StdDev})
		}
		if cfg.DisplayMode.ShowsTrials() {
			for i := 0; i < snap.Trials.NumStored(); i++ {
				trial := dsp.NewBlock(snap.Trials.Channels(), snap.Trials.Samples())
				snap.Trials.Trial(i, trial)
				blocks = append(blocks, namedBlock{name: fmt.Sprintf("%s_trial_%03d", base, i), block: trial})
			}
		}
	}

	paths := make([]string, 0, len(blocks))
	for _, nb := range blocks {
		path := filepath.Join(dir, nb.name+".wav")
		if err := writeWAV(path, nb.block, s.sampleRate, cfg.OutputBitDepth); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeWAV(path string, b *dsp.Block, sampleRate, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, sampleRate, bitDepth, b.Channels(), 1)
	if err := enc.Write(b.IntBuffer(sampleRate, bitDepth)); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return f.Close()
}

// fileSafe replaces characters that cannot appear in a file name.
func fileSafe(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
}
