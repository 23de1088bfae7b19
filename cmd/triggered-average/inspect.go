package main

import (
	"fmt"
	"io"
	"time"

	"github.com/go-audio/audio"

	"triggered-average/internal/config"
	"triggered-average/internal/dsp"
)

// inspectFile prints the header of a WAV file and the number of crossings
// each configured trigger finds in it.
func inspectFile(w io.Writer, path string, cfg *config.Config) error {
	in, err := openInput(path)
	if err != nil {
		return err
	}
	defer in.Close()

	format := in.format()
	fmt.Fprintf(w, "file:        %s\n", path)
	fmt.Fprintf(w, "channels:    %d\n", format.NumChannels)
	fmt.Fprintf(w, "sample rate: %d Hz\n", format.SampleRate)
	fmt.Fprintf(w, "bit depth:   %d\n", in.dec.BitDepth)

	type counted struct {
		name    string
		trigger *dsp.LevelTrigger
		hits    int
	}
	var triggers []*counted
	for _, t := range cfg.Triggers {
		if t.Channel >= format.NumChannels {
			fmt.Fprintf(w, "trigger %s: channel %d not present\n", t.Name, t.Channel)
			continue
		}
		triggers = append(triggers, &counted{
			name: t.Name,
			trigger: dsp.NewLevelTrigger(t.Channel, float32(t.Threshold), !t.Falling, t.HoldoffSamples,
				dsp.NewSmoother(format.SampleRate, t.SmoothingTau)),
		})
	}

	buf := &audio.IntBuffer{
		Format:         in.dec.Format(),
		Data:           make([]int, cfg.ChunkSize*format.NumChannels),
		SourceBitDepth: int(in.dec.BitDepth),
	}
	var block dsp.Block
	var frames int64
	for {
		n, err := in.dec.PCMBuffer(buf)
		if err != nil {
			return fmt.Errorf("read PCM: %w", err)
		}
		got := n / format.NumChannels
		if got == 0 {
			break
		}
		block.FromIntBuffer(buf, got)
		for _, c := range triggers {
			c.hits += len(c.trigger.Process(&block, frames))
		}
		frames += int64(got)
	}

	duration := time.Duration(frames) * time.Second / time.Duration(format.SampleRate)
	fmt.Fprintf(w, "frames:      %d (%s)\n", frames, duration)
	for _, c := range triggers {
		fmt.Fprintf(w, "trigger %s: %d crossings\n", c.name, c.hits)
	}
	return nil
}
