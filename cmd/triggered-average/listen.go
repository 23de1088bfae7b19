package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"log/slog"
	"math"
	"time"

	"github.com/ebitengine/oto/v3"

	"triggered-average/internal/dsp"
)

// audition plays the first channel of each block in turn.
func audition(ctx context.Context, blocks []namedBlock, sampleRate int, logger *slog.Logger) error {
	if len(blocks) == 0 {
		return nil
	}
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return err
	}
	<-ready

	for _, nb := range blocks {
		logger.Info("playing average", "source", nb.name, "samples", nb.block.Samples())
		player := otoCtx.NewPlayer(bytes.NewReader(monoFloat32LE(nb.block, sampleRate)))
		player.Play()
		for player.IsPlaying() {
			select {
			case <-ctx.Done():
				player.Close()
				return ctx.Err()
			case <-time.After(10 * time.Millisecond):
			}
		}
		if err := player.Close(); err != nil {
			return err
		}
	}
	return nil
}

// monoFloat32LE encodes channel 0 of b as little-endian float32 PCM.
func monoFloat32LE(b *dsp.Block, sampleRate int) []byte {
	mono := dsp.NewBlock(1, b.Samples())
	copy(mono.Channel(0), b.Channel(0))
	samples := mono.Float32Buffer(sampleRate).Data

	raw := make([]byte, 4*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	return raw
}
