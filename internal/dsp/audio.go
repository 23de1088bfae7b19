package dsp

import (
	"math"

	"github.com/go-audio/audio"

	"triggered-average/internal/invariant"
)

// fullScale returns the magnitude that maps to 1.0 for integer PCM of the given bit depth.
func fullScale(bitDepth int) float32 {
	invariant.Check(bitDepth > 0 && bitDepth <= 32, "bit depth %d", bitDepth)
	return float32(uint64(1) << (bitDepth - 1))
}

// FromIntBuffer de-interleaves the first frames frames of buf into b,
// scaling integer PCM to [-1, 1). b is resized to the buffer's channel count.
func (b *Block) FromIntBuffer(buf *audio.IntBuffer, frames int) {
	channels := buf.Format.NumChannels
	invariant.Check(frames*channels <= len(buf.Data), "%d frames exceed buffer of %d values", frames, len(buf.Data))
	b.SetSize(channels, frames)
	scale := 1 / fullScale(buf.SourceBitDepth)
	for ch := 0; ch < channels; ch++ {
		dst := b.Channel(ch)
		for i := range dst {
			dst[i] = float32(buf.Data[i*channels+ch]) * scale
		}
	}
}

// IntBuffer interleaves b into integer PCM at the given bit depth, clipping
// values outside [-1, 1).
func (b *Block) IntBuffer(sampleRate, bitDepth int) *audio.IntBuffer {
	scale := fullScale(bitDepth)
	hi, lo := float64(scale-1), -float64(scale)
	out := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: b.channels, SampleRate: sampleRate},
		Data:           make([]int, b.channels*b.samples),
		SourceBitDepth: bitDepth,
	}
	for ch := 0; ch < b.channels; ch++ {
		for i, v := range b.Channel(ch) {
			s := math.Round(float64(v * scale))
			out.Data[i*b.channels+ch] = int(min(hi, max(lo, s)))
		}
	}
	return out
}

// Float32Buffer interleaves b into a float PCM buffer.
func (b *Block) Float32Buffer(sampleRate int) *audio.Float32Buffer {
	out := &audio.Float32Buffer{
		Format:         &audio.Format{NumChannels: b.channels, SampleRate: sampleRate},
		Data:           make([]float32, b.channels*b.samples),
		SourceBitDepth: 32,
	}
	for ch := 0; ch < b.channels; ch++ {
		for i, v := range b.Channel(ch) {
			out.Data[i*b.channels+ch] = v
		}
	}
	return out
}
