package dsp

import "triggered-average/internal/invariant"

// Block is a channels x samples matrix of float32 values stored channel-major:
// all samples of channel 0, then all samples of channel 1, and so on.
type Block struct {
	channels int
	samples  int
	data     []float32
}

// NewBlock creates a zeroed block of the given dimensions.
func NewBlock(channels, samples int) *Block {
	b := &Block{}
	b.SetSize(channels, samples)
	return b
}

// SetSize changes the dimensions of the block and zeroes its contents.
// The backing array is reused when it is large enough.
func (b *Block) SetSize(channels, samples int) {
	invariant.Check(channels >= 0 && samples >= 0, "block size %dx%d", channels, samples)
	n := channels * samples
	if cap(b.data) < n {
		b.data = make([]float32, n)
	} else {
		b.data = b.data[:n]
		clear(b.data)
	}
	b.channels = channels
	b.samples = samples
}

// Channels returns the number of channels.
func (b *Block) Channels() int { return b.channels }

// Samples returns the number of samples per channel.
func (b *Block) Samples() int { return b.samples }

// Empty reports whether the block holds no values.
func (b *Block) Empty() bool { return len(b.data) == 0 }

// SameSize reports whether b and o have identical dimensions.
func (b *Block) SameSize(o *Block) bool {
	return b.channels == o.channels && b.samples == o.samples
}

// Channel returns the samples of one channel. Writes through the returned
// slice modify the block; appends never spill into the next channel.
func (b *Block) Channel(ch int) []float32 {
	invariant.Check(ch >= 0 && ch < b.channels, "channel %d out of range [0,%d)", ch, b.channels)
	start := ch * b.samples
	return b.data[start : start+b.samples : start+b.samples]
}

// ChannelSlices returns one slice per channel.
func (b *Block) ChannelSlices() [][]float32 {
	out := make([][]float32, b.channels)
	for ch := range out {
		out[ch] = b.Channel(ch)
	}
	return out
}

// At returns the value at (ch, i).
func (b *Block) At(ch, i int) float32 {
	b.checkIndex(ch, i)
	return b.data[ch*b.samples+i]
}

// Set stores v at (ch, i).
func (b *Block) Set(ch, i int, v float32) {
	b.checkIndex(ch, i)
	b.data[ch*b.samples+i] = v
}

// Data returns the flat channel-major storage.
func (b *Block) Data() []float32 { return b.data }

// Clear zeroes all values.
func (b *Block) Clear() { clear(b.data) }

// Clone returns a deep copy of b.
func (b *Block) Clone() *Block {
	c := &Block{channels: b.channels, samples: b.samples, data: make([]float32, len(b.data))}
	copy(c.data, b.data)
	return c
}

// CopyFrom resizes b to the dimensions of src and copies its values.
func (b *Block) CopyFrom(src *Block) {
	b.SetSize(src.channels, src.samples)
	copy(b.data, src.data)
}

func (b *Block) checkIndex(ch, i int) {
	invariant.Check(ch >= 0 && ch < b.channels && i >= 0 && i < b.samples,
		"index (%d,%d) out of range for %dx%d block", ch, i, b.channels, b.samples)
}
