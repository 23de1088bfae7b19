// Package trials keeps the most recent individual trials of one trigger
// source in a fixed-capacity circular buffer.
//
// Storage is channel-major: all trial slots of channel 0 are contiguous,
// followed by all trial slots of channel 1, and so on, so scanning every
// trial of one channel touches a single contiguous range.
package trials

import (
	"triggered-average/internal/dsp"
	"triggered-average/internal/invariant"
)

// Size describes the dimensions of a Buffer.
type Size struct {
	Channels  int
	Samples   int
	MaxTrials int
}

// DefaultSize is used by New when given a zero Size.
var DefaultSize = Size{Channels: 32, Samples: 1000, MaxTrials: 50}

// MinMax is the value range of a set of samples.
type MinMax struct {
	Min float32
	Max float32
}

// Buffer stores up to MaxTrials trials. Logical trial 0 is always the oldest
// stored trial, independent of where it sits in the circular storage.
//
// Buffer is not safe for concurrent use.
type Buffer struct {
	size       Size
	data       []float32
	numStored  int
	writeIndex int
}

// New creates a Buffer of the given size.
func New(size Size) *Buffer {
	if size == (Size{}) {
		size = DefaultSize
	}
	b := &Buffer{}
	b.SetSize(size)
	return b
}

// Size returns the buffer dimensions.
func (b *Buffer) Size() Size { return b.size }

// Channels returns the number of channels per trial.
func (b *Buffer) Channels() int { return b.size.Channels }

// Samples returns the number of samples per trial.
func (b *Buffer) Samples() int { return b.size.Samples }

// MaxTrials returns the trial capacity.
func (b *Buffer) MaxTrials() int { return b.size.MaxTrials }

// NumStored returns how many trials are currently held.
func (b *Buffer) NumStored() int { return b.numStored }

// SetSize reallocates the storage and discards all trials. MaxTrials is
// clamped to at least one.
func (b *Buffer) SetSize(size Size) {
	invariant.Check(size.Channels >= 0 && size.Samples >= 0, "trial buffer size %dx%d", size.Channels, size.Samples)
	size.MaxTrials = max(1, size.MaxTrials)
	b.size = size
	b.data = make([]float32, size.Channels*size.MaxTrials*size.Samples)
	b.numStored = 0
	b.writeIndex = 0
}

// AddTrial copies one trial given as one slice per channel, overwriting the
// oldest trial once the buffer is full.
func (b *Buffer) AddTrial(channelData [][]float32) {
	invariant.Check(len(channelData) == b.size.Channels, "trial has %d channels, buffer %d", len(channelData), b.size.Channels)
	for ch, src := range channelData {
		invariant.Check(len(src) == b.size.Samples, "channel %d has %d samples, buffer %d", ch, len(src), b.size.Samples)
		copy(b.slot(ch, b.writeIndex), src)
	}
	b.writeIndex = (b.writeIndex + 1) % b.size.MaxTrials
	b.numStored = min(b.numStored+1, b.size.MaxTrials)
}

// AddBlock adds a trial held in a block of matching dimensions.
func (b *Buffer) AddBlock(trial *dsp.Block) {
	invariant.Check(trial.Channels() == b.size.Channels && trial.Samples() == b.size.Samples,
		"trial is %dx%d, buffer %dx%d", trial.Channels(), trial.Samples(), b.size.Channels, b.size.Samples)
	b.AddTrial(trial.ChannelSlices())
}

// Sample returns one value of a stored trial.
func (b *Buffer) Sample(channel, trial, sample int) float32 {
	invariant.Check(sample >= 0 && sample < b.size.Samples, "sample %d out of range [0,%d)", sample, b.size.Samples)
	return b.TrialData(channel, trial)[sample]
}

// Trial copies a stored trial into dst, resizing it to Channels x Samples.
func (b *Buffer) Trial(trial int, dst *dsp.Block) {
	phys := b.physical(trial)
	dst.SetSize(b.size.Channels, b.size.Samples)
	for ch := 0; ch < b.size.Channels; ch++ {
		copy(dst.Channel(ch), b.slot(ch, phys))
	}
}

// TrialData returns the samples of one channel of a stored trial without
// copying. The slice aliases the buffer and must be treated as read-only; it
// is only valid until the next mutation.
func (b *Buffer) TrialData(channel, trial int) []float32 {
	b.checkChannel(channel)
	return b.slot(channel, b.physical(trial))
}

// ChannelTrials returns every stored sample of one channel, NumStored x
// Samples values, in physical storage order. Callers needing chronological
// order must use the logical accessors. The slice aliases the buffer.
func (b *Buffer) ChannelTrials(channel int) []float32 {
	b.checkChannel(channel)
	start := channel * b.size.MaxTrials * b.size.Samples
	end := start + b.numStored*b.size.Samples
	return b.data[start:end:end]
}

// SetMaxTrials changes the capacity, keeping the most recent trials in
// chronological order. Shrinking drops the oldest trials.
func (b *Buffer) SetMaxTrials(n int) {
	n = max(1, n)
	if n == b.size.MaxTrials {
		return
	}

	keep := min(b.numStored, n)
	first := b.numStored - keep
	resized := &Buffer{size: b.size}
	resized.size.MaxTrials = n
	resized.data = make([]float32, b.size.Channels*n*b.size.Samples)
	for t := 0; t < keep; t++ {
		phys := b.physical(first + t)
		for ch := 0; ch < b.size.Channels; ch++ {
			copy(resized.slot(ch, t), b.slot(ch, phys))
		}
	}

	b.size.MaxTrials = n
	b.data = resized.data
	b.numStored = keep
	b.writeIndex = keep % n
}

// ChannelMinMax returns the value range of one channel over the logical
// trials [start, end). end is clamped to NumStored. ok is false when the
// range holds no data.
func (b *Buffer) ChannelMinMax(channel, start, end int) (mm MinMax, ok bool) {
	b.checkChannel(channel)
	end = min(end, b.numStored)
	if start < 0 || start >= end || b.size.Samples == 0 {
		return MinMax{}, false
	}

	mm.Min = b.slot(channel, b.physical(start))[0]
	mm.Max = mm.Min
	for t := start; t < end; t++ {
		for _, v := range b.slot(channel, b.physical(t)) {
			mm.Min = min(mm.Min, v)
			mm.Max = max(mm.Max, v)
		}
	}
	return mm, true
}

// Clear discards all trials and zeroes the storage.
func (b *Buffer) Clear() {
	clear(b.data)
	b.numStored = 0
	b.writeIndex = 0
}

// Clone returns a deep copy of b.
func (b *Buffer) Clone() *Buffer {
	c := *b
	c.data = make([]float32, len(b.data))
	copy(c.data, b.data)
	return &c
}

// slot returns the storage of one channel of one physical trial slot.
func (b *Buffer) slot(channel, phys int) []float32 {
	start := (channel*b.size.MaxTrials + phys) * b.size.Samples
	end := start + b.size.Samples
	return b.data[start:end:end]
}

func (b *Buffer) physical(logical int) int {
	invariant.Check(logical >= 0 && logical < b.numStored, "trial %d out of range [0,%d)", logical, b.numStored)
	return (b.writeIndex - b.numStored + logical + b.size.MaxTrials) % b.size.MaxTrials
}

func (b *Buffer) checkChannel(channel int) {
	invariant.Check(channel >= 0 && channel < b.size.Channels, "channel %d out of range [0,%d)", channel, b.size.Channels)
}
