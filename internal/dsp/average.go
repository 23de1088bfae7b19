package dsp

import (
	"math"

	"triggered-average/internal/invariant"
)

// Average accumulates running per-sample statistics over trials of equal
// dimensions without retaining the trials themselves.
//
// Average is not safe for concurrent use; the datastore serializes access.
type Average struct {
	channels   int
	samples    int
	sum        *Block
	sumSquares *Block
	mean       *Block // cached sum / trials
	stale      bool
	trials     int
}

// NewAverage creates an empty accumulator for channels x samples trials.
func NewAverage(channels, samples int) *Average {
	a := &Average{sum: &Block{}, sumSquares: &Block{}, mean: &Block{}}
	a.SetSize(channels, samples)
	return a
}

// Channels returns the number of channels per trial.
func (a *Average) Channels() int { return a.channels }

// Samples returns the number of samples per trial.
func (a *Average) Samples() int { return a.samples }

// NumTrials returns the number of trials accumulated since the last reset.
func (a *Average) NumTrials() int { return a.trials }

// AddTrial adds one trial to the running sums. The trial must match the
// accumulator's dimensions.
func (a *Average) AddTrial(trial *Block) {
	invariant.Check(trial.Channels() == a.channels && trial.Samples() == a.samples,
		"trial is %dx%d, accumulator is %dx%d", trial.Channels(), trial.Samples(), a.channels, a.samples)

	sum := a.sum.Data()
	sq := a.sumSquares.Data()
	for i, v := range trial.Data() {
		sum[i] += v
		sq[i] += v * v
	}
	a.trials++
	a.stale = true
}

// Mean returns a copy of the per-sample mean. With no trials accumulated it
// returns an empty block.
func (a *Average) Mean() *Block {
	if a.trials == 0 {
		return &Block{}
	}
	a.refreshMean()
	return a.mean.Clone()
}

// StandardDeviation returns the per-sample population standard deviation.
// With no trials accumulated it returns an empty block.
func (a *Average) StandardDeviation() *Block {
	if a.trials == 0 {
		return &Block{}
	}
	out := NewBlock(a.channels, a.samples)
	n := float32(a.trials)
	sum := a.sum.Data()
	sq := a.sumSquares.Data()
	for i, dst := 0, out.Data(); i < len(dst); i++ {
		mean := sum[i] / n
		variance := sq[i]/n - mean*mean
		// rounding can push a zero variance slightly negative
		dst[i] = float32(math.Sqrt(float64(max(0, variance))))
	}
	return out
}

// ResetTrials zeroes the accumulated statistics without changing dimensions.
func (a *Average) ResetTrials() {
	a.sum.Clear()
	a.sumSquares.Clear()
	a.mean.Clear()
	a.trials = 0
	a.stale = false
}

// SetSize reallocates the accumulator and discards all accumulated trials.
func (a *Average) SetSize(channels, samples int) {
	a.channels = channels
	a.samples = samples
	a.sum.SetSize(channels, samples)
	a.sumSquares.SetSize(channels, samples)
	a.mean.SetSize(channels, samples)
	a.ResetTrials()
}

// SetSizeKeepTrials reallocates the accumulator but keeps the trial count
// and the sums for the region shared by the old and new dimensions. Samples
// outside that region start at zero.
func (a *Average) SetSizeKeepTrials(channels, samples int) {
	if channels == a.channels && samples == a.samples {
		return
	}
	sum := resized(a.sum, channels, samples)
	sq := resized(a.sumSquares, channels, samples)
	a.channels = channels
	a.samples = samples
	a.sum = sum
	a.sumSquares = sq
	a.mean.SetSize(channels, samples)
	a.stale = true
}

func (a *Average) refreshMean() {
	if !a.stale {
		return
	}
	inv := 1 / float32(a.trials)
	mean := a.mean.Data()
	for i, s := range a.sum.Data() {
		mean[i] = s * inv
	}
	a.stale = false
}

func resized(src *Block, channels, samples int) *Block {
	dst := NewBlock(channels, samples)
	for ch := 0; ch < min(channels, src.Channels()); ch++ {
		copy(dst.Channel(ch), src.Channel(ch))
	}
	return dst
}
