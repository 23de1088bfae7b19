package dsp

import "triggered-average/internal/invariant"

// LevelTrigger detects threshold crossings on one channel of a stream of
// blocks. After a crossing, further crossings are ignored for Holdoff samples.
type LevelTrigger struct {
	Channel   int
	Threshold float32
	Rising    bool
	Holdoff   int

	smoother  *Smoother
	prev      float32
	primed    bool
	holdUntil int64
}

// NewLevelTrigger creates a trigger on channel. smoother may be nil.
func NewLevelTrigger(channel int, threshold float32, rising bool, holdoff int, smoother *Smoother) *LevelTrigger {
	invariant.Check(channel >= 0, "trigger channel %d", channel)
	invariant.Check(holdoff >= 0, "trigger holdoff %d", holdoff)
	return &LevelTrigger{
		Channel:   channel,
		Threshold: threshold,
		Rising:    rising,
		Holdoff:   holdoff,
		smoother:  smoother,
	}
}

// Process scans b, whose first sample has absolute number first, and
// returns the absolute sample numbers at which the threshold was crossed.
// State carries over between calls so crossings spanning blocks are found.
func (t *LevelTrigger) Process(b *Block, first int64) []int64 {
	var hits []int64
	for i, raw := range b.Channel(t.Channel) {
		v := float32(t.smoother.Filter(float64(raw)))
		n := first + int64(i)
		if t.primed && n >= t.holdUntil && t.crossed(t.prev, v) {
			hits = append(hits, n)
			t.holdUntil = n + int64(t.Holdoff) + 1
		}
		t.prev = v
		t.primed = true
	}
	return hits
}

// Reset forgets the previous sample and any pending hold-off.
func (t *LevelTrigger) Reset() {
	t.primed = false
	t.holdUntil = 0
	t.prev = 0
	t.smoother.Reset()
}

func (t *LevelTrigger) crossed(prev, cur float32) bool {
	if t.Rising {
		return cur >= t.Threshold && prev < t.Threshold
	}
	return cur <= t.Threshold && prev > t.Threshold
}
