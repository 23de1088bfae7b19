package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func rampBlock(values ...float32) *Block {
	b := NewBlock(2, len(values))
	copy(b.Channel(1), values)
	return b
}

func TestLevelTrigger_Rising(t *testing.T) {
	trig := NewLevelTrigger(1, 0.5, true, 0, nil)
	hits := trig.Process(rampBlock(0, 0.2, 0.6, 0.9, 0.1, 0.7), 100)
	assert.Equal(t, []int64{102, 105}, hits)
}

func TestLevelTrigger_Falling(t *testing.T) {
	trig := NewLevelTrigger(1, 0, false, 0, nil)
	hits := trig.Process(rampBlock(1, 0.5, -0.5, -1, 1, -1), 0)
	assert.Equal(t, []int64{2, 5}, hits)
}

func TestLevelTrigger_CrossingSpansBlocks(t *testing.T) {
	trig := NewLevelTrigger(1, 0.5, true, 0, nil)
	assert.Empty(t, trig.Process(rampBlock(0, 0.1), 0))
	assert.Equal(t, []int64{2}, trig.Process(rampBlock(0.8, 0.9), 2))
}

func TestLevelTrigger_FirstSampleNeverFires(t *testing.T) {
	trig := NewLevelTrigger(1, 0.5, true, 0, nil)
	assert.Empty(t, trig.Process(rampBlock(1, 1), 0))
}

func TestLevelTrigger_Holdoff(t *testing.T) {
	trig := NewLevelTrigger(1, 0.5, true, 3, nil)
	// crossings at 1, 3 and 5; 3 falls inside the hold-off of 1
	hits := trig.Process(rampBlock(0, 1, 0, 1, 0, 1), 0)
	assert.Equal(t, []int64{1, 5}, hits)

	trig.Reset()
	assert.Equal(t, []int64{1, 3, 5}, NewLevelTrigger(1, 0.5, true, 0, nil).Process(rampBlock(0, 1, 0, 1, 0, 1), 0))
}

func TestLevelTrigger_SmoothingSuppressesSpike(t *testing.T) {
	// tau of 10 samples at 1 kHz turns a single-sample spike into a bump
	trig := NewLevelTrigger(1, 0.5, true, 0, NewSmoother(1000, 0.01))
	assert.Empty(t, trig.Process(rampBlock(0, 1, 0, 0, 0), 0))
}
