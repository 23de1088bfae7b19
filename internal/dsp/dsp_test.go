package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const float32EqualityThreshold = 1e-5

func almostEqual(a, b float32) bool {
	return math.Abs(float64(a-b)) <= float32EqualityThreshold
}

// filledBlock returns a block where every value is v.
func filledBlock(channels, samples int, v float32) *Block {
	b := NewBlock(channels, samples)
	for i := range b.Data() {
		b.Data()[i] = v
	}
	return b
}

func TestBlock_ChannelMajorLayout(t *testing.T) {
	b := NewBlock(3, 4)
	for ch := 0; ch < 3; ch++ {
		for i := 0; i < 4; i++ {
			b.Set(ch, i, float32(ch*10+i))
		}
	}

	assert.Equal(t, []float32{10, 11, 12, 13}, b.Channel(1))
	assert.Equal(t, float32(23), b.Data()[2*4+3])

	// appending to one channel's view must not clobber the next channel
	view := b.Channel(0)
	_ = append(view, 99)
	assert.Equal(t, float32(10), b.At(1, 0))

	slices := b.ChannelSlices()
	require.Len(t, slices, 3)
	assert.Equal(t, float32(22), slices[2][2])
}

func TestBlock_SetSizeZeroesAndReuses(t *testing.T) {
	b := filledBlock(2, 8, 1)
	backing := &b.Data()[0]

	b.SetSize(4, 2)
	assert.Equal(t, 4, b.Channels())
	assert.Equal(t, 2, b.Samples())
	assert.Same(t, backing, &b.Data()[0])
	for _, v := range b.Data() {
		assert.Zero(t, v)
	}
}

func TestBlock_CloneIsDeep(t *testing.T) {
	b := filledBlock(2, 2, 3)
	c := b.Clone()
	c.Set(0, 0, 7)
	assert.Equal(t, float32(3), b.At(0, 0))
	assert.True(t, b.SameSize(c))

	var d Block
	d.CopyFrom(c)
	assert.Equal(t, c.Data(), d.Data())
}

func TestBlock_OutOfRangePanics(t *testing.T) {
	b := NewBlock(2, 2)
	assert.Panics(t, func() { b.At(2, 0) })
	assert.Panics(t, func() { b.Set(0, -1, 1) })
	assert.Panics(t, func() { b.Channel(5) })
	assert.Panics(t, func() { NewBlock(-1, 3) })
}

func TestSmoother(t *testing.T) {
	const sampleRate = 1000
	const tau = 0.005 // 5 samples

	s := NewSmoother(sampleRate, tau)

	// A one-sample glitch must stay well under a 0.5 threshold.
	if v := s.Filter(1.0); v >= 0.5 {
		t.Fatalf("single-sample spike passed through as %f", v)
	}
	s.Reset()

	// A held level rises monotonically toward the input without overshoot.
	prev := 0.0
	for i := 0; i < 100; i++ {
		v := s.Filter(1.0)
		if v < prev || v > 1.0 {
			t.Fatalf("sample %d: got %f after %f", i, v, prev)
		}
		prev = v
	}
	if !almostEqual(float32(prev), 1.0) {
		t.Errorf("held level settled at %f, want 1.0", prev)
	}

	s.Reset()
	assert.Less(t, s.Filter(1.0), 1.0)
}

func TestSmoother_DisabledIsPassThrough(t *testing.T) {
	s := NewSmoother(1000, 0)
	assert.Nil(t, s)
	assert.Equal(t, 0.25, s.Filter(0.25))
	s.Reset()
}
