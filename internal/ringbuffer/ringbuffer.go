// Package ringbuffer holds the most recent samples of a continuous
// multi-channel stream, addressed by absolute sample number.
package ringbuffer

import (
	"runtime"
	"sync"
	"sync/atomic"

	"triggered-average/internal/dsp"
	"triggered-average/internal/invariant"
)

// SampleNumber is the position of a sample in the lifetime of the stream.
type SampleNumber = int64

// ReadResult is the outcome of a windowed read.
type ReadResult int8

const (
	UnknownError ReadResult = iota - 1
	Success
	// NotEnoughNewData means the window ends beyond the newest written sample.
	NotEnoughNewData
	// DataTooOld means the window starts before the oldest retained sample.
	DataTooOld
	InvalidParameters
	// Aborted is never returned by the buffer; the collector uses it for
	// requests given up after too many retries.
	Aborted
)

func (r ReadResult) String() string {
	switch r {
	case Success:
		return "success"
	case NotEnoughNewData:
		return "not enough new data"
	case DataTooOld:
		return "data in ring buffer too old"
	case InvalidParameters:
		return "invalid parameters"
	case Aborted:
		return "aborted"
	default:
		return "unknown error"
	}
}

// RingBuffer is a fixed-capacity circular store of multi-channel samples.
//
// One producer calls AddData; any number of readers call the read methods.
// The cursor state is published atomically under a sequence counter so
// StartSampleForTriggeredRead never takes the lock; the lock only guards the
// sample memory while it is written or copied out.
type RingBuffer struct {
	channels int
	capacity int
	buf      *dsp.Block // channels x capacity

	mu         sync.Mutex
	seq        atomic.Uint64 // odd while the cursors below are being updated
	writeIndex atomic.Int64
	valid      atomic.Int64
	next       atomic.Int64
}

// New creates a RingBuffer holding capacity samples of channels channels.
func New(channels, capacity int) *RingBuffer {
	invariant.Check(channels > 0 && capacity > 0, "ring buffer %d channels x %d samples", channels, capacity)
	return &RingBuffer{
		channels: channels,
		capacity: capacity,
		buf:      dsp.NewBlock(channels, capacity),
	}
}

// Channels returns the number of channels.
func (rb *RingBuffer) Channels() int { return rb.channels }

// Capacity returns the number of samples per channel the buffer retains.
func (rb *RingBuffer) Capacity() int { return rb.capacity }

// CurrentSampleNumber returns the absolute number of the next sample to be written.
func (rb *RingBuffer) CurrentSampleNumber() SampleNumber { return rb.next.Load() }

// ValidSamples returns how many samples are currently retrievable.
func (rb *RingBuffer) ValidSamples() int { return int(rb.valid.Load()) }

// AddData appends the first n samples of block, whose first sample has the
// absolute number firstSample. If firstSample does not continue the stream,
// previously retained samples are discarded. Only the last Capacity samples
// of an oversized block are kept.
func (rb *RingBuffer) AddData(block *dsp.Block, firstSample SampleNumber, n int) {
	invariant.Check(block.Channels() == rb.channels, "block has %d channels, buffer %d", block.Channels(), rb.channels)
	invariant.Check(n >= 0 && n <= block.Samples(), "%d samples requested from block of %d", n, block.Samples())
	if n == 0 {
		return
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	valid := rb.valid.Load()
	writeIndex := int(rb.writeIndex.Load())
	if valid > 0 && firstSample != rb.next.Load() {
		// numbering is no longer contiguous with what we hold
		valid = 0
	}

	skip := 0
	if n > rb.capacity {
		skip = n - rb.capacity
	}
	for ch := 0; ch < rb.channels; ch++ {
		src := block.Channel(ch)[skip:n]
		dst := rb.buf.Channel(ch)
		// Copy in one or two chunks.
		written := copy(dst[writeIndex:], src)
		copy(dst, src[written:])
	}

	count := n - skip
	rb.publish(int64((writeIndex+count)%rb.capacity), min(valid+int64(count), int64(rb.capacity)), firstSample+SampleNumber(n))
}

// publish stores a new cursor state. Callers hold mu.
func (rb *RingBuffer) publish(writeIndex, valid, next int64) {
	rb.seq.Add(1)
	rb.writeIndex.Store(writeIndex)
	rb.valid.Store(valid)
	rb.next.Store(next)
	rb.seq.Add(1)
}

// cursors returns a consistent next, valid and writeIndex without locking.
func (rb *RingBuffer) cursors() (next, valid, writeIndex int64) {
	for {
		before := rb.seq.Load()
		if before&1 == 0 {
			next, valid, writeIndex = rb.next.Load(), rb.valid.Load(), rb.writeIndex.Load()
			if rb.seq.Load() == before {
				return next, valid, writeIndex
			}
		}
		runtime.Gosched()
	}
}

// StartSampleForTriggeredRead reports whether the window
// [center-pre, center+post) is fully available and, on Success, the
// physical index of its first sample. The returned offset is -1 otherwise.
func (rb *RingBuffer) StartSampleForTriggeredRead(center SampleNumber, pre, post int) (int, ReadResult) {
	next, valid, writeIndex := rb.cursors()
	return rb.locate(center, pre, post, next, valid, writeIndex)
}

func (rb *RingBuffer) locate(center SampleNumber, pre, post int, next, valid, writeIndex int64) (int, ReadResult) {
	if pre < 0 || post < 0 || pre+post == 0 || pre+post > rb.capacity {
		return -1, InvalidParameters
	}
	start := center - SampleNumber(pre)
	end := center + SampleNumber(post)
	oldest := next - valid

	// the oldest retained sample only ever moves forward
	if start < oldest {
		return -1, DataTooOld
	}
	if end > next {
		return -1, NotEnoughNewData
	}
	offset := (writeIndex - (next - start)) % int64(rb.capacity)
	if offset < 0 {
		offset += int64(rb.capacity)
	}
	return int(offset), Success
}

// ReadAroundSample copies the window [center-pre, center+post) into out,
// resizing it to Channels x (pre+post). out is left untouched unless the
// result is Success.
func (rb *RingBuffer) ReadAroundSample(center SampleNumber, pre, post int, out *dsp.Block) ReadResult {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	offset, res := rb.locate(center, pre, post, rb.next.Load(), rb.valid.Load(), rb.writeIndex.Load())
	if res != Success {
		return res
	}

	length := pre + post
	out.SetSize(rb.channels, length)
	for ch := 0; ch < rb.channels; ch++ {
		src := rb.buf.Channel(ch)
		dst := out.Channel(ch)
		if offset+length <= rb.capacity {
			copy(dst, src[offset:offset+length])
		} else {
			part1 := copy(dst, src[offset:])
			copy(dst[part1:], src[:length-part1])
		}
	}
	return Success
}

// Reset discards all retained samples and restarts numbering at zero.
// Capacity and channel count are unchanged.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.publish(0, 0, 0)
	rb.buf.Clear()
}
