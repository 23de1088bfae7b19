// Package datastore keeps the running average and the trial history of
// every trigger source, behind a single lock.
//
// All state is reached through a Tx, which exists only while the store's
// lock is held. Operations that must look up, resize and look up again, as
// the capture path does, run inside one WithLock call and use the Tx as
// many times as they need; nothing ever re-acquires the lock.
package datastore

import (
	"bytes"
	"slices"
	"sync"

	"github.com/google/uuid"

	"triggered-average/internal/dsp"
	"triggered-average/internal/invariant"
	"triggered-average/internal/trials"
)

// SourceID identifies a trigger source. The store only uses it as a key.
type SourceID = uuid.UUID

// NoSource addresses every registered source in ResizeAndResetBuffersForSource.
var NoSource = uuid.Nil

// DefaultMaxTrials is the trial history capacity of new sources until
// SetMaxTrialsToStore is called.
const DefaultMaxTrials = 50

// NewSourceID returns a random source identity.
func NewSourceID() SourceID { return uuid.New() }

// SourceIDFromName returns a stable identity derived from a trigger name, so
// the same configured trigger maps to the same source across reloads.
func SourceIDFromName(name string) SourceID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("triggered-average/"+name))
}

type entry struct {
	average *dsp.Average
	trials  *trials.Buffer
}

// Store maps trigger sources to their average and trial buffers.
type Store struct {
	mu        sync.Mutex
	entries   map[SourceID]*entry
	maxTrials int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		entries:   make(map[SourceID]*entry),
		maxTrials: DefaultMaxTrials,
	}
}

// Tx is a handle to the store's contents, valid only inside the WithLock
// callback that received it.
type Tx struct {
	s *Store
}

// WithLock runs fn with the store locked. The lock is released on every exit
// path, including a panic in fn. fn must not call WithLock or any other
// locking Store method; it uses the Tx instead.
func (s *Store) WithLock(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Tx{s: s})
}

// AverageBuffer returns the accumulator of a source, or false if the source
// has not been created yet.
func (tx *Tx) AverageBuffer(id SourceID) (*dsp.Average, bool) {
	e, ok := tx.s.entries[id]
	if !ok {
		return nil, false
	}
	return e.average, true
}

// TrialBuffer returns the trial history of a source, or false if the source
// has not been created yet.
func (tx *Tx) TrialBuffer(id SourceID) (*trials.Buffer, bool) {
	e, ok := tx.s.entries[id]
	if !ok {
		return nil, false
	}
	return e.trials, true
}

// ResizeAndResetBuffersForSource creates or resizes the buffers of id and
// clears their history. With NoSource, it resizes the average buffer of every
// registered source instead.
func (tx *Tx) ResizeAndResetBuffersForSource(id SourceID, channels, samples int) {
	if id == NoSource {
		for _, e := range tx.s.entries {
			e.average.SetSize(channels, samples)
		}
		return
	}

	size := trials.Size{Channels: channels, Samples: samples, MaxTrials: tx.s.maxTrials}
	e, ok := tx.s.entries[id]
	if !ok {
		tx.s.entries[id] = &entry{
			average: dsp.NewAverage(channels, samples),
			trials:  trials.New(size),
		}
		return
	}
	e.average.SetSize(channels, samples)
	e.trials.SetSize(size)
}

// ResizeAllAverageBuffers resizes the average buffer of every source. Trial
// counts are reset only when clear is true.
func (tx *Tx) ResizeAllAverageBuffers(channels, samples int, clear bool) {
	for _, e := range tx.s.entries {
		if clear {
			e.average.SetSize(channels, samples)
		} else {
			e.average.SetSizeKeepTrials(channels, samples)
		}
	}
}

// SetMaxTrialsToStore changes the trial history capacity of every source and
// of sources created later.
func (tx *Tx) SetMaxTrialsToStore(n int) {
	tx.s.maxTrials = max(1, n)
	for _, e := range tx.s.entries {
		e.trials.SetMaxTrials(n)
	}
}

// AddTrial feeds one captured trial into both buffers of a source, creating
// the source or resetting it to the trial's dimensions first if needed. The
// average and the trial history are updated together, so readers holding
// the lock never see one without the other.
func (tx *Tx) AddTrial(id SourceID, trial *dsp.Block) {
	invariant.Check(id != NoSource, "trial added without a source")
	avg, ok := tx.AverageBuffer(id)
	if !ok || avg.Channels() != trial.Channels() || avg.Samples() != trial.Samples() {
		tx.ResizeAndResetBuffersForSource(id, trial.Channels(), trial.Samples())
	}
	tb, ok := tx.TrialBuffer(id)
	if ok && (tb.Channels() != trial.Channels() || tb.Samples() != trial.Samples()) {
		// averages were bulk-resized with NoSource; bring the history in line
		tx.ResizeAndResetBuffersForSource(id, trial.Channels(), trial.Samples())
	}

	// re-fetch: the resize above may have replaced both
	avg, _ = tx.AverageBuffer(id)
	tb, _ = tx.TrialBuffer(id)
	avg.AddTrial(trial)
	tb.AddBlock(trial)
}

// Sources returns the registered source identities in a stable order.
func (tx *Tx) Sources() []SourceID {
	ids := make([]SourceID, 0, len(tx.s.entries))
	for id := range tx.s.entries {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b SourceID) int { return bytes.Compare(a[:], b[:]) })
	return ids
}

// ClearAll removes every source.
func (tx *Tx) ClearAll() {
	clear(tx.s.entries)
}

// ResizeAndResetBuffersForSource locks the store and calls the Tx method of the same name.
func (s *Store) ResizeAndResetBuffersForSource(id SourceID, channels, samples int) {
	_ = s.WithLock(func(tx *Tx) error {
		tx.ResizeAndResetBuffersForSource(id, channels, samples)
		return nil
	})
}

// ResizeAllAverageBuffers locks the store and calls the Tx method of the same name.
func (s *Store) ResizeAllAverageBuffers(channels, samples int, clear bool) {
	_ = s.WithLock(func(tx *Tx) error {
		tx.ResizeAllAverageBuffers(channels, samples, clear)
		return nil
	})
}

// SetMaxTrialsToStore locks the store and calls the Tx method of the same name.
func (s *Store) SetMaxTrialsToStore(n int) {
	_ = s.WithLock(func(tx *Tx) error {
		tx.SetMaxTrialsToStore(n)
		return nil
	})
}

// AddTrial locks the store and calls the Tx method of the same name.
func (s *Store) AddTrial(id SourceID, trial *dsp.Block) {
	_ = s.WithLock(func(tx *Tx) error {
		tx.AddTrial(id, trial)
		return nil
	})
}

// Sources locks the store and calls the Tx method of the same name.
func (s *Store) Sources() []SourceID {
	var ids []SourceID
	_ = s.WithLock(func(tx *Tx) error {
		ids = tx.Sources()
		return nil
	})
	return ids
}

// ClearAll locks the store and removes every source.
func (s *Store) ClearAll() {
	_ = s.WithLock(func(tx *Tx) error {
		tx.ClearAll()
		return nil
	})
}

// MaxTrials returns the trial history capacity used for new sources.
func (s *Store) MaxTrials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxTrials
}
