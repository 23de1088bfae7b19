package datastore

import (
	"triggered-average/internal/dsp"
	"triggered-average/internal/trials"
)

// Snapshot is a copy of one source's state taken under the store lock. It
// can be read freely after the lock is released.
type Snapshot struct {
	ID        SourceID
	NumTrials int
	Channels  int
	Samples   int
	Mean      *dsp.Block
	StdDev    *dsp.Block
	Trials    *trials.Buffer
}

// Snapshot copies the state of a source, or returns false if it does not exist.
func (s *Store) Snapshot(id SourceID) (Snapshot, bool) {
	var snap Snapshot
	var ok bool
	_ = s.WithLock(func(tx *Tx) error {
		snap, ok = tx.Snapshot(id)
		return nil
	})
	return snap, ok
}

// Snapshot copies the state of a source.
func (tx *Tx) Snapshot(id SourceID) (Snapshot, bool) {
	avg, ok := tx.AverageBuffer(id)
	if !ok {
		return Snapshot{}, false
	}
	tb, _ := tx.TrialBuffer(id)
	return Snapshot{
		ID:        id,
		NumTrials: avg.NumTrials(),
		Channels:  avg.Channels(),
		Samples:   avg.Samples(),
		Mean:      avg.Mean(),
		StdDev:    avg.StandardDeviation(),
		Trials:    tb.Clone(),
	}, true
}
