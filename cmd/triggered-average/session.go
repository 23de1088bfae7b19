package main

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"triggered-average/internal/collector"
	"triggered-average/internal/config"
	"triggered-average/internal/datastore"
	"triggered-average/internal/dsp"
	"triggered-average/internal/ringbuffer"
)

// source ties a configured trigger to the datastore entry it feeds.
type source struct {
	name    string
	id      datastore.SourceID
	trigger *dsp.LevelTrigger
}

// summary describes one pass over the input.
type summary struct {
	Samples    ringbuffer.SampleNumber
	Registered int
	// PastEnd counts triggers whose window runs past the end of the input.
	PastEnd int
	Stats   collector.Stats
}

// session streams one input through the triggers into the collector.
type session struct {
	log        *slog.Logger
	rb         *ringbuffer.RingBuffer
	store      *datastore.Store
	coll       *collector.Collector
	sources    []source
	channels   int
	sampleRate int

	mu  sync.Mutex
	cfg *config.Config // replaced on reload

	// resolved counts requests the collector has finished with; it
	// signals on resolvedCh after each one.
	resolved   atomic.Int64
	resolvedCh chan struct{}

	// owned by the goroutine calling run, in registration order
	windows []captureWindow
}

// captureWindow is the span [start, end) a registered request reads.
type captureWindow struct {
	start, end ringbuffer.SampleNumber
}

func newSession(cfg *config.Config, format *audio.Format, logger *slog.Logger) (*session, error) {
	s := &session{
		log:        logger,
		cfg:        cfg,
		channels:   format.NumChannels,
		sampleRate: format.SampleRate,
		resolvedCh: make(chan struct{}, 1),
	}
	for _, t := range cfg.Triggers {
		if t.Channel >= format.NumChannels {
			return nil, fmt.Errorf("trigger %q: channel %d not present in %d-channel input", t.Name, t.Channel, format.NumChannels)
		}
		s.sources = append(s.sources, source{
			name: t.Name,
			id:   datastore.SourceIDFromName(t.Name),
			trigger: dsp.NewLevelTrigger(t.Channel, float32(t.Threshold), !t.Falling, t.HoldoffSamples,
				dsp.NewSmoother(format.SampleRate, t.SmoothingTau)),
		})
	}

	s.rb = ringbuffer.New(format.NumChannels, cfg.RingBufferSize)
	s.store = datastore.New()
	s.store.SetMaxTrialsToStore(cfg.MaxTrials)
	s.coll = collector.New(s.rb, s.store, collector.Options{
		RetryInterval: cfg.RetryInterval.Duration,
		MaxRetries:    cfg.MaxRetries,
		WakeInterval:  cfg.WakeInterval.Duration,
		OnUpdate:      s.onUpdate,
		OnResolved:    s.onResolved,
		Logger:        logger,
	})
	return s, nil
}

func (s *session) config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// run feeds the input into the ring buffer, registers a capture for every
// trigger crossing and waits until every capture that can complete has been
// resolved.
func (s *session) run(ctx context.Context, dec *wav.Decoder, realtime bool) (summary, error) {
	if err := s.coll.Start(ctx); err != nil {
		return summary{}, err
	}
	defer s.coll.Stop()

	total, err := s.feed(ctx, dec, realtime)
	sum := summary{Samples: total, Registered: len(s.windows)}
	for _, w := range s.windows {
		if w.end > total {
			sum.PastEnd++
		}
	}
	if err == nil {
		err = s.drain(ctx, uint64(sum.Registered-sum.PastEnd))
	}
	s.coll.Stop()
	sum.Stats = s.coll.Stats()
	return sum, err
}

func (s *session) feed(ctx context.Context, dec *wav.Decoder, realtime bool) (ringbuffer.SampleNumber, error) {
	chunk := s.config().ChunkSize
	buf := &audio.IntBuffer{
		Format:         dec.Format(),
		Data:           make([]int, chunk*s.channels),
		SourceBitDepth: int(dec.BitDepth),
	}

	var pace <-chan time.Time
	if realtime {
		ticker := time.NewTicker(time.Duration(chunk) * time.Second / time.Duration(s.sampleRate))
		defer ticker.Stop()
		pace = ticker.C
	}

	var block dsp.Block
	var next ringbuffer.SampleNumber
	for {
		if err := ctx.Err(); err != nil {
			return next, err
		}
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return next, fmt.Errorf("read PCM: %w", err)
		}
		frames := n / s.channels
		if frames == 0 {
			return next, nil
		}

		block.FromIntBuffer(buf, frames)
		if err := s.waitForRoom(ctx, next+ringbuffer.SampleNumber(frames)); err != nil {
			return next, err
		}
		s.rb.AddData(&block, next, frames)
		s.detect(&block, next)
		next += ringbuffer.SampleNumber(frames)

		if pace != nil {
			select {
			case <-ctx.Done():
				return next, ctx.Err()
			case <-pace:
			}
		}
	}
}

type crossing struct {
	id datastore.SourceID
	at ringbuffer.SampleNumber
}

// detect runs every trigger over block and registers the crossings in
// sample order, which is the order the collector serves them in.
func (s *session) detect(block *dsp.Block, first ringbuffer.SampleNumber) {
	var hits []crossing
	for _, src := range s.sources {
		for _, at := range src.trigger.Process(block, first) {
			hits = append(hits, crossing{id: src.id, at: at})
		}
	}
	if len(hits) == 0 {
		return
	}
	slices.SortStableFunc(hits, func(a, b crossing) int { return cmp.Compare(a.at, b.at) })

	cfg := s.config()
	for _, h := range hits {
		s.coll.Register(collector.Request{
			Source:        h.id,
			TriggerSample: h.at,
			PreSamples:    cfg.PreSamples,
			PostSamples:   cfg.PostSamples,
		})
		s.windows = append(s.windows, captureWindow{
			start: h.at - ringbuffer.SampleNumber(cfg.PreSamples),
			end:   h.at + ringbuffer.SampleNumber(cfg.PostSamples),
		})
	}
}

// waitForRoom blocks until writing up to end would not overwrite the window
// of the oldest unresolved request. The collector serves requests in
// registration order, so that request is windows[resolved]. Config
// validation keeps chunk plus window within the ring, which guarantees the
// blocking request already has all of its data.
func (s *session) waitForRoom(ctx context.Context, end ringbuffer.SampleNumber) error {
	oldestKept := end - ringbuffer.SampleNumber(s.rb.Capacity())
	for {
		i := int(s.resolved.Load())
		if i >= len(s.windows) || s.windows[i].start >= oldestKept {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.resolvedCh:
		}
	}
}

func (s *session) onResolved(collector.Request, collector.Outcome) {
	s.resolved.Add(1)
	select {
	case s.resolvedCh <- struct{}{}:
	default:
	}
}

// drain waits until the collector has resolved want requests.
func (s *session) drain(ctx context.Context, want uint64) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		st := s.coll.Stats()
		if st.Captured+st.TooOld+st.Abandoned >= want {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *session) onUpdate() {
	if !s.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	_ = s.store.WithLock(func(tx *datastore.Tx) error {
		for _, src := range s.sources {
			if avg, ok := tx.AverageBuffer(src.id); ok {
				s.log.Debug("average updated", "source", src.name, "trials", avg.NumTrials())
			}
		}
		return nil
	})
}

// reconfigure applies a reloaded config. Trigger definitions and the ring
// buffer size are fixed for the session; trial count, window and display
// mode take effect immediately.
func (s *session) reconfigure(cfg *config.Config) {
	old := s.config()
	if cfg.WindowSamples()+old.ChunkSize > s.rb.Capacity() {
		s.log.Warn("ignoring reloaded config: window and chunk exceed ring buffer",
			"window", cfg.WindowSamples(), "chunk_size", old.ChunkSize, "capacity", s.rb.Capacity())
		return
	}

	s.store.SetMaxTrialsToStore(cfg.MaxTrials)
	if cfg.PreSamples != old.PreSamples || cfg.PostSamples != old.PostSamples {
		s.store.ResizeAllAverageBuffers(s.channels, cfg.WindowSamples(), true)
	}

	next := *old
	next.MaxTrials = cfg.MaxTrials
	next.PreSamples = cfg.PreSamples
	next.PostSamples = cfg.PostSamples
	next.DisplayMode = cfg.DisplayMode
	next.OutputBitDepth = cfg.OutputBitDepth
	s.mu.Lock()
	s.cfg = &next
	s.mu.Unlock()

	s.log.Info("config reloaded",
		"max_trials", next.MaxTrials,
		"pre_samples", next.PreSamples,
		"post_samples", next.PostSamples,
		"display_mode", next.DisplayMode.String())
}
