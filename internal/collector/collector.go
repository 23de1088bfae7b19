// Package collector resolves capture requests against the signal ring
// buffer on a background goroutine and files the captured trials into the
// datastore.
//
// Triggers are often detected before the samples after them have been
// written, so a request whose window is not yet available is retried at a
// fixed interval until it succeeds, its data ages out of the ring buffer, or
// the retry budget runs out. Requests are resolved strictly in arrival order.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"triggered-average/internal/datastore"
	"triggered-average/internal/dsp"
	"triggered-average/internal/invariant"
	"triggered-average/internal/logging"
	"triggered-average/internal/ringbuffer"
)

// Defaults for Options fields left at zero.
const (
	DefaultRetryInterval = 100 * time.Millisecond
	DefaultMaxRetries    = 500
	DefaultWakeInterval  = 100 * time.Millisecond
)

// ErrAlreadyStarted is returned by Start on a running collector.
var ErrAlreadyStarted = errors.New("collector already started")

// Request asks for the window [TriggerSample-PreSamples, TriggerSample+PostSamples)
// to be captured as one trial of Source.
type Request struct {
	Source        datastore.SourceID
	TriggerSample ringbuffer.SampleNumber
	PreSamples    int
	PostSamples   int
}

// Outcome is how a request was resolved.
type Outcome int

const (
	// Captured means the window was read and added to the datastore.
	Captured Outcome = iota
	// TooOld means the window had already been overwritten in the ring buffer.
	TooOld
	// Abandoned means the window never became available within the retry
	// budget, or the collector was stopped while waiting for it.
	Abandoned
)

func (o Outcome) String() string {
	switch o {
	case Captured:
		return "captured"
	case TooOld:
		return "too old"
	case Abandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Options configures a Collector.
type Options struct {
	// RetryInterval is the wait between attempts on a request whose data
	// has not been written yet.
	RetryInterval time.Duration

	// MaxRetries is the number of retries before a request is abandoned.
	MaxRetries int

	// WakeInterval bounds how long the idle worker sleeps without a new request.
	WakeInterval time.Duration

	// OnUpdate is called once after each batch of requests in which at
	// least one was captured. It runs on the worker goroutine.
	OnUpdate func()

	// OnResolved, if set, is called for every resolved request on the
	// worker goroutine.
	OnResolved func(Request, Outcome)

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.WakeInterval <= 0 {
		o.WakeInterval = DefaultWakeInterval
	}
	o.Logger = logging.OrDiscard(o.Logger)
	return o
}

// Stats counts resolved requests.
type Stats struct {
	Captured  uint64
	TooOld    uint64
	Abandoned uint64
	Retries   uint64
	// Pending counts requests queued or being resolved.
	Pending int
}

// Collector owns the capture request queue and the worker that drains it.
type Collector struct {
	rb    *ringbuffer.RingBuffer
	store *datastore.Store
	opts  Options
	log   *slog.Logger

	queueMu sync.Mutex
	queue   []Request
	wake    chan struct{}

	inFlight  atomic.Int64
	captured  atomic.Uint64
	tooOld    atomic.Uint64
	abandoned atomic.Uint64
	retries   atomic.Uint64

	startedMu sync.Mutex
	started   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	scratch dsp.Block // owned by the worker goroutine
}

// New creates a Collector reading from rb and writing into store.
func New(rb *ringbuffer.RingBuffer, store *datastore.Store, opts Options) *Collector {
	opts = opts.withDefaults()
	return &Collector{
		rb:    rb,
		store: store,
		opts:  opts,
		log:   opts.Logger,
		wake:  make(chan struct{}, 1),
	}
}

// Register queues a request and wakes the worker. It never blocks beyond the
// queue lock and may be called before Start.
func (c *Collector) Register(req Request) {
	invariant.Check(req.PreSamples >= 0 && req.PostSamples >= 0 && req.PreSamples+req.PostSamples > 0,
		"capture window pre=%d post=%d", req.PreSamples, req.PostSamples)
	invariant.Check(req.PreSamples+req.PostSamples <= c.rb.Capacity(),
		"capture window of %d samples exceeds ring buffer of %d", req.PreSamples+req.PostSamples, c.rb.Capacity())
	invariant.Check(req.Source != datastore.NoSource, "capture request without a source")

	c.queueMu.Lock()
	c.queue = append(c.queue, req)
	c.queueMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Stats returns a snapshot of the resolution counters.
func (c *Collector) Stats() Stats {
	c.queueMu.Lock()
	queued := len(c.queue)
	c.queueMu.Unlock()
	return Stats{
		Captured:  c.captured.Load(),
		TooOld:    c.tooOld.Load(),
		Abandoned: c.abandoned.Load(),
		Retries:   c.retries.Load(),
		Pending:   queued + int(c.inFlight.Load()),
	}
}

// Start launches the worker goroutine. It returns immediately.
func (c *Collector) Start(ctx context.Context) error {
	c.startedMu.Lock()
	defer c.startedMu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.started = true

	c.wg.Add(1)
	go c.run(ctx)

	c.log.Info("collector started",
		"retry_interval", c.opts.RetryInterval,
		"max_retries", c.opts.MaxRetries)
	return nil
}

// Stop stops the worker and waits for it to exit. A request being retried
// is abandoned; queued requests are left unresolved. Stop is idempotent.
func (c *Collector) Stop() error {
	c.startedMu.Lock()
	defer c.startedMu.Unlock()

	if !c.started {
		return nil
	}
	c.cancel()
	c.wg.Wait()
	c.started = false

	c.log.Info("collector stopped", "unresolved", c.Stats().Pending)
	return nil
}

func (c *Collector) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.WakeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		case <-ticker.C:
		}

		updated := false
		for ctx.Err() == nil {
			req, ok := c.pop()
			if !ok {
				break
			}
			outcome := c.resolve(ctx, req)
			c.inFlight.Add(-1)
			if outcome == Captured {
				updated = true
			}
			if c.opts.OnResolved != nil {
				c.opts.OnResolved(req, outcome)
			}
		}

		if updated && c.opts.OnUpdate != nil {
			c.opts.OnUpdate()
		}
	}
}

func (c *Collector) pop() (Request, bool) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	if len(c.queue) == 0 {
		return Request{}, false
	}
	req := c.queue[0]
	c.queue[0] = Request{}
	c.queue = c.queue[1:]
	c.inFlight.Add(1)
	return req, true
}

// resolve retries req until it reaches a terminal outcome.
func (c *Collector) resolve(ctx context.Context, req Request) Outcome {
	log := c.log.With("source", req.Source, "trigger_sample", req.TriggerSample)

	for retry := 0; ; retry++ {
		res := c.rb.ReadAroundSample(req.TriggerSample, req.PreSamples, req.PostSamples, &c.scratch)
		switch res {
		case ringbuffer.Success:
			c.store.AddTrial(req.Source, &c.scratch)
			c.captured.Add(1)
			log.Debug("capture request processed", "retries", retry)
			return Captured

		case ringbuffer.DataTooOld:
			c.tooOld.Add(1)
			log.Info("capture request discarded, data too old")
			return TooOld

		case ringbuffer.NotEnoughNewData:
			if retry >= c.opts.MaxRetries {
				c.abandoned.Add(1)
				log.Warn("capture request discarded, not enough data available", "retries", retry)
				return Abandoned
			}
			log.Debug("capture request waiting for data", "retry", retry, "wait", c.opts.RetryInterval)
			c.retries.Add(1)
			if !sleep(ctx, c.opts.RetryInterval) {
				c.abandoned.Add(1)
				log.Info("capture request abandoned on shutdown", "retries", retry+1)
				return Abandoned
			}

		default:
			invariant.Failf("ring buffer read returned %v for window pre=%d post=%d", res, req.PreSamples, req.PostSamples)
		}
	}
}

// sleep waits for d and reports whether it completed before ctx was cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
