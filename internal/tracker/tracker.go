// Package tracker polls the status of a single payment until it settles.
//
// Tracking is opt-in: a Tracker does nothing until Enable is called. While
// enabled it queries its source immediately and then once per interval.
// Observing completed or failed disables tracking. Failed queries are
// absorbed and polling continues at the next tick without backoff.
//
// Every query runs under its own context. Once a response is applied, older
// queries still in flight are cancelled and their results dropped, so a slow
// response can never overwrite a newer one.
package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"eventpay/internal/models"
	"eventpay/internal/monitoring"
)

// DefaultInterval is the polling period.
const DefaultInterval = 3 * time.Second

// StatusSource resolves a payment id or pidx to its current projection.
type StatusSource interface {
	Status(ctx context.Context, ref string) (*models.PaymentView, error)
}

// Ticker is the subset of time.Ticker the tracker needs.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type realTicker struct{ *time.Ticker }

func (t realTicker) Chan() <-chan time.Time { return t.C }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithInterval overrides the polling period.
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithOnStatusChange registers a callback invoked once per observed status
// transition, in order. The callback must not call Close.
func WithOnStatusChange(fn func(models.Status)) Option {
	return func(t *Tracker) { t.onChange = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithSourceName labels the tracker's queries in metrics.
func WithSourceName(name string) Option {
	return func(t *Tracker) { t.sourceName = name }
}

// WithTicker replaces the ticker factory.
func WithTicker(f func(time.Duration) Ticker) Option {
	return func(t *Tracker) { t.newTicker = f }
}

// Tracker follows one payment.
type Tracker struct {
	source     StatusSource
	ref        string
	interval   time.Duration
	onChange   func(models.Status)
	logger     *zap.Logger
	sourceName string
	newTicker  func(time.Duration) Ticker

	mu       sync.Mutex
	enabled  bool
	closed   bool
	latest   *models.PaymentView
	status   models.Status
	seq      uint64
	applied  uint64
	inflight map[uint64]context.CancelFunc
	stopLoop chan struct{}
	settled  chan struct{}

	pending     []models.Status
	dispatching bool

	wg sync.WaitGroup
}

// New creates a disabled tracker for ref.
func New(source StatusSource, ref string, opts ...Option) *Tracker {
	t := &Tracker{
		source:     source,
		ref:        ref,
		interval:   DefaultInterval,
		logger:     zap.NewNop(),
		sourceName: "tracker",
		newTicker:  newRealTicker,
		inflight:   make(map[uint64]context.CancelFunc),
		settled:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Ref returns the tracked payment identifier.
func (t *Tracker) Ref() string {
	return t.ref
}

// Enable starts tracking: one query now and one per interval after that.
// It is a no-op if tracking is already on, the tracker is closed, or the
// payment has settled.
func (t *Tracker) Enable() {
	t.mu.Lock()
	if t.enabled || t.closed || t.status.IsTerminal() {
		t.mu.Unlock()
		return
	}
	t.enabled = true
	stop := make(chan struct{})
	t.stopLoop = stop
	ticker := t.newTicker(t.interval)
	t.wg.Add(1)
	t.mu.Unlock()

	monitoring.TrackerStarted()
	t.logger.Debug("Tracking enabled", zap.String("ref", t.ref), zap.Duration("interval", t.interval))

	go t.loop(ticker, stop)
	t.query()
}

// Disable stops the timer and abandons in-flight queries.
func (t *Tracker) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disableLocked()
}

// Refresh issues an immediate query outside the timer. Ignored while disabled.
func (t *Tracker) Refresh() {
	t.query()
}

// Close disables tracking for good and waits for background work to finish.
// It is safe to call more than once.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.disableLocked()
	t.mu.Unlock()
	t.wg.Wait()
}

// Enabled reports whether tracking is on.
func (t *Tracker) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Latest returns the most recently applied projection.
func (t *Tracker) Latest() (*models.PaymentView, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest == nil {
		return nil, false
	}
	v := *t.latest
	return &v, true
}

// Status returns the last seen status, or "" before the first response.
func (t *Tracker) Status() models.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Settled is closed once a terminal status has been observed.
func (t *Tracker) Settled() <-chan struct{} {
	return t.settled
}

func (t *Tracker) disableLocked() {
	if !t.enabled {
		return
	}
	t.enabled = false
	close(t.stopLoop)
	for seq, cancel := range t.inflight {
		cancel()
		delete(t.inflight, seq)
	}
	monitoring.TrackerStopped()
	t.logger.Debug("Tracking disabled", zap.String("ref", t.ref))
}

func (t *Tracker) loop(ticker Ticker, stop <-chan struct{}) {
	defer t.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			t.query()
		}
	}
}

func (t *Tracker) query() {
	t.mu.Lock()
	if !t.enabled {
		t.mu.Unlock()
		return
	}
	t.seq++
	seq := t.seq
	ctx, cancel := context.WithCancel(context.Background())
	t.inflight[seq] = cancel
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		defer cancel()

		view, err := t.source.Status(ctx, t.ref)
		t.handle(seq, view, err)
	}()
}

func (t *Tracker) handle(seq uint64, view *models.PaymentView, err error) {
	t.mu.Lock()
	if _, ok := t.inflight[seq]; !ok {
		// Cancelled by Disable or superseded by a newer response.
		t.mu.Unlock()
		return
	}
	delete(t.inflight, seq)

	monitoring.RecordStatusQuery(t.sourceName, err)
	if err != nil || view == nil {
		t.mu.Unlock()
		t.logger.Debug("Status query failed", zap.String("ref", t.ref), zap.Uint64("seq", seq), zap.Error(err))
		return
	}
	if !t.enabled || seq < t.applied {
		t.mu.Unlock()
		return
	}

	status, _ := models.ParseStatus(string(view.Status))
	if t.status.IsTerminal() && status != t.status {
		t.mu.Unlock()
		t.logger.Warn("Ignoring status after terminal state",
			zap.String("ref", t.ref), zap.String("terminal", string(t.status)), zap.String("reported", string(status)))
		return
	}

	t.applied = seq
	for older, cancel := range t.inflight {
		if older < seq {
			cancel()
			delete(t.inflight, older)
		}
	}

	v := *view
	v.Status = status
	t.latest = &v

	if status == t.status {
		t.mu.Unlock()
		return
	}

	t.status = status
	if status.IsTerminal() {
		t.disableLocked()
		close(t.settled)
	}
	if t.onChange == nil {
		t.mu.Unlock()
		return
	}

	t.pending = append(t.pending, status)
	if t.dispatching {
		t.mu.Unlock()
		return
	}
	t.dispatching = true
	for len(t.pending) > 0 {
		batch := t.pending
		t.pending = nil
		t.mu.Unlock()
		for _, s := range batch {
			t.onChange(s)
		}
		t.mu.Lock()
	}
	t.dispatching = false
	t.mu.Unlock()
}
