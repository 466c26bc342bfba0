package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventpay/internal/models"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type fakeTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

func (f *fakeTicker) Chan() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()                  { f.once.Do(func() { close(f.stopped) }) }

// fire delivers one tick and waits until the loop has consumed it.
func (f *fakeTicker) fire(t *testing.T) {
	t.Helper()
	select {
	case f.ch <- time.Now():
	case <-time.After(waitFor):
		t.Fatal("tick not consumed")
	}
}

type result struct {
	status models.Status
	err    error
	// block, when set, holds the response until closed.
	block chan struct{}
}

type fakeSource struct {
	mu      sync.Mutex
	script  []result
	calls   int
	lastErr error
}

func (s *fakeSource) Status(ctx context.Context, ref string) (*models.PaymentView, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	var r result
	if i < len(s.script) {
		r = s.script[i]
	} else if len(s.script) > 0 {
		r = s.script[len(s.script)-1]
		r.block = nil
	}
	s.mu.Unlock()

	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			s.mu.Lock()
			s.lastErr = ctx.Err()
			s.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &models.PaymentView{ID: 1, Pidx: ref, Status: r.status, Amount: 250000}, nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recorder struct {
	mu   sync.Mutex
	seen []models.Status
}

func (r *recorder) record(s models.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
}

func (r *recorder) got() []models.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Status(nil), r.seen...)
}

func newTestTracker(src StatusSource, rec *recorder) (*Tracker, *fakeTicker) {
	ft := newFakeTicker()
	opts := []Option{WithTicker(func(time.Duration) Ticker { return ft })}
	if rec != nil {
		opts = append(opts, WithOnStatusChange(rec.record))
	}
	return New(src, "pidx-1", opts...), ft
}

func waitStatus(t *testing.T, tr *Tracker, want models.Status) {
	t.Helper()
	require.Eventually(t, func() bool { return tr.Status() == want }, waitFor, tick)
}

func waitCalls(t *testing.T, src *fakeSource, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return src.callCount() >= n }, waitFor, tick)
}

func TestTracker_OptIn(t *testing.T) {
	src := &fakeSource{script: []result{{status: models.StatusPending}}}
	tr, _ := newTestTracker(src, nil)
	defer tr.Close()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, src.callCount())
	assert.False(t, tr.Enabled())

	tr.Refresh()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, src.callCount(), "refresh is ignored while disabled")
}

func TestTracker_ImmediateQueryThenPerTick(t *testing.T) {
	src := &fakeSource{script: []result{{status: models.StatusInitiated}}}
	tr, ft := newTestTracker(src, nil)
	defer tr.Close()

	tr.Enable()
	waitCalls(t, src, 1)
	waitStatus(t, tr, models.StatusInitiated)

	ft.fire(t)
	waitCalls(t, src, 2)
	ft.fire(t)
	waitCalls(t, src, 3)
	assert.True(t, tr.Enabled())
}

func TestTracker_CallbackOncePerTransition(t *testing.T) {
	src := &fakeSource{script: []result{
		{status: models.StatusInitiated},
		{status: models.StatusInitiated},
		{status: models.StatusPending},
		{status: models.StatusPending},
		{status: models.StatusCompleted},
	}}
	rec := &recorder{}
	tr, ft := newTestTracker(src, rec)
	defer tr.Close()

	tr.Enable()
	waitStatus(t, tr, models.StatusInitiated)
	ft.fire(t)
	ft.fire(t)
	waitStatus(t, tr, models.StatusPending)
	ft.fire(t)
	ft.fire(t)
	waitStatus(t, tr, models.StatusCompleted)

	require.Eventually(t, func() bool { return len(rec.got()) == 3 }, waitFor, tick)
	assert.Equal(t, []models.Status{models.StatusInitiated, models.StatusPending, models.StatusCompleted}, rec.got())
}

func TestTracker_TerminalStopsPolling(t *testing.T) {
	for _, terminal := range []models.Status{models.StatusCompleted, models.StatusFailed} {
		t.Run(string(terminal), func(t *testing.T) {
			src := &fakeSource{script: []result{{status: models.StatusPending}, {status: terminal}}}
			tr, ft := newTestTracker(src, nil)
			defer tr.Close()

			tr.Enable()
			waitStatus(t, tr, models.StatusPending)
			ft.fire(t)
			waitStatus(t, tr, terminal)

			assert.False(t, tr.Enabled())
			select {
			case <-tr.Settled():
			case <-time.After(waitFor):
				t.Fatal("settled channel not closed")
			}
			select {
			case <-ft.stopped:
			case <-time.After(waitFor):
				t.Fatal("ticker not stopped")
			}

			tr.Refresh()
			time.Sleep(20 * time.Millisecond)
			assert.Equal(t, 2, src.callCount())
		})
	}
}

func TestTracker_FailedQueryKeepsLastStatus(t *testing.T) {
	src := &fakeSource{script: []result{
		{status: models.StatusPending},
		{err: errors.New("503 service unavailable")},
		{status: models.StatusCompleted},
	}}
	rec := &recorder{}
	tr, ft := newTestTracker(src, rec)
	defer tr.Close()

	tr.Enable()
	waitStatus(t, tr, models.StatusPending)

	ft.fire(t)
	waitCalls(t, src, 2)
	time.Sleep(20 * time.Millisecond)

	latest, ok := tr.Latest()
	require.True(t, ok)
	assert.Equal(t, models.StatusPending, latest.Status)
	assert.True(t, tr.Enabled())

	ft.fire(t)
	waitStatus(t, tr, models.StatusCompleted)
	assert.Equal(t, []models.Status{models.StatusPending, models.StatusCompleted}, rec.got())
}

func TestTracker_SupersededResponseDropped(t *testing.T) {
	release := make(chan struct{})
	src := &fakeSource{script: []result{
		{status: models.StatusInitiated, block: release},
		{status: models.StatusPending},
	}}
	rec := &recorder{}
	tr, _ := newTestTracker(src, rec)
	defer tr.Close()

	tr.Enable()
	waitCalls(t, src, 1)

	tr.Refresh()
	waitStatus(t, tr, models.StatusPending)

	// The first query was cancelled when the newer response landed.
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return errors.Is(src.lastErr, context.Canceled)
	}, waitFor, tick)
	close(release)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, models.StatusPending, tr.Status())
	assert.Equal(t, []models.Status{models.StatusPending}, rec.got())
}

func TestTracker_DisableStopsQueries(t *testing.T) {
	src := &fakeSource{script: []result{{status: models.StatusPending}}}
	tr, ft := newTestTracker(src, nil)
	defer tr.Close()

	tr.Enable()
	waitCalls(t, src, 1)
	tr.Disable()

	select {
	case <-ft.stopped:
	case <-time.After(waitFor):
		t.Fatal("ticker not stopped")
	}
	tr.Refresh()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, src.callCount())
	assert.False(t, tr.Enabled())
}

func TestTracker_TerminalIsSticky(t *testing.T) {
	src := &fakeSource{script: []result{{status: models.StatusCompleted}, {status: models.StatusPending}}}
	rec := &recorder{}
	tr, _ := newTestTracker(src, rec)
	defer tr.Close()

	tr.Enable()
	waitStatus(t, tr, models.StatusCompleted)
	require.Eventually(t, func() bool { return !tr.Enabled() }, waitFor, tick)

	tr.Enable()
	tr.Refresh()
	time.Sleep(20 * time.Millisecond)

	assert.False(t, tr.Enabled())
	assert.Equal(t, 1, src.callCount())
	assert.Equal(t, models.StatusCompleted, tr.Status())
	assert.Equal(t, []models.Status{models.StatusCompleted}, rec.got())
}

func TestTracker_ReenableAfterSettledDoesNotPoll(t *testing.T) {
	src := &fakeSource{script: []result{{status: models.StatusCompleted}}}
	tr := New(src, "pidx-1", WithInterval(10*time.Millisecond))
	defer tr.Close()

	tr.Enable()
	select {
	case <-tr.Settled():
	case <-time.After(waitFor):
		t.Fatal("settled channel not closed")
	}
	require.Eventually(t, func() bool { return !tr.Enabled() }, waitFor, tick)
	before := src.callCount()

	tr.Enable()
	time.Sleep(100 * time.Millisecond)

	assert.False(t, tr.Enabled())
	assert.Equal(t, before, src.callCount())
}

func TestTracker_UnknownStatusKeepsPolling(t *testing.T) {
	src := &fakeSource{script: []result{{status: "on_hold"}, {status: models.StatusFailed}}}
	rec := &recorder{}
	tr, ft := newTestTracker(src, rec)
	defer tr.Close()

	tr.Enable()
	waitStatus(t, tr, "on_hold")
	assert.True(t, tr.Enabled())

	ft.fire(t)
	waitStatus(t, tr, models.StatusFailed)
	assert.Equal(t, []models.Status{"on_hold", models.StatusFailed}, rec.got())
}

func TestTracker_CloseIsIdempotent(t *testing.T) {
	src := &fakeSource{script: []result{{status: models.StatusPending}}}
	tr, _ := newTestTracker(src, nil)

	tr.Enable()
	waitCalls(t, src, 1)
	tr.Close()
	tr.Close()

	tr.Enable()
	assert.False(t, tr.Enabled())
}

func TestTracker_RealTickerInterval(t *testing.T) {
	src := &fakeSource{script: []result{{status: models.StatusPending}}}
	tr := New(src, "pidx-1", WithInterval(10*time.Millisecond))
	defer tr.Close()

	tr.Enable()
	waitCalls(t, src, 3)
}
