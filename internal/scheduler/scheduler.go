// Package scheduler runs a periodic refresh job with at most one live timer.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Func is the job invoked on every tick. The context is cancelled when the
// owning handle is cancelled.
type Func func(ctx context.Context)

// Scheduler owns a single periodic timer. Starting a new run always cancels
// the previous one first.
type Scheduler struct {
	clock  clockwork.Clock
	logger *slog.Logger

	mu      sync.Mutex
	current *Handle
}

// New creates a Scheduler on the given clock. A nil clock uses real time.
func New(clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{clock: clock, logger: logger}
}

// Handle controls one periodic run.
type Handle struct {
	interval  time.Duration
	ticker    clockwork.Ticker
	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}
}

// Cancel stops the run. It does not block: an invocation already in progress
// sees a cancelled context and no further invocation starts.
func (h *Handle) Cancel() {
	if h.cancelled.Swap(true) {
		return
	}
	h.ticker.Stop()
	h.cancel()
}

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool {
	return h.cancelled.Load()
}

// Wait blocks until the run loop has exited.
func (h *Handle) Wait() {
	<-h.done
}

// Start invokes fn immediately and then every interval until the returned
// handle or ctx is cancelled. Any previous run is cancelled first.
func (s *Scheduler) Start(ctx context.Context, fn Func, interval time.Duration) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx, fn, interval)
}

func (s *Scheduler) startLocked(ctx context.Context, fn Func, interval time.Duration) *Handle {
	if s.current != nil {
		s.current.Cancel()
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		interval: interval,
		ticker:   s.clock.NewTicker(interval),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.current = h
	s.logger.Info("refresh scheduler started", "interval", interval)

	go s.run(runCtx, h, fn)
	return h
}

// SetEnabled starts a run when enabled and none is live, and cancels the live
// run when disabled. Enabling an already running scheduler is a no-op and
// returns the existing handle. Disabling returns nil.
func (s *Scheduler) SetEnabled(ctx context.Context, enabled bool, fn Func, interval time.Duration) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !enabled {
		s.stopLocked()
		return nil
	}
	if s.current != nil && !s.current.Cancelled() {
		return s.current
	}
	return s.startLocked(ctx, fn, interval)
}

// Stop cancels the live run, if any.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.current == nil {
		return
	}
	s.current.Cancel()
	s.current = nil
	s.logger.Info("refresh scheduler stopped")
}

// Running reports whether a run is live.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && !s.current.Cancelled()
}

func (s *Scheduler) run(ctx context.Context, h *Handle, fn Func) {
	defer close(h.done)
	defer h.ticker.Stop()

	if h.Cancelled() || ctx.Err() != nil {
		return
	}
	fn(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.ticker.Chan():
			// A tick can be queued just before Cancel; drop it.
			if h.Cancelled() || ctx.Err() != nil {
				return
			}
			s.logger.Debug("refresh tick", "interval", h.interval)
			fn(ctx)
		}
	}
}
