// Package scheduler runs recurring callbacks on their own goroutine.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/audiolibrelab/autopause/internal/monitor"
)

// Scheduler creates tickers that serialize their callbacks.
type Scheduler struct {
	parent context.Context
}

// New returns a scheduler whose timers stop when ctx is cancelled.
func New(ctx context.Context) *Scheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Scheduler{parent: ctx}
}

// Schedule starts a timer that calls fn every period until stopped.
func (s *Scheduler) Schedule(fn monitor.TickFunc, period time.Duration) monitor.Timer {
	ctx, cancel := context.WithCancel(s.parent)
	t := &Timer{
		fn:     fn,
		ticker: time.NewTicker(period),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go t.loop(ctx)
	return t
}

// Timer is a recurring timer. Callbacks never overlap.
type Timer struct {
	fn     monitor.TickFunc
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	ticker *time.Ticker
	once   sync.Once
}

func (t *Timer) loop(ctx context.Context) {
	defer close(t.done)
	defer t.ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.ticker.C:
			// Stop may have raced with the tick.
			if ctx.Err() != nil {
				return
			}
			t.fn(ctx)
		}
	}
}

// Reset changes the period. Safe to call from inside the callback.
func (t *Timer) Reset(period time.Duration) {
	if period <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ticker.Reset(period)
}

// Stop cancels the timer and waits for a running callback to return.
// No callback starts after Stop returns. Must not be called from the callback.
func (t *Timer) Stop() {
	t.once.Do(t.cancel)
	<-t.done
}
