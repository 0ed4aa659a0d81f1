// Package types provides the clock abstraction shared by workers, registries and tests
package types

import (
	"context"
	"time"
)

// Clock is the time source for item timestamps, pauses, drain timers and push tickers
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	NewTimer(d time.Duration) Timer
	NewTicker(d time.Duration) Ticker
}

// Timer fires once on C after its duration
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Ticker fires on C every period until stopped
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is the wall clock
type RealClock struct{}

// NewRealClock returns the wall clock
func NewRealClock() Clock {
	return RealClock{}
}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

func (RealClock) NewTimer(d time.Duration) Timer {
	return wallTimer{t: time.NewTimer(d)}
}

func (RealClock) NewTicker(d time.Duration) Ticker {
	return wallTicker{t: time.NewTicker(d)}
}

type wallTimer struct{ t *time.Timer }

func (w wallTimer) C() <-chan time.Time { return w.t.C }
func (w wallTimer) Stop() bool          { return w.t.Stop() }

type wallTicker struct{ t *time.Ticker }

func (w wallTicker) C() <-chan time.Time { return w.t.C }
func (w wallTicker) Stop()               { w.t.Stop() }

// Sleep blocks for d on the given clock or until ctx is done.
// It returns ctx.Err() when the wait was interrupted and nil otherwise.
// A non-positive duration only checks ctx.
func Sleep(ctx context.Context, clock Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}
