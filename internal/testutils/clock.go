package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"

	"github.com/jzx17/asyncflow/pkg/types"
)

// NewMockClock creates a quartz mock clock bound to t
func NewMockClock(t testing.TB) *quartz.Mock {
	return quartz.NewMock(t)
}

// ClockWrapper adapts a quartz mock to types.Clock
type ClockWrapper struct {
	*quartz.Mock
}

// NewClockWrapper wraps mock
func NewClockWrapper(mock *quartz.Mock) *ClockWrapper {
	return &ClockWrapper{Mock: mock}
}

func (c *ClockWrapper) Now() time.Time                  { return c.Mock.Now() }
func (c *ClockWrapper) Since(t time.Time) time.Duration { return c.Mock.Since(t) }

func (c *ClockWrapper) NewTimer(d time.Duration) types.Timer {
	return mockTimer{t: c.Mock.NewTimer(d)}
}

func (c *ClockWrapper) NewTicker(d time.Duration) types.Ticker {
	return mockTicker{t: c.Mock.NewTicker(d)}
}

// Advance moves the mock clock forward and waits until fired timers and tickers are delivered
func (c *ClockWrapper) Advance(ctx context.Context, d time.Duration) {
	c.Mock.Advance(d).MustWait(ctx)
}

type mockTimer struct{ t *quartz.Timer }

func (m mockTimer) C() <-chan time.Time { return m.t.C }
func (m mockTimer) Stop() bool          { return m.t.Stop() }

type mockTicker struct{ t *quartz.Ticker }

func (m mockTicker) C() <-chan time.Time { return m.t.C }
func (m mockTicker) Stop()               { m.t.Stop() }

var _ types.Clock = (*ClockWrapper)(nil)
