// Package testutils provides shared helpers for package tests
package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// Context returns a context cancelled after timeout or at test cleanup
func Context(t testing.TB, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// Logger returns a debug-level zap logger that records entries in memory.
// Unlike a t.Log backed logger it stays safe for goroutines outliving the test.
func Logger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

// Eventually fails the test unless condition holds within timeout
func Eventually(t testing.TB, condition func() bool, timeout time.Duration, msgAndArgs ...interface{}) {
	t.Helper()
	require.Eventually(t, condition, timeout, 5*time.Millisecond, msgAndArgs...)
}

// Drain reads from ch until it has been quiet for quiet, or until timeout
// elapses. It returns the number of signals received.
func Drain(ch <-chan struct{}, quiet, timeout time.Duration) int {
	deadline := time.After(timeout)
	n := 0
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return n
			}
			n++
		case <-time.After(quiet):
			return n
		case <-deadline:
			return n
		}
	}
}
