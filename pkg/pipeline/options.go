package pipeline

import (
	"go.uber.org/zap"

	"github.com/jzx17/asyncflow/pkg/stats"
	"github.com/jzx17/asyncflow/pkg/types"
)

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the clock used for item timestamps, pauses and drain timers
func WithClock(clock types.Clock) Option {
	return func(c *Controller) {
		if clock != nil {
			c.config.Worker.Clock = clock
		}
	}
}

// WithMetrics mirrors statistics into Prometheus metrics
func WithMetrics(metrics *stats.Metrics) Option {
	return func(c *Controller) {
		c.metrics = metrics
	}
}

// WithSeed makes worker randomness reproducible
func WithSeed(seed int64) Option {
	return func(c *Controller) {
		c.config.Worker.Seed = seed
	}
}
