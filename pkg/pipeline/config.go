package pipeline

import (
	"fmt"
	"time"

	"github.com/jzx17/asyncflow/pkg/types"
	"github.com/jzx17/asyncflow/pkg/worker"
)

// Config contains pipeline configuration
type Config struct {
	// Worker holds the timing and failure parameters of every worker
	Worker worker.Config

	// InitialProducers is the producer count used by StartDefault
	InitialProducers int

	// InitialConsumers is the consumer count used by StartDefault
	InitialConsumers int

	// DrainTimeout bounds how long consumers may keep draining the closed queue
	// after Stop before they are cancelled. Zero means no limit: consumers run
	// until the queue is empty, so every produced item is consumed.
	DrainTimeout time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Worker:           *worker.DefaultConfig(),
		InitialProducers: 2,
		InitialConsumers: 3,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.InitialProducers < 0 || c.InitialConsumers < 0 {
		return fmt.Errorf("%w: initial workers %d/%d",
			types.ErrInvalidWorkerCount, c.InitialProducers, c.InitialConsumers)
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("%w: drain timeout %v", types.ErrInvalidConfig, c.DrainTimeout)
	}
	return c.Worker.Validate()
}
