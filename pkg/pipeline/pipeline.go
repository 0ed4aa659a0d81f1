// Package pipeline provides the controller that owns the queue, the producer
// and consumer registries and the statistics of one pipeline run.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jzx17/asyncflow/pkg/queue"
	"github.com/jzx17/asyncflow/pkg/stats"
	"github.com/jzx17/asyncflow/pkg/types"
	"github.com/jzx17/asyncflow/pkg/worker"
)

// State defines the state of the pipeline
type State int32

const (
	// StateIdle pipeline is created and never started
	StateIdle State = iota
	// StateRunning pipeline is running
	StateRunning
	// StateStopped pipeline is stopped and may be started again
	StateStopped
)

// String returns string representation of state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// restartTimeout bounds how long Start waits for workers of the previous run
const restartTimeout = 5 * time.Second

// Status is a view of the pipeline for presentation layers. State, run id,
// queue length and the live worker lists are read while control calls are
// held off; Stats, Producers and Consumers come from one aggregator read.
// Workers keep running meanwhile, so QueueLen and Stats may differ by the
// items moved between the two reads.
type Status struct {
	State     State
	RunID     string
	Stats     stats.Snapshot
	QueueLen  int
	Producers []stats.WorkerCount
	Consumers []stats.WorkerCount
	// LiveProducers and LiveConsumers list registered worker names in insertion order
	LiveProducers []string
	LiveConsumers []string
	// ProducerWorkers and ConsumerWorkers hold per-worker state for the live lists
	ProducerWorkers []worker.WorkerStats
	ConsumerWorkers []worker.WorkerStats
}

// Controller orchestrates one producer/consumer pipeline.
// All methods are safe for concurrent use.
type Controller struct {
	config   *Config
	logger   *zap.Logger
	metrics  *stats.Metrics
	notifier *stats.Notifier
	stats    *stats.Aggregator

	mu        sync.Mutex
	state     State
	runID     string
	runCtx    context.Context
	cancelRun context.CancelFunc
	queue     *queue.Queue
	producers *worker.Registry
	consumers *worker.Registry
}

// New creates a Controller in the Idle state
func New(config *Config, opts ...Option) (*Controller, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config

	c := &Controller{
		config:   &cfg,
		logger:   zap.NewNop(),
		notifier: stats.NewNotifier(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.config.Worker.Clock == nil {
		c.config.Worker.Clock = types.NewRealClock()
	}
	if err := c.config.Validate(); err != nil {
		return nil, err
	}

	aggOpts := []stats.Option{stats.WithNotifier(c.notifier)}
	if c.metrics != nil {
		aggOpts = append(aggOpts, stats.WithMetrics(c.metrics))
	}
	c.stats = stats.NewAggregator(aggOpts...)

	return c, nil
}

// Start resets all state and launches the initial workers. From Stopped it
// first cancels whatever is left of the previous run and waits for it.
func (c *Controller) Start(producers, consumers int) error {
	if producers < 0 || consumers < 0 {
		return fmt.Errorf("%w: %d producers, %d consumers",
			types.ErrInvalidWorkerCount, producers, consumers)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRunning {
		return types.ErrAlreadyRunning
	}
	if c.state == StateStopped {
		c.teardownLocked()
	}

	q := queue.New()
	runID := uuid.NewString()
	logger := c.logger.With(zap.String("run_id", runID))

	producerReg, err := c.newRegistry(types.RoleProducer, q, logger)
	if err != nil {
		return err
	}
	consumerReg, err := c.newRegistry(types.RoleConsumer, q, logger)
	if err != nil {
		return err
	}

	c.stats.Reset()
	if c.metrics != nil {
		c.metrics.SetQueueSource(q.Len)
	}
	c.runCtx, c.cancelRun = context.WithCancel(context.Background())
	c.queue = q
	c.producers = producerReg
	c.consumers = consumerReg
	c.runID = runID
	c.state = StateRunning

	for i := 0; i < producers; i++ {
		c.producers.Add(c.runCtx)
	}
	for i := 0; i < consumers; i++ {
		c.consumers.Add(c.runCtx)
	}

	logger.Info("pipeline started", zap.Int("producers", producers), zap.Int("consumers", consumers))
	return nil
}

// StartDefault starts with the configured initial worker counts
func (c *Controller) StartDefault() error {
	return c.Start(c.config.InitialProducers, c.config.InitialConsumers)
}

// Stop closes the queue, cancels every producer and lets consumers drain the
// remaining items, bounded by DrainTimeout when it is positive. It does not
// wait for workers to return; use AwaitStopped for that. Stopping a pipeline
// that is not running is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopped

	// already-closed queues report nil, so a racing close is harmless
	_ = c.queue.Close()
	stoppedProducers := c.producers.StopAll()
	drainingConsumers := c.consumers.ReleaseAll(c.config.DrainTimeout)
	logger := c.logger.With(zap.String("run_id", c.runID))
	c.mu.Unlock()

	logger.Info("pipeline stopped",
		zap.Int("producers", len(stoppedProducers)),
		zap.Int("consumers", len(drainingConsumers)),
		zap.Duration("drain_timeout", c.config.DrainTimeout))
	c.notifier.Notify()
	return nil
}

// AddProducer starts one more producer and returns its name
func (c *Controller) AddProducer() (string, error) {
	return c.add(types.RoleProducer)
}

// AddConsumer starts one more consumer and returns its name
func (c *Controller) AddConsumer() (string, error) {
	return c.add(types.RoleConsumer)
}

// RemoveProducer cancels the most recently added producer.
// It returns false when there is nothing to remove.
func (c *Controller) RemoveProducer() (string, bool) {
	return c.remove(types.RoleProducer)
}

// RemoveConsumer cancels the most recently added consumer.
// It returns false when there is nothing to remove.
func (c *Controller) RemoveConsumer() (string, bool) {
	return c.remove(types.RoleConsumer)
}

// AwaitStopped blocks until every worker of the current run has returned
func (c *Controller) AwaitStopped(ctx context.Context) error {
	c.mu.Lock()
	regs := []*worker.Registry{c.producers, c.consumers}
	c.mu.Unlock()

	for _, reg := range regs {
		if reg == nil {
			continue
		}
		if err := reg.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns a consistent read of the aggregate counters
func (c *Controller) Snapshot() stats.Snapshot {
	return c.stats.Snapshot()
}

// Subscribe returns a channel signalled after every statistics or worker-set
// change. The signal carries no payload; re-read Snapshot or Status.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	return c.notifier.Subscribe()
}

// Producers returns the live producer names in insertion order
func (c *Controller) Producers() []string {
	return c.names(types.RoleProducer)
}

// Consumers returns the live consumer names in insertion order
func (c *Controller) Consumers() []string {
	return c.names(types.RoleConsumer)
}

// WorkerCounts returns historical per-worker counts for role
func (c *Controller) WorkerCounts(role types.Role) []stats.WorkerCount {
	return c.stats.WorkerCounts(role)
}

// QueueLen returns the number of buffered items
func (c *Controller) QueueLen() int {
	c.mu.Lock()
	q := c.queue
	c.mu.Unlock()

	if q == nil {
		return 0
	}
	return q.Len()
}

// State returns the pipeline state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RunID returns the id of the current or last run, empty before the first Start
func (c *Controller) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// Status gathers everything a presentation layer needs in one call
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State: c.state,
		RunID: c.runID,
	}
	if c.queue != nil {
		st.QueueLen = c.queue.Len()
	}
	if c.producers != nil {
		st.ProducerWorkers = c.producers.Stats()
		st.LiveProducers = workerNames(st.ProducerWorkers)
	}
	if c.consumers != nil {
		st.ConsumerWorkers = c.consumers.Stats()
		st.LiveConsumers = workerNames(st.ConsumerWorkers)
	}

	report := c.stats.Report()
	st.Stats = report.Snapshot
	st.Producers = report.Producers
	st.Consumers = report.Consumers
	return st
}

func workerNames(ws []worker.WorkerStats) []string {
	names := make([]string, len(ws))
	for i, w := range ws {
		names[i] = w.Name
	}
	return names
}

// Config returns a copy of the configuration
func (c *Controller) Config() Config {
	return *c.config
}

func (c *Controller) add(role types.Role) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return "", types.ErrNotRunning
	}
	return c.registry(role).Add(c.runCtx).Name, nil
}

func (c *Controller) remove(role types.Role) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return "", false
	}
	h, ok := c.registry(role).StopMostRecent()
	return h.Name, ok
}

func (c *Controller) names(role types.Role) []string {
	c.mu.Lock()
	reg := c.registry(role)
	c.mu.Unlock()

	if reg == nil {
		return nil
	}
	return reg.Names()
}

func (c *Controller) registry(role types.Role) *worker.Registry {
	if role == types.RoleProducer {
		return c.producers
	}
	return c.consumers
}

func (c *Controller) newRegistry(role types.Role, q types.Queue, logger *zap.Logger) (*worker.Registry, error) {
	var reg *worker.Registry
	onChange := func() {
		if c.metrics != nil && reg != nil {
			c.metrics.SetWorkers(role, reg.Len())
		}
		c.notifier.Notify()
	}

	reg, err := worker.NewRegistry(role, q, c.stats, &c.config.Worker,
		worker.WithLogger(logger), worker.WithOnChange(onChange))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s registry: %w", role, err)
	}
	return reg, nil
}

// teardownLocked cancels every worker of the previous run, including
// consumers still draining, and waits for them to return.
func (c *Controller) teardownLocked() {
	if c.cancelRun != nil {
		c.cancelRun()
	}

	ctx, cancel := context.WithTimeout(context.Background(), restartTimeout)
	defer cancel()

	for _, reg := range []*worker.Registry{c.producers, c.consumers} {
		if reg == nil {
			continue
		}
		if err := reg.Wait(ctx); err != nil {
			c.logger.Warn("previous run did not stop in time",
				zap.String("run_id", c.runID), zap.Stringer("role", reg.Role()), zap.Error(err))
		}
	}
}
