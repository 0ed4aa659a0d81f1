package worker

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jzx17/asyncflow/pkg/types"
)

// WorkerState defines the state of a Worker
type WorkerState int32

const (
	// WorkerStateIdle represents idle worker state
	WorkerStateIdle WorkerState = iota
	// WorkerStateWorking represents working worker state
	WorkerStateWorking
	// WorkerStateStopped represents stopped worker state
	WorkerStateStopped
)

// String returns the string representation of WorkerState
func (ws WorkerState) String() string {
	switch ws {
	case WorkerStateIdle:
		return "idle"
	case WorkerStateWorking:
		return "working"
	case WorkerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config contains the timing and failure parameters shared by all workers
type Config struct {
	// ProduceDelayMin and ProduceDelayMax bound the pause after each produced item.
	// The pause is drawn uniformly from [min, max).
	ProduceDelayMin time.Duration
	ProduceDelayMax time.Duration

	// ConsumeDelayMin and ConsumeDelayMax bound the simulated processing time
	ConsumeDelayMin time.Duration
	ConsumeDelayMax time.Duration

	// ErrorProbability is the chance that a consumed item counts as a simulated error
	ErrorProbability float64

	// Seed makes worker randomness reproducible when non-zero
	Seed int64

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock
}

// DefaultConfig returns the default worker configuration
func DefaultConfig() *Config {
	return &Config{
		ProduceDelayMin:  200 * time.Millisecond,
		ProduceDelayMax:  600 * time.Millisecond,
		ConsumeDelayMin:  500 * time.Millisecond,
		ConsumeDelayMax:  800 * time.Millisecond,
		ErrorProbability: 0.1,
		Clock:            types.NewRealClock(),
	}
}

// Validate checks delay ranges and the error probability
func (c *Config) Validate() error {
	if c.ProduceDelayMin < 0 || c.ProduceDelayMax < c.ProduceDelayMin {
		return fmt.Errorf("%w: produce delay range [%v, %v)",
			types.ErrInvalidConfig, c.ProduceDelayMin, c.ProduceDelayMax)
	}
	if c.ConsumeDelayMin < 0 || c.ConsumeDelayMax < c.ConsumeDelayMin {
		return fmt.Errorf("%w: consume delay range [%v, %v)",
			types.ErrInvalidConfig, c.ConsumeDelayMin, c.ConsumeDelayMax)
	}
	if c.ErrorProbability < 0 || c.ErrorProbability > 1 {
		return fmt.Errorf("%w: error probability %v not in [0, 1]",
			types.ErrInvalidConfig, c.ErrorProbability)
	}
	return nil
}

// Worker runs one producer or consumer loop
type Worker struct {
	name  string
	role  types.Role
	state int32 // atomic state

	queue    types.Queue
	recorder types.Recorder
	config   *Config
	clock    types.Clock
	logger   *zap.Logger

	// rng is owned by the worker goroutine
	rng *rand.Rand

	// statistics
	processed    int64
	lastItemTime int64 // Unix nanosecond timestamp

	// producer item ids
	nextItemID int64

	done chan struct{}
}

// NewWorker creates a Worker. rng must not be shared with other workers.
func NewWorker(name string, role types.Role, queue types.Queue, recorder types.Recorder,
	config *Config, rng *rand.Rand, logger *zap.Logger) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	clock := config.Clock
	if clock == nil {
		clock = types.NewRealClock()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		name:     name,
		role:     role,
		state:    int32(WorkerStateIdle),
		queue:    queue,
		recorder: recorder,
		config:   config,
		clock:    clock,
		logger:   logger.With(zap.String("worker", name), zap.Stringer("role", role)),
		rng:      rng,
		done:     make(chan struct{}),
	}
}

// Name returns the generated worker name
func (w *Worker) Name() string {
	return w.name
}

// Role returns the worker role
func (w *Worker) Role() types.Role {
	return w.role
}

// State returns the current Worker state
func (w *Worker) State() WorkerState {
	return WorkerState(atomic.LoadInt32(&w.state))
}

// Done is closed when Run returns
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Run executes the worker loop until ctx is cancelled or the queue ends.
// Normal termination returns nil; anything else is a *types.PipelineError.
func (w *Worker) Run(ctx context.Context) (err error) {
	defer close(w.done)
	defer atomic.StoreInt32(&w.state, int32(WorkerStateStopped))

	w.logger.Debug("worker started")

	defer func() {
		if r := recover(); r != nil {
			var buf [4096]byte
			n := runtime.Stack(buf[:], false)
			err = types.NewPipelineError("run", w.name, fmt.Errorf("panic: %v", r))
			w.logger.Error("worker panicked", zap.Error(err), zap.ByteString("stack", buf[:n]))
		}
	}()

	switch w.role {
	case types.RoleProducer:
		err = w.produce(ctx)
	case types.RoleConsumer:
		err = w.consume(ctx)
	default:
		err = fmt.Errorf("unknown role %d", w.role)
	}

	if err == nil || types.IsTermination(err) {
		w.logger.Debug("worker stopped", zap.Int64("processed", atomic.LoadInt64(&w.processed)))
		return nil
	}

	err = types.NewPipelineError(w.role.String(), w.name, err)
	w.logger.Warn("worker stopped unexpectedly", zap.Error(err))
	return err
}

// produce generates items until cancelled or the queue is closed
func (w *Worker) produce(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		now := w.clock.Now()
		item := types.NewWorkItem(w.nextItemID, now)
		w.nextItemID++

		// recorded before consumers can take the item, so consumed never overtakes produced
		err := w.queue.EnqueueFunc(item, func() {
			w.recorder.RecordProduced(w.name)
		})
		if err != nil {
			return err
		}
		w.markProcessed(now)

		delay := w.jitter(w.config.ProduceDelayMin, w.config.ProduceDelayMax)
		if err := types.Sleep(ctx, w.clock, delay); err != nil {
			return err
		}
	}
}

// consume processes items until cancelled or the queue is drained.
// An item interrupted mid-processing is dropped without being recorded.
func (w *Worker) consume(ctx context.Context) error {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			return err
		}

		now := w.clock.Now()
		wait := item.WaitedFor(now)

		atomic.StoreInt32(&w.state, int32(WorkerStateWorking))
		delay := w.jitter(w.config.ConsumeDelayMin, w.config.ConsumeDelayMax)
		if err := types.Sleep(ctx, w.clock, delay); err != nil {
			return err
		}

		failed := w.rng.Float64() < w.config.ErrorProbability
		w.recorder.RecordConsumed(w.name, wait, failed)
		w.markProcessed(now)
		atomic.StoreInt32(&w.state, int32(WorkerStateIdle))
	}
}

// jitter draws a duration uniformly from [lo, hi)
func (w *Worker) jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(w.rng.Int63n(int64(hi-lo)))
}

func (w *Worker) markProcessed(at time.Time) {
	atomic.AddInt64(&w.processed, 1)
	atomic.StoreInt64(&w.lastItemTime, at.UnixNano())
}

// Stats gets Worker statistics
func (w *Worker) Stats() WorkerStats {
	ws := WorkerStats{
		Name:      w.name,
		Role:      w.role,
		State:     w.State(),
		Processed: atomic.LoadInt64(&w.processed),
	}
	if last := atomic.LoadInt64(&w.lastItemTime); last != 0 {
		ws.LastItemTime = time.Unix(0, last)
	}
	return ws
}

// WorkerStats defines Worker statistics
type WorkerStats struct {
	Name         string
	Role         types.Role
	State        WorkerState
	Processed    int64
	// LastItemTime is zero until the first item
	LastItemTime time.Time
}

// IsActive reports whether the worker is in the middle of an item
func (ws WorkerStats) IsActive() bool {
	return ws.State == WorkerStateWorking
}
