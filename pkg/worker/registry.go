package worker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jzx17/asyncflow/pkg/types"
)

// Handle identifies one running worker owned by a Registry
type Handle struct {
	// Name is the generated role-prefixed name, e.g. "P3"
	Name string

	// Role is the registry role
	Role types.Role

	worker *Worker
	cancel context.CancelFunc
}

// Done is closed once the worker goroutine has returned
func (h Handle) Done() <-chan struct{} {
	return h.worker.Done()
}

// Stats returns the worker statistics
func (h Handle) Stats() WorkerStats {
	return h.worker.Stats()
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithLogger sets the logger passed to every worker
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithOnChange sets a callback invoked after the set of live workers changes
func WithOnChange(fn func()) RegistryOption {
	return func(r *Registry) {
		r.onChange = fn
	}
}

// Registry tracks the live workers of one role. Names are assigned
// sequentially from 1 and never reused for the lifetime of the Registry.
type Registry struct {
	role     types.Role
	queue    types.Queue
	recorder types.Recorder
	config   *Config
	clock    types.Clock
	logger   *zap.Logger
	onChange func()

	mu      sync.Mutex
	handles []Handle // insertion order
	nextID  int

	// goroutine tracking for Wait
	running int
	idle    chan struct{}
}

// NewRegistry creates an empty Registry for role
func NewRegistry(role types.Role, queue types.Queue, recorder types.Recorder,
	config *Config, opts ...RegistryOption) (*Registry, error) {
	if queue == nil {
		return nil, fmt.Errorf("queue cannot be nil")
	}
	if recorder == nil {
		return nil, fmt.Errorf("recorder cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	clock := config.Clock
	if clock == nil {
		clock = types.NewRealClock()
	}

	idle := make(chan struct{})
	close(idle)

	r := &Registry{
		role:     role,
		queue:    queue,
		recorder: recorder,
		config:   config,
		clock:    clock,
		logger:   zap.NewNop(),
		idle:     idle,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Role returns the registry role
func (r *Registry) Role() types.Role {
	return r.role
}

// Add starts a new worker bound to a child of ctx and records its handle
func (r *Registry) Add(ctx context.Context) Handle {
	r.mu.Lock()
	r.nextID++
	n := r.nextID
	name := fmt.Sprintf("%s%d", r.role.Prefix(), n)

	workerCtx, cancel := context.WithCancel(ctx)
	w := NewWorker(name, r.role, r.queue, r.recorder, r.config, r.newRand(n), r.logger)
	h := Handle{Name: name, Role: r.role, worker: w, cancel: cancel}
	r.handles = append(r.handles, h)

	if r.running == 0 {
		r.idle = make(chan struct{})
	}
	r.running++
	r.mu.Unlock()

	// registered before the loop starts so the first record has an entry to land in
	r.recorder.RegisterWorker(r.role, name)

	go func() {
		defer r.exited()
		defer cancel()
		_ = w.Run(workerCtx)
	}()

	r.logger.Info("worker added", zap.String("worker", name), zap.Stringer("role", r.role))
	r.changed()
	return h
}

// StopMostRecent removes and cancels the most recently added worker still
// registered. It does not wait for the worker to finish.
func (r *Registry) StopMostRecent() (Handle, bool) {
	r.mu.Lock()
	if len(r.handles) == 0 {
		r.mu.Unlock()
		return Handle{}, false
	}
	last := len(r.handles) - 1
	h := r.handles[last]
	r.handles[last] = Handle{}
	r.handles = r.handles[:last]
	r.mu.Unlock()

	h.cancel()
	r.logger.Info("worker stopped", zap.String("worker", h.Name), zap.Stringer("role", r.role))
	r.changed()
	return h, true
}

// StopAll removes and cancels every registered worker without waiting.
// Counters are left untouched.
func (r *Registry) StopAll() []Handle {
	handles := r.takeAll()
	for _, h := range handles {
		h.cancel()
	}
	if len(handles) > 0 {
		r.changed()
	}
	return handles
}

// ReleaseAll removes every registered worker but lets each keep running
// until it returns on its own. With a positive grace, workers still running
// when it elapses are cancelled. A non-positive grace sets no limit; the
// workers then end on queue end-of-stream or parent cancellation.
func (r *Registry) ReleaseAll(grace time.Duration) []Handle {
	handles := r.takeAll()
	if len(handles) > 0 {
		r.changed()
	}
	if grace <= 0 {
		return handles
	}

	for _, h := range handles {
		go func(h Handle) {
			timer := r.clock.NewTimer(grace)
			defer timer.Stop()

			select {
			case <-h.Done():
			case <-timer.C():
				r.logger.Debug("drain grace elapsed", zap.String("worker", h.Name))
			}
			h.cancel()
		}(h)
	}
	return handles
}

// Names returns the registered worker names in insertion order
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.handles))
	for i, h := range r.handles {
		names[i] = h.Name
	}
	return names
}

// Stats returns the statistics of the registered workers in insertion order
func (r *Registry) Stats() []WorkerStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]WorkerStats, len(r.handles))
	for i, h := range r.handles {
		out[i] = h.Stats()
	}
	return out
}

// Len returns the number of registered workers
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Running returns the number of worker goroutines that have not returned yet,
// including workers already removed from the registry.
func (r *Registry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Wait blocks until every worker goroutine started by this registry has
// returned, or ctx is done.
func (r *Registry) Wait(ctx context.Context) error {
	r.mu.Lock()
	idle := r.idle
	r.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) takeAll() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	handles := r.handles
	r.handles = nil
	return handles
}

func (r *Registry) exited() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running--
	if r.running == 0 {
		close(r.idle)
	}
}

func (r *Registry) changed() {
	if r.onChange != nil {
		r.onChange()
	}
}

// newRand returns the random source for the n-th worker. With a fixed seed
// the sequence depends only on the seed, the role and n.
func (r *Registry) newRand(n int) *rand.Rand {
	seed := time.Now().UnixNano()
	if r.config.Seed != 0 {
		seed = r.config.Seed
	}
	return rand.New(rand.NewSource(seed + int64(r.role)*1_000_003 + int64(n)*7_919))
}
