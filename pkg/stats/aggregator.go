// Package stats holds the shared pipeline counters behind a single lock
// and publishes change notifications after every mutation.
package stats

import (
	"sync"
	"time"

	"github.com/jzx17/asyncflow/pkg/types"
)

// Snapshot is a consistent, point-in-time read of the aggregate counters
type Snapshot struct {
	Produced       int64         `json:"produced"`
	Consumed       int64         `json:"consumed"`
	Errors         int64         `json:"errors"`
	CumulativeWait time.Duration `json:"-"`
	AverageWait    time.Duration `json:"-"`
}

// AverageWaitMillis returns the average queue wait in whole milliseconds
func (s Snapshot) AverageWaitMillis() int64 {
	return s.AverageWait.Milliseconds()
}

// WorkerCount is the historical contribution of one named worker
type WorkerCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// perRole keeps per-name counts in registration order
type perRole struct {
	counts map[string]int64
	order  []string
}

func newPerRole() perRole {
	return perRole{counts: make(map[string]int64)}
}

func (p *perRole) ensure(name string) {
	if _, ok := p.counts[name]; !ok {
		p.counts[name] = 0
		p.order = append(p.order, name)
	}
}

func (p *perRole) list() []WorkerCount {
	out := make([]WorkerCount, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, WorkerCount{Name: name, Count: p.counts[name]})
	}
	return out
}

func (p *perRole) inc(name string) {
	p.ensure(name)
	p.counts[name]++
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithNotifier sets the notifier fired after every mutation
func WithNotifier(n *Notifier) Option {
	return func(a *Aggregator) {
		a.notifier = n
	}
}

// WithMetrics mirrors every mutation into Prometheus metrics
func WithMetrics(m *Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// Aggregator owns the pipeline counters. Every mutation and every
// snapshot happens under one mutex so readers never see a partial update.
type Aggregator struct {
	mu sync.Mutex

	produced       int64
	consumed       int64
	errors         int64
	cumulativeWait time.Duration

	producers perRole
	consumers perRole

	notifier *Notifier
	metrics  *Metrics
}

// NewAggregator creates an Aggregator with zeroed counters
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		producers: newPerRole(),
		consumers: newPerRole(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.notifier == nil {
		a.notifier = NewNotifier()
	}
	return a
}

// Notifier returns the change notifier
func (a *Aggregator) Notifier() *Notifier {
	return a.notifier
}

// RegisterWorker creates a zero entry for a worker so it is listed
// before its first unit of work. Existing entries are left untouched.
func (a *Aggregator) RegisterWorker(role types.Role, name string) {
	a.mu.Lock()
	a.roleCounts(role).ensure(name)
	a.mu.Unlock()

	a.notifier.Notify()
}

// RecordProduced counts one item produced by worker
func (a *Aggregator) RecordProduced(worker string) {
	a.mu.Lock()
	a.produced++
	a.producers.inc(worker)
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.observeProduced(worker)
	}
	a.notifier.Notify()
}

// RecordConsumed counts one item consumed by worker, adds its queue
// wait and, when failed is set, one simulated error.
func (a *Aggregator) RecordConsumed(worker string, wait time.Duration, failed bool) {
	if wait < 0 {
		wait = 0
	}

	a.mu.Lock()
	a.consumed++
	a.cumulativeWait += wait
	if failed {
		a.errors++
	}
	a.consumers.inc(worker)
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.observeConsumed(worker, wait, failed)
	}
	a.notifier.Notify()
}

// Snapshot returns a consistent copy of the aggregate counters
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() Snapshot {
	s := Snapshot{
		Produced:       a.produced,
		Consumed:       a.consumed,
		Errors:         a.errors,
		CumulativeWait: a.cumulativeWait,
	}
	if a.consumed > 0 {
		s.AverageWait = a.cumulativeWait / time.Duration(a.consumed)
	}
	return s
}

// WorkerCounts returns per-worker totals for role in registration order.
// Stopped workers keep their entries.
func (a *Aggregator) WorkerCounts(role types.Role) []WorkerCount {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.roleCounts(role).list()
}

// Report is a Snapshot together with both per-worker count lists, all read
// in one critical section
type Report struct {
	Snapshot
	Producers []WorkerCount
	Consumers []WorkerCount
}

// Report returns totals and per-worker counts from the same instant
func (a *Aggregator) Report() Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Report{
		Snapshot:  a.snapshotLocked(),
		Producers: a.producers.list(),
		Consumers: a.consumers.list(),
	}
}

// Reset zeroes every counter and forgets all worker entries
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.produced = 0
	a.consumed = 0
	a.errors = 0
	a.cumulativeWait = 0
	a.producers = newPerRole()
	a.consumers = newPerRole()
	a.mu.Unlock()

	a.notifier.Notify()
}

func (a *Aggregator) roleCounts(role types.Role) *perRole {
	if role == types.RoleProducer {
		return &a.producers
	}
	return &a.consumers
}

var _ types.Recorder = (*Aggregator)(nil)
