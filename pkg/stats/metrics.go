package stats

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jzx17/asyncflow/pkg/types"
)

// Metrics exports pipeline statistics to Prometheus. Counters are
// monotonic across pipeline runs; Aggregator.Reset does not touch them.
type Metrics struct {
	produced   *prometheus.CounterVec
	consumed   *prometheus.CounterVec
	errors     prometheus.Counter
	queueWait  prometheus.Histogram
	workers    *prometheus.GaugeVec
	queueDepth prometheus.GaugeFunc

	depthSource atomic.Pointer[func() int]
}

// NewMetrics creates the pipeline metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if reg == nil {
		return nil, fmt.Errorf("metrics registerer cannot be nil")
	}

	m := &Metrics{
		produced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_produced_total",
			Help:      "Total work items produced, by worker",
		}, []string{"worker"}),
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_consumed_total",
			Help:      "Total work items consumed, by worker",
		}, []string{"worker"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulated_errors_total",
			Help:      "Total simulated processing errors",
		}),
		queueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_wait_seconds",
			Help:      "Time items spent in the queue before a consumer took them",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		workers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Live workers, by role",
		}, []string{"role"}),
	}
	m.queueDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Items buffered in the queue",
	}, m.depth)

	collectors := []prometheus.Collector{
		m.produced, m.consumed, m.errors, m.queueWait, m.workers, m.queueDepth,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) observeProduced(worker string) {
	m.produced.WithLabelValues(worker).Inc()
}

func (m *Metrics) observeConsumed(worker string, wait time.Duration, failed bool) {
	m.consumed.WithLabelValues(worker).Inc()
	m.queueWait.Observe(wait.Seconds())
	if failed {
		m.errors.Inc()
	}
}

// SetWorkers records the live worker count for a role
func (m *Metrics) SetWorkers(role types.Role, n int) {
	m.workers.WithLabelValues(role.String()).Set(float64(n))
}

// SetQueueSource sets the function read at scrape time for the queue depth.
// A nil fn reports zero.
func (m *Metrics) SetQueueSource(fn func() int) {
	if fn == nil {
		m.depthSource.Store(nil)
		return
	}
	m.depthSource.Store(&fn)
}

func (m *Metrics) depth() float64 {
	if fn := m.depthSource.Load(); fn != nil {
		return float64((*fn)())
	}
	return 0
}
