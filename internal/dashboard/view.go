package dashboard

import (
	"time"

	"github.com/jzx17/asyncflow/pkg/pipeline"
	"github.com/jzx17/asyncflow/pkg/stats"
	"github.com/jzx17/asyncflow/pkg/worker"
)

// StatsView is the JSON payload of /api/stats and /ws
type StatsView struct {
	Produced          int64               `json:"produced"`
	Consumed          int64               `json:"consumed"`
	Errors            int64               `json:"errors"`
	AverageWaitMillis int64               `json:"averageWaitMillis"`
	QueueLength       int                 `json:"queueLength"`
	State             string              `json:"state"`
	RunID             string              `json:"runId"`
	Producers         []stats.WorkerCount `json:"producers"`
	Consumers         []stats.WorkerCount `json:"consumers"`
	LiveProducers     []string            `json:"liveProducers"`
	LiveConsumers     []string            `json:"liveConsumers"`
	Workers           []WorkerView        `json:"workers"`
}

// WorkerView describes one live worker
type WorkerView struct {
	Name       string     `json:"name"`
	Role       string     `json:"role"`
	State      string     `json:"state"`
	Active     bool       `json:"active"`
	Processed  int64      `json:"processed"`
	LastItemAt *time.Time `json:"lastItemAt,omitempty"`
}

func newWorkerView(ws worker.WorkerStats) WorkerView {
	v := WorkerView{
		Name:      ws.Name,
		Role:      ws.Role.String(),
		State:     ws.State.String(),
		Active:    ws.IsActive(),
		Processed: ws.Processed,
	}
	if !ws.LastItemTime.IsZero() {
		last := ws.LastItemTime
		v.LastItemAt = &last
	}
	return v
}

// NewStatsView flattens a pipeline status. Nil lists become empty so they encode as [].
func NewStatsView(s pipeline.Status) StatsView {
	workers := make([]WorkerView, 0, len(s.ProducerWorkers)+len(s.ConsumerWorkers))
	for _, ws := range s.ProducerWorkers {
		workers = append(workers, newWorkerView(ws))
	}
	for _, ws := range s.ConsumerWorkers {
		workers = append(workers, newWorkerView(ws))
	}

	return StatsView{
		Produced:          s.Stats.Produced,
		Consumed:          s.Stats.Consumed,
		Errors:            s.Stats.Errors,
		AverageWaitMillis: s.Stats.AverageWaitMillis(),
		QueueLength:       s.QueueLen,
		State:             s.State.String(),
		RunID:             s.RunID,
		Producers:         nonNil(s.Producers),
		Consumers:         nonNil(s.Consumers),
		LiveProducers:     nonNil(s.LiveProducers),
		LiveConsumers:     nonNil(s.LiveConsumers),
		Workers:           workers,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
