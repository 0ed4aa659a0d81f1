// Package types defines the core values and interfaces shared across the pipeline packages
package types

import (
	"context"
	"time"
)

// WorkItem is the unit of work moved from producers to consumers
type WorkItem struct {
	// ID is strictly increasing per producer
	ID int64

	// CreatedAt is the producer clock reading at creation
	CreatedAt time.Time
}

// NewWorkItem creates a WorkItem
func NewWorkItem(id int64, createdAt time.Time) WorkItem {
	return WorkItem{ID: id, CreatedAt: createdAt}
}

// WaitedFor returns how long the item has been waiting at now, never negative
func (w WorkItem) WaitedFor(now time.Time) time.Duration {
	wait := now.Sub(w.CreatedAt)
	if wait < 0 {
		return 0
	}
	return wait
}

// Role identifies which loop a worker runs
type Role int

const (
	// RoleProducer generates and enqueues work items
	RoleProducer Role = iota
	// RoleConsumer dequeues and processes work items
	RoleConsumer
)

// String returns the string representation of Role
func (r Role) String() string {
	switch r {
	case RoleProducer:
		return "producer"
	case RoleConsumer:
		return "consumer"
	default:
		return "unknown"
	}
}

// Prefix returns the worker name prefix for the role
func (r Role) Prefix() string {
	switch r {
	case RoleProducer:
		return "P"
	case RoleConsumer:
		return "C"
	default:
		return "W"
	}
}

// Queue defines the FIFO contract between producers and consumers
type Queue interface {
	// Enqueue appends an item; fails with ErrQueueClosed after Close
	Enqueue(item WorkItem) error

	// EnqueueFunc is Enqueue that runs accepted before consumers can see the item
	EnqueueFunc(item WorkItem, accepted func()) error

	// Dequeue returns the next item, ErrEndOfStream once closed and drained,
	// or ctx.Err() when ctx is done first
	Dequeue(ctx context.Context) (WorkItem, error)

	// Close prevents further enqueues; idempotent
	Close() error

	// Len returns the number of buffered items
	Len() int
}

// Recorder receives per-item statistics from workers
type Recorder interface {
	// RegisterWorker creates a zero entry for a newly started worker
	RegisterWorker(role Role, worker string)

	// RecordProduced counts one item produced by the named worker
	RecordProduced(worker string)

	// RecordConsumed counts one item consumed by the named worker
	RecordConsumed(worker string, wait time.Duration, failed bool)
}
