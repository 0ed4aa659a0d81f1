// Package queue provides the unbounded FIFO that connects producers to consumers
package queue

import (
	"context"
	"sync"

	ringbuffer "github.com/eapache/queue"

	"github.com/jzx17/asyncflow/pkg/types"
)

// Queue is an unbounded, closable FIFO of work items.
// Enqueue never blocks; Dequeue blocks until an item is available,
// the queue is closed and drained, or the caller's context is done.
type Queue struct {
	mu     sync.Mutex
	items  *ringbuffer.Queue
	closed bool

	// ready holds at most one pending wakeup for blocked consumers
	ready chan struct{}
	// done is closed by Close
	done chan struct{}
}

// New creates an empty open Queue
func New() *Queue {
	return &Queue{
		items: ringbuffer.New(),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Enqueue appends an item to the tail of the queue
func (q *Queue) Enqueue(item types.WorkItem) error {
	return q.EnqueueFunc(item, nil)
}

// EnqueueFunc appends an item and, when accepted is non-nil, calls it before
// the item becomes visible to consumers. accepted must not call back into q.
func (q *Queue) EnqueueFunc(item types.WorkItem, accepted func()) error {
	if err := q.push(item, accepted); err != nil {
		return err
	}
	q.signal()
	return nil
}

func (q *Queue) push(item types.WorkItem, accepted func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return types.ErrQueueClosed
	}
	q.items.Add(item)
	if accepted != nil {
		accepted()
	}
	return nil
}

// Dequeue removes and returns the head of the queue
func (q *Queue) Dequeue(ctx context.Context) (types.WorkItem, error) {
	for {
		q.mu.Lock()
		if q.items.Length() > 0 {
			item := q.items.Remove().(types.WorkItem)
			remaining := q.items.Length()
			q.mu.Unlock()

			// pass the wakeup on so another blocked consumer sees the rest
			if remaining > 0 {
				q.signal()
			}
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return types.WorkItem{}, types.ErrEndOfStream
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return types.WorkItem{}, ctx.Err()
		case <-q.ready:
		case <-q.done:
		}
	}
}

// Close stops further enqueues. Buffered items remain available to Dequeue.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	return nil
}

// Len returns the number of buffered items
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// IsClosed reports whether Close has been called
func (q *Queue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

var _ types.Queue = (*Queue)(nil)
