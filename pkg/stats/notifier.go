package stats

import "sync"

// Notifier fans a payload-free change signal out to subscribers.
// Each subscriber channel buffers one pending signal; further signals
// coalesce until the subscriber reads, so Notify never blocks a worker.
type Notifier struct {
	mu     sync.Mutex
	subs   map[uint64]chan struct{}
	nextID uint64
}

// NewNotifier creates a Notifier with no subscribers
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[uint64]chan struct{})}
}

// Subscribe registers a new subscriber. The returned cancel func
// unregisters it and closes the channel; calling it twice is safe.
func (n *Notifier) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = ch
	n.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Notify signals every subscriber
func (n *Notifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns the current subscriber count
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
