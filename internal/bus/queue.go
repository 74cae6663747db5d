package bus

import (
	"strings"
	"sync"
)

// Queue is a lossless subscription. Events matching any of its namespaces are kept in
// publish order until drained; the queue grows instead of dropping.
type Queue struct {
	namespaces []string
	mu         sync.Mutex
	items      []Event
	ready      chan struct{}
}

func (q *Queue) matches(kind string) bool {
	for _, ns := range q.namespaces {
		if strings.HasPrefix(kind, ns) {
			return true
		}
	}
	return false
}

func (q *Queue) push(evt Event) {
	q.mu.Lock()
	q.items = append(q.items, evt)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Ready receives a value whenever events are waiting to be drained.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Drain removes and returns every waiting event, oldest first.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of waiting events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// SubscribeQueue returns a lossless queue receiving events from all of the given
// namespaces in a single order. Use it for consumers that must see every event; UI
// watchers use Subscribe.
func (b *Bus) SubscribeQueue(namespaces ...string) (*Queue, func()) {
	q := &Queue{namespaces: namespaces, ready: make(chan struct{}, 1)}
	b.mu.Lock()
	id := b.next
	b.next++
	b.queues[id] = q
	b.mu.Unlock()

	return q, func() {
		b.mu.Lock()
		delete(b.queues, id)
		b.mu.Unlock()
	}
}
