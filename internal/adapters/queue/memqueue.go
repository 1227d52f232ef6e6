package queue

import (
	"sync"

	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/ports"
)

// MemQueue is a bounded FIFO of journaled events awaiting export, backed by a
// fixed ring so dequeuing never shifts the remaining items.
type MemQueue struct {
	mu   sync.Mutex
	ring []ports.QueuedEvent
	head int
	size int
}

func NewMemQueue(capacity int) *MemQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemQueue{ring: make([]ports.QueuedEvent, capacity)}
}

// Enqueue reports false when the queue is full.
func (q *MemQueue) Enqueue(id ports.JournalEntryID, e *domain.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == len(q.ring) {
		return false
	}
	q.ring[(q.head+q.size)%len(q.ring)] = ports.QueuedEvent{ID: id, Event: e}
	q.size++
	return true
}

// DequeueBatch removes up to max events, oldest first. max <= 0 drains the queue.
func (q *MemQueue) DequeueBatch(max int) []ports.QueuedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return nil
	}
	n := q.size
	if max > 0 && max < n {
		n = max
	}
	out := make([]ports.QueuedEvent, n)
	for i := range out {
		slot := (q.head + i) % len(q.ring)
		out[i] = q.ring[slot]
		q.ring[slot] = ports.QueuedEvent{}
	}
	q.head = (q.head + n) % len(q.ring)
	q.size -= n
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *MemQueue) Cap() int { return len(q.ring) }

var _ ports.EventQueue = (*MemQueue)(nil)
