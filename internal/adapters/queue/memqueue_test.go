package queue

import (
	"testing"

	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/ports"
)

func TestMemQueueEnqueueDequeueOrder(t *testing.T) {
	q := NewMemQueue(4)

	e1 := &domain.Event{ID: "e1", Kind: domain.EventSwitchConnected}
	e2 := &domain.Event{ID: "e2", Kind: domain.EventMigration}

	if !q.Enqueue(1, e1) || !q.Enqueue(2, e2) {
		t.Fatalf("expected successful enqueue")
	}

	batch := q.DequeueBatch(1)
	if len(batch) != 1 || batch[0].ID != 1 || batch[0].Event.ID != "e1" {
		t.Fatalf("unexpected first batch: %+v", batch)
	}

	remaining := q.DequeueBatch(10)
	if len(remaining) != 1 || remaining[0].ID != 2 {
		t.Fatalf("unexpected second batch: %+v", remaining)
	}

	if q.Len() != 0 {
		t.Fatalf("queue should be empty, got %d", q.Len())
	}
	if q.DequeueBatch(5) != nil {
		t.Fatalf("expected nil batch from empty queue")
	}
}

func TestMemQueueCapacity(t *testing.T) {
	q := NewMemQueue(2)

	ev := &domain.Event{ID: "cap"}

	if !q.Enqueue(1, ev) || !q.Enqueue(2, ev) {
		t.Fatalf("expected enqueue within capacity")
	}
	if q.Enqueue(3, ev) {
		t.Fatalf("enqueue should fail when capacity exceeded")
	}

	q.DequeueBatch(1)
	if !q.Enqueue(4, ev) {
		t.Fatalf("expected enqueue to succeed after dequeue")
	}
}

func TestMemQueueWrapsAround(t *testing.T) {
	q := NewMemQueue(3)
	if q.Cap() != 3 {
		t.Fatalf("expected capacity 3, got %d", q.Cap())
	}

	var next uint64 = 1
	for round := 0; round < 4; round++ {
		for q.Len() < q.Cap() {
			if !q.Enqueue(ports.JournalEntryID(next), &domain.Event{ID: "e"}) {
				t.Fatalf("enqueue %d failed", next)
			}
			next++
		}
		batch := q.DequeueBatch(2)
		if len(batch) != 2 || batch[1].ID != batch[0].ID+1 {
			t.Fatalf("round %d: unexpected batch %+v", round, batch)
		}
	}

	for q.Len() < q.Cap() {
		q.Enqueue(ports.JournalEntryID(next), &domain.Event{ID: "e"})
		next++
	}
	rest := q.DequeueBatch(0)
	if len(rest) != 3 || rest[0].ID+2 != rest[2].ID || rest[2].ID != ports.JournalEntryID(next-1) {
		t.Fatalf("expected the three newest ids in order, got %+v", rest)
	}
}
