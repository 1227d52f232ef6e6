package ports

import "github.com/ghalamif/AegisSDN/internal/domain"

type QueuedEvent struct {
	ID    JournalEntryID
	Event *domain.Event
}

type EventQueue interface {
	Enqueue(id JournalEntryID, e *domain.Event) bool
	DequeueBatch(max int) []QueuedEvent
	Len() int
}
