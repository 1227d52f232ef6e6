package ports

import "github.com/ghalamif/AegisSDN/internal/domain"

type EventSink interface {
	WriteBatch(events []*domain.Event) error
	Name() string
}
