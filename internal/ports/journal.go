package ports

import "github.com/ghalamif/AegisSDN/internal/domain"

type JournalEntryID uint64

// Journal is the append-only event log backing the export pipeline.
type Journal interface {
	Append(e *domain.Event) (JournalEntryID, error)
	Iterate(from JournalEntryID, fn func(id JournalEntryID, e *domain.Event) error) error
	Commit(upto JournalEntryID) error
	TruncateCommitted() error
	Stats() JournalStats
}

type JournalStats struct {
	OldestUncommitted JournalEntryID
	LatestAppended    JournalEntryID
	SizeBytes         int64
}
