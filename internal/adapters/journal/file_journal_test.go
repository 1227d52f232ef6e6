package journal

import (
	"os"
	"testing"
	"time"

	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/ports"
)

func migrationEvent(dpid domain.DPID) *domain.Event {
	e := domain.NewEvent(domain.EventMigration, time.Unix(100, 0).UTC())
	e.DPID = dpid
	e.Migration = &domain.Migration{DPID: dpid, From: "c1", To: "c2", FromLoad: 100, Threshold: 57}
	return e
}

func collect(t *testing.T, j *FileJournal, from ports.JournalEntryID) []domain.DPID {
	t.Helper()
	var got []domain.DPID
	if err := j.Iterate(from, func(_ ports.JournalEntryID, e *domain.Event) error {
		got = append(got, e.DPID)
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	return got
}

func TestFileJournalAppendIterateAndReopen(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}

	id1, err := j.Append(migrationEvent(1))
	if err != nil || id1 != 1 {
		t.Fatalf("append event 1: %v id=%d", err, id1)
	}
	id2, err := j.Append(migrationEvent(2))
	if err != nil || id2 != 2 {
		t.Fatalf("append event 2: %v id=%d", err, id2)
	}

	if got := collect(t, j, 1); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected dpids [1 2], got %v", got)
	}
	if got := collect(t, j, 2); len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected iteration from 2 to yield [2], got %v", got)
	}

	var payload *domain.Migration
	_ = j.Iterate(1, func(_ ports.JournalEntryID, e *domain.Event) error {
		payload = e.Migration
		return nil
	})
	if payload == nil || payload.To != "c2" || payload.Threshold != 57 {
		t.Fatalf("migration payload lost in round trip: %+v", payload)
	}

	if err := j.Commit(id1); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	j2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer j2.Close()

	stats := j2.Stats()
	if stats.LatestAppended != id2 {
		t.Fatalf("expected latest appended %d, got %d", id2, stats.LatestAppended)
	}
	if stats.OldestUncommitted != id2 {
		t.Fatalf("expected oldest uncommitted %d, got %d", id2, stats.OldestUncommitted)
	}

	id3, err := j2.Append(migrationEvent(3))
	if err != nil || id3 != 3 {
		t.Fatalf("append after reopen: %v id=%d", err, id3)
	}
}

func TestFileJournalDropsTornTail(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	if _, err := j.Append(migrationEvent(7)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	sizeBefore := fileSize(t, LogPath(dir))

	f, err := os.OpenFile(LogPath(dir), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if _, err := f.Write([]byte{0xFF, 0xAA, 0x01}); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	_ = f.Close()

	j2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen after garbage: %v", err)
	}
	defer j2.Close()

	if got := fileSize(t, LogPath(dir)); got != sizeBefore {
		t.Fatalf("expected torn tail truncated to %d bytes, got %d", sizeBefore, got)
	}
	if got := collect(t, j2, 1); len(got) != 1 || got[0] != 7 {
		t.Fatalf("expected surviving entry for dpid 7, got %v", got)
	}
}

func TestFileJournalTruncateCommitted(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	for dpid := domain.DPID(1); dpid <= 4; dpid++ {
		if _, err := j.Append(migrationEvent(dpid)); err != nil {
			t.Fatalf("append %d: %v", dpid, err)
		}
	}
	if err := j.TruncateCommitted(); err != nil {
		t.Fatalf("truncate with nothing committed: %v", err)
	}
	full := j.Stats().SizeBytes

	if err := j.Commit(2); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := j.TruncateCommitted(); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	stats := j.Stats()
	if stats.SizeBytes >= full {
		t.Fatalf("expected journal to shrink below %d, got %d", full, stats.SizeBytes)
	}
	if stats.SizeBytes != fileSize(t, LogPath(dir)) {
		t.Fatalf("size accounting %d does not match file size %d", stats.SizeBytes, fileSize(t, LogPath(dir)))
	}
	if got := collect(t, j, 1); len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Fatalf("expected only uncommitted dpids [3 4], got %v", got)
	}

	id, err := j.Append(migrationEvent(5))
	if err != nil || id != 5 {
		t.Fatalf("append after compaction: %v id=%d", err, id)
	}
	if got := collect(t, j, 1); len(got) != 3 || got[2] != 5 {
		t.Fatalf("expected appended entry after compaction, got %v", got)
	}
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return info.Size()
}
