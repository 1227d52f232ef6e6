package journal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/ports"
)

const (
	recordHeaderLen = 12
	logName         = "journal.log"
	metaName        = "journal.meta"
)

// FileJournal is an append-only event log. Each entry is
// [8 bytes id][4 bytes len][len bytes JSON event]; the id of the last exported
// entry lives in a separate meta file.
type FileJournal struct {
	mu        sync.Mutex
	dir       string
	path      string
	metaPath  string
	file      *os.File
	writer    *bufio.Writer
	nextID    ports.JournalEntryID
	committed ports.JournalEntryID
	sizeBytes int64
}

func Open(dir string) (*FileJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, logName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	j := &FileJournal{
		dir:      dir,
		path:     path,
		metaPath: filepath.Join(dir, metaName),
		file:     f,
		writer:   bufio.NewWriterSize(f, 1<<16),
	}
	if err := j.bootstrap(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return j, nil
}

func (j *FileJournal) bootstrap() error {
	if err := j.scanExisting(); err != nil {
		return err
	}
	if err := j.loadCommitted(); err != nil {
		return err
	}
	if j.nextID < j.committed {
		j.nextID = j.committed
	}
	_, err := j.file.Seek(0, io.SeekEnd)
	return err
}

// scanExisting finds the last complete entry and cuts off a torn tail.
func (j *FileJournal) scanExisting() error {
	rf, err := os.Open(j.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	reader := bufio.NewReader(rf)
	var (
		offset int64
		lastID ports.JournalEntryID
	)
	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("journal scan header: %w", err)
		}
		id := ports.JournalEntryID(binary.BigEndian.Uint64(hdr[0:8]))
		length := int64(binary.BigEndian.Uint32(hdr[8:12]))
		if _, err := io.CopyN(io.Discard, reader, length); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("journal scan body: %w", err)
		}
		offset += recordHeaderLen + length
		lastID = id
	}

	if err := j.file.Truncate(offset); err != nil {
		return err
	}
	j.sizeBytes = offset
	j.nextID = lastID
	return nil
}

func (j *FileJournal) loadCommitted() error {
	data, err := os.ReadFile(j.metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	val := strings.TrimSpace(string(data))
	if val == "" {
		return nil
	}
	u, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return fmt.Errorf("journal meta parse: %w", err)
	}
	j.committed = ports.JournalEntryID(u)
	return nil
}

func (j *FileJournal) Append(e *domain.Event) (ports.JournalEntryID, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return 0, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	id := j.nextID + 1
	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(b)))

	if _, err := j.writer.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := j.writer.Write(b); err != nil {
		return 0, err
	}

	j.nextID = id
	j.sizeBytes += int64(len(b) + len(hdr))
	return id, nil
}

func (j *FileJournal) Iterate(from ports.JournalEntryID, fn func(id ports.JournalEntryID, e *domain.Event) error) error {
	j.mu.Lock()
	if err := j.writer.Flush(); err != nil {
		j.mu.Unlock()
		return err
	}
	j.mu.Unlock()
	return ReadEntries(j.path, from, fn)
}

// ReadEntries walks a journal log file without opening it for writing. A torn
// final entry ends the walk without error.
func ReadEntries(path string, from ports.JournalEntryID, fn func(id ports.JournalEntryID, e *domain.Event) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
		id := ports.JournalEntryID(binary.BigEndian.Uint64(hdr[0:8]))
		b := make([]byte, binary.BigEndian.Uint32(hdr[8:12]))
		if _, err := io.ReadFull(r, b); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("corrupt journal: %w", err)
		}
		if id < from {
			continue
		}

		var e domain.Event
		if err := json.Unmarshal(b, &e); err != nil {
			return fmt.Errorf("corrupt journal entry %d: %w", id, err)
		}
		if err := fn(id, &e); err != nil {
			return err
		}
	}
}

// LogPath returns the path of the journal log inside dir.
func LogPath(dir string) string { return filepath.Join(dir, logName) }

func (j *FileJournal) Commit(upto ports.JournalEntryID) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if upto > j.committed {
		j.committed = upto
	}
	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.persistMetaLocked()
}

// TruncateCommitted rewrites the log without the entries already exported.
func (j *FileJournal) TruncateCommitted() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.committed == 0 {
		return nil
	}
	if err := j.writer.Flush(); err != nil {
		return err
	}

	tmpPath := j.path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tmp)
	var size int64
	copyErr := j.copyUncommittedLocked(w, &size)
	if copyErr == nil {
		copyErr = w.Flush()
	}
	if copyErr == nil {
		copyErr = tmp.Sync()
	}
	if err := tmp.Close(); err != nil && copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return copyErr
	}

	if err := j.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, j.path); err != nil {
		return err
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	j.file = f
	j.writer = bufio.NewWriterSize(f, 1<<16)
	j.sizeBytes = size
	return nil
}

func (j *FileJournal) copyUncommittedLocked(w io.Writer, size *int64) error {
	rf, err := os.Open(j.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	r := bufio.NewReader(rf)
	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
		id := ports.JournalEntryID(binary.BigEndian.Uint64(hdr[0:8]))
		length := int64(binary.BigEndian.Uint32(hdr[8:12]))
		if id <= j.committed {
			if _, err := io.CopyN(io.Discard, r, length); err != nil {
				return err
			}
			continue
		}
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := io.CopyN(w, r, length); err != nil {
			return err
		}
		*size += recordHeaderLen + length
	}
}

func (j *FileJournal) Stats() ports.JournalStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ports.JournalStats{
		OldestUncommitted: j.committed + 1,
		LatestAppended:    j.nextID,
		SizeBytes:         j.sizeBytes,
	}
}

// Close flushes buffered entries and closes the log.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return errors.Join(j.writer.Flush(), j.file.Close())
}

func (j *FileJournal) persistMetaLocked() error {
	data := []byte(fmt.Sprintf("%d\n", j.committed))
	return os.WriteFile(j.metaPath, data, 0o644)
}

var _ ports.Journal = (*FileJournal)(nil)
