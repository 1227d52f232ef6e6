// Package flowrec keeps the priority each rule was installed with, keyed by the
// rule's (switch, source MAC, destination MAC, ingress port) tuple. Flow
// statistics do not carry that priority, so the load sampler reads it back here.
package flowrec

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ghalamif/AegisSDN/internal/domain"
)

type Key struct {
	DPID   domain.DPID
	EthSrc string
	EthDst string
	InPort uint32
}

// KeyOf builds the record key for a match installed on dpid.
func KeyOf(dpid domain.DPID, m domain.Match) Key {
	return Key{
		DPID:   dpid,
		EthSrc: strings.ToLower(m.EthSrc),
		EthDst: strings.ToLower(m.EthDst),
		InPort: m.InPort,
	}
}

// Record is one installed rule as seen by the controller.
type Record struct {
	Key         Key             `json:"key"`
	Match       domain.Match    `json:"match"`
	Priority    uint16          `json:"priority"`
	Tier        domain.Tier     `json:"tier"`
	Queue       uint32          `json:"queue"`
	Actions     []domain.Action `json:"actions"`
	IdleTimeout uint16          `json:"idle_timeout,omitempty"`
	HardTimeout uint16          `json:"hard_timeout,omitempty"`
	Installed   time.Time       `json:"installed"`
}

type Table struct {
	mu      sync.RWMutex
	records map[Key]Record
}

func NewTable() *Table {
	return &Table{records: make(map[Key]Record)}
}

// Put stores r, replacing any record with the same key.
func (t *Table) Put(r Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r.Actions = slices.Clone(r.Actions)
	t.records[r.Key] = r
}

// Priority returns the installed priority for k.
func (t *Table) Priority(k Key) (uint16, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.records[k]
	return r.Priority, ok
}

func (t *Table) Get(k Key) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.records[k]
	return r, ok
}

// PurgeSwitch drops every record of dpid and returns how many were removed.
func (t *Table) PurgeSwitch(dpid domain.DPID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k := range t.records {
		if k.DPID == dpid {
			delete(t.records, k)
			n++
		}
	}
	return n
}

// Switch returns the records of dpid in dump order.
func (t *Table) Switch(dpid domain.DPID) []Record {
	t.mu.RLock()
	out := make([]Record, 0)
	for k, r := range t.records {
		if k.DPID == dpid {
			out = append(out, r)
		}
	}
	t.mu.RUnlock()
	sortRecords(out)
	return out
}

// All returns every record grouped by switch in dump order.
func (t *Table) All() []Record {
	t.mu.RLock()
	out := make([]Record, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, r)
	}
	t.mu.RUnlock()
	sortRecords(out)
	return out
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

func sortRecords(rs []Record) {
	slices.SortFunc(rs, func(a, b Record) int {
		if c := cmp.Compare(a.Key.DPID, b.Key.DPID); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Key.InPort, b.Key.InPort); c != 0 {
			return c
		}
		if c := strings.Compare(a.Key.EthSrc, b.Key.EthSrc); c != 0 {
			return c
		}
		return strings.Compare(a.Key.EthDst, b.Key.EthDst)
	})
}
