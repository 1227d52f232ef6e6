package aegissdn

import (
	"cmp"
	"slices"

	"github.com/ghalamif/AegisSDN/internal/adapters/journal"
	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/ports"
)

// ReadJournal walks the journal in dir oldest first, without opening it for
// writing, so it is safe against a running controller. Entries removed by
// compaction are gone; the walk starts at the oldest surviving entry.
func ReadJournal(dir string, fn func(id JournalEntryID, e *Event) error) error {
	return journal.ReadEntries(journal.LogPath(dir), 0, func(id ports.JournalEntryID, e *domain.Event) error {
		return fn(id, e)
	})
}

// Snapshot is control-plane state rebuilt from a stream of decision events.
type Snapshot struct {
	Switches   map[DPID]*SwitchSnapshot
	Migrations []Migration
	Threshold  uint64
	Events     int
}

type SwitchSnapshot struct {
	DPID      DPID
	Owner     ControllerID
	Tier      Tier
	Connected bool
	// Flows is ordered by priority, highest first.
	Flows []FlowInstalled
}

// Replay reads the journal in dir and reconstructs the state it describes.
func Replay(dir string) (*Snapshot, error) {
	var events []*Event
	err := ReadJournal(dir, func(_ JournalEntryID, e *Event) error {
		events = append(events, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return Reconstruct(events), nil
}

// Reconstruct applies events in order. A reconnect or disconnect clears the
// switch's flows; a migration changes its owner.
func Reconstruct(events []*Event) *Snapshot {
	s := &Snapshot{Switches: map[DPID]*SwitchSnapshot{}}
	sw := func(dpid DPID) *SwitchSnapshot {
		if st, ok := s.Switches[dpid]; ok {
			return st
		}
		st := &SwitchSnapshot{DPID: dpid, Tier: domain.TierLow}
		s.Switches[dpid] = st
		return st
	}

	for _, e := range events {
		if e == nil {
			continue
		}
		s.Events++
		switch e.Kind {
		case domain.EventSwitchConnected:
			s.Switches[e.DPID] = &SwitchSnapshot{
				DPID:      e.DPID,
				Owner:     e.Controller,
				Tier:      domain.TierLow,
				Connected: true,
			}
		case domain.EventSwitchDisconnected:
			st := sw(e.DPID)
			st.Connected = false
			st.Flows = nil
		case domain.EventFlowInstalled:
			if e.Flow != nil {
				st := sw(e.DPID)
				st.Flows = putFlow(st.Flows, *e.Flow)
			}
		case domain.EventTierChanged:
			if e.Tier != nil {
				sw(e.DPID).Tier = *e.Tier
			}
		case domain.EventMigration:
			if m := e.Migration; m != nil {
				s.Migrations = append(s.Migrations, *m)
				sw(m.DPID).Owner = m.To
			}
		case domain.EventThresholdChanged:
			if e.Threshold != nil {
				s.Threshold = e.Threshold.New
			}
		}
	}
	return s
}

// putFlow replaces the rule with the same match and priority, like a switch
// does on an add, and keeps the table ordered.
func putFlow(flows []FlowInstalled, f FlowInstalled) []FlowInstalled {
	i := slices.IndexFunc(flows, func(x FlowInstalled) bool {
		return x.Priority == f.Priority && x.Match == f.Match
	})
	if i >= 0 {
		flows[i] = f
		return flows
	}
	flows = append(flows, f)
	slices.SortStableFunc(flows, func(a, b FlowInstalled) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	return flows
}
