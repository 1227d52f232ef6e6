package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventSwitchConnected    EventKind = "switch_connected"
	EventSwitchDisconnected EventKind = "switch_disconnected"
	EventFlowInstalled      EventKind = "flow_installed"
	EventThresholdChanged   EventKind = "threshold_changed"
	EventMigration          EventKind = "migration"
	EventTierChanged        EventKind = "tier_changed"
)

// Event is the canonical decision record exported by AegisSDN. Reporting tools
// rebuild flow tables and migration history from a stream of events.
type Event struct {
	ID         string           `json:"id"`
	Kind       EventKind        `json:"kind"`
	Time       time.Time        `json:"ts"`
	DPID       DPID             `json:"dpid,omitempty"`
	Controller ControllerID     `json:"controller,omitempty"`
	Tier       *Tier            `json:"tier,omitempty"`
	Flow       *FlowInstalled   `json:"flow,omitempty"`
	Migration  *Migration       `json:"migration,omitempty"`
	Threshold  *ThresholdChange `json:"threshold,omitempty"`
}

func NewEvent(kind EventKind, at time.Time) *Event {
	return &Event{ID: uuid.NewString(), Kind: kind, Time: at.UTC()}
}

type FlowInstalled struct {
	Match       Match  `json:"match"`
	Priority    uint16 `json:"priority"`
	Tier        Tier   `json:"tier"`
	Queue       uint32 `json:"queue"`
	OutPort     uint32 `json:"out_port"`
	IdleTimeout uint16 `json:"idle_timeout,omitempty"`
}

// Migration records one ownership transfer decided by the migration engine.
// MigrationReasonControllerRemoved marks a hand-over forced by removing the
// previous owner. Migrations made by the balancer carry no reason.
const MigrationReasonControllerRemoved = "controller_removed"

type Migration struct {
	ID        string       `json:"id"`
	DPID      DPID         `json:"dpid"`
	From      ControllerID `json:"from"`
	To        ControllerID `json:"to"`
	FromLoad  uint64       `json:"from_load"`
	ToLoad    uint64       `json:"to_load"`
	Threshold uint64       `json:"threshold"`
	Reason    string       `json:"reason,omitempty"`
	Time      time.Time    `json:"ts"`
}

type ThresholdChange struct {
	Old  uint64  `json:"old"`
	New  uint64  `json:"new"`
	Mean float64 `json:"mean"`
}
