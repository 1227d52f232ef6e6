package aegissdn

import (
	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/flowrec"
	"github.com/ghalamif/AegisSDN/internal/ports"
	"github.com/ghalamif/AegisSDN/internal/registry"
)

// Event is a decision record travelling through the journal→queue→sink
// pipeline: switch lifecycle, installed flows, threshold changes, migrations
// and tier changes.
type Event = domain.Event

// EventKind names the decision an Event records.
type EventKind = domain.EventKind

const (
	EventSwitchConnected    = domain.EventSwitchConnected
	EventSwitchDisconnected = domain.EventSwitchDisconnected
	EventFlowInstalled      = domain.EventFlowInstalled
	EventThresholdChanged   = domain.EventThresholdChanged
	EventMigration          = domain.EventMigration
	EventTierChanged        = domain.EventTierChanged
)

// MigrationReasonControllerRemoved marks hand-overs made by RemoveController.
const MigrationReasonControllerRemoved = domain.MigrationReasonControllerRemoved

type (
	// DPID identifies a switch.
	DPID = domain.DPID
	// ControllerID identifies a controller instance.
	ControllerID = domain.ControllerID
	// Tier is the traffic class of a flow or switch.
	Tier = domain.Tier
	// Migration records one switch ownership transfer.
	Migration = domain.Migration
	// FlowInstalled is the payload of a flow_installed event.
	FlowInstalled = domain.FlowInstalled
	// Match is the header match of a flow rule.
	Match = domain.Match
	// FlowRecord is the controller's bookkeeping entry for one installed rule.
	FlowRecord = flowrec.Record
	// SwitchState is a registry snapshot of a connected switch.
	SwitchState = registry.Switch
	// ControllerState is a registry snapshot of a controller.
	ControllerState = registry.Controller
)

// Sink consumes batches of events and persists them to any downstream system.
type Sink = ports.EventSink

// EventQueue is the bounded, in-memory queue between the journal and the sinks.
type EventQueue = ports.EventQueue

// QueuedEvent is an item buffered inside the EventQueue.
type QueuedEvent = ports.QueuedEvent

// Journal abstracts the append-only log used for durability and crash recovery.
type Journal = ports.Journal

// JournalStats exposes journal metadata for observability.
type JournalStats = ports.JournalStats

// JournalEntryID uniquely identifies a journal entry.
type JournalEntryID = ports.JournalEntryID

// Observability emits metrics and logs about forwarding, balancing and export.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// Substrate is the protocol engine plus the switches it talks to. The
// built-in emulator is used when none is injected.
type Substrate = ports.Substrate

// EventHandler receives switch events from a Substrate.
type EventHandler = ports.EventHandler

// MigrationNotifier is told about each migration so the orchestration layer
// can re-home the switch session.
type MigrationNotifier = ports.MigrationNotifier
