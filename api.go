package aegissdn

import (
	base "github.com/ghalamif/AegisSDN/pkg/aegissdn"
)

// Re-exported errors for convenience.
var (
	ErrNoSubstrate       = base.ErrNoSubstrate
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
)

// Type aliases so consumers can import github.com/ghalamif/AegisSDN directly.
type (
	Config            = base.Config
	Policy            = base.Policy
	ControllerConfig  = base.ControllerConfig
	PeerConfig        = base.PeerConfig
	MonitorConfig     = base.MonitorConfig
	FlowsConfig       = base.FlowsConfig
	JournalConfig     = base.JournalConfig
	PostgresConfig    = base.PostgresConfig
	APIConfig         = base.APIConfig
	LogConfig         = base.LogConfig
	EmulatorConfig    = base.EmulatorConfig
	Flow              = base.Flow
	FlowOption        = base.FlowOption
	SouthboundOption  = base.SouthboundOption
	ExportOption      = base.ExportOption
	Runtime           = base.Runtime
	RuntimeOption     = base.RuntimeOption
	Event             = base.Event
	EventKind         = base.EventKind
	EventBatchSink    = base.EventBatchSink
	DPID              = base.DPID
	ControllerID      = base.ControllerID
	Tier              = base.Tier
	Migration         = base.Migration
	FlowRecord        = base.FlowRecord
	Substrate         = base.Substrate
	EventHandler      = base.EventHandler
	MigrationNotifier = base.MigrationNotifier
	Sink              = base.Sink
	EventQueue        = base.EventQueue
	Journal           = base.Journal
	Observability     = base.Observability
	QueuedEvent       = base.QueuedEvent
	JournalEntryID    = base.JournalEntryID
	JournalStats      = base.JournalStats
	Snapshot          = base.Snapshot
	SwitchSnapshot    = base.SwitchSnapshot
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func DefaultConfig() *Config {
	return base.DefaultConfig()
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func SouthboundSubstrate(s Substrate) SouthboundOption {
	return base.SouthboundSubstrate(s)
}

func SouthboundNotifier(n MigrationNotifier) SouthboundOption {
	return base.SouthboundNotifier(n)
}

func SouthboundJournal(j Journal) SouthboundOption {
	return base.SouthboundJournal(j)
}

func SouthboundQueue(q EventQueue) SouthboundOption {
	return base.SouthboundQueue(q)
}

func SouthboundObservability(obs Observability) SouthboundOption {
	return base.SouthboundObservability(obs)
}

func ExportSink(s Sink) ExportOption {
	return base.ExportSink(s)
}

func ExportCallback(name string, fn EventBatchSink) ExportOption {
	return base.ExportCallback(name, fn)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithSubstrate(s Substrate) RuntimeOption {
	return base.WithSubstrate(s)
}

func WithMigrationNotifier(n MigrationNotifier) RuntimeOption {
	return base.WithMigrationNotifier(n)
}

func WithSink(s Sink) RuntimeOption {
	return base.WithSink(s)
}

func WithJournal(j Journal) RuntimeOption {
	return base.WithJournal(j)
}

func WithEventQueue(q EventQueue) RuntimeOption {
	return base.WithEventQueue(q)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

// Sink adapters.
func NewCallbackSink(name string, fn EventBatchSink) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan []Event, func()) {
	return base.NewChannelSink(name, buffer)
}

// Journal replay.
func ReadJournal(dir string, fn func(id JournalEntryID, e *Event) error) error {
	return base.ReadJournal(dir, fn)
}

func Replay(dir string) (*Snapshot, error) {
	return base.Replay(dir)
}

func Reconstruct(events []*Event) *Snapshot {
	return base.Reconstruct(events)
}
