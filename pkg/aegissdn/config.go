package aegissdn

import (
	"github.com/ghalamif/AegisSDN/internal/adapters/emulator"
	"github.com/ghalamif/AegisSDN/internal/adapters/observability"
	"github.com/ghalamif/AegisSDN/internal/app/config"
	"github.com/ghalamif/AegisSDN/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy bounds the journal and queue of the event export path.
	Policy = ports.Policy
	// ControllerConfig names the local controller and its peers.
	ControllerConfig = config.ControllerConfig
	// PeerConfig describes a peer controller.
	PeerConfig = config.PeerConfig
	// MonitorConfig configures the sampling period and threshold adaptation.
	MonitorConfig = config.MonitorConfig
	// FlowsConfig holds the timeouts of installed rules.
	FlowsConfig = config.FlowsConfig
	// JournalConfig configures on-disk durability.
	JournalConfig = config.JournalConfig
	// PostgresConfig enables the Postgres event sink.
	PostgresConfig = config.PostgresConfig
	// APIConfig configures the admin HTTP server.
	APIConfig = config.APIConfig
	// LogConfig selects log level and format.
	LogConfig = observability.LogConfig
	// EmulatorConfig describes the built-in emulated data plane.
	EmulatorConfig = emulator.Config
	// EmulatorTrafficConfig is one generated packet stream between two hosts.
	EmulatorTrafficConfig = emulator.TrafficConfig
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns a single-controller configuration driving the
// built-in three-switch emulator.
func DefaultConfig() *Config {
	return config.Default()
}
