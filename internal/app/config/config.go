package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/AegisSDN/internal/adapters/emulator"
	"github.com/ghalamif/AegisSDN/internal/adapters/observability"
	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/ports"
	"github.com/ghalamif/AegisSDN/internal/threshold"
)

type Config struct {
	Controller ControllerConfig        `yaml:"controller"`
	Monitor    MonitorConfig           `yaml:"monitor"`
	Flows      FlowsConfig             `yaml:"flows"`
	Policy     ports.Policy            `yaml:"policy"`
	Journal    JournalConfig           `yaml:"journal"`
	Postgres   PostgresConfig          `yaml:"postgres"`
	API        APIConfig               `yaml:"api"`
	Log        observability.LogConfig `yaml:"log"`
	Emulator   emulator.Config         `yaml:"emulator"`
}

type ControllerConfig struct {
	ID    domain.ControllerID `yaml:"id"`
	Addr  string              `yaml:"addr"`
	Peers []PeerConfig        `yaml:"peers"`
}

type PeerConfig struct {
	ID   domain.ControllerID `yaml:"id"`
	Addr string              `yaml:"addr"`
}

type MonitorConfig struct {
	Period           time.Duration `yaml:"period"`
	ReplyWindow      time.Duration `yaml:"reply_window"`
	InitialThreshold uint64        `yaml:"initial_threshold"`
	ThresholdFactor  float64       `yaml:"threshold_factor"`
}

type FlowsConfig struct {
	IdleTimeout uint16 `yaml:"idle_timeout"`
	HardTimeout uint16 `yaml:"hard_timeout"`
}

type JournalConfig struct {
	Dir string `yaml:"dir"`
}

// PostgresConfig enables the Postgres event sink when ConnString is set.
type PostgresConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given: a single
// controller c1 driving the built-in three-switch emulator.
func Default() *Config {
	cfg := Config{Emulator: emulator.Config{Enabled: true}}
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Controller.ID == "" {
		c.Controller.ID = "c1"
	}
	if c.Monitor.Period == 0 {
		c.Monitor.Period = 10 * time.Second
	}
	if c.Monitor.ReplyWindow == 0 {
		c.Monitor.ReplyWindow = time.Second
	}
	if c.Monitor.InitialThreshold == 0 {
		c.Monitor.InitialThreshold = threshold.DefaultInitial
	}
	if c.Monitor.ThresholdFactor == 0 {
		c.Monitor.ThresholdFactor = threshold.DefaultFactor
	}
	if c.Flows.IdleTimeout == 0 {
		c.Flows.IdleTimeout = 30
	}
	if c.Policy.MaxJournalSizeBytes == 0 {
		c.Policy.MaxJournalSizeBytes = 1 << 30
	}
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 10_000
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 500
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 50 * time.Millisecond
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = "drop"
	}
	if c.Policy.OnJournalFull == "" {
		c.Policy.OnJournalFull = "drop"
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = "./data/journal"
	}
	if c.Postgres.Table == "" {
		c.Postgres.Table = "sdn_events"
	}
	if c.API.Addr == "" {
		c.API.Addr = ":9100"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Emulator.Enabled && len(c.Emulator.Switches) == 0 {
		topo := emulator.DefaultTopology()
		c.Emulator.Switches = topo.Switches
		c.Emulator.Hosts = topo.Hosts
		c.Emulator.Links = topo.Links
		if c.Emulator.Traffic == nil {
			c.Emulator.Traffic = topo.Traffic
		}
		if c.Emulator.Controllers == nil {
			c.Emulator.Controllers = topo.Controllers
		}
	}
}

func (c *Config) validate() error {
	seen := map[domain.ControllerID]bool{c.Controller.ID: true}
	for _, p := range c.Controller.Peers {
		if p.ID == "" {
			return fmt.Errorf("controller.peers: id is required")
		}
		if seen[p.ID] {
			return fmt.Errorf("controller.peers: duplicate controller id %s", p.ID)
		}
		seen[p.ID] = true
	}
	if c.Monitor.Period <= 0 {
		return fmt.Errorf("monitor.period must be > 0")
	}
	if c.Monitor.ReplyWindow <= 0 || c.Monitor.ReplyWindow >= c.Monitor.Period {
		return fmt.Errorf("monitor.reply_window must be > 0 and shorter than monitor.period")
	}
	if c.Monitor.ThresholdFactor <= 0 {
		return fmt.Errorf("monitor.threshold_factor must be > 0")
	}
	switch c.Policy.OnQueueFull {
	case "reject", "block", "drop":
	default:
		return fmt.Errorf("policy.on_queue_full must be reject, block or drop")
	}
	switch c.Policy.OnJournalFull {
	case "block", "drop":
	default:
		return fmt.Errorf("policy.on_journal_full must be block or drop")
	}
	if c.Journal.Dir == "" {
		return fmt.Errorf("journal.dir is required")
	}
	if c.API.Addr == "" {
		return fmt.Errorf("api.addr is required")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json")
	}
	if c.Emulator.Enabled {
		if err := c.Emulator.Validate(); err != nil {
			return fmt.Errorf("emulator config: %w", err)
		}
	}
	return nil
}

// Validate re-checks a configuration built or modified in code.
func (c *Config) Validate() error {
	c.applyDefaults()
	return c.validate()
}
