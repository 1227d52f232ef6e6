package emulator

import (
	"fmt"
	"time"

	"github.com/ghalamif/AegisSDN/internal/domain"
)

// Config describes the emulated data plane: switches, hosts, links and the
// traffic that runs across them.
type Config struct {
	Enabled bool `yaml:"enabled"`
	// Controllers seeds the placement ring for switches without a fixed controller.
	Controllers    []domain.ControllerID `yaml:"controllers"`
	Switches       []SwitchConfig        `yaml:"switches"`
	Hosts          []HostConfig          `yaml:"hosts"`
	Links          []LinkConfig          `yaml:"links"`
	Traffic        []TrafficConfig       `yaml:"traffic"`
	StatsDelay     time.Duration         `yaml:"stats_delay"`
	BufferCapacity int                   `yaml:"buffer_capacity"`
	MaxHops        int                   `yaml:"max_hops"`
	ExpiryInterval time.Duration         `yaml:"expiry_interval"`
	RNGStream      string                `yaml:"rng_stream"`
}

type SwitchConfig struct {
	DPID       domain.DPID         `yaml:"dpid"`
	Controller domain.ControllerID `yaml:"controller"`
}

type HostConfig struct {
	Name   string      `yaml:"name"`
	MAC    string      `yaml:"mac"`
	IP     string      `yaml:"ip"`
	Switch domain.DPID `yaml:"switch"`
	Port   uint32      `yaml:"port"`
}

// LinkConfig connects port APort of switch A to port BPort of switch B.
type LinkConfig struct {
	A     domain.DPID `yaml:"a"`
	APort uint32      `yaml:"a_port"`
	B     domain.DPID `yaml:"b"`
	BPort uint32      `yaml:"b_port"`
}

// TrafficConfig is a Poisson packet stream between two hosts.
type TrafficConfig struct {
	Src     string  `yaml:"src"`
	Dst     string  `yaml:"dst"`
	Proto   string  `yaml:"proto"` // tcp, udp or icmp
	DstPort uint16  `yaml:"dst_port"`
	Rate    float64 `yaml:"rate"` // packets per second
	Length  int     `yaml:"length"`
}

// DefaultTopology is three switches in a line with one host each; s1 and s3
// home on c1, s2 on c2. h1 and h2 exchange iperf-style TCP traffic and h1
// pings h3.
func DefaultTopology() Config {
	return Config{
		Enabled:     true,
		Controllers: []domain.ControllerID{"c1", "c2"},
		Switches: []SwitchConfig{
			{DPID: 1, Controller: "c1"},
			{DPID: 2, Controller: "c2"},
			{DPID: 3, Controller: "c1"},
		},
		Hosts: []HostConfig{
			{Name: "h1", MAC: "00:00:00:00:00:01", IP: "10.0.0.1", Switch: 1, Port: 1},
			{Name: "h2", MAC: "00:00:00:00:00:02", IP: "10.0.0.2", Switch: 2, Port: 1},
			{Name: "h3", MAC: "00:00:00:00:00:03", IP: "10.0.0.3", Switch: 3, Port: 1},
		},
		Links: []LinkConfig{
			{A: 1, APort: 2, B: 2, BPort: 2},
			{A: 2, APort: 3, B: 3, BPort: 2},
		},
		Traffic: []TrafficConfig{
			{Src: "h1", Dst: "h2", Proto: "tcp", DstPort: 5001, Rate: 50, Length: 1500},
			{Src: "h2", Dst: "h1", Proto: "tcp", DstPort: 5001, Rate: 50, Length: 1500},
			{Src: "h1", Dst: "h3", Proto: "icmp", Rate: 1, Length: 98},
		},
	}
}

func (c *Config) applyDefaults() {
	if c.StatsDelay <= 0 {
		c.StatsDelay = 20 * time.Millisecond
	}
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = 256
	}
	if c.MaxHops <= 0 {
		c.MaxHops = 16
	}
	if c.ExpiryInterval <= 0 {
		c.ExpiryInterval = time.Second
	}
	if c.RNGStream == "" {
		c.RNGStream = "aegis-sdn-traffic"
	}
}

// Validate checks that hosts, links and traffic reference known elements.
func (c Config) Validate() error {
	switches := map[domain.DPID]map[uint32]bool{}
	for _, s := range c.Switches {
		if s.DPID == 0 {
			return fmt.Errorf("emulator.switches: dpid must be non-zero")
		}
		if _, dup := switches[s.DPID]; dup {
			return fmt.Errorf("emulator.switches: duplicate dpid %s", s.DPID)
		}
		switches[s.DPID] = map[uint32]bool{}
	}
	usePort := func(dpid domain.DPID, port uint32, what string) error {
		ports, ok := switches[dpid]
		if !ok {
			return fmt.Errorf("emulator.%s: unknown switch %s", what, dpid)
		}
		if port == 0 || port >= domain.PortFlood {
			return fmt.Errorf("emulator.%s: invalid port %d on switch %s", what, port, dpid)
		}
		if ports[port] {
			return fmt.Errorf("emulator.%s: port %d on switch %s already in use", what, port, dpid)
		}
		ports[port] = true
		return nil
	}

	hosts := map[string]bool{}
	for _, h := range c.Hosts {
		if h.Name == "" || h.MAC == "" {
			return fmt.Errorf("emulator.hosts: name and mac are required")
		}
		if hosts[h.Name] {
			return fmt.Errorf("emulator.hosts: duplicate host %s", h.Name)
		}
		hosts[h.Name] = true
		if err := usePort(h.Switch, h.Port, "hosts"); err != nil {
			return err
		}
	}
	for _, l := range c.Links {
		if err := usePort(l.A, l.APort, "links"); err != nil {
			return err
		}
		if err := usePort(l.B, l.BPort, "links"); err != nil {
			return err
		}
	}
	for _, t := range c.Traffic {
		if !hosts[t.Src] || !hosts[t.Dst] {
			return fmt.Errorf("emulator.traffic: unknown host in %s -> %s", t.Src, t.Dst)
		}
		switch t.Proto {
		case "tcp", "udp", "icmp":
		default:
			return fmt.Errorf("emulator.traffic: unsupported proto %q", t.Proto)
		}
		if t.Rate < 0 {
			return fmt.Errorf("emulator.traffic: rate must be >= 0")
		}
	}
	return nil
}
