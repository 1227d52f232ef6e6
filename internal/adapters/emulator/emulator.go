package emulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/buraksezer/consistent"
	"github.com/iti/rngstream"
	"github.com/rs/zerolog"

	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/ports"
)

var (
	ErrSwitchNotConnected = errors.New("emulator: switch not connected")
	ErrUnknownSwitch      = errors.New("emulator: unknown switch")
	ErrUnknownBuffer      = errors.New("emulator: unknown buffer id")
	ErrUnknownHost        = errors.New("emulator: unknown host")
	ErrNotStarted         = errors.New("emulator: not started")
)

type Option func(*Emulator)

func WithClock(now func() time.Time) Option { return func(e *Emulator) { e.now = now } }

func WithLogger(l zerolog.Logger) Option {
	return func(e *Emulator) { e.logger = l.With().Str("layer", "emulator").Logger() }
}

type peer struct {
	host string
	dpid domain.DPID
	port uint32
}

type flowEntry struct {
	mod       domain.FlowMod
	packets   uint64
	bytes     uint64
	installed time.Time
	lastHit   time.Time
}

type buffered struct {
	inPort uint32
	pkt    domain.Packet
}

type vswitch struct {
	dpid       domain.DPID
	controller domain.ControllerID
	connected  bool
	flows      []*flowEntry
	buffers    map[uint32]buffered
	ports      map[uint32]peer
	queued     map[uint32]uint64
}

// lookup returns the highest-priority entry matching the packet. Among equal
// priorities the earliest installed wins.
func (s *vswitch) lookup(inPort uint32, pkt domain.Packet) *flowEntry {
	var best *flowEntry
	for _, f := range s.flows {
		if !f.mod.Match.Matches(inPort, pkt) {
			continue
		}
		if best == nil || f.mod.Priority > best.mod.Priority {
			best = f
		}
	}
	return best
}

// Emulator is an in-process data plane. It implements ports.Substrate for the
// controller and ports.MigrationNotifier for the migration engine.
type Emulator struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
	ring   *consistent.Consistent

	mu        sync.Mutex
	switches  map[domain.DPID]*vswitch
	hosts     map[string]HostConfig
	delivered map[string]uint64
	nextBuf   uint32
	handler   ports.EventHandler
	runCtx    context.Context
	cancel    context.CancelFunc
	stopped   bool
	wg        sync.WaitGroup

	rngMu sync.Mutex
	rng   *rngstream.RngStream
}

func New(cfg Config, opts ...Option) (*Emulator, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Emulator{
		cfg:       cfg,
		logger:    zerolog.Nop(),
		now:       time.Now,
		switches:  make(map[domain.DPID]*vswitch, len(cfg.Switches)),
		hosts:     make(map[string]HostConfig, len(cfg.Hosts)),
		delivered: make(map[string]uint64, len(cfg.Hosts)),
		rng:       rngstream.New(cfg.RNGStream),
	}
	for _, o := range opts {
		o(e)
	}

	if len(cfg.Controllers) > 0 {
		members := make([]consistent.Member, 0, len(cfg.Controllers))
		for _, id := range cfg.Controllers {
			members = append(members, member(id))
		}
		e.ring = consistent.New(members, consistent.Config{
			PartitionCount:    271,
			ReplicationFactor: 20,
			Load:              1.25,
			Hasher:            hasher{},
		})
	}

	for _, s := range cfg.Switches {
		sw := &vswitch{
			dpid:       s.DPID,
			controller: s.Controller,
			buffers:    map[uint32]buffered{},
			ports:      map[uint32]peer{},
			queued:     map[uint32]uint64{},
		}
		if sw.controller == "" {
			sw.controller = e.place(s.DPID)
		}
		e.switches[s.DPID] = sw
	}
	for _, h := range cfg.Hosts {
		e.hosts[h.Name] = h
		e.switches[h.Switch].ports[h.Port] = peer{host: h.Name}
	}
	for _, l := range cfg.Links {
		e.switches[l.A].ports[l.APort] = peer{dpid: l.B, port: l.BPort}
		e.switches[l.B].ports[l.BPort] = peer{dpid: l.A, port: l.APort}
	}
	return e, nil
}

// HomeController returns the controller a switch session terminates on.
func (e *Emulator) HomeController(dpid domain.DPID) (domain.ControllerID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sw, ok := e.switches[dpid]
	if !ok {
		return "", false
	}
	return sw.controller, true
}

func (e *Emulator) place(dpid domain.DPID) domain.ControllerID {
	if e.ring == nil {
		return ""
	}
	m := e.ring.LocateKey([]byte(dpid.String()))
	if m == nil {
		return ""
	}
	return domain.ControllerID(m.String())
}

func (e *Emulator) Start(ctx context.Context, h ports.EventHandler) error {
	if h == nil {
		return errors.New("emulator: nil event handler")
	}
	e.mu.Lock()
	if e.handler != nil {
		e.mu.Unlock()
		return errors.New("emulator: already started")
	}
	e.handler = h
	e.runCtx, e.cancel = context.WithCancel(ctx)
	runCtx := e.runCtx
	dpids := e.dpidsLocked()
	e.mu.Unlock()

	for _, dpid := range dpids {
		if err := e.ConnectSwitch(runCtx, dpid); err != nil {
			return err
		}
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.wg.Add(1 + len(e.cfg.Traffic))
	e.mu.Unlock()

	go e.expiryLoop(runCtx)
	for _, t := range e.cfg.Traffic {
		go e.generate(runCtx, t)
	}
	e.logger.Info().Int("switches", len(dpids)).Int("hosts", len(e.hosts)).Int("streams", len(e.cfg.Traffic)).Msg("emulator_started")
	return nil
}

func (e *Emulator) Stop() error {
	e.mu.Lock()
	if e.stopped || e.cancel == nil {
		e.stopped = true
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.cancel()
	e.mu.Unlock()

	e.wg.Wait()
	return nil
}

// ConnectSwitch opens the session of a switch and reports it to the controller.
func (e *Emulator) ConnectSwitch(ctx context.Context, dpid domain.DPID) error {
	e.mu.Lock()
	sw, ok := e.switches[dpid]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSwitch, dpid)
	}
	h := e.handler
	if h == nil {
		e.mu.Unlock()
		return ErrNotStarted
	}
	if sw.connected {
		e.mu.Unlock()
		return nil
	}
	sw.connected = true
	info := domain.SwitchInfo{DPID: dpid, Controller: sw.controller}
	e.mu.Unlock()

	h.SwitchConnected(ctx, info)
	return nil
}

// DisconnectSwitch closes the session. The switch loses its flow table and
// buffered packets.
func (e *Emulator) DisconnectSwitch(ctx context.Context, dpid domain.DPID) error {
	e.mu.Lock()
	sw, ok := e.switches[dpid]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSwitch, dpid)
	}
	h := e.handler
	if !sw.connected || h == nil {
		e.mu.Unlock()
		return nil
	}
	sw.connected = false
	sw.flows = nil
	sw.buffers = map[uint32]buffered{}
	e.mu.Unlock()

	h.SwitchDisconnected(ctx, dpid)
	return nil
}

func (e *Emulator) connectedLocked(dpid domain.DPID) (*vswitch, error) {
	sw, ok := e.switches[dpid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSwitch, dpid)
	}
	if !sw.connected {
		return nil, fmt.Errorf("%w: %s", ErrSwitchNotConnected, dpid)
	}
	return sw, nil
}

// InstallFlow adds a rule. A rule with the same match and priority is
// replaced and its counters reset.
func (e *Emulator) InstallFlow(_ context.Context, dpid domain.DPID, mod domain.FlowMod) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	sw, err := e.connectedLocked(dpid)
	if err != nil {
		return err
	}
	if len(mod.Actions) == 0 && !mod.Match.IsEmpty() {
		return fmt.Errorf("emulator: rule on switch %s has no actions", dpid)
	}

	now := e.now()
	mod.Actions = append([]domain.Action(nil), mod.Actions...)
	entry := &flowEntry{mod: mod, installed: now, lastHit: now}
	for i, f := range sw.flows {
		if f.mod.Priority == mod.Priority && f.mod.Match == mod.Match {
			sw.flows[i] = entry
			return nil
		}
	}
	sw.flows = append(sw.flows, entry)
	return nil
}

// SendPacket releases a buffered packet, or injects the JSON-encoded packet in
// Data when BufferID is NoBuffer, and applies the actions to it.
func (e *Emulator) SendPacket(ctx context.Context, dpid domain.DPID, out domain.PacketOut) error {
	e.mu.Lock()
	sw, err := e.connectedLocked(dpid)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	var pkt domain.Packet
	if out.BufferID != domain.NoBuffer {
		b, ok := sw.buffers[out.BufferID]
		if !ok {
			e.mu.Unlock()
			return fmt.Errorf("%w: %d on switch %s", ErrUnknownBuffer, out.BufferID, dpid)
		}
		delete(sw.buffers, out.BufferID)
		pkt = b.pkt
	} else if err := json.Unmarshal(out.Data, &pkt); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("emulator: decode packet-out payload: %w", err)
	}
	e.mu.Unlock()

	e.apply(ctx, dpid, out.InPort, pkt, out.Actions, 0)
	return nil
}

// RequestFlowStats snapshots the counters now and delivers the reply after
// StatsDelay on a separate goroutine.
func (e *Emulator) RequestFlowStats(_ context.Context, dpid domain.DPID) error {
	e.mu.Lock()
	sw, err := e.connectedLocked(dpid)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if e.stopped {
		e.mu.Unlock()
		return ErrNotStarted
	}
	reply := domain.FlowStatsReply{DPID: dpid, Stats: make([]domain.FlowStat, 0, len(sw.flows))}
	for _, f := range sw.flows {
		reply.Stats = append(reply.Stats, domain.FlowStat{
			Match:       f.mod.Match,
			Priority:    f.mod.Priority,
			PacketCount: f.packets,
			ByteCount:   f.bytes,
		})
	}
	h, runCtx := e.handler, e.runCtx
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		t := time.NewTimer(e.cfg.StatsDelay)
		defer t.Stop()
		select {
		case <-runCtx.Done():
			return
		case <-t.C:
		}
		h.FlowStatsReply(runCtx, reply)
	}()
	return nil
}

// NotifyMigration re-homes the switch session on the new controller.
func (e *Emulator) NotifyMigration(_ context.Context, m domain.Migration) error {
	e.mu.Lock()
	sw, ok := e.switches[m.DPID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSwitch, m.DPID)
	}
	prev := sw.controller
	sw.controller = m.To
	e.mu.Unlock()

	e.logger.Info().
		Uint64("dpid", uint64(m.DPID)).
		Str("from", string(prev)).
		Str("to", string(m.To)).
		Msg("switch_rehomed")
	return nil
}

// Inject sends a packet from a host into its access switch.
func (e *Emulator) Inject(ctx context.Context, hostName string, pkt domain.Packet) error {
	e.mu.Lock()
	h, ok := e.hosts[hostName]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHost, hostName)
	}
	e.receive(ctx, h.Switch, h.Port, pkt, 0)
	return nil
}

func (e *Emulator) receive(ctx context.Context, dpid domain.DPID, inPort uint32, pkt domain.Packet, hops int) {
	if hops > e.cfg.MaxHops {
		return
	}
	e.mu.Lock()
	sw, ok := e.switches[dpid]
	if !ok || !sw.connected {
		e.mu.Unlock()
		return
	}
	entry := sw.lookup(inPort, pkt)
	if entry == nil {
		e.mu.Unlock()
		return
	}
	entry.packets++
	entry.bytes += uint64(pkt.Length)
	entry.lastHit = e.now()
	actions := append([]domain.Action(nil), entry.mod.Actions...)
	e.mu.Unlock()

	e.apply(ctx, dpid, inPort, pkt, actions, hops)
}

func (e *Emulator) apply(ctx context.Context, dpid domain.DPID, inPort uint32, pkt domain.Packet, actions []domain.Action, hops int) {
	for _, a := range actions {
		switch a.Type {
		case domain.ActionSetQueue:
			e.mu.Lock()
			if sw, ok := e.switches[dpid]; ok {
				sw.queued[a.Queue]++
			}
			e.mu.Unlock()
		case domain.ActionOutput:
			switch a.Port {
			case domain.PortController:
				e.toController(ctx, dpid, inPort, pkt)
			case domain.PortFlood, domain.PortAny:
				for _, port := range e.floodPorts(dpid, inPort) {
					e.emit(ctx, dpid, port, pkt, hops)
				}
			default:
				e.emit(ctx, dpid, a.Port, pkt, hops)
			}
		}
	}
}

func (e *Emulator) floodPorts(dpid domain.DPID, inPort uint32) []uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	sw, ok := e.switches[dpid]
	if !ok {
		return nil
	}
	out := make([]uint32, 0, len(sw.ports))
	for port := range sw.ports {
		if port != inPort {
			out = append(out, port)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *Emulator) emit(ctx context.Context, dpid domain.DPID, port uint32, pkt domain.Packet, hops int) {
	e.mu.Lock()
	sw, ok := e.switches[dpid]
	if !ok {
		e.mu.Unlock()
		return
	}
	p, ok := sw.ports[port]
	if !ok {
		e.mu.Unlock()
		return
	}
	if p.host != "" {
		if h := e.hosts[p.host]; strings.EqualFold(h.MAC, pkt.EthDst) {
			e.delivered[p.host]++
		}
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.receive(ctx, p.dpid, p.port, pkt, hops+1)
}

func (e *Emulator) toController(ctx context.Context, dpid domain.DPID, inPort uint32, pkt domain.Packet) {
	e.mu.Lock()
	sw, ok := e.switches[dpid]
	h := e.handler
	if !ok || h == nil {
		e.mu.Unlock()
		return
	}
	pi := domain.PacketIn{DPID: dpid, InPort: inPort, BufferID: domain.NoBuffer, Packet: pkt}
	if len(sw.buffers) < e.cfg.BufferCapacity {
		pi.BufferID = e.allocBufferLocked()
		sw.buffers[pi.BufferID] = buffered{inPort: inPort, pkt: pkt}
	} else if data, err := json.Marshal(pkt); err == nil {
		pi.Data = data
	}
	e.mu.Unlock()

	h.PacketIn(ctx, pi)
}

func (e *Emulator) allocBufferLocked() uint32 {
	e.nextBuf++
	if e.nextBuf == 0 || e.nextBuf == domain.NoBuffer {
		e.nextBuf = 1
	}
	return e.nextBuf
}

// ExpireFlows removes rules whose idle or hard timeout has elapsed and returns
// how many were removed. The table-miss rule has no timeouts and never expires.
func (e *Emulator) ExpireFlows() int {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for _, sw := range e.switches {
		kept := sw.flows[:0]
		for _, f := range sw.flows {
			idle := f.mod.IdleTimeout > 0 && now.Sub(f.lastHit) >= time.Duration(f.mod.IdleTimeout)*time.Second
			hard := f.mod.HardTimeout > 0 && now.Sub(f.installed) >= time.Duration(f.mod.HardTimeout)*time.Second
			if idle || hard {
				removed++
				continue
			}
			kept = append(kept, f)
		}
		for i := len(kept); i < len(sw.flows); i++ {
			sw.flows[i] = nil
		}
		sw.flows = kept
	}
	return removed
}

func (e *Emulator) expiryLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.ExpiryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.ExpireFlows(); n > 0 {
				e.logger.Debug().Int("removed", n).Msg("flows_expired")
			}
		}
	}
}

func (e *Emulator) generate(ctx context.Context, t TrafficConfig) {
	defer e.wg.Done()
	if t.Rate <= 0 {
		return
	}
	for {
		timer := time.NewTimer(e.interarrival(t.Rate))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		_ = e.Inject(ctx, t.Src, e.packetFor(t))
	}
}

// interarrival samples an exponential gap for a Poisson stream of the given rate.
func (e *Emulator) interarrival(rate float64) time.Duration {
	e.rngMu.Lock()
	u := e.rng.RandU01()
	e.rngMu.Unlock()
	if u <= 0 {
		u = math.SmallestNonzeroFloat64
	}
	return time.Duration(-math.Log(u) / rate * float64(time.Second))
}

func (e *Emulator) packetFor(t TrafficConfig) domain.Packet {
	e.mu.Lock()
	src, dst := e.hosts[t.Src], e.hosts[t.Dst]
	e.mu.Unlock()

	pkt := domain.Packet{
		EthSrc:  src.MAC,
		EthDst:  dst.MAC,
		EthType: domain.EthTypeIPv4,
		IPv4:    &domain.IPv4{Src: src.IP, Dst: dst.IP},
		Length:  t.Length,
	}
	switch t.Proto {
	case "tcp":
		pkt.IPv4.Proto = domain.IPProtoTCP
		pkt.TCP = &domain.L4{SrcPort: 49152, DstPort: t.DstPort}
	case "udp":
		pkt.IPv4.Proto = domain.IPProtoUDP
		pkt.UDP = &domain.L4{SrcPort: 49152, DstPort: t.DstPort}
	case "icmp":
		pkt.IPv4.Proto = domain.IPProtoICMP
		pkt.ICMP = &domain.ICMP{Type: 8}
	}
	return pkt
}

// Flows returns the rules of a switch ordered by priority, highest first.
func (e *Emulator) Flows(dpid domain.DPID) []domain.FlowStat {
	e.mu.Lock()
	defer e.mu.Unlock()
	sw, ok := e.switches[dpid]
	if !ok {
		return nil
	}
	out := make([]domain.FlowStat, 0, len(sw.flows))
	for _, f := range sw.flows {
		out = append(out, domain.FlowStat{Match: f.mod.Match, Priority: f.mod.Priority, PacketCount: f.packets, ByteCount: f.bytes})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// Delivered returns how many packets addressed to the host reached it.
func (e *Emulator) Delivered(hostName string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.delivered[hostName]
}

// QueueCounts returns per-queue packet counts on a switch.
func (e *Emulator) QueueCounts(dpid domain.DPID) map[uint32]uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := map[uint32]uint64{}
	if sw, ok := e.switches[dpid]; ok {
		for q, n := range sw.queued {
			out[q] = n
		}
	}
	return out
}

func (e *Emulator) dpidsLocked() []domain.DPID {
	out := make([]domain.DPID, 0, len(e.switches))
	for dpid := range e.switches {
		out = append(out, dpid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var (
	_ ports.Substrate         = (*Emulator)(nil)
	_ ports.MigrationNotifier = (*Emulator)(nil)
)
