package pipeline

import (
	"context"
	"time"

	"github.com/ghalamif/AegisSDN/internal/classify"
	"github.com/ghalamif/AegisSDN/internal/domain"
	"github.com/ghalamif/AegisSDN/internal/flowrec"
	"github.com/ghalamif/AegisSDN/internal/install"
	"github.com/ghalamif/AegisSDN/internal/ports"
	"github.com/ghalamif/AegisSDN/internal/registry"
	"github.com/ghalamif/AegisSDN/internal/sampler"
)

// DispatcherDeps wires the forwarding path.
type DispatcherDeps struct {
	Registry    *registry.Registry
	Records     *flowrec.Table
	Installer   *install.Installer
	Sampler     *sampler.Sampler
	Southbound  ports.Southbound
	Obs         ports.Observability
	Emitter     ports.EventEmitter
	IdleTimeout uint16
	HardTimeout uint16
	Now         func() time.Time
}

// Dispatcher handles substrate events: switch lifecycle, packet-ins and
// statistics replies.
type Dispatcher struct {
	d DispatcherDeps
}

func NewDispatcher(d DispatcherDeps) *Dispatcher {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Dispatcher{d: d}
}

func (p *Dispatcher) SwitchConnected(ctx context.Context, info domain.SwitchInfo) {
	owner, reconnect := p.d.Registry.ConnectSwitch(info)
	purged := p.d.Records.PurgeSwitch(info.DPID)
	p.d.Sampler.Forget(info.DPID)

	p.d.Obs.LogInfo("switch_connected",
		ports.F("dpid", info.DPID),
		ports.F("owner", owner),
		ports.F("reconnect", reconnect),
		ports.F("purged_records", purged))
	p.emit(domain.EventSwitchConnected, info.DPID, owner)

	if err := p.d.Installer.InstallTableMiss(ctx, info.DPID); err != nil {
		p.d.Obs.LogError("table_miss_install_failed", err, ports.F("dpid", info.DPID))
	}
}

func (p *Dispatcher) SwitchDisconnected(_ context.Context, dpid domain.DPID) {
	owner, _ := p.d.Registry.Owner(dpid)
	if !p.d.Registry.DisconnectSwitch(dpid) {
		return
	}
	purged := p.d.Records.PurgeSwitch(dpid)
	p.d.Sampler.Forget(dpid)

	p.d.Obs.LogInfo("switch_disconnected", ports.F("dpid", dpid), ports.F("purged_records", purged))
	p.emit(domain.EventSwitchDisconnected, dpid, owner)
}

// PacketIn learns the source MAC, classifies the packet, installs a rule when
// the destination is known and always forwards the packet itself.
func (p *Dispatcher) PacketIn(ctx context.Context, pi domain.PacketIn) {
	pkt := pi.Packet
	if pkt.EthType == domain.EthTypeLLDP {
		return
	}
	p.d.Obs.IncCounter(ports.MetricPacketIn, 1)

	if !p.d.Registry.LearnMAC(pi.DPID, pkt.EthSrc, pi.InPort) {
		p.d.Obs.LogWarn("packet_in_unknown_switch", ports.F("dpid", pi.DPID))
		return
	}

	out := domain.PortFlood
	if port, ok := p.d.Registry.LookupMAC(pi.DPID, pkt.EthDst); ok {
		out = port
	}
	class := classify.Packet(pkt)
	actions := []domain.Action{domain.SetQueue(uint32(class.Queue)), domain.Output(out)}

	if out != domain.PortFlood {
		// Failures are logged and counted by the installer; forwarding goes on.
		_ = p.d.Installer.Install(ctx, install.Request{
			DPID:        pi.DPID,
			Match:       domain.Match{InPort: pi.InPort, EthDst: pkt.EthDst, EthSrc: pkt.EthSrc},
			Priority:    domain.TierPriority(class.Tier),
			Actions:     actions,
			IdleTimeout: p.d.IdleTimeout,
			HardTimeout: p.d.HardTimeout,
			BufferID:    pi.BufferID,
		})
	}

	po := domain.PacketOut{BufferID: pi.BufferID, InPort: pi.InPort, Actions: actions}
	if pi.BufferID == domain.NoBuffer {
		po.Data = pi.Data
	}
	if err := p.d.Southbound.SendPacket(ctx, pi.DPID, po); err != nil {
		p.d.Obs.IncCounter(ports.MetricPacketOutFailures, 1)
		p.d.Obs.LogError("packet_out_failed", err, ports.F("dpid", pi.DPID), ports.F("in_port", pi.InPort))
	}
}

func (p *Dispatcher) FlowStatsReply(_ context.Context, reply domain.FlowStatsReply) {
	p.d.Sampler.HandleStatsReply(reply)
}

func (p *Dispatcher) emit(kind domain.EventKind, dpid domain.DPID, controller domain.ControllerID) {
	if p.d.Emitter == nil {
		return
	}
	e := domain.NewEvent(kind, p.d.Now())
	e.DPID = dpid
	e.Controller = controller
	p.d.Emitter.Emit(e)
}

var _ ports.EventHandler = (*Dispatcher)(nil)
