package ports

import (
	"context"

	"github.com/ghalamif/AegisSDN/internal/domain"
)

// Southbound is the command side of the protocol substrate.
type Southbound interface {
	InstallFlow(ctx context.Context, dpid domain.DPID, mod domain.FlowMod) error
	SendPacket(ctx context.Context, dpid domain.DPID, out domain.PacketOut) error
	// RequestFlowStats asks for per-rule counters. The reply arrives later
	// through EventHandler.FlowStatsReply.
	RequestFlowStats(ctx context.Context, dpid domain.DPID) error
}

// EventHandler receives substrate events. Implementations must be safe for
// concurrent use; the substrate may deliver events from several goroutines.
type EventHandler interface {
	SwitchConnected(ctx context.Context, info domain.SwitchInfo)
	SwitchDisconnected(ctx context.Context, dpid domain.DPID)
	PacketIn(ctx context.Context, pi domain.PacketIn)
	FlowStatsReply(ctx context.Context, reply domain.FlowStatsReply)
}

// Substrate is a protocol engine plus the switches it talks to.
type Substrate interface {
	Southbound
	Start(ctx context.Context, h EventHandler) error
	Stop() error
}

// MigrationNotifier tells the external orchestration layer that a switch
// should re-associate with another controller.
type MigrationNotifier interface {
	NotifyMigration(ctx context.Context, m domain.Migration) error
}

// EventEmitter publishes decision records. Emit must not block.
type EventEmitter interface {
	Emit(e *domain.Event)
}
