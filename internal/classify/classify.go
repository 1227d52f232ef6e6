// Package classify maps decoded packet headers to a priority tier and QoS queue.
package classify

import "github.com/ghalamif/AegisSDN/internal/domain"

// QueueID is an egress scheduling class on the switch.
type QueueID uint32

const (
	QueueHigh   QueueID = 1
	QueueMedium QueueID = 2
	QueueLow    QueueID = 3
)

// Result is the outcome of classifying one packet.
type Result struct {
	Tier  domain.Tier
	Queue QueueID
}

// Packet classifies p and resolves its queue.
func Packet(p domain.Packet) Result {
	tier := Tier(p)
	return Result{Tier: tier, Queue: Queue(tier)}
}

// Tier evaluates the classification rules in order; the first match wins.
func Tier(p domain.Packet) domain.Tier {
	if p.IPv4 == nil {
		return domain.TierLow
	}
	switch p.IPv4.Proto {
	case domain.IPProtoTCP:
		if p.TCP != nil && (p.TCP.DstPort == 80 || p.TCP.DstPort == 443) {
			return domain.TierHigh
		}
		return domain.TierMedium
	case domain.IPProtoUDP:
		if p.UDP != nil && p.UDP.DstPort == 53 {
			return domain.TierHigh
		}
		return domain.TierLow
	case domain.IPProtoICMP:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

// Queue is the fixed tier to queue bijection.
func Queue(t domain.Tier) QueueID {
	switch t {
	case domain.TierHigh:
		return QueueHigh
	case domain.TierMedium:
		return QueueMedium
	default:
		return QueueLow
	}
}
