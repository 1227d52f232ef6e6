package classify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ghalamif/AegisSDN/internal/domain"
)

func ipv4(proto uint8) *domain.IPv4 {
	return &domain.IPv4{Src: "10.0.0.1", Dst: "10.0.0.2", Proto: proto}
}

func TestTier(t *testing.T) {
	tests := []struct {
		name string
		pkt  domain.Packet
		want domain.Tier
	}{
		{name: "arp has no network header", pkt: domain.Packet{EthType: domain.EthTypeARP}, want: domain.TierLow},
		{name: "https", pkt: domain.Packet{IPv4: ipv4(domain.IPProtoTCP), TCP: &domain.L4{DstPort: 443}}, want: domain.TierHigh},
		{name: "http", pkt: domain.Packet{IPv4: ipv4(domain.IPProtoTCP), TCP: &domain.L4{DstPort: 80}}, want: domain.TierHigh},
		{name: "ssh", pkt: domain.Packet{IPv4: ipv4(domain.IPProtoTCP), TCP: &domain.L4{DstPort: 22}}, want: domain.TierMedium},
		{name: "tcp without header", pkt: domain.Packet{IPv4: ipv4(domain.IPProtoTCP)}, want: domain.TierMedium},
		{name: "http source port only", pkt: domain.Packet{IPv4: ipv4(domain.IPProtoTCP), TCP: &domain.L4{SrcPort: 80, DstPort: 51000}}, want: domain.TierMedium},
		{name: "dns", pkt: domain.Packet{IPv4: ipv4(domain.IPProtoUDP), UDP: &domain.L4{DstPort: 53}}, want: domain.TierHigh},
		{name: "udp other", pkt: domain.Packet{IPv4: ipv4(domain.IPProtoUDP), UDP: &domain.L4{DstPort: 5001}}, want: domain.TierLow},
		{name: "udp without header", pkt: domain.Packet{IPv4: ipv4(domain.IPProtoUDP)}, want: domain.TierLow},
		{name: "icmp echo", pkt: domain.Packet{IPv4: ipv4(domain.IPProtoICMP), ICMP: &domain.ICMP{Type: 8}}, want: domain.TierMedium},
		{name: "gre", pkt: domain.Packet{IPv4: ipv4(47)}, want: domain.TierLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Tier(tt.pkt))
		})
	}
}

func TestPacketIsPure(t *testing.T) {
	pkt := domain.Packet{IPv4: ipv4(domain.IPProtoTCP), TCP: &domain.L4{DstPort: 443}}
	first := Packet(pkt)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Packet(pkt))
	}
	require.Equal(t, Result{Tier: domain.TierHigh, Queue: QueueHigh}, first)
	require.Equal(t, uint16(30), domain.TierPriority(first.Tier).Resolve())
}

func TestQueueBijection(t *testing.T) {
	seen := map[QueueID]domain.Tier{}
	for _, tier := range []domain.Tier{domain.TierHigh, domain.TierMedium, domain.TierLow} {
		q := Queue(tier)
		require.Contains(t, []QueueID{1, 2, 3}, q)
		_, dup := seen[q]
		require.False(t, dup, "queue %d assigned twice", q)
		seen[q] = tier
	}
	require.Equal(t, QueueHigh, Queue(domain.TierHigh))
	require.Equal(t, QueueMedium, Queue(domain.TierMedium))
	require.Equal(t, QueueLow, Queue(domain.TierLow))
}
