package domain

// Packet holds the decoded headers of a data-plane frame. Nil layers are absent.
type Packet struct {
	EthSrc  string `json:"eth_src"`
	EthDst  string `json:"eth_dst"`
	EthType uint16 `json:"eth_type"`
	IPv4    *IPv4  `json:"ipv4,omitempty"`
	TCP     *L4    `json:"tcp,omitempty"`
	UDP     *L4    `json:"udp,omitempty"`
	ICMP    *ICMP  `json:"icmp,omitempty"`
	Length  int    `json:"length,omitempty"`
}

type IPv4 struct {
	Src   string `json:"src"`
	Dst   string `json:"dst"`
	Proto uint8  `json:"proto"`
}

type L4 struct {
	SrcPort uint16 `json:"src_port"`
	DstPort uint16 `json:"dst_port"`
}

type ICMP struct {
	Type uint8 `json:"type"`
	Code uint8 `json:"code"`
}

// DstPort returns the TCP or UDP destination port, if any.
func (p Packet) DstPort() (uint16, bool) {
	switch {
	case p.TCP != nil:
		return p.TCP.DstPort, true
	case p.UDP != nil:
		return p.UDP.DstPort, true
	default:
		return 0, false
	}
}

// PacketIn is a packet delivered to the controller by a switch.
type PacketIn struct {
	DPID     DPID   `json:"dpid"`
	InPort   uint32 `json:"in_port"`
	BufferID uint32 `json:"buffer_id"`
	Packet   Packet `json:"packet"`
	Data     []byte `json:"data,omitempty"`
}

// PacketOut asks a switch to emit a buffered or raw packet.
type PacketOut struct {
	BufferID uint32   `json:"buffer_id"`
	InPort   uint32   `json:"in_port"`
	Actions  []Action `json:"actions"`
	Data     []byte   `json:"data,omitempty"`
}

// SwitchInfo describes a switch session reported by the substrate on connect.
type SwitchInfo struct {
	DPID DPID `json:"dpid"`
	// Controller is the instance the switch session terminates on. Empty means
	// the local controller.
	Controller ControllerID `json:"controller,omitempty"`
}
