package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// DPID identifies a datapath (switch). It is unique per physical or virtual switch.
type DPID uint64

func (d DPID) String() string { return strconv.FormatUint(uint64(d), 10) }

// ParseDPID accepts decimal or 0x-prefixed hexadecimal datapath ids.
func ParseDPID(s string) (DPID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid dpid %q: %w", s, err)
	}
	return DPID(v), nil
}

// ControllerID names a control-plane instance.
type ControllerID string

// Reserved ports and buffer ids (OpenFlow 1.3 numbering).
const (
	PortFlood      uint32 = 0xfffffffb
	PortController uint32 = 0xfffffffd
	PortAny        uint32 = 0xffffffff

	NoBuffer uint32 = 0xffffffff

	// ControllerNoBufferLen asks the switch to send the whole packet to the controller.
	ControllerNoBufferLen uint16 = 0xffff
)

// Header constants used by the classifier and the packet-in path.
const (
	EthTypeIPv4 uint16 = 0x0800
	EthTypeARP  uint16 = 0x0806
	EthTypeLLDP uint16 = 0x88cc

	IPProtoICMP uint8 = 1
	IPProtoTCP  uint8 = 6
	IPProtoUDP  uint8 = 17
)

// Match selects packets on a switch. Zero-valued fields are wildcards.
type Match struct {
	InPort    uint32 `json:"in_port,omitempty"`
	EthSrc    string `json:"eth_src,omitempty"`
	EthDst    string `json:"eth_dst,omitempty"`
	EthType   uint16 `json:"eth_type,omitempty"`
	IPProto   uint8  `json:"ip_proto,omitempty"`
	L4DstPort uint16 `json:"l4_dst_port,omitempty"`
}

// IsEmpty reports whether m is the catch-all match.
func (m Match) IsEmpty() bool { return m == Match{} }

// Matches reports whether a packet received on inPort is selected by m.
func (m Match) Matches(inPort uint32, p Packet) bool {
	if m.InPort != 0 && m.InPort != inPort {
		return false
	}
	if m.EthSrc != "" && !strings.EqualFold(m.EthSrc, p.EthSrc) {
		return false
	}
	if m.EthDst != "" && !strings.EqualFold(m.EthDst, p.EthDst) {
		return false
	}
	if m.EthType != 0 && m.EthType != p.EthType {
		return false
	}
	if m.IPProto != 0 && (p.IPv4 == nil || p.IPv4.Proto != m.IPProto) {
		return false
	}
	if m.L4DstPort != 0 {
		port, ok := p.DstPort()
		if !ok || port != m.L4DstPort {
			return false
		}
	}
	return true
}

type ActionType uint8

const (
	ActionOutput ActionType = iota + 1
	ActionSetQueue
)

// Action is one entry of an apply-actions instruction.
type Action struct {
	Type   ActionType `json:"type"`
	Port   uint32     `json:"port,omitempty"`
	MaxLen uint16     `json:"max_len,omitempty"`
	Queue  uint32     `json:"queue,omitempty"`
}

func Output(port uint32) Action { return Action{Type: ActionOutput, Port: port} }

func OutputController(maxLen uint16) Action {
	return Action{Type: ActionOutput, Port: PortController, MaxLen: maxLen}
}

func SetQueue(queue uint32) Action { return Action{Type: ActionSetQueue, Queue: queue} }

func (a Action) String() string {
	switch a.Type {
	case ActionSetQueue:
		return "set_queue:" + strconv.FormatUint(uint64(a.Queue), 10)
	case ActionOutput:
		switch a.Port {
		case PortFlood:
			return "FLOOD"
		case PortController:
			return "CONTROLLER:" + strconv.FormatUint(uint64(a.MaxLen), 10)
		default:
			return "output:" + strconv.FormatUint(uint64(a.Port), 10)
		}
	default:
		return "unknown"
	}
}

// FlowMod is an add-flow command for a single switch table.
type FlowMod struct {
	Match       Match    `json:"match"`
	Actions     []Action `json:"actions"`
	Priority    uint16   `json:"priority"`
	IdleTimeout uint16   `json:"idle_timeout,omitempty"`
	HardTimeout uint16   `json:"hard_timeout,omitempty"`
	BufferID    uint32   `json:"buffer_id"`
}

// FlowStat is one per-rule counter from a flow-statistics reply.
type FlowStat struct {
	Match       Match  `json:"match"`
	Priority    uint16 `json:"priority"`
	PacketCount uint64 `json:"packet_count"`
	ByteCount   uint64 `json:"byte_count"`
}

type FlowStatsReply struct {
	DPID  DPID       `json:"dpid"`
	Stats []FlowStat `json:"stats"`
}
