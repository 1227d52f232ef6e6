package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Tier is the priority class of a flow or a switch. The zero value is TierLow.
type Tier uint8

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

// Numeric rule priorities for each tier.
const (
	PriorityTableMiss uint16 = 0
	PriorityLow       uint16 = 10
	PriorityMedium    uint16 = 20
	PriorityHigh      uint16 = 30
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "HIGH"
	case TierMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Priority resolves the tier to its installed rule priority.
func (t Tier) Priority() uint16 {
	switch t {
	case TierHigh:
		return PriorityHigh
	case TierMedium:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH":
		return TierHigh, nil
	case "MEDIUM":
		return TierMedium, nil
	case "LOW":
		return TierLow, nil
	default:
		return TierLow, fmt.Errorf("unknown tier %q", s)
	}
}

func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Priority is either a tier label or a raw rule priority. Resolve turns it into
// the number installed on the switch.
type Priority struct {
	tier  Tier
	value uint16
	raw   bool
}

func TierPriority(t Tier) Priority { return Priority{tier: t} }

func RawPriority(v uint16) Priority { return Priority{value: v, raw: true} }

func (p Priority) Resolve() uint16 {
	if p.raw {
		return p.value
	}
	return p.tier.Priority()
}

// Tier returns the tier label, if p was built from one.
func (p Priority) Tier() (Tier, bool) {
	if p.raw {
		return TierLow, false
	}
	return p.tier, true
}

func (p Priority) String() string {
	if p.raw {
		return strconv.FormatUint(uint64(p.value), 10)
	}
	return p.tier.String()
}
