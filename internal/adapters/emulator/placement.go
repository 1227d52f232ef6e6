package emulator

import "github.com/ghalamif/AegisSDN/internal/domain"

// member is a controller on the placement ring.
type member domain.ControllerID

func (m member) String() string { return string(m) }

// hasher is 64-bit FNV-1a.
type hasher struct{}

func (hasher) Sum64(data []byte) uint64 {
	var hash uint64 = 14695981039346656037
	for _, b := range data {
		hash ^= uint64(b)
		hash *= 1099511628211
	}
	return hash
}
