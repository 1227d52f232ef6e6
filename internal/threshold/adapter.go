// Package threshold derives the controller overload threshold from the current
// load distribution.
package threshold

import (
	"math"
	"slices"
	"sync/atomic"

	"gonum.org/v1/gonum/stat"
)

const (
	DefaultInitial uint64  = 1_000_000
	DefaultFactor  float64 = 1.5
)

// Update describes the outcome of one adaptation.
type Update struct {
	Old     uint64
	New     uint64
	Mean    float64
	Changed bool
}

// Adapter holds the process-wide threshold. Value is safe to call from any
// goroutine; Adapt is called once per monitoring round.
type Adapter struct {
	factor float64
	value  atomic.Uint64
}

func New(initial uint64, factor float64) *Adapter {
	if factor <= 0 {
		factor = DefaultFactor
	}
	a := &Adapter{factor: factor}
	a.value.Store(initial)
	return a
}

func (a *Adapter) Value() uint64 { return a.value.Load() }

func (a *Adapter) Factor() float64 { return a.factor }

// Compute returns floor(mean(loads) × factor) and the mean. Loads are sorted
// first so the result does not depend on their order.
func Compute(loads []uint64, factor float64) (uint64, float64) {
	xs := make([]float64, len(loads))
	for i, l := range loads {
		xs[i] = float64(l)
	}
	slices.Sort(xs)
	mean := stat.Mean(xs, nil)
	v := math.Floor(mean * factor)
	if v < 0 || math.IsNaN(v) {
		v = 0
	}
	return uint64(v), mean
}

// Adapt recomputes the threshold from this round's loads. With no loads the
// threshold is left unchanged.
func (a *Adapter) Adapt(loads []uint64) Update {
	old := a.value.Load()
	if len(loads) == 0 {
		return Update{Old: old, New: old}
	}
	next, mean := Compute(loads, a.factor)
	a.value.Store(next)
	return Update{Old: old, New: next, Mean: mean, Changed: next != old}
}
