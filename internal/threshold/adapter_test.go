package threshold

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdaptScenario(t *testing.T) {
	a := New(DefaultInitial, DefaultFactor)
	u := a.Adapt([]uint64{100, 10, 5})

	require.Equal(t, uint64(57), u.New)
	require.Equal(t, DefaultInitial, u.Old)
	require.True(t, u.Changed)
	require.InDelta(t, 38.333, u.Mean, 0.001)
	require.Equal(t, uint64(57), a.Value())
}

func TestAdaptWithoutLoadsKeepsThreshold(t *testing.T) {
	a := New(DefaultInitial, DefaultFactor)
	u := a.Adapt(nil)
	require.False(t, u.Changed)
	require.Equal(t, DefaultInitial, a.Value())
}

func TestAdaptIsOrderIndependentAndIdempotent(t *testing.T) {
	orders := [][]uint64{
		{100, 10, 5},
		{5, 10, 100},
		{10, 100, 5},
	}
	a := New(0, DefaultFactor)
	for _, loads := range orders {
		a.Adapt(loads)
		require.Equal(t, uint64(57), a.Value())
	}
	u := a.Adapt([]uint64{5, 100, 10})
	require.False(t, u.Changed)
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name   string
		loads  []uint64
		factor float64
		want   uint64
	}{
		{name: "all zero", loads: []uint64{0, 0}, factor: 1.5, want: 0},
		{name: "single", loads: []uint64{3}, factor: 1.5, want: 4},
		{name: "floor", loads: []uint64{1, 2}, factor: 1.5, want: 2},
		{name: "custom factor", loads: []uint64{10, 20}, factor: 2, want: 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Compute(tt.loads, tt.factor)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNewFallsBackToDefaultFactor(t *testing.T) {
	require.Equal(t, DefaultFactor, New(0, 0).Factor())
}
