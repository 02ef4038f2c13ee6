package cycle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopi-project/canopi-engine/config"
	"github.com/canopi-project/canopi-engine/cycle"
	"github.com/canopi-project/canopi-engine/network"
)

func buildTriangle(t *testing.T) *network.Model {
	t.Helper()
	buses := []network.Bus{{ID: "A", Slack: true}, {ID: "B"}, {ID: "C"}}
	branches := []network.Branch{
		{ID: "AB", From: 0, To: 1, Capacity: 100, Impedance: 0.1},
		{ID: "BC", From: 1, To: 2, Capacity: 100, Impedance: 0.1},
		{ID: "CA", From: 2, To: 0, Capacity: 100, Impedance: 0.1},
	}
	m, err := network.Build(buses, branches, nil, nil, nil)
	require.NoError(t, err)
	return m
}

func buildDiamond(t *testing.T) *network.Model {
	t.Helper()
	buses := []network.Bus{{ID: "0", Slack: true}, {ID: "1"}, {ID: "2"}, {ID: "3"}}
	branches := []network.Branch{
		{ID: "01", From: 0, To: 1, Capacity: 100, Impedance: 0.1},
		{ID: "13", From: 1, To: 3, Capacity: 100, Impedance: 0.1},
		{ID: "02", From: 0, To: 2, Capacity: 100, Impedance: 0.1},
		{ID: "23", From: 2, To: 3, Capacity: 100, Impedance: 0.1},
		{ID: "12", From: 1, To: 2, Capacity: 100, Impedance: 0.1},
	}
	m, err := network.Build(buses, branches, nil, nil, nil)
	require.NoError(t, err)
	return m
}

func TestBuild_TriangleProducesSingleCycle(t *testing.T) {
	net := buildTriangle(t)
	basis, err := cycle.Build(net, config.Defaults())
	require.NoError(t, err)
	assert.Equal(t, 1, basis.NumCycles)
	assert.Equal(t, 3, basis.NumBranches)

	row := basis.Row(0)
	for _, v := range row {
		assert.NotEqual(t, 0.0, v)
	}
}

func TestBuild_DiamondProducesTwoIndependentCycles(t *testing.T) {
	net := buildDiamond(t)
	basis, err := cycle.Build(net, config.Defaults())
	require.NoError(t, err)
	assert.Equal(t, 2, basis.NumCycles)
	assert.Equal(t, 5, basis.NumBranches)
}

func TestBuild_EntriesAreSignedUnitOrZero(t *testing.T) {
	net := buildDiamond(t)
	basis, err := cycle.Build(net, config.Defaults())
	require.NoError(t, err)
	for k := 0; k < basis.NumCycles; k++ {
		for _, v := range basis.Row(k) {
			assert.Contains(t, []float64{-1, 0, 1}, v)
		}
	}
}

// TestBuild_OrthogonalToIncidence asserts the D·Aᵀ=0 cycle-basis invariant
// directly: every cycle's signed branch membership sums to zero at every
// bus, since a cycle by definition leaves each bus it touches exactly as
// many times as it enters it.
func TestBuild_OrthogonalToIncidence(t *testing.T) {
	net := buildDiamond(t)
	basis, err := cycle.Build(net, config.Defaults())
	require.NoError(t, err)

	for k := 0; k < basis.NumCycles; k++ {
		row := basis.Row(k)
		for i := 0; i < net.Incidence.Rows(); i++ {
			sum := 0.0
			for j, v := range row {
				sum += v * net.Incidence.MustAt(i, j)
			}
			assert.InDelta(t, 0.0, sum, 1e-9)
		}
	}
}

func TestBuild_DisconnectedNetworkFails(t *testing.T) {
	buses := []network.Bus{{ID: "A", Slack: true}, {ID: "B"}, {ID: "C"}, {ID: "D"}}
	branches := []network.Branch{
		{ID: "AB", From: 0, To: 1, Capacity: 10, Impedance: 0.1},
		{ID: "CD", From: 2, To: 3, Capacity: 10, Impedance: 0.1},
	}
	net, err := network.Build(buses, branches, nil, nil, nil)
	require.NoError(t, err)

	_, err = cycle.Build(net, config.Defaults())
	require.Error(t, err)
	assert.ErrorIs(t, err, cycle.ErrDisconnectedNetwork)
}
