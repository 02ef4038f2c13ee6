package transfer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopi-project/canopi-engine/config"
	"github.com/canopi-project/canopi-engine/network"
	"github.com/canopi-project/canopi-engine/transfer"
)

func buildTriangle(t *testing.T) *network.Model {
	t.Helper()
	buses := []network.Bus{{ID: "A", Slack: true}, {ID: "B"}, {ID: "C"}}
	branches := []network.Branch{
		{ID: "AB", From: 0, To: 1, Capacity: 50, Impedance: 0.1},
		{ID: "BC", From: 1, To: 2, Capacity: 50, Impedance: 0.1},
		{ID: "CA", From: 2, To: 0, Capacity: 50, Impedance: 0.1},
	}
	m, err := network.Build(buses, branches, nil, nil, nil)
	require.NoError(t, err)
	return m
}

func TestBuild_TriangleSymmetricSusceptancesEvenSplit(t *testing.T) {
	net := buildTriangle(t)
	susc := net.Susceptances(nil)
	k, err := transfer.Build(net, susc, config.Defaults())
	require.NoError(t, err)

	// Injection of +60 at bus 2 (non-slack), withdrawn at slack bus 0: in
	// an all-equal-impedance triangle, flow splits 2:1 across the two
	// paths, 40 MW on CA (2->0) and 20 MW along C->B->A, which AB (0->1)
	// and BC (1->2) each carry evenly as -20 MW.
	injections := make([]float64, 3)
	injections[2] = 60
	flows := k.InjectionFlow(injections)
	assert.Len(t, flows, 3)
	assert.InDelta(t, -20.0, flows[0], 1e-6)
	assert.InDelta(t, -20.0, flows[1], 1e-6)
	assert.InDelta(t, 40.0, flows[2], 1e-6)

	// No branch is a bridge in a triangle.
	for _, isBridge := range k.Bridge {
		assert.False(t, isBridge)
	}
}

func TestBuild_RadialSpurIsBridge(t *testing.T) {
	buses := []network.Bus{
		{ID: "A", Slack: true}, {ID: "B"}, {ID: "C"}, {ID: "D"},
	}
	branches := []network.Branch{
		{ID: "AB", From: 0, To: 1, Capacity: 50, Impedance: 0.1},
		{ID: "BC", From: 1, To: 2, Capacity: 50, Impedance: 0.1},
		{ID: "CA", From: 2, To: 0, Capacity: 50, Impedance: 0.1},
		{ID: "CD", From: 2, To: 3, Capacity: 50, Impedance: 0.2},
	}
	net, err := network.Build(buses, branches, nil, nil, nil)
	require.NoError(t, err)

	susc := net.Susceptances(nil)
	k, err := transfer.Build(net, susc, config.Defaults())
	require.NoError(t, err)

	var spurIdx int
	for j, br := range net.ACBranches {
		if br.ID == "CD" {
			spurIdx = j
		}
	}
	assert.True(t, k.Bridge[spurIdx])

	for i := 0; i < len(net.ACBranches); i++ {
		v, err := k.Lambda.At(i, spurIdx)
		require.NoError(t, err)
		assert.Equal(t, 0.0, v)
	}
}
