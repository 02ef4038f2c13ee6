package dispatch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopi-project/canopi-engine/config"
	"github.com/canopi-project/canopi-engine/cycle"
	"github.com/canopi-project/canopi-engine/dispatch"
	"github.com/canopi-project/canopi-engine/internal/simplex"
	"github.com/canopi-project/canopi-engine/network"
	"github.com/canopi-project/canopi-engine/transfer"
)

// buildTriangle mirrors the scenario used across network/cycle/transfer's
// own fixtures: a 3-bus triangle, one generator at bus 0, one load at bus 2,
// every branch at unit impedance and 50 MW capacity.
func buildTriangle(t *testing.T, branch2Cap float64) *network.Model {
	t.Helper()
	buses := []network.Bus{
		{ID: "A", Slack: true},
		{ID: "B"},
		{ID: "C"},
	}
	branches := []network.Branch{
		{ID: "AB", From: 0, To: 1, Capacity: 50, Impedance: 1},
		{ID: "BC", From: 1, To: 2, Capacity: 50, Impedance: 1},
		{ID: "AC", From: 0, To: 2, Capacity: branch2Cap, Impedance: 1},
	}
	gens := []network.Generator{
		{ID: "G0", BusIndex: 0, ExistingMW: 100},
	}
	loads := []network.Load{
		{ID: "L0", BusIndex: 2},
	}
	net, err := network.Build(buses, branches, gens, nil, loads)
	require.NoError(t, err)
	return net
}

func solveTriangle(t *testing.T, net *network.Model, scen dispatch.Scenario) dispatch.Result {
	t.Helper()
	cfg := config.Defaults()

	basis, err := cycle.Build(net, cfg)
	require.NoError(t, err)

	chi := net.Susceptances(nil)
	kernel, err := transfer.Build(net, chi, cfg)
	require.NoError(t, err)

	chiHat := make([]float64, len(net.ACBranches))
	for j, br := range net.ACBranches {
		chiHat[j] = br.Impedance
	}

	x := dispatch.CapacityDecision{
		GenExpansionMW:            make([]float64, len(net.Generators)),
		StoragePowerExpansionMW:   make([]float64, len(net.Storages)),
		StorageEnergyExpansionMWh: make([]float64, len(net.Storages)),
		BranchExpansionMW:         make([]float64, len(net.ACBranches)),
	}

	res, err := dispatch.Solve(net, basis, kernel, chiHat, x, scen, nil, cfg)
	require.NoError(t, err)
	return res
}

// TestSolve_UnconstrainedTriangleDispatchesAtLeastCost mirrors scenario S1:
// a 60 MW load at bus 2 fed from a single 100 MW/$10 generator at bus 0
// across an all-equal-impedance triangle with generous branch capacity.
// The unique DC power flow for an equilateral-impedance triangle splits a
// point-to-point transfer 2:1 between the direct and indirect paths, so the
// 60 MW transfer from bus 0 to bus 2 should land at 40 MW direct (branch
// AC) and 20 MW each leg of the indirect path (AB, BC).
func TestSolve_UnconstrainedTriangleDispatchesAtLeastCost(t *testing.T) {
	net := buildTriangle(t, 50)
	scen := dispatch.Scenario{
		Demand:        [][]float64{{60}},
		Availability:  [][]float64{{1}},
		GenCost:       [][]float64{{10}},
		ShedCost:      1e4,
		ViolationCost: 1e4,
	}
	res := solveTriangle(t, net, scen)

	require.Equal(t, simplex.Optimal, res.Status)
	assert.InDelta(t, 600.0, res.Objective, 1e-4)
	assert.InDelta(t, 60.0, res.PG[0][0], 1e-4)
	assert.InDelta(t, 0.0, res.PSh[0][0], 1e-4)

	// branch order is AB, BC, AC.
	assert.InDelta(t, 20.0, res.PBr[0][0], 1e-4)
	assert.InDelta(t, 20.0, res.PBr[0][1], 1e-4)
	assert.InDelta(t, 40.0, res.PBr[0][2], 1e-4)
}

// TestSolve_BindingBranchCapacityForcesLoadShed mirrors scenario S2's
// shape: shrinking the direct branch's capacity below its unconstrained
// flow makes the least-cost choice shed just enough load to bring the
// direct branch to its limit, since shedding is far more expensive per MWh
// than generation but cheaper than violating a thermal limit.
func TestSolve_BindingBranchCapacityForcesLoadShed(t *testing.T) {
	net := buildTriangle(t, 15)
	scen := dispatch.Scenario{
		Demand:        [][]float64{{60}},
		Availability:  [][]float64{{1}},
		GenCost:       [][]float64{{10}},
		ShedCost:      1e4,
		ViolationCost: 1e4,
	}
	res := solveTriangle(t, net, scen)

	require.Equal(t, simplex.Optimal, res.Status)
	assert.InDelta(t, 22.5, res.PG[0][0], 1e-3)
	assert.InDelta(t, 37.5, res.PSh[0][0], 1e-3)
	assert.InDelta(t, 15.0, res.PBr[0][2], 1e-3)
	assert.InDelta(t, 375225.0, res.Objective, 1e-1)
}
