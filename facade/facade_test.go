package facade_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopi-project/canopi-engine/bundle"
	"github.com/canopi-project/canopi-engine/canopierr"
	"github.com/canopi-project/canopi-engine/config"
	"github.com/canopi-project/canopi-engine/dispatch"
	"github.com/canopi-project/canopi-engine/facade"
	"github.com/canopi-project/canopi-engine/network"
)

// triangle mirrors the fixture used across network/cycle/dispatch/bundle's
// own tests: a 3-bus triangle, one generator at bus 0, one load at bus 2.
func triangle(branch2Cap float64) ([]network.Bus, []network.Branch, []network.Generator, []network.Load) {
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
	return buses, branches, gens, loads
}

// TestSolve_NoExpansionNeededReturnsOptimal exercises the full
// cycle->bundle->corrector->polish sequence end to end on a network whose
// existing capacity already clears every scenario, so the corrector should
// find nothing to invest in and the polishing pass should reconfirm the
// first run's near-zero decision.
func TestSolve_NoExpansionNeededReturnsOptimal(t *testing.T) {
	buses, branches, gens, loads := triangle(50)
	cfg := config.Defaults()

	scenarios := []facade.ScenarioInput{{
		Scenario: dispatch.Scenario{
			Demand:        [][]float64{{60}},
			Availability:  [][]float64{{1}},
			GenCost:       [][]float64{{10}},
			ShedCost:      1e4,
			ViolationCost: 1e4,
		},
		Weight: 1.0,
	}}
	limits := bundle.Limits{
		GenExpansionMaxMW:            []float64{0},
		StoragePowerExpansionMaxMW:   []float64{},
		StorageEnergyExpansionMaxMWh: []float64{},
		BranchExpansionMaxMW:         []float64{0, 0, 0},
		EmissionsTotalMax:            1e9,
	}
	costs := bundle.Costs{
		GenPerMW:            []float64{1000},
		StoragePowerPerMW:   []float64{},
		StorageEnergyPerMWh: []float64{},
		BranchPerMW:         []float64{1000, 1000, 1000},
	}

	var events []facade.ProgressEvent
	res, err := facade.Solve(context.Background(), buses, branches, gens, nil, loads, scenarios, limits, costs, cfg, 0,
		func(ev facade.ProgressEvent) { events = append(events, ev) }, nil)
	require.NoError(t, err)

	assert.Equal(t, "optimal", res.Status)
	assert.NotEmpty(t, res.SolveID)
	assert.LessOrEqual(t, res.Gap, cfg.Epsilon+1e-9)
	assert.InDelta(t, 600.0, res.TotalCost, 5.0)
	for _, v := range res.CapacityDecision.Capacity.BranchExpansionMW {
		assert.InDelta(t, 0.0, v, 1e-6)
	}
	assert.NotEmpty(t, events)

	var sawPolish bool
	for _, ev := range events {
		if ev.Phase == bundle.PhasePolish {
			sawPolish = true
		}
	}
	assert.True(t, sawPolish, "expected at least one polishing-pass progress event")
}

// TestSolve_BindingBranchInvestsThroughCorrectorAndPolish exercises the
// case where the first bundle run buys AC-branch expansion, the corrector
// then re-optimizes x_br against the realized flows, and the polishing
// pass reconverges with the contingency sets carried over.
func TestSolve_BindingBranchInvestsThroughCorrectorAndPolish(t *testing.T) {
	buses, branches, gens, loads := triangle(15)
	cfg := config.Defaults()

	scenarios := []facade.ScenarioInput{{
		Scenario: dispatch.Scenario{
			Demand:        [][]float64{{60}},
			Availability:  [][]float64{{1}},
			GenCost:       [][]float64{{10}},
			ShedCost:      1e4,
			ViolationCost: 1e4,
		},
		Weight: 1.0,
	}}
	limits := bundle.Limits{
		GenExpansionMaxMW:            []float64{0},
		StoragePowerExpansionMaxMW:   []float64{},
		StorageEnergyExpansionMaxMWh: []float64{},
		BranchExpansionMaxMW:         []float64{0, 0, 50},
		EmissionsTotalMax:            1e9,
	}
	costs := bundle.Costs{
		GenPerMW:            []float64{1000},
		StoragePowerPerMW:   []float64{},
		StorageEnergyPerMWh: []float64{},
		BranchPerMW:         []float64{1000, 1000, 50},
	}

	res, err := facade.Solve(context.Background(), buses, branches, gens, nil, loads, scenarios, limits, costs, cfg, 0, nil, nil)
	if res.Status == "non_converged" {
		require.ErrorIs(t, err, canopierr.ErrNotConverged)
	} else {
		require.NoError(t, err)
	}

	assert.Contains(t, []string{"optimal", "non_converged"}, res.Status)
	expansion := res.CapacityDecision.Capacity.BranchExpansionMW[2]
	assert.Greater(t, expansion, 0.0)
	assert.Less(t, expansion, 50.0)
	assert.Less(t, res.TotalCost, 5000.0)
}
