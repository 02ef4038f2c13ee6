package contingency_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopi-project/canopi-engine/config"
	"github.com/canopi-project/canopi-engine/contingency"
	"github.com/canopi-project/canopi-engine/dispatch"
	"github.com/canopi-project/canopi-engine/network"
	"github.com/canopi-project/canopi-engine/transfer"
)

func buildTriangle(t *testing.T) *network.Model {
	t.Helper()
	buses := []network.Bus{{ID: "A", Slack: true}, {ID: "B"}, {ID: "C"}}
	branches := []network.Branch{
		{ID: "AB", From: 0, To: 1, Capacity: 50, Impedance: 1},
		{ID: "BC", From: 1, To: 2, Capacity: 50, Impedance: 1},
		{ID: "CA", From: 2, To: 0, Capacity: 50, Impedance: 1},
	}
	net, err := network.Build(buses, branches, nil, nil, nil)
	require.NoError(t, err)
	return net
}

func TestScan_FindsViolationsWhenFlowsExceedPostContingencyLimit(t *testing.T) {
	net := buildTriangle(t)
	cfg := config.Defaults()
	kernel, err := transfer.Build(net, net.Susceptances(nil), cfg)
	require.NoError(t, err)

	// In this equal-impedance triangle every off-diagonal LODF is -1, so
	// outaging AB puts -25 - 40 = -65 on BC and outaging BC puts
	// 40 + 25 = 65 on AB, both past the 50 MW limit at threshold 1.0.
	pbr := [][]float64{{40, -25, 10}}
	xBr := make([]float64, len(net.ACBranches))

	violations := contingency.Scan(net, kernel, pbr, xBr, 1.0, 1e-6, 10)
	require.NotEmpty(t, violations)

	for i := 1; i < len(violations); i++ {
		assert.GreaterOrEqual(t, violations[i-1].Delta, violations[i].Delta)
	}
	for _, v := range violations {
		assert.Equal(t, 0, v.Triple.Period)
		assert.NotEqual(t, v.Triple.Monitored, v.Triple.Outaged)
	}
}

func TestScan_RespectsBudget(t *testing.T) {
	net := buildTriangle(t)
	cfg := config.Defaults()
	kernel, err := transfer.Build(net, net.Susceptances(nil), cfg)
	require.NoError(t, err)

	pbr := [][]float64{{40, 25, 10}}
	xBr := make([]float64, len(net.ACBranches))

	violations := contingency.Scan(net, kernel, pbr, xBr, 1.0, 1e-6, 2)
	assert.LessOrEqual(t, len(violations), 2)
}

func TestScan_SkipsBridgeBranches(t *testing.T) {
	buses := []network.Bus{{ID: "A", Slack: true}, {ID: "B"}, {ID: "C"}, {ID: "D"}}
	branches := []network.Branch{
		{ID: "AB", From: 0, To: 1, Capacity: 50, Impedance: 1},
		{ID: "BC", From: 1, To: 2, Capacity: 50, Impedance: 1},
		{ID: "CA", From: 2, To: 0, Capacity: 50, Impedance: 1},
		{ID: "CD", From: 2, To: 3, Capacity: 50, Impedance: 2},
	}
	net, err := network.Build(buses, branches, nil, nil, nil)
	require.NoError(t, err)
	cfg := config.Defaults()
	kernel, err := transfer.Build(net, net.Susceptances(nil), cfg)
	require.NoError(t, err)

	var spurIdx int
	for j, br := range net.ACBranches {
		if br.ID == "CD" {
			spurIdx = j
		}
	}

	pbr := [][]float64{{40, 25, 10, 5}}
	xBr := make([]float64, len(net.ACBranches))
	violations := contingency.Scan(net, kernel, pbr, xBr, 0.0, 1e-6, 50)

	for _, v := range violations {
		assert.NotEqual(t, spurIdx, v.Triple.Monitored)
		assert.NotEqual(t, spurIdx, v.Triple.Outaged)
	}
}

func TestMerge_DedupsAndReportsGrowth(t *testing.T) {
	trip1 := dispatch.ContingencyTriple{Period: 0, Monitored: 0, Outaged: 1}
	trip2 := dispatch.ContingencyTriple{Period: 0, Monitored: 1, Outaged: 2}

	set := []dispatch.ContingencyTriple{trip1}
	found := []contingency.Violation{
		{Triple: trip1, Delta: 5},
		{Triple: trip2, Delta: 3},
	}

	merged, grew := contingency.Merge(set, found)
	assert.True(t, grew)
	assert.Len(t, merged, 2)
	assert.Contains(t, merged, trip1)
	assert.Contains(t, merged, trip2)

	mergedAgain, grewAgain := contingency.Merge(merged, found)
	assert.False(t, grewAgain)
	assert.Len(t, mergedAgain, 2)
}
