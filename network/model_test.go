package network_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopi-project/canopi-engine/network"
)

func triangleBuses() []network.Bus {
	return []network.Bus{
		{ID: "A", Slack: true},
		{ID: "B"},
		{ID: "C"},
	}
}

func triangleBranches() []network.Branch {
	return []network.Branch{
		{ID: "AB", From: 0, To: 1, Capacity: 100, Impedance: 0.1},
		{ID: "BC", From: 1, To: 2, Capacity: 100, Impedance: 0.1},
		{ID: "CA", From: 2, To: 0, Capacity: 100, Impedance: 0.1},
	}
}

func TestBuild_ValidTriangleNetwork(t *testing.T) {
	m, err := network.Build(triangleBuses(), triangleBranches(), nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, m.SlackBus)
	assert.Len(t, m.ACBranches, 3)
	assert.Equal(t, 3, m.Incidence.Rows())
	assert.Equal(t, 3, m.Incidence.Cols())
}

func TestBuild_RejectsNoSlackBus(t *testing.T) {
	buses := []network.Bus{{ID: "A"}, {ID: "B"}}
	branches := []network.Branch{{ID: "AB", From: 0, To: 1, Capacity: 10, Impedance: 0.1}}
	_, err := network.Build(buses, branches, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, network.ErrNoSlackBus))
}

func TestBuild_RejectsMultipleSlackBuses(t *testing.T) {
	buses := []network.Bus{{ID: "A", Slack: true}, {ID: "B", Slack: true}}
	branches := []network.Branch{{ID: "AB", From: 0, To: 1, Capacity: 10, Impedance: 0.1}}
	_, err := network.Build(buses, branches, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, network.ErrMultipleSlackBuses))
}

func TestBuild_RejectsDanglingBranch(t *testing.T) {
	buses := []network.Bus{{ID: "A", Slack: true}, {ID: "B"}}
	branches := []network.Branch{{ID: "AB", From: 0, To: 5, Capacity: 10, Impedance: 0.1}}
	_, err := network.Build(buses, branches, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, network.ErrDanglingBranch))
}

func TestBuild_RejectsNonPositiveImpedance(t *testing.T) {
	buses := []network.Bus{{ID: "A", Slack: true}, {ID: "B"}}
	branches := []network.Branch{{ID: "AB", From: 0, To: 1, Capacity: 10, Impedance: 0}}
	_, err := network.Build(buses, branches, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, network.ErrNonPositiveImpedance))
}

func TestBuild_RejectsNegativeCapacity(t *testing.T) {
	buses := []network.Bus{{ID: "A", Slack: true}, {ID: "B"}}
	branches := []network.Branch{{ID: "AB", From: 0, To: 1, Capacity: -1, Impedance: 0.1}}
	_, err := network.Build(buses, branches, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, network.ErrNegativeCapacity))
}

func TestContingencyEligible_TriangleHasNoBridges(t *testing.T) {
	m, err := network.Build(triangleBuses(), triangleBranches(), nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, m.ContingencyEligible(), 3)
	for j := range m.ACBranches {
		assert.False(t, m.IsBridge(j))
	}
}

func TestContingencyEligible_RadialBranchIsBridge(t *testing.T) {
	// Triangle A-B-C plus a radial spur C-D: CD is a bridge, AB/BC/CA are not.
	buses := append(triangleBuses(), network.Bus{ID: "D"})
	branches := append(triangleBranches(), network.Branch{ID: "CD", From: 2, To: 3, Capacity: 50, Impedance: 0.2})

	m, err := network.Build(buses, branches, nil, nil, nil)
	require.NoError(t, err)

	var bridgeIdx int
	for j, br := range m.ACBranches {
		if br.ID == "CD" {
			bridgeIdx = j
		}
	}
	assert.True(t, m.IsBridge(bridgeIdx))
	assert.Len(t, m.ContingencyEligible(), 3)
}

func TestSusceptances_ZeroAdditionRecoversNominal(t *testing.T) {
	m, err := network.Build(triangleBuses(), triangleBranches(), nil, nil, nil)
	require.NoError(t, err)
	b := m.Susceptances(nil)
	for _, v := range b {
		assert.InDelta(t, 10.0, v, 1e-9) // 1/0.1
	}
}

func TestSusceptances_AdditionLowersImpedanceRaisesSusceptance(t *testing.T) {
	m, err := network.Build(triangleBuses(), triangleBranches(), nil, nil, nil)
	require.NoError(t, err)
	xAdd := []float64{100, 0, 0} // double AB's capacity
	b := m.Susceptances(xAdd)
	assert.Greater(t, b[0], 10.0)
	assert.InDelta(t, 10.0, b[1], 1e-9)
}

func TestExpansionCeiling_DefaultsToDoubling(t *testing.T) {
	m, err := network.Build(triangleBuses(), triangleBranches(), nil, nil, nil)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, m.ExpansionCeiling(0), 1e-9)
}

func TestBuild_GeneratorStorageLoadIncidence(t *testing.T) {
	gens := []network.Generator{{ID: "G1", BusIndex: 0, ExistingMW: 50}}
	stores := []network.Storage{{ID: "S1", BusIndex: 1, ExistingPowerMW: 10, ExistingEnergyMWh: 40}}
	loads := []network.Load{{ID: "L1", BusIndex: 2}}

	m, err := network.Build(triangleBuses(), triangleBranches(), gens, stores, loads)
	require.NoError(t, err)

	v, err := m.GenIncidence.At(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = m.StorageIncidence.At(1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = m.LoadIncidence.At(2, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}
