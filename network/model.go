package network

import (
	"fmt"

	"github.com/canopi-project/canopi-engine/internal/mat"
)

// Model is the immutable, validated transmission network topology. Build
// assigns contiguous Index fields and derives the incidence matrices; every
// downstream component (cycle, transfer, dispatch, contingency) treats a
// *Model as read-only.
type Model struct {
	Buses      []Bus
	ACBranches []Branch // IsHVDC == false
	DCLinks    []Branch // IsHVDC == true
	Generators []Generator
	Storages   []Storage
	Loads      []Load

	SlackBus int // index into Buses

	// Incidence is the signed n×b node-branch incidence matrix over
	// ACBranches only: Incidence[i][j] is +1 if bus i is Branch j's From
	// end, -1 if it is the To end, 0 otherwise (spec.md §4.1).
	Incidence *mat.Dense

	// DCIncidence is the analogous n×β matrix over DCLinks. HVDC links
	// carry a free flow variable and never participate in the cycle basis
	// or KVL, but still need a nodal-balance incidence.
	DCIncidence *mat.Dense

	// GenIncidence, StorageIncidence, LoadIncidence map generators,
	// storage units, and loads onto buses (n×G, n×S, n×D, 0/1 entries)
	// for the nodal power balance in the operational subproblem.
	GenIncidence     *mat.Dense
	StorageIncidence *mat.Dense
	LoadIncidence    *mat.Dense

	// bridgeAC[j] is true if ACBranches[j] is a bridge (cut edge) of the
	// AC subgraph: removing it disconnects the network, so it can never
	// be taken out of service in an N-1 contingency (spec.md §4.1,
	// §edge cases "bridge branches").
	bridgeAC []bool
}

// Build validates buses/branches/generators/storages/loads, assigns
// contiguous indices, and constructs the incidence matrices. Buses, branches,
// etc. are copied and re-indexed in input order; callers should not rely on
// the Index fields of the structs they passed in.
func Build(buses []Bus, branches []Branch, gens []Generator, stores []Storage, loads []Load) (*Model, error) {
	n := len(buses)
	if n == 0 {
		return nil, wrapInvalid("no buses supplied", ErrDanglingBranch)
	}

	m := &Model{
		Buses:    make([]Bus, n),
		SlackBus: -1,
	}
	copy(m.Buses, buses)
	for i := range m.Buses {
		m.Buses[i].Index = i
		if m.Buses[i].Slack {
			if m.SlackBus != -1 {
				return nil, wrapInvalid(fmt.Sprintf("buses %d and %d both marked slack", m.SlackBus, i), ErrMultipleSlackBuses)
			}
			m.SlackBus = i
		}
	}
	if m.SlackBus == -1 {
		return nil, wrapInvalid("", ErrNoSlackBus)
	}

	for _, br := range branches {
		if br.Capacity < 0 {
			return nil, wrapInvalid(fmt.Sprintf("branch %s capacity %g", br.ID, br.Capacity), ErrNegativeCapacity)
		}
		if br.From < 0 || br.From >= n || br.To < 0 || br.To >= n {
			return nil, wrapInvalid(fmt.Sprintf("branch %s endpoints (%d,%d)", br.ID, br.From, br.To), ErrDanglingBranch)
		}
		if !br.IsHVDC && br.Impedance <= 0 {
			return nil, wrapInvalid(fmt.Sprintf("branch %s impedance %g", br.ID, br.Impedance), ErrNonPositiveImpedance)
		}
		if br.IsHVDC {
			cp := br
			cp.Index = len(m.DCLinks)
			m.DCLinks = append(m.DCLinks, cp)
		} else {
			cp := br
			cp.Index = len(m.ACBranches)
			m.ACBranches = append(m.ACBranches, cp)
		}
	}

	for _, g := range gens {
		if g.ExistingMW < 0 || g.MaxExpansionMW < 0 {
			return nil, wrapInvalid(fmt.Sprintf("generator %s capacity", g.ID), ErrNegativeCapacity)
		}
		if g.BusIndex < 0 || g.BusIndex >= n {
			return nil, wrapInvalid(fmt.Sprintf("generator %s bus %d", g.ID, g.BusIndex), ErrDanglingBranch)
		}
		cp := g
		cp.Index = len(m.Generators)
		m.Generators = append(m.Generators, cp)
	}

	for _, s := range stores {
		if s.ExistingPowerMW < 0 || s.ExistingEnergyMWh < 0 || s.MaxExpansionPowerMW < 0 || s.MaxExpansionEnergyMWh < 0 {
			return nil, wrapInvalid(fmt.Sprintf("storage %s capacity", s.ID), ErrNegativeCapacity)
		}
		if s.BusIndex < 0 || s.BusIndex >= n {
			return nil, wrapInvalid(fmt.Sprintf("storage %s bus %d", s.ID, s.BusIndex), ErrDanglingBranch)
		}
		cp := s
		cp.Index = len(m.Storages)
		m.Storages = append(m.Storages, cp)
	}

	for _, l := range loads {
		if l.BusIndex < 0 || l.BusIndex >= n {
			return nil, wrapInvalid(fmt.Sprintf("load %s bus %d", l.ID, l.BusIndex), ErrDanglingBranch)
		}
		cp := l
		cp.Index = len(m.Loads)
		m.Loads = append(m.Loads, cp)
	}

	if err := m.buildIncidences(); err != nil {
		return nil, err
	}
	m.bridgeAC = computeBridges(n, m.ACBranches)

	return m, nil
}

// buildIncidences constructs Incidence, DCIncidence, GenIncidence,
// StorageIncidence, and LoadIncidence from the already-validated slices.
func (m *Model) buildIncidences() error {
	n := len(m.Buses)

	inc, err := mat.NewDense(n, maxOne(len(m.ACBranches)))
	if err != nil {
		return fmt.Errorf("network: building incidence: %w", err)
	}
	for j, br := range m.ACBranches {
		inc.MustSet(br.From, j, 1)
		inc.MustSet(br.To, j, -1)
	}
	m.Incidence = inc

	dc, err := mat.NewDense(n, maxOne(len(m.DCLinks)))
	if err != nil {
		return fmt.Errorf("network: building DC incidence: %w", err)
	}
	for j, br := range m.DCLinks {
		dc.MustSet(br.From, j, 1)
		dc.MustSet(br.To, j, -1)
	}
	m.DCIncidence = dc

	gi, err := mat.NewDense(n, maxOne(len(m.Generators)))
	if err != nil {
		return fmt.Errorf("network: building generator incidence: %w", err)
	}
	for j, g := range m.Generators {
		gi.MustSet(g.BusIndex, j, 1)
	}
	m.GenIncidence = gi

	si, err := mat.NewDense(n, maxOne(len(m.Storages)))
	if err != nil {
		return fmt.Errorf("network: building storage incidence: %w", err)
	}
	for j, s := range m.Storages {
		si.MustSet(s.BusIndex, j, 1)
	}
	m.StorageIncidence = si

	li, err := mat.NewDense(n, maxOne(len(m.Loads)))
	if err != nil {
		return fmt.Errorf("network: building load incidence: %w", err)
	}
	for j, l := range m.Loads {
		li.MustSet(l.BusIndex, j, 1)
	}
	m.LoadIncidence = li

	return nil
}

// maxOne guards mat.NewDense against a zero-width dimension (e.g. a network
// with no storage units), since Dense requires both dimensions positive.
func maxOne(x int) int {
	if x <= 0 {
		return 1
	}
	return x
}

// IsBridge reports whether ACBranches[j] is a bridge of the AC subgraph and
// therefore ineligible for N-1 contingency screening.
func (m *Model) IsBridge(acBranchIndex int) bool {
	return m.bridgeAC[acBranchIndex]
}

// ContingencyEligible returns the AC branch indices that are not bridges,
// i.e. the candidate set for N-1 contingency screening (spec.md §4.1 /
// §4.5).
func (m *Model) ContingencyEligible() []int {
	out := make([]int, 0, len(m.ACBranches))
	for j, isBridge := range m.bridgeAC {
		if !isBridge {
			out = append(out, j)
		}
	}
	return out
}

// Susceptances returns the per-AC-branch susceptance b_j = 1/χ_j(x),
// applying the impedance-feedback formula χ_j(x) = χ0_j·w_j/(w_j+x_add[j]).
// xAdd must have length len(m.ACBranches); a nil or
// all-zero xAdd recovers the nominal susceptances.
func (m *Model) Susceptances(xAdd []float64) []float64 {
	out := make([]float64, len(m.ACBranches))
	for j, br := range m.ACBranches {
		add := 0.0
		if xAdd != nil {
			add = xAdd[j]
		}
		chi := br.Impedance
		if add > 0 && br.Capacity > 0 {
			chi = br.Impedance * br.Capacity / (br.Capacity + add)
		}
		out[j] = 1.0 / chi
	}
	return out
}

// ExpansionCeiling returns the maximum allowed added capacity for
// ACBranches[j]: its ExpansionCeilingFactor (or the package default) times
// nominal capacity, minus the nominal capacity itself.
func (m *Model) ExpansionCeiling(acBranchIndex int) float64 {
	br := m.ACBranches[acBranchIndex]
	factor := br.ExpansionCeilingFactor
	if factor <= 0 {
		factor = DefaultExpansionCeilingFactor
	}
	return (factor - 1.0) * br.Capacity
}
