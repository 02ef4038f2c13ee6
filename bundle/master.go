package bundle

import (
	"fmt"
	"math"

	"github.com/canopi-project/canopi-engine/canopierr"
	"github.com/canopi-project/canopi-engine/dispatch"
	"github.com/canopi-project/canopi-engine/internal/simplex"
)

// masterDims is the master LP's column layout: the CapacityDecision
// components, the per-scenario emissions allocation, and the per-scenario
// epistemic cost τ_ω, in that order (mirrors dispatch's dims, the same
// offset-table approach for a column layout fixed once the scenario count
// is known).
type masterDims struct {
	G, SP, SE, B, S  int
	offGen           int
	offStoragePower  int
	offStorageEnergy int
	offBranch        int
	offEmissions     int
	offTau           int
	total            int
}

func newMasterDims(limits Limits, numScenarios int) masterDims {
	d := masterDims{
		G:  len(limits.GenExpansionMaxMW),
		SP: len(limits.StoragePowerExpansionMaxMW),
		SE: len(limits.StorageEnergyExpansionMaxMWh),
		B:  len(limits.BranchExpansionMaxMW),
		S:  numScenarios,
	}
	d.offGen = 0
	d.offStoragePower = d.offGen + d.G
	d.offStorageEnergy = d.offStoragePower + d.SP
	d.offBranch = d.offStorageEnergy + d.SE
	d.offEmissions = d.offBranch + d.B
	d.offTau = d.offEmissions + d.S
	d.total = d.offTau + d.S
	return d
}

func (d masterDims) gen(g int) int { return d.offGen + g }
func (d masterDims) sp(s int) int  { return d.offStoragePower + s }
func (d masterDims) se(s int) int  { return d.offStorageEnergy + s }
func (d masterDims) br(j int) int  { return d.offBranch + j }
func (d masterDims) em(w int) int  { return d.offEmissions + w }
func (d masterDims) tau(w int) int { return d.offTau + w }

// masterBuilder accumulates the master LP's rows as sparse coefficient
// maps, the same incremental-assembly shape dispatch.lpBuilder uses,
// specialized to the master problem's fixed variable set (no on-demand
// column allocation is needed here, since every column is known from
// masterDims up front).
type masterBuilder struct {
	lo, hi []float64
	cost   []float64
	rows   []map[int]float64
	sense  []int8 // +1 for <=, -1 for >=
	rhs    []float64
}

func newMasterBuilder(d masterDims, limits Limits, costs Costs) *masterBuilder {
	b := &masterBuilder{
		lo:   make([]float64, d.total),
		hi:   make([]float64, d.total),
		cost: make([]float64, d.total),
	}
	for g := 0; g < d.G; g++ {
		b.hi[d.gen(g)] = limits.GenExpansionMaxMW[g]
		b.cost[d.gen(g)] = costs.GenPerMW[g]
	}
	for s := 0; s < d.SP; s++ {
		b.hi[d.sp(s)] = limits.StoragePowerExpansionMaxMW[s]
		b.cost[d.sp(s)] = costs.StoragePowerPerMW[s]
	}
	for s := 0; s < d.SE; s++ {
		b.hi[d.se(s)] = limits.StorageEnergyExpansionMaxMWh[s]
		b.cost[d.se(s)] = costs.StorageEnergyPerMWh[s]
	}
	for j := 0; j < d.B; j++ {
		b.hi[d.br(j)] = limits.BranchExpansionMaxMW[j]
		b.cost[d.br(j)] = costs.BranchPerMW[j]
	}
	for w := 0; w < d.S; w++ {
		b.hi[d.em(w)] = math.Inf(1)
		b.hi[d.tau(w)] = math.Inf(1)
	}
	return b
}

func (b *masterBuilder) addRow(coefs map[int]float64, sense int8, rhs float64) {
	b.rows = append(b.rows, coefs)
	b.sense = append(b.sense, sense)
	b.rhs = append(b.rhs, rhs)
}

// toProblem lowers the accumulated rows into a bounded-variable simplex
// problem: every <= row gets a fresh nonnegative slack column, every >= row
// a fresh nonnegative surplus column, matching dispatch.lpBuilder's le/ge.
func (b *masterBuilder) toProblem() simplex.Problem {
	n := len(b.lo)
	lo := append([]float64(nil), b.lo...)
	hi := append([]float64(nil), b.hi...)
	cost := append([]float64(nil), b.cost...)

	sparse := make([]map[int]float64, len(b.rows))
	for i, row := range b.rows {
		sparse[i] = row
		extra := len(lo)
		lo = append(lo, 0)
		hi = append(hi, math.Inf(1))
		cost = append(cost, 0)
		if b.sense[i] > 0 {
			sparse[i][extra] = 1
		} else {
			sparse[i][extra] = -1
		}
	}

	width := len(lo)
	a := make([][]float64, len(b.rows))
	for i, row := range sparse {
		dense := make([]float64, width)
		for col, v := range row {
			dense[col] = v
		}
		a[i] = dense
	}

	return simplex.Problem{
		A:  a,
		B:  append([]float64(nil), b.rhs...),
		C:  cost,
		Lo: lo,
		Hi: hi,
	}
}

// cutGradDot returns g . x over the components CapacityDecision carries,
// i.e. the subgradient's contribution to a cut's affine offset
// theta - g.atCapacity at the point the cut was recorded.
func cutGradDot(g dispatch.Subgradient, x dispatch.CapacityDecision) float64 {
	s := 0.0
	for i, v := range g.GenExpansionMW {
		s += v * x.GenExpansionMW[i]
	}
	for i, v := range g.StoragePowerExpansionMW {
		s += v * x.StoragePowerExpansionMW[i]
	}
	for i, v := range g.StorageEnergyExpansionMWh {
		s += v * x.StorageEnergyExpansionMWh[i]
	}
	for i, v := range g.BranchExpansionMW {
		s += v * x.BranchExpansionMW[i]
	}
	return s
}

// solveMaster builds and solves the master LP described in spec.md §4.6
// step 4: minimize cᵀx + Σ_ω w_ω·τ_ω subject to every recorded cut and the
// box/emissions-total constraints of X. It returns the optimal value (a
// valid lower bound L_k).
func solveMaster(d masterDims, limits Limits, costs Costs, scenarios []*scenarioState) (float64, error) {
	mb := newMasterBuilder(d, limits, costs)
	for w := range scenarios {
		mb.cost[d.tau(w)] = scenarios[w].weight
	}

	if d.S > 0 {
		row := map[int]float64{}
		for w := 0; w < d.S; w++ {
			row[d.em(w)] = 1
		}
		mb.addRow(row, 1, limits.EmissionsTotalMax)
	}

	for w, sc := range scenarios {
		for _, c := range sc.cuts {
			if c.feasibility {
				row := map[int]float64{}
				for g, v := range c.grad.GenExpansionMW {
					if v != 0 {
						row[d.gen(g)] += v
					}
				}
				for s, v := range c.grad.StoragePowerExpansionMW {
					if v != 0 {
						row[d.sp(s)] += v
					}
				}
				for s, v := range c.grad.StorageEnergyExpansionMWh {
					if v != 0 {
						row[d.se(s)] += v
					}
				}
				for j, v := range c.grad.BranchExpansionMW {
					if v != 0 {
						row[d.br(j)] += v
					}
				}
				mb.addRow(row, 1, cutGradDot(c.grad, c.atCapacity))
				continue
			}

			row := map[int]float64{d.tau(w): 1}
			for g, v := range c.grad.GenExpansionMW {
				if v != 0 {
					row[d.gen(g)] -= v
				}
			}
			for s, v := range c.grad.StoragePowerExpansionMW {
				if v != 0 {
					row[d.sp(s)] -= v
				}
			}
			for s, v := range c.grad.StorageEnergyExpansionMWh {
				if v != 0 {
					row[d.se(s)] -= v
				}
			}
			for j, v := range c.grad.BranchExpansionMW {
				if v != 0 {
					row[d.br(j)] -= v
				}
			}
			if c.emGrad != 0 {
				row[d.em(w)] -= c.emGrad
			}

			rhs := c.theta - cutGradDot(c.grad, c.atCapacity) - c.emGrad*c.atEmissions
			mb.addRow(row, -1, rhs)
		}
	}

	prob := mb.toProblem()
	res, err := simplex.Solve(prob)
	if err != nil {
		return 0, fmt.Errorf("bundle.solveMaster: %w: %w", canopierr.ErrSolver, err)
	}
	switch res.Status {
	case simplex.Optimal:
		return res.Objective, nil
	case simplex.Infeasible:
		// Every x in X yields scenario infeasibility under the recorded
		// cuts: the master LP itself has no feasible point (spec.md §7).
		return 0, fmt.Errorf("bundle.solveMaster: %w", canopierr.ErrScenarioInfeasible)
	default:
		return 0, fmt.Errorf("bundle.solveMaster: master LP status %s: %w", res.Status, canopierr.ErrSolver)
	}
}
