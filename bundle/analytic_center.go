package bundle

import (
	"errors"
	"fmt"
	"math"

	"github.com/canopi-project/canopi-engine/internal/mat"
)

// ErrAnalyticCenterFailed indicates the log-barrier Newton solve could not
// find an interior point of the level set (spec.md §4.6 step 6).
var ErrAnalyticCenterFailed = errors.New("bundle: analytic center computation failed")

// barrierRow is one inequality coefs.z <= rhs of the level set, already
// normalized to that orientation so every row contributes the same sign of
// slack = rhs - coefs.z.
type barrierRow struct {
	coefs map[int]float64
	rhs   float64
}

// analyticCenterLevelSet computes the analytic center of
// {z in X : cost(z) <= levelValue}, minimizing the sum of negative
// logarithms of every level-set constraint's slack (spec.md §4.6 step 6):
// box bounds, the emissions-total row, every recorded cut, and the level
// constraint itself. A small number of damped Newton steps with a
// backtracking line search solves this modest convex subproblem; each
// Newton step solves the Hessian system with internal/mat's SolveLinear.
func analyticCenterLevelSet(d masterDims, limits Limits, costs Costs, scenarios []*scenarioState, levelValue float64) ([]float64, error) {
	lo, hi := boxBounds(d, limits)
	free := make([]bool, d.total)
	for j := range free {
		free[j] = hi[j]-lo[j] > 1e-9
	}

	rows := buildBarrierRows(d, limits, scenarios, costs, levelValue, lo, hi, free)
	z := initialInteriorPoint(d, lo, hi, free)
	if err := checkInterior(rows, z); err != nil {
		return nil, fmt.Errorf("bundle: %w: %w", err, ErrAnalyticCenterFailed)
	}

	const maxNewton = 40
	for iter := 0; iter < maxNewton; iter++ {
		grad, hess := gradientAndHessian(rows, z, d.total, free)

		step, err := newtonStep(hess, grad, d.total, free)
		if err != nil {
			// A singular Hessian this close to the center means no free
			// direction improves the barrier further; accept z as-is.
			break
		}

		t := 1.0
		for t > 1e-6 {
			candidate := addScaled(z, step, t)
			if allSlacksPositive(rows, candidate) {
				if newtonDecrement(grad, step, free) < 1e-10 {
					return candidate, nil
				}
				z = candidate
				break
			}
			t *= 0.5
		}
		if t <= 1e-6 {
			break
		}
	}
	return z, nil
}

func boxBounds(d masterDims, limits Limits) (lo, hi []float64) {
	lo = make([]float64, d.total)
	hi = make([]float64, d.total)
	for j := 0; j < d.G; j++ {
		hi[d.gen(j)] = limits.GenExpansionMaxMW[j]
	}
	for j := 0; j < d.SP; j++ {
		hi[d.sp(j)] = limits.StoragePowerExpansionMaxMW[j]
	}
	for j := 0; j < d.SE; j++ {
		hi[d.se(j)] = limits.StorageEnergyExpansionMaxMWh[j]
	}
	for j := 0; j < d.B; j++ {
		hi[d.br(j)] = limits.BranchExpansionMaxMW[j]
	}
	for w := 0; w < d.S; w++ {
		hi[d.em(w)] = limits.EmissionsTotalMax
		hi[d.tau(w)] = math.Inf(1)
	}
	return lo, hi
}

func buildBarrierRows(d masterDims, limits Limits, scenarios []*scenarioState, costs Costs, levelValue float64, lo, hi []float64, free []bool) []barrierRow {
	var rows []barrierRow

	for j := 0; j < d.total; j++ {
		if !free[j] {
			continue
		}
		if !math.IsInf(hi[j], 1) {
			rows = append(rows, barrierRow{coefs: map[int]float64{j: 1}, rhs: hi[j]})
		}
		rows = append(rows, barrierRow{coefs: map[int]float64{j: -1}, rhs: -lo[j]})
	}

	if d.S > 0 {
		row := map[int]float64{}
		for w := 0; w < d.S; w++ {
			row[d.em(w)] = 1
		}
		rows = append(rows, barrierRow{coefs: row, rhs: limits.EmissionsTotalMax})
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
				rows = append(rows, barrierRow{coefs: row, rhs: cutGradDot(c.grad, c.atCapacity)})
				continue
			}

			// tau_w - g.x - emGrad*xem_w >= rhsCut, i.e.
			// -(tau_w - g.x - emGrad*xem_w) <= -rhsCut.
			row := map[int]float64{d.tau(w): -1}
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
			if c.emGrad != 0 {
				row[d.em(w)] += c.emGrad
			}
			rhsCut := c.theta - cutGradDot(c.grad, c.atCapacity) - c.emGrad*c.atEmissions
			rows = append(rows, barrierRow{coefs: row, rhs: -rhsCut})
		}
	}

	level := map[int]float64{}
	for j := 0; j < d.G; j++ {
		level[d.gen(j)] = costs.GenPerMW[j]
	}
	for j := 0; j < d.SP; j++ {
		level[d.sp(j)] = costs.StoragePowerPerMW[j]
	}
	for j := 0; j < d.SE; j++ {
		level[d.se(j)] = costs.StorageEnergyPerMWh[j]
	}
	for j := 0; j < d.B; j++ {
		level[d.br(j)] = costs.BranchPerMW[j]
	}
	for w := range scenarios {
		level[d.tau(w)] = scenarios[w].weight
	}
	rows = append(rows, barrierRow{coefs: level, rhs: levelValue})

	return rows
}

// initialInteriorPoint starts every free decision/emissions variable at a
// small fraction of its range (or 1.0 if unbounded above, which only tau
// ever is) and every tau_w high enough to clear every cut row with margin,
// giving a strictly-interior starting point for Newton's method.
func initialInteriorPoint(d masterDims, lo, hi []float64, free []bool) []float64 {
	z := make([]float64, d.total)
	for j := 0; j < d.total; j++ {
		if !free[j] {
			z[j] = lo[j]
			continue
		}
		if math.IsInf(hi[j], 1) {
			z[j] = 1.0
		} else {
			z[j] = lo[j] + 0.1*(hi[j]-lo[j])
		}
	}
	return z
}

func checkInterior(rows []barrierRow, z []float64) error {
	for _, r := range rows {
		if slackOf(r, z) <= 0 {
			return fmt.Errorf("initial point has non-positive slack on a level-set row")
		}
	}
	return nil
}

func slackOf(r barrierRow, z []float64) float64 {
	s := r.rhs
	for j, v := range r.coefs {
		s -= v * z[j]
	}
	return s
}

func allSlacksPositive(rows []barrierRow, z []float64) bool {
	for _, r := range rows {
		if slackOf(r, z) <= 1e-12 {
			return false
		}
	}
	return true
}

// gradientAndHessian returns grad(phi) and Hess(phi) for
// phi(z) = -sum_m log(slack_m(z)), restricted to the free coordinates.
func gradientAndHessian(rows []barrierRow, z []float64, n int, free []bool) ([]float64, *mat.Dense) {
	grad := make([]float64, n)
	hess, _ := mat.NewDense(n, n)
	for _, r := range rows {
		s := slackOf(r, z)
		if s <= 0 {
			s = 1e-12
		}
		for j, vj := range r.coefs {
			if !free[j] {
				continue
			}
			grad[j] += vj / s
			for k, vk := range r.coefs {
				if !free[k] {
					continue
				}
				hess.Add(j, k, vj*vk/(s*s))
			}
		}
	}
	for j := 0; j < n; j++ {
		if free[j] {
			hess.Add(j, j, 1e-9) // regularize for numerical stability near the center
		}
	}
	return grad, hess
}

// newtonStep solves Hess*step = -grad restricted to the free coordinates,
// via mat.SolveLinear against the free x free submatrix (cheaper than a
// full Inverse for this one-off right-hand side, per its own doc comment).
func newtonStep(hess *mat.Dense, grad []float64, n int, free []bool) ([]float64, error) {
	var idx []int
	for j := 0; j < n; j++ {
		if free[j] {
			idx = append(idx, j)
		}
	}
	if len(idx) == 0 {
		return make([]float64, n), nil
	}

	sub, _ := mat.NewDense(len(idx), len(idx))
	rhs := make([]float64, len(idx))
	for a, j := range idx {
		rhs[a] = -grad[j]
		for b, k := range idx {
			sub.MustSet(a, b, hess.MustAt(j, k))
		}
	}

	x, err := mat.SolveLinear(sub, rhs)
	if err != nil {
		return nil, err
	}
	step := make([]float64, n)
	for a, j := range idx {
		step[j] = x[a]
	}
	return step, nil
}

func addScaled(z, step []float64, t float64) []float64 {
	out := make([]float64, len(z))
	for j := range z {
		out[j] = z[j] + t*step[j]
	}
	return out
}

func newtonDecrement(grad, step []float64, free []bool) float64 {
	s := 0.0
	for j := range grad {
		if free[j] {
			s += -grad[j] * step[j]
		}
	}
	return s
}
