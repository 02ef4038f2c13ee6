package simplex

import "math"

// bigBound substitutes for a +/-Inf bound. The bounded-variable simplex
// below needs every variable to have a finite range to run the ratio test
// uniformly; capping "free" variables at a large-but-finite magnitude is a
// standard practical compromise (and keeps the ratio test's arithmetic
// free of actual infinities) at the cost of a solution that is only exact
// to within bigBound's scale for genuinely unbounded directions, which
// Solve's Unbounded detection still catches.
const bigBound = 1e9
const tol = 1e-8

type tableau struct {
	m, n       int // m rows, n original variables
	totalCols  int // n + m (one artificial per row)
	tab        [][]float64
	basis      []int
	atUpper    []bool
	lo, hi     []float64
	rhs        []float64
	c1, c2     []float64 // phase-1 and phase-2 objective coefficients per column
	maxIter    int
	iterations int
	feasible   bool
	phase1Dual []float64
	artSign    []float64 // +/-1 per row: the factor newTableau scaled that row by
}

func newTableau(p Problem, maxIter int) *tableau {
	m, n := len(p.A), len(p.C)
	total := n + m

	t := &tableau{
		m: m, n: n, totalCols: total,
		tab:     make([][]float64, m),
		basis:   make([]int, m),
		atUpper: make([]bool, total),
		lo:      make([]float64, total),
		hi:      make([]float64, total),
		rhs:     make([]float64, m),
		c1:      make([]float64, total),
		c2:      make([]float64, total),
		maxIter: maxIter,
		artSign: make([]float64, m),
	}

	for j := 0; j < n; j++ {
		t.lo[j] = clampBound(p.Lo[j])
		t.hi[j] = clampBound(p.Hi[j])
		t.c2[j] = p.C[j]
	}
	for j := n; j < total; j++ {
		t.lo[j] = 0
		t.hi[j] = bigBound
		t.c1[j] = 1
	}

	// Initial nonbasic value for each original variable: its lower bound
	// if finite, else 0 (a "free" variable capped to [-bigBound,bigBound]
	// always has a finite lower bound under clampBound).
	xN := make([]float64, n)
	for j := 0; j < n; j++ {
		xN[j] = t.lo[j]
	}

	for i := 0; i < m; i++ {
		row := make([]float64, total)
		copy(row[:n], p.A[i])
		resid := p.B[i]
		for j := 0; j < n; j++ {
			resid -= p.A[i][j] * xN[j]
		}
		sign := 1.0
		if resid < 0 {
			sign = -1.0
		}
		// Scale the row by sign so its artificial enters with coefficient
		// +1 and the tableau starts in canonical form.
		for j := 0; j < n; j++ {
			row[j] *= sign
		}
		row[n+i] = 1
		t.artSign[i] = sign
		t.tab[i] = row
		t.rhs[i] = resid * sign // always >= 0
		t.basis[i] = n + i
	}

	return t
}

func clampBound(v float64) float64 {
	if math.IsInf(v, 1) {
		return bigBound
	}
	if math.IsInf(v, -1) {
		return -bigBound
	}
	return v
}

// reducedCosts returns cBar[j] = cost[j] - sum_i costBasis[i]*tab[i][j] for every column.
func (t *tableau) reducedCosts(cost []float64) []float64 {
	cB := make([]float64, t.m)
	for i, bi := range t.basis {
		cB[i] = cost[bi]
	}
	out := make([]float64, t.totalCols)
	for j := 0; j < t.totalCols; j++ {
		s := cost[j]
		for i := 0; i < t.m; i++ {
			if cB[i] != 0 {
				s -= cB[i] * t.tab[i][j]
			}
		}
		out[j] = s
	}
	return out
}

// runSimplex performs bounded-variable simplex pivoting against the given
// cost vector, restricted to columns in allowed (nil means all columns).
// It mutates t in place and returns Optimal, Unbounded, or IterationLimit.
func (t *tableau) runSimplex(cost []float64, allowed func(j int) bool) Status {
	for t.iterations < t.maxIter {
		reduced := t.reducedCosts(cost)

		enter := -1
		enterDir := 1.0
		for j := 0; j < t.totalCols; j++ {
			if allowed != nil && !allowed(j) {
				continue
			}
			if isBasic(t.basis, j) {
				continue
			}
			if !t.atUpper[j] && reduced[j] < -tol {
				enter = j
				enterDir = 1
				break
			}
			if t.atUpper[j] && reduced[j] > tol {
				enter = j
				enterDir = -1
				break
			}
		}
		if enter == -1 {
			return Optimal
		}

		leave, tStar, leaveToUpper := t.ratioTest(enter, enterDir)
		if leave == -1 && tStar >= bigBound {
			return Unbounded
		}

		// Update basic variable values and the entering variable's own value.
		for i := 0; i < t.m; i++ {
			t.rhs[i] -= t.tab[i][enter] * enterDir * tStar
		}
		enterVal := t.lo[enter]
		if t.atUpper[enter] {
			enterVal = t.hi[enter]
		}
		enterVal += enterDir * tStar

		if leave == -1 {
			// Bound flip: entering variable moves to its opposite bound,
			// no basis change.
			t.atUpper[enter] = !t.atUpper[enter]
			t.iterations++
			continue
		}

		// Pivot: enter becomes basic in row `leave`; the variable that
		// was basic there leaves to whichever bound it hit.
		leavingVar := t.basis[leave]
		t.atUpper[leavingVar] = leaveToUpper
		t.pivot(leave, enter)
		t.rhs[leave] = enterVal
		t.basis[leave] = enter
		t.iterations++
	}
	return IterationLimit
}

// pivot performs Gauss-Jordan elimination to make column `col` the unit
// basis vector for row `row`.
func (t *tableau) pivot(row, col int) {
	piv := t.tab[row][col]
	rowVec := t.tab[row]
	for j := range rowVec {
		rowVec[j] /= piv
	}
	for i := 0; i < t.m; i++ {
		if i == row {
			continue
		}
		factor := t.tab[i][col]
		if factor == 0 {
			continue
		}
		for j := range t.tab[i] {
			t.tab[i][j] -= factor * rowVec[j]
		}
	}
}

// ratioTest finds how far the entering variable can move (direction dir,
// starting from its current bound) before some basic variable or the
// entering variable itself hits a bound. Returns the leaving row (-1 for a
// bound flip or unbounded), the step length, and whether the leaving
// variable hits its upper bound.
func (t *tableau) ratioTest(enter int, dir float64) (leaveRow int, step float64, leaveToUpper bool) {
	step = t.hi[enter] - t.lo[enter] // the entering variable's own range
	leaveRow = -1

	for i := 0; i < t.m; i++ {
		coef := t.tab[i][enter] * dir
		bi := t.basis[i]
		if coef > tol {
			limit := (t.rhs[i] - t.lo[bi]) / coef
			if limit < step {
				step = limit
				leaveRow = i
				leaveToUpper = false
			}
		} else if coef < -tol {
			limit := (t.rhs[i] - t.hi[bi]) / coef
			if limit < step {
				step = limit
				leaveRow = i
				leaveToUpper = true
			}
		}
	}
	if step < 0 {
		step = 0
	}
	return leaveRow, step, leaveToUpper
}

func isBasic(basis []int, j int) bool {
	for _, b := range basis {
		if b == j {
			return true
		}
	}
	return false
}

func (t *tableau) phase1() error {
	status := t.runSimplex(t.c1, nil)
	_ = status // phase 1 always halts at Optimal or IterationLimit for a bounded artificial objective

	sum := 0.0
	t.phase1Dual = make([]float64, t.m)
	for i, bi := range t.basis {
		if bi >= t.n {
			sum += t.rhs[i]
		}
	}
	// c1 is 1 on every artificial, so reduced[n+i] = 1 - y_i for the
	// sign-scaled row i; artSign maps that back to the original row.
	reduced := t.reducedCosts(t.c1)
	for i := 0; i < t.m; i++ {
		t.phase1Dual[i] = t.artSign[i] * (1 - reduced[t.n+i])
	}
	t.feasible = sum <= tol*float64(t.m+1)
	return nil
}

func (t *tableau) phase2() Status {
	if !t.feasible {
		return Infeasible
	}
	artificial := func(j int) bool { return j >= t.n }
	allowed := func(j int) bool { return !artificial(j) }
	return t.runSimplex(t.c2, allowed)
}

func (t *tableau) extractX() []float64 {
	x := make([]float64, t.n)
	for j := 0; j < t.n; j++ {
		if t.atUpper[j] {
			x[j] = t.hi[j]
		} else {
			x[j] = t.lo[j]
		}
	}
	for i, bi := range t.basis {
		if bi < t.n {
			x[bi] = t.rhs[i]
		}
	}
	return x
}

// extractDuals returns y = c_B^T B^-1, the row (equality-constraint) shadow
// prices at the phase-2 optimum, used by the operational subproblem to
// recover the bundle-method subgradient.
func (t *tableau) extractDuals() []float64 {
	y := make([]float64, t.m)
	// y_i is recovered from the reduced cost of the i-th artificial column,
	// since tab[:,n+i] currently holds B^-1 e_i for the sign-scaled rows and
	// reducedCosts(c2)[n+i] = 0 - c_B^T (B^-1 e_i) is minus the scaled row's
	// dual; multiplying by artSign[i] gives the dual of the original row.
	reduced := t.reducedCosts(t.c2)
	for i := 0; i < t.m; i++ {
		y[i] = -t.artSign[i] * reduced[t.n+i]
	}
	return y
}

// farkasRay returns the phase-1 dual vector, a practical infeasibility
// certificate: it is the direction along which the artificial (phase-1)
// objective has zero reduced cost at the phase-1 optimum, i.e. the
// constraint combination that cannot be driven to zero.
func (t *tableau) farkasRay() []float64 {
	return t.phase1Dual
}
