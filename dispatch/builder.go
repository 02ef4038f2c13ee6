package dispatch

import "math"

// lpBuilder incrementally assembles a simplex.Problem. Columns are
// allocated on demand (decision variables up front, slack/surplus
// variables as each inequality family is visited), and rows are accumulated
// as sparse coefficient maps so constraint-assembly code never needs to
// know the final variable count in advance.
type lpBuilder struct {
	lo, hi []float64
	cost   []float64
	rows   []map[int]float64
	rhs    []float64
}

func newLPBuilder() *lpBuilder {
	return &lpBuilder{}
}

// newVar allocates a fresh column with the given bounds and zero objective
// coefficient, returning its index.
func (lb *lpBuilder) newVar(lo, hi float64) int {
	lb.lo = append(lb.lo, lo)
	lb.hi = append(lb.hi, hi)
	lb.cost = append(lb.cost, 0)
	return len(lb.lo) - 1
}

// addCost adds delta to column j's objective coefficient.
func (lb *lpBuilder) addCost(j int, delta float64) {
	lb.cost[j] += delta
}

// eq adds an equality row: coefs . x = rhs. Returns the row's index.
func (lb *lpBuilder) eq(coefs map[int]float64, rhs float64) int {
	lb.rows = append(lb.rows, coefs)
	lb.rhs = append(lb.rhs, rhs)
	return len(lb.rows) - 1
}

// le adds coefs . x <= rhs by introducing a nonnegative slack column and
// recording it as an equality. Returns the slack column's index and the
// row's index (for callers that need the row's dual later).
func (lb *lpBuilder) le(coefs map[int]float64, rhs float64) (slackCol, rowIdx int) {
	slack := lb.newVar(0, math.Inf(1))
	row := cloneCoefs(coefs)
	row[slack] = 1
	lb.eq(row, rhs)
	return slack, len(lb.rows) - 1
}

// ge adds coefs . x >= rhs via a nonnegative surplus column. Returns the
// surplus column's index and the row's index.
func (lb *lpBuilder) ge(coefs map[int]float64, rhs float64) (surplusCol, rowIdx int) {
	surplus := lb.newVar(0, math.Inf(1))
	row := cloneCoefs(coefs)
	row[surplus] = -1
	lb.eq(row, rhs)
	return surplus, len(lb.rows) - 1
}

func cloneCoefs(m map[int]float64) map[int]float64 {
	out := make(map[int]float64, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// denseRows materializes every accumulated row into an n-wide dense slice,
// where n is the final column count (lb.newVar is assumed finished by the
// time this is called).
func (lb *lpBuilder) denseRows() [][]float64 {
	n := len(lb.lo)
	out := make([][]float64, len(lb.rows))
	for i, row := range lb.rows {
		dense := make([]float64, n)
		for col, v := range row {
			dense[col] = v
		}
		out[i] = dense
	}
	return out
}
