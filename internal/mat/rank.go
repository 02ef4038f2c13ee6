package mat

import "math"

// Rank returns the numerical rank of m via Gaussian elimination with
// partial pivoting, counting pivots whose magnitude exceeds tol. Used by
// the cycle package to validate that a candidate cycle basis has full row
// rank (spec.md §8 invariant 1).
func Rank(m *Dense, tol float64) int {
	a := m.Clone()
	rows, cols := a.Rows(), a.Cols()
	rank := 0
	for col := 0; col < cols && rank < rows; col++ {
		pivotRow := -1
		best := tol
		for r := rank; r < rows; r++ {
			v := math.Abs(a.MustAt(r, col))
			if v > best {
				best = v
				pivotRow = r
			}
		}
		if pivotRow == -1 {
			continue // column has no usable pivot; move to next column
		}
		if pivotRow != rank {
			swapRows(a, pivotRow, rank)
		}
		pivotVal := a.MustAt(rank, col)
		for r := rank + 1; r < rows; r++ {
			factor := a.MustAt(r, col) / pivotVal
			if factor == 0 {
				continue
			}
			for c := col; c < cols; c++ {
				a.MustSet(r, c, a.MustAt(r, c)-factor*a.MustAt(rank, c))
			}
		}
		rank++
	}
	return rank
}

func swapRows(a *Dense, i, j int) {
	if i == j {
		return
	}
	cols := a.Cols()
	for c := 0; c < cols; c++ {
		vi, vj := a.MustAt(i, c), a.MustAt(j, c)
		a.MustSet(i, c, vj)
		a.MustSet(j, c, vi)
	}
}
