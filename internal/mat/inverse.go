package mat

import "fmt"

// Inverse returns the inverse of the square matrix m via Doolittle LU
// followed by forward/backward substitution against each identity column,
// adapted from lvlath/matrix/ops.Inverse. PowerTransferKernel (C3) uses
// this once per impedance-defining capacity to factor the reduced weighted
// Laplacian; spec.md explicitly sanctions a dense solve "for ≤ a few
// hundred buses", which is this function's intended scale.
// Complexity: O(n³) time, O(n²) memory.
func Inverse(m *Dense) (*Dense, error) {
	rows, cols := m.Rows(), m.Cols()
	if rows != cols {
		return nil, fmt.Errorf("mat.Inverse: non-square %dx%d: %w", rows, cols, ErrDimensionMismatch)
	}

	L, U, err := LU(m)
	if err != nil {
		return nil, fmt.Errorf("mat.Inverse: %w", err)
	}

	inv, err := NewDense(rows, cols)
	if err != nil {
		return nil, fmt.Errorf("mat.Inverse: %w", err)
	}
	y := make([]float64, rows)
	x := make([]float64, rows)

	for col := 0; col < cols; col++ {
		// Forward substitution: L·y = e_col.
		for i := 0; i < rows; i++ {
			sum := 0.0
			for k := 0; k < i; k++ {
				sum += L.MustAt(i, k) * y[k]
			}
			if i == col {
				y[i] = 1.0 - sum
			} else {
				y[i] = -sum
			}
		}
		// Backward substitution: U·x = y.
		for i := rows - 1; i >= 0; i-- {
			sum := 0.0
			for k := i + 1; k < cols; k++ {
				sum += U.MustAt(i, k) * x[k]
			}
			pivot := U.MustAt(i, i)
			if pivot == 0 {
				return nil, fmt.Errorf("mat.Inverse: zero pivot at %d: %w", i, ErrSingular)
			}
			x[i] = (y[i] - sum) / pivot
		}
		for i := 0; i < rows; i++ {
			inv.MustSet(i, col, x[i])
		}
	}

	return inv, nil
}

// SolveLinear solves A·x = b for x via LU decomposition, without forming
// A⁻¹. Used for one-off right-hand sides where Inverse's O(n²) extra
// memory for the full inverse is unnecessary.
func SolveLinear(a *Dense, b []float64) ([]float64, error) {
	n := a.Rows()
	if a.Cols() != n || len(b) != n {
		return nil, fmt.Errorf("mat.SolveLinear: %dx%d system, rhs length %d: %w", a.Rows(), a.Cols(), len(b), ErrDimensionMismatch)
	}
	L, U, err := LU(a)
	if err != nil {
		return nil, fmt.Errorf("mat.SolveLinear: %w", err)
	}
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for k := 0; k < i; k++ {
			sum += L.MustAt(i, k) * y[k]
		}
		y[i] = b[i] - sum
	}
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := 0.0
		for k := i + 1; k < n; k++ {
			sum += U.MustAt(i, k) * x[k]
		}
		pivot := U.MustAt(i, i)
		if pivot == 0 {
			return nil, fmt.Errorf("mat.SolveLinear: zero pivot at %d: %w", i, ErrSingular)
		}
		x[i] = (y[i] - sum) / pivot
	}
	return x, nil
}
