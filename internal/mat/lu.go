package mat

import "fmt"

// LU performs Doolittle LU decomposition on a square matrix m, adapted from
// lvlath/matrix/ops.LU. It returns L (unit lower triangular) and U (upper
// triangular) matrices, or ErrDimensionMismatch if m is not square.
// Complexity: O(n³) time, O(n²) memory, where n = m.Rows().
func LU(m *Dense) (L, U *Dense, err error) {
	rows, cols := m.Rows(), m.Cols()
	if rows != cols {
		return nil, nil, fmt.Errorf("mat.LU: non-square matrix %dx%d: %w", rows, cols, ErrDimensionMismatch)
	}
	n := rows

	L, err = NewDense(n, n)
	if err != nil {
		return nil, nil, fmt.Errorf("mat.LU: %w", err)
	}
	U, err = NewDense(n, n)
	if err != nil {
		return nil, nil, fmt.Errorf("mat.LU: %w", err)
	}
	for i := 0; i < n; i++ {
		L.MustSet(i, i, 1)
	}

	for i := 0; i < n; i++ {
		// Row i of U, columns j >= i.
		for j := i; j < n; j++ {
			sum := 0.0
			for k := 0; k < i; k++ {
				sum += L.MustAt(i, k) * U.MustAt(k, j)
			}
			U.MustSet(i, j, m.MustAt(i, j)-sum)
		}
		// Column i of L, rows j > i.
		for j := i + 1; j < n; j++ {
			sum := 0.0
			for k := 0; k < i; k++ {
				sum += L.MustAt(j, k) * U.MustAt(k, i)
			}
			uDiag := U.MustAt(i, i)
			if uDiag == 0 {
				return nil, nil, fmt.Errorf("mat.LU: zero pivot at %d: %w", i, ErrSingular)
			}
			L.MustSet(j, i, (m.MustAt(j, i)-sum)/uDiag)
		}
	}

	return L, U, nil
}
