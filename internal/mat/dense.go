// Package mat provides the dense linear algebra primitives the CANOPI engine
// needs for incidence matrices, the weighted Laplacian, PTDF/LODF, and the
// cycle-basis integer program. It is adapted from lvlath/matrix's Dense type
// and lvlath/matrix/ops's Doolittle LU/Inverse: same row-major flat storage,
// same error-first accessors, same Stage-numbered comment structure, grown
// with the matrix-algebra helpers the engine needs (matrix multiply,
// transpose, general LU-based linear solve) that the teacher's
// graph-oriented matrix package never needed.
package mat

import (
	"errors"
	"fmt"
)

// ErrInvalidDimensions indicates that requested matrix dimensions are non-positive.
var ErrInvalidDimensions = errors.New("mat: dimensions must be > 0")

// ErrIndexOutOfBounds indicates that a row or column index is outside valid range.
var ErrIndexOutOfBounds = errors.New("mat: index out of bounds")

// ErrDimensionMismatch indicates two matrices have incompatible dimensions for an operation.
var ErrDimensionMismatch = errors.New("mat: dimension mismatch")

// ErrSingular indicates a zero pivot was encountered during LU decomposition
// or a triangular solve, i.e. the matrix is not invertible to machine precision.
var ErrSingular = errors.New("mat: matrix is singular")

// denseErrorf wraps an underlying error with Dense method context.
func denseErrorf(method string, row, col int, err error) error {
	return fmt.Errorf("Dense.%s(%d,%d): %w", method, row, col, err)
}

// Dense is a row-major matrix of float64 values.
// r is rows, c is columns, and data holds r*c elements in row-major order.
type Dense struct {
	r, c int       // number of rows and columns
	data []float64 // flat backing storage, length == r*c
}

// NewDense creates an r×c Dense matrix initialized to zeros.
// Complexity: O(r*c) time and memory.
func NewDense(rows, cols int) (*Dense, error) {
	if rows <= 0 || cols <= 0 {
		return nil, ErrInvalidDimensions
	}
	return &Dense{r: rows, c: cols, data: make([]float64, rows*cols)}, nil
}

// Rows returns the number of rows in the matrix.
func (m *Dense) Rows() int { return m.r }

// Cols returns the number of columns in the matrix.
func (m *Dense) Cols() int { return m.c }

// indexOf computes the flat index for (row, col) or returns ErrIndexOutOfBounds.
func (m *Dense) indexOf(row, col int) (int, error) {
	if row < 0 || row >= m.r {
		return 0, denseErrorf("At", row, col, ErrIndexOutOfBounds)
	}
	if col < 0 || col >= m.c {
		return 0, denseErrorf("At", row, col, ErrIndexOutOfBounds)
	}
	return row*m.c + col, nil
}

// At retrieves the element at (row, col), or an error wrapping
// ErrIndexOutOfBounds.
func (m *Dense) At(row, col int) (float64, error) {
	idx, err := m.indexOf(row, col)
	if err != nil {
		return 0, err
	}
	return m.data[idx], nil
}

// Set assigns value v at (row, col), or returns an error wrapping
// ErrIndexOutOfBounds.
func (m *Dense) Set(row, col int, v float64) error {
	idx, err := m.indexOf(row, col)
	if err != nil {
		return err
	}
	m.data[idx] = v
	return nil
}

// MustAt is At without the error return, for call sites whose indices are
// already bounds-derived from m.Rows()/m.Cols() (the teacher's ops package
// does the same via "_ = " discards around At/Set in tight numerical loops).
func (m *Dense) MustAt(row, col int) float64 {
	v, _ := m.At(row, col)
	return v
}

// MustSet is Set without the error return, for the same bounds-derived call sites.
func (m *Dense) MustSet(row, col int, v float64) {
	_ = m.Set(row, col, v)
}

// Add accumulates v into the element at (row, col). Indices are assumed
// bounds-derived, matching MustAt/MustSet.
func (m *Dense) Add(row, col int, v float64) {
	idx, _ := m.indexOf(row, col)
	m.data[idx] += v
}

// Clone returns a deep copy of the Dense matrix.
func (m *Dense) Clone() *Dense {
	cp := make([]float64, len(m.data))
	copy(cp, m.data)
	return &Dense{r: m.r, c: m.c, data: cp}
}

// Identity returns the n×n identity matrix.
func Identity(n int) *Dense {
	id, _ := NewDense(n, n)
	for i := 0; i < n; i++ {
		id.MustSet(i, i, 1)
	}
	return id
}

// Diag returns a square diagonal matrix with d along the diagonal.
func Diag(d []float64) *Dense {
	n := len(d)
	m, _ := NewDense(n, n)
	for i, v := range d {
		m.MustSet(i, i, v)
	}
	return m
}

// Mul returns a*b, or ErrDimensionMismatch if inner dimensions disagree.
// Complexity: O(rows(a)*cols(a)*cols(b)).
func Mul(a, b *Dense) (*Dense, error) {
	if a.Cols() != b.Rows() {
		return nil, fmt.Errorf("mat.Mul: %dx%d * %dx%d: %w", a.r, a.c, b.r, b.c, ErrDimensionMismatch)
	}
	out, err := NewDense(a.Rows(), b.Cols())
	if err != nil {
		return nil, err
	}
	for i := 0; i < a.r; i++ {
		for k := 0; k < a.c; k++ {
			aik := a.MustAt(i, k)
			if aik == 0 {
				continue // incidence/susceptance matrices are sparse; skip zero contributions
			}
			for j := 0; j < b.c; j++ {
				out.Add(i, j, aik*b.MustAt(k, j))
			}
		}
	}
	return out, nil
}

// Transpose returns the transpose of m.
func Transpose(m *Dense) *Dense {
	out, _ := NewDense(m.Cols(), m.Rows())
	for i := 0; i < m.r; i++ {
		for j := 0; j < m.c; j++ {
			out.MustSet(j, i, m.MustAt(i, j))
		}
	}
	return out
}

// Col extracts column j as a dense vector.
func (m *Dense) Col(j int) []float64 {
	out := make([]float64, m.r)
	for i := 0; i < m.r; i++ {
		out[i] = m.MustAt(i, j)
	}
	return out
}

// Row extracts row i as a dense vector.
func (m *Dense) Row(i int) []float64 {
	out := make([]float64, m.c)
	copy(out, m.data[i*m.c:(i+1)*m.c])
	return out
}

// Dot returns the Euclidean inner product of two equal-length vectors.
func Dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
