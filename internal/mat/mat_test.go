package mat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopi-project/canopi-engine/internal/mat"
)

func TestInverse_RecoversIdentity(t *testing.T) {
	a, err := mat.NewDense(3, 3)
	require.NoError(t, err)
	vals := [][]float64{{4, 3, 0}, {3, 4, -1}, {0, -1, 4}}
	for i, row := range vals {
		for j, v := range row {
			require.NoError(t, a.Set(i, j, v))
		}
	}

	inv, err := mat.Inverse(a)
	require.NoError(t, err)

	prod, err := mat.Mul(a, inv)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v, _ := prod.At(i, j)
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(t, want, v, 1e-9)
		}
	}
}

func TestInverse_SingularReturnsError(t *testing.T) {
	a, err := mat.NewDense(2, 2)
	require.NoError(t, err)
	require.NoError(t, a.Set(0, 0, 1))
	require.NoError(t, a.Set(0, 1, 2))
	require.NoError(t, a.Set(1, 0, 2))
	require.NoError(t, a.Set(1, 1, 4))

	_, err = mat.Inverse(a)
	require.ErrorIs(t, err, mat.ErrSingular)
}

func TestRank_IdentifiesFullRank(t *testing.T) {
	a, err := mat.NewDense(2, 3)
	require.NoError(t, err)
	require.NoError(t, a.Set(0, 0, 1))
	require.NoError(t, a.Set(0, 1, -1))
	require.NoError(t, a.Set(1, 1, 1))
	require.NoError(t, a.Set(1, 2, -1))

	assert.Equal(t, 2, mat.Rank(a, 1e-9))
}

func TestSolveLinear(t *testing.T) {
	a, err := mat.NewDense(2, 2)
	require.NoError(t, err)
	require.NoError(t, a.Set(0, 0, 2))
	require.NoError(t, a.Set(0, 1, 1))
	require.NoError(t, a.Set(1, 0, 1))
	require.NoError(t, a.Set(1, 1, 3))

	x, err := mat.SolveLinear(a, []float64{3, 5})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, x[0], 1e-9)
	assert.InDelta(t, 1.4, x[1], 1e-9)
}
