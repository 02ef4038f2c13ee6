// Package cycle builds a minimal cycle basis over a network's AC branches
// (C2 in the engine's component design), so the operational subproblem can
// express KVL via cycle-space constraints instead of per-bus angle
// variables (spec.md §4.2). A cycle basis is a set of n_c = b - n + 1
// linearly independent rows over {-1, 0, 1}^b, each describing a closed
// loop in the network: row κ has a nonzero entry at branch j iff branch j
// participates in cycle κ, signed by whether the cycle traverses the
// branch forward (+1, matching its From→To orientation) or backward (-1).
package cycle

import (
	"errors"

	"github.com/canopi-project/canopi-engine/internal/mat"
)

// ErrDisconnectedNetwork indicates the AC branch graph does not span all
// buses, so no spanning tree (and hence no cycle basis) exists.
var ErrDisconnectedNetwork = errors.New("cycle: AC branch graph is disconnected")

// ErrInvalidBasis indicates the constructed basis failed validation
// (wrong dimension, rank deficiency, or an out-of-range entry).
var ErrInvalidBasis = errors.New("cycle: constructed basis failed validation")

// Basis is a minimal cycle basis over a network's AC branches.
type Basis struct {
	// D is the n_c × b signed cycle-membership matrix.
	D *mat.Dense

	// NumCycles is n_c = b - n + 1, the dimension of the cycle space.
	NumCycles int

	// NumBranches is b, the number of AC branches the basis is defined over.
	NumBranches int

	// TreeBranches lists the b-n_c branch indices selected into the
	// spanning tree (kept for diagnostics; not required downstream).
	TreeBranches []int
}

// Row returns cycle κ's signed membership vector.
func (b *Basis) Row(kappa int) []float64 {
	return b.D.Row(kappa)
}
