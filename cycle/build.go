package cycle

import (
	"fmt"
	"math"

	"github.com/canopi-project/canopi-engine/config"
	"github.com/canopi-project/canopi-engine/internal/intprog"
	"github.com/canopi-project/canopi-engine/internal/mat"
	"github.com/canopi-project/canopi-engine/network"
)

// Build constructs a minimal cycle basis over net's AC branches: a
// fundamental basis from a spanning tree, then an attempted shortening pass
// per cycle (Algorithm 3), then a consistent-orientation assignment and a
// final validation of rank and shape.
func Build(net *network.Model, cfg config.Params) (*Basis, error) {
	n := len(net.Buses)
	b := len(net.ACBranches)
	nc := b - n + 1
	if nc < 0 {
		return nil, fmt.Errorf("cycle: %d branches insufficient to span %d buses: %w", b, n, ErrDisconnectedNetwork)
	}

	tree, err := buildSpanningTree(n, net.ACBranches)
	if err != nil {
		return nil, err
	}

	nonTree := make([]int, 0, nc)
	for j, inTree := range tree.treeSet {
		if !inTree {
			nonTree = append(nonTree, j)
		}
	}
	if len(nonTree) != nc {
		return nil, fmt.Errorf("cycle: expected %d non-tree branches, found %d: %w", nc, len(nonTree), ErrInvalidBasis)
	}

	// Step 1: fundamental cycle basis, one row per non-tree branch,
	// already signed via the tree-path traversal.
	rows := make([][]float64, nc)
	for k, j := range nonTree {
		br := net.ACBranches[j]
		edges := tree.fundamentalCycle(br.From, br.To)
		row := make([]float64, b)
		for _, e := range edges {
			row[e.branch] = e.sign
		}
		row[j] = -1 // close the loop with the non-tree branch itself, traversed v -> u (To -> From)
		rows[k] = row
	}

	// Step 2: shorten each cycle in turn against the others (GF(2) search),
	// re-signing the replacement via Eulerian decomposition.
	packed := make([]intprog.Row, nc)
	for k, row := range rows {
		packed[k] = intprog.NewRow(undirectedOf(row))
	}
	for k := range rows {
		others := make([]intprog.Row, 0, nc-1)
		for o := range rows {
			if o != k {
				others = append(others, packed[o])
			}
		}
		shortened := intprog.ShortestCycle(packed[k], others, cfg.CycleShorteningNodeBudget)
		membership := shortened.Bools(b)
		if weightOf(membership) < weightOf(undirectedOf(rows[k])) {
			signed, err := orientMembership(membership, net.ACBranches, n)
			if err != nil {
				return nil, fmt.Errorf("cycle: shortening cycle %d: %w", k, err)
			}
			rows[k] = signed
			packed[k] = shortened
		}
	}

	D, err := mat.NewDense(nc, b)
	if err != nil {
		return nil, fmt.Errorf("cycle: allocating basis matrix: %w", err)
	}
	for k, row := range rows {
		for j, v := range row {
			D.MustSet(k, j, v)
		}
	}

	basis := &Basis{
		D:            D,
		NumCycles:    nc,
		NumBranches:  b,
		TreeBranches: treeIndices(tree.treeSet),
	}
	if err := validate(basis, net); err != nil {
		return nil, err
	}
	return basis, nil
}

func undirectedOf(row []float64) []bool {
	out := make([]bool, len(row))
	for j, v := range row {
		out[j] = v != 0
	}
	return out
}

func weightOf(bits []bool) int {
	w := 0
	for _, b := range bits {
		if b {
			w++
		}
	}
	return w
}

func treeIndices(treeSet []bool) []int {
	out := make([]int, 0, len(treeSet))
	for j, inTree := range treeSet {
		if inTree {
			out = append(out, j)
		}
	}
	return out
}

// validate checks dimension and rank (spec.md §8 invariant 1: the basis
// must be full row rank, b - n + 1 independent cycles), that every entry is
// in {-1, 0, 1}, and that every cycle is orthogonal to the node-branch
// incidence matrix (D·Aᵀ = 0: each cycle's signed walk returns to its
// starting bus at every node, the defining property of a graph cycle).
func validate(basis *Basis, net *network.Model) error {
	if basis.D.Rows() != basis.NumCycles || basis.D.Cols() != basis.NumBranches {
		return fmt.Errorf("cycle: basis shape %dx%d, expected %dx%d: %w",
			basis.D.Rows(), basis.D.Cols(), basis.NumCycles, basis.NumBranches, ErrInvalidBasis)
	}
	for k := 0; k < basis.NumCycles; k++ {
		for _, v := range basis.Row(k) {
			if v != -1 && v != 0 && v != 1 {
				return fmt.Errorf("cycle: entry %g out of {-1,0,1} at row %d: %w", v, k, ErrInvalidBasis)
			}
		}
	}
	if basis.NumCycles > 0 {
		rank := mat.Rank(basis.D, 1e-9)
		if rank != basis.NumCycles {
			return fmt.Errorf("cycle: basis rank %d, expected %d: %w", rank, basis.NumCycles, ErrInvalidBasis)
		}
	}
	for k := 0; k < basis.NumCycles; k++ {
		row := basis.Row(k)
		for i := 0; i < net.Incidence.Rows(); i++ {
			sum := 0.0
			for j, v := range row {
				if v == 0 {
					continue
				}
				a := net.Incidence.MustAt(i, j)
				sum += v * a
			}
			if math.Abs(sum) > 1e-9 {
				return fmt.Errorf("cycle: basis row %d not orthogonal to incidence row %d (D·A^T=%g): %w", k, i, sum, ErrInvalidBasis)
			}
		}
	}
	return nil
}
