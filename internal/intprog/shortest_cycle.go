// Package intprog implements the small branch-and-bound integer program the
// cycle package needs to shorten a fundamental cycle basis (spec.md §4.2,
// Algorithm 3 / original_source's solve_shortest_cycle_ip). Because every
// row of an undirected cycle-membership matrix is a 0/1 vector, the integer
// program
//
//	minimize   Σ_j v_j
//	subject to Σ_κ C[κ][j]·w[κ] = 2u[j] + v[j]   ∀j
//	           w ∈ {0,1}^nc, w[κ̂] = 1
//	           v ∈ {0,1}^b
//
// reduces to a GF(2) problem: v is the bitwise XOR of the rows selected by
// w, and the objective is v's Hamming weight. ShortestCycle searches for the
// subset of "other" rows (w[κ̂] is forced to 1) whose XOR with row κ̂ has
// minimum weight, via depth-first branch-and-bound with a popcount lower
// bound, rather than via any LP/MIP solver package (none of this module's
// dependencies provide one).
package intprog

import "math/bits"

// Row is a fixed-width GF(2) vector packed into 64-bit words.
type Row []uint64

// NewRow packs a []bool into a Row of the given bit width.
func NewRow(bits_ []bool) Row {
	words := (len(bits_) + 63) / 64
	r := make(Row, words)
	for j, b := range bits_ {
		if b {
			r[j/64] |= 1 << uint(j%64)
		}
	}
	return r
}

// Bools unpacks a Row back to a []bool of the given bit width.
func (r Row) Bools(width int) []bool {
	out := make([]bool, width)
	for j := 0; j < width; j++ {
		if r[j/64]&(1<<uint(j%64)) != 0 {
			out[j] = true
		}
	}
	return out
}

// weight returns the Hamming weight (popcount) of r.
func (r Row) weight() int {
	w := 0
	for _, word := range r {
		w += bits.OnesCount64(word)
	}
	return w
}

// xor returns a ^ b as a new Row.
func xor(a, b Row) Row {
	out := make(Row, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// ShortestCycle searches for the subset S of others (others[k] for k in a
// candidate index list) minimizing weight(fixed XOR XOR_{k in S} others[k]),
// returning that minimum-weight XOR result. fixed is row κ̂ itself (w[κ̂]=1
// is mandatory, so it always contributes). nodeBudget caps the number of
// branch-and-bound nodes explored; when the budget is exhausted the best
// candidate found so far is returned (never worse than fixed alone, since
// the empty selection is always considered first).
//
// Complexity: worst case O(2^len(others)), bounded in practice by nodeBudget
// and by the popcount lower-bound pruning.
func ShortestCycle(fixed Row, others []Row, nodeBudget int) Row {
	best := fixed
	bestWeight := fixed.weight()
	if bestWeight == 0 || len(others) == 0 {
		return best
	}

	nodes := 0
	var rec func(idx int, acc Row)
	rec = func(idx int, acc Row) {
		if nodes >= nodeBudget {
			return
		}
		nodes++
		w := acc.weight()
		if w < bestWeight {
			bestWeight = w
			best = acc
		}
		if w == 0 {
			return // cannot do better than zero
		}
		if idx >= len(others) {
			return
		}
		// Branch 1: exclude others[idx].
		rec(idx+1, acc)
		if nodes >= nodeBudget {
			return
		}
		// Branch 2: include others[idx].
		rec(idx+1, xor(acc, others[idx]))
	}
	rec(0, fixed)

	return best
}
