package cycle

import (
	"fmt"

	"github.com/canopi-project/canopi-engine/network"
)

// orientMembership assigns consistent signs to an undirected cycle-space
// element (a 0/1 membership vector over AC branches where every bus has
// even degree, guaranteed because membership is the GF(2) sum of cycles).
// It decomposes the edge-induced subgraph into Eulerian circuits
// (Hierholzer's algorithm, one per connected component) and signs each
// branch by whether the circuit traverses it forward (+1, matching its
// From→To orientation) or backward (-1).
func orientMembership(membership []bool, branches []network.Branch, n int) ([]float64, error) {
	adj := make([][]adjArc, n)
	for j, inCycle := range membership {
		if !inCycle {
			continue
		}
		br := branches[j]
		adj[br.From] = append(adj[br.From], adjArc{to: br.To, branch: j})
		adj[br.To] = append(adj[br.To], adjArc{to: br.From, branch: j})
	}

	used := make([]bool, len(branches))
	signed := make([]float64, len(branches))
	ptr := make([]int, n) // next unexplored adjacency index per bus, for Hierholzer

	for start := 0; start < n; start++ {
		if len(adj[start]) == 0 {
			continue
		}
		hasUnused := false
		for _, a := range adj[start] {
			if !used[a.branch] {
				hasUnused = true
				break
			}
		}
		if !hasUnused {
			continue
		}

		circuit, err := hierholzer(start, adj, used, ptr)
		if err != nil {
			return nil, err
		}
		for i := 0; i+1 < len(circuit); i++ {
			from, to, branchIdx := circuit[i].bus, circuit[i+1].bus, circuit[i+1].viaBranch
			br := branches[branchIdx]
			if br.From == from && br.To == to {
				signed[branchIdx] = 1
			} else {
				signed[branchIdx] = -1
			}
		}
	}

	for j, inCycle := range membership {
		if inCycle && signed[j] == 0 {
			return nil, fmt.Errorf("cycle: branch %d left unsigned after Eulerian decomposition: %w", j, ErrInvalidBasis)
		}
	}

	return signed, nil
}

type adjArc struct {
	to, branch int
}

type visit struct {
	bus       int
	viaBranch int // branch traversed to reach bus (unused for the first element)
}

// hierholzer finds a closed Eulerian circuit starting and ending at `start`
// over the edges in adj not yet marked used, marking every edge it
// consumes. It assumes start's component has every vertex at even residual
// degree, which orientMembership's caller guarantees.
func hierholzer(start int, adj [][]adjArc, used []bool, ptr []int) ([]visit, error) {
	stack := []visit{{bus: start}}
	var circuit []visit

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		u := top.bus

		for ptr[u] < len(adj[u]) && used[adj[u][ptr[u]].branch] {
			ptr[u]++
		}
		if ptr[u] == len(adj[u]) {
			circuit = append(circuit, top)
			stack = stack[:len(stack)-1]
			continue
		}

		a := adj[u][ptr[u]]
		used[a.branch] = true
		ptr[u]++
		stack = append(stack, visit{bus: a.to, viaBranch: a.branch})
	}

	// circuit was built in reverse (Hierholzer pops in LIFO completion order).
	for i, j := 0, len(circuit)-1; i < j; i, j = i+1, j-1 {
		circuit[i], circuit[j] = circuit[j], circuit[i]
	}
	if len(circuit) == 0 || circuit[0].bus != start || circuit[len(circuit)-1].bus != start {
		return nil, fmt.Errorf("cycle: Eulerian circuit did not close at bus %d: %w", start, ErrInvalidBasis)
	}
	return circuit, nil
}
