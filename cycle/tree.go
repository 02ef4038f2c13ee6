package cycle

import "github.com/canopi-project/canopi-engine/network"

// spanningTree is a BFS spanning tree of the AC branch graph rooted at bus 0.
type spanningTree struct {
	branches     []network.Branch
	parentBus    []int // parentBus[v] = parent bus of v in the tree, -1 for the root
	parentBranch []int // parentBranch[v] = AC branch index connecting v to its parent, -1 for the root
	depth        []int
	treeSet      []bool // treeSet[j] = true if AC branch j is a tree branch
}

// buildSpanningTree runs BFS over the n-bus, b-branch AC graph. It returns
// ErrDisconnectedNetwork if any bus is unreachable from bus 0.
func buildSpanningTree(n int, branches []network.Branch) (*spanningTree, error) {
	type arc struct{ to, branch int }
	adj := make([][]arc, n)
	for j, br := range branches {
		adj[br.From] = append(adj[br.From], arc{to: br.To, branch: j})
		adj[br.To] = append(adj[br.To], arc{to: br.From, branch: j})
	}

	t := &spanningTree{
		branches:     branches,
		parentBus:    make([]int, n),
		parentBranch: make([]int, n),
		depth:        make([]int, n),
		treeSet:      make([]bool, len(branches)),
	}
	visited := make([]bool, n)
	for i := range t.parentBus {
		t.parentBus[i] = -1
		t.parentBranch[i] = -1
	}

	queue := []int{0}
	visited[0] = true
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, a := range adj[u] {
			if visited[a.to] {
				continue
			}
			visited[a.to] = true
			t.parentBus[a.to] = u
			t.parentBranch[a.to] = a.branch
			t.depth[a.to] = t.depth[u] + 1
			t.treeSet[a.branch] = true
			queue = append(queue, a.to)
		}
	}

	for v := 0; v < n; v++ {
		if !visited[v] {
			return nil, ErrDisconnectedNetwork
		}
	}
	return t, nil
}

// pathEdge is one signed branch traversal on a tree path: +1 if traversed
// in the branch's From→To direction, -1 if traversed To→From.
type pathEdge struct {
	branch int
	sign   float64
}

// edgeSign returns the signed traversal of branch b when walking from bus
// `from` to bus `to` (one of the branch's two endpoints to the other).
func (t *spanningTree) edgeSign(branchIdx, from, to int) pathEdge {
	br := t.branches[branchIdx]
	if br.From == from && br.To == to {
		return pathEdge{branch: branchIdx, sign: 1}
	}
	return pathEdge{branch: branchIdx, sign: -1}
}

// fundamentalCycle returns the signed branch list for the unique cycle
// formed by non-tree branch br plus the tree path between its endpoints.
// The path is found by climbing both endpoints to their lowest common tree
// ancestor. The returned edges trace u -> lca -> v only; the non-tree
// branch itself is not included, and callers close the loop by appending
// br traversed v -> u.
func (t *spanningTree) fundamentalCycle(u, v int) []pathEdge {
	ancestorDepth := make(map[int]int)
	for x := u; ; x = t.parentBus[x] {
		ancestorDepth[x] = t.depth[x]
		if t.parentBus[x] == -1 {
			break
		}
	}

	lca := -1
	var vPath []int
	for x := v; ; x = t.parentBus[x] {
		vPath = append(vPath, x)
		if _, ok := ancestorDepth[x]; ok {
			lca = x
			break
		}
		if t.parentBus[x] == -1 {
			lca = x
			break
		}
	}

	var edges []pathEdge

	// u -> lca, walking up the tree: each step is child -> parent, which
	// is branch.From -> branch.To only when branch.From == child.
	for x := u; x != lca; x = t.parentBus[x] {
		parent := t.parentBus[x]
		b := t.parentBranch[x]
		edges = append(edges, t.edgeSign(b, x, parent))
	}

	// lca -> v: the reverse of v's climb (which walked v up to lca).
	for i := len(vPath) - 1; i >= 0; i-- {
		child := vPath[i]
		if child == lca {
			continue
		}
		parent := t.parentBus[child]
		b := t.parentBranch[child]
		// Traversing parent -> child is the reverse of edgeSign(child, parent).
		e := t.edgeSign(b, child, parent)
		edges = append(edges, pathEdge{branch: e.branch, sign: -e.sign})
	}

	return edges
}
