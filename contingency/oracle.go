// Package contingency implements the N-1 screening oracle (C5 in the
// engine's component design): given a scenario's realized base-case branch
// flows and a PTDF/LODF pair factored at the current impedance-defining
// capacity, it finds the (period, monitored, outaged) triples whose
// post-contingency flow would exceed the monitored branch's thermal limit,
// and ranks them by how badly they violate it.
//
// The top-K selection below is a min-heap over the K worst violations seen
// so far, the same lazy priority-queue shape lvlath/dijkstra uses for its
// frontier, adapted here to keep a bounded min-heap instead of a full sort
// of every (t, i, j) triple — the oracle is called once per bundle
// iteration per scenario, and b can be in the thousands.
package contingency

import (
	"container/heap"

	"github.com/canopi-project/canopi-engine/dispatch"
	"github.com/canopi-project/canopi-engine/network"
	"github.com/canopi-project/canopi-engine/transfer"
)

// Violation is one screened contingency triple and its thermal overage.
type Violation struct {
	Triple dispatch.ContingencyTriple
	Delta  float64 // MW by which |p^c| exceeds the post-contingency rating
}

// Scan finds, across every period and every ordered pair of non-bridge AC
// branches (i monitored, j outaged, i != j), the violation
// delta = max(|p_br[t,i] + Lambda[i,j]*p_br[t,j]| - threshold*(w_br[i]+x_br[i]), 0)
// and returns the budget-many largest deltas that exceed tol (spec.md
// §4.5). pbr is indexed pbr[t][branch], matching dispatch.Result.PBr.
func Scan(net *network.Model, kernel *transfer.Kernel, pbr [][]float64, xBr []float64, threshold, tol float64, budget int) []Violation {
	eligible := net.ContingencyEligible()

	pq := make(worstPQ, 0, budget+1)
	for t, flows := range pbr {
		for _, i := range eligible {
			limit := threshold * (net.ACBranches[i].Capacity + xBr[i])
			for _, j := range eligible {
				if i == j {
					continue
				}
				lodf, _ := kernel.Lambda.At(i, j)
				if lodf == 0 {
					continue
				}
				pc := flows[i] + lodf*flows[j]
				delta := absf(pc) - limit
				if delta <= tol {
					continue
				}
				v := Violation{Triple: dispatch.ContingencyTriple{Period: t, Monitored: i, Outaged: j}, Delta: delta}
				pushBounded(&pq, v, budget)
			}
		}
	}

	out := make([]Violation, len(pq))
	for i := len(pq) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&pq).(Violation)
	}
	return out
}

// pushBounded keeps pq as a min-heap of at most budget violations, so that
// after every call pq holds the budget largest deltas seen so far.
func pushBounded(pq *worstPQ, v Violation, budget int) {
	if budget <= 0 {
		return
	}
	if pq.Len() < budget {
		heap.Push(pq, v)
		return
	}
	if v.Delta > (*pq)[0].Delta {
		(*pq)[0] = v
		heap.Fix(pq, 0)
	}
}

// worstPQ is a min-heap of Violation ordered by ascending Delta, so the
// weakest of the currently-kept violations sits at the root and is the one
// compared (and evicted) against each new candidate.
type worstPQ []Violation

func (pq worstPQ) Len() int            { return len(pq) }
func (pq worstPQ) Less(i, j int) bool  { return pq[i].Delta < pq[j].Delta }
func (pq worstPQ) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *worstPQ) Push(x interface{}) { *pq = append(*pq, x.(Violation)) }
func (pq *worstPQ) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Merge folds newly-screened violations into an existing contingency set,
// silently merging duplicates (spec.md §4.5: "duplicates are silently
// merged"). It returns the updated set and whether any triple was actually
// new, since the bundle engine only needs to re-cut a scenario whose set grew.
func Merge(set []dispatch.ContingencyTriple, found []Violation) ([]dispatch.ContingencyTriple, bool) {
	seen := make(map[dispatch.ContingencyTriple]bool, len(set))
	for _, trip := range set {
		seen[trip] = true
	}
	grew := false
	for _, v := range found {
		if !seen[v.Triple] {
			seen[v.Triple] = true
			set = append(set, v.Triple)
			grew = true
		}
	}
	return set, grew
}
