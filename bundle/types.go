// Package bundle implements the level-bundle method with interleaved
// contingency generation (C6 in the engine's component design): it
// coordinates per-scenario cutting-plane models, a master LP, and an
// analytic-center stabilization step to drive a CapacityDecision to within
// a relative-gap target of optimality (spec.md §4.6).
package bundle

import (
	"github.com/canopi-project/canopi-engine/dispatch"
)

// Phase names a stage of the outer solve, reported on ProgressEvent so a
// caller's progress sink can distinguish bundle iterations from corrector
// iterations and the final polishing pass (spec.md §4.8/§6).
type Phase string

const (
	PhaseBundle    Phase = "bundle"
	PhaseCorrector Phase = "corrector"
	PhasePolish    Phase = "polish"
)

// ProgressEvent is pushed to a ProgressSink at every bundle iteration and
// every corrector iteration (spec.md §6's "progress sink").
type ProgressEvent struct {
	Iteration      int
	UpperBound     float64
	LowerBound     float64
	Gap            float64
	ElapsedSeconds float64
	Phase          Phase
}

// ProgressSink receives ProgressEvents from the coordinating goroutine.
// Implementations must be lightweight; the engine does not retry or
// recover from a panicking sink.
type ProgressSink func(ProgressEvent)

// Decision is the master problem's variable x ∈ X (spec.md §3's
// CapacityDecision): the network CapacityDecision plus the per-scenario
// emissions allocation x_em, whose sum is capped by Limits.EmissionsTotalMax.
type Decision struct {
	Capacity  dispatch.CapacityDecision
	Emissions []float64 // length = number of scenarios
}

// Clone returns a deep copy, so that a Decision kept across iterations
// (such as the best incumbent) shares no slices with the one it was
// copied from.
func (d Decision) Clone() Decision {
	out := Decision{
		Capacity: dispatch.CapacityDecision{
			GenExpansionMW:            append([]float64(nil), d.Capacity.GenExpansionMW...),
			StoragePowerExpansionMW:   append([]float64(nil), d.Capacity.StoragePowerExpansionMW...),
			StorageEnergyExpansionMWh: append([]float64(nil), d.Capacity.StorageEnergyExpansionMWh...),
			BranchExpansionMW:         append([]float64(nil), d.Capacity.BranchExpansionMW...),
		},
		Emissions: append([]float64(nil), d.Emissions...),
	}
	return out
}

// Limits is the feasibility polyhedron X's componentwise upper bounds plus
// the total-emissions cap (spec.md §3's CapacityDecision invariant).
type Limits struct {
	GenExpansionMaxMW            []float64
	StoragePowerExpansionMaxMW   []float64
	StorageEnergyExpansionMaxMWh []float64
	BranchExpansionMaxMW         []float64
	EmissionsTotalMax            float64
}

// Costs are the annualized investment coefficients c in the outer
// objective cᵀx (spec.md §4.6).
type Costs struct {
	GenPerMW            []float64
	StoragePowerPerMW   []float64
	StorageEnergyPerMWh []float64
	BranchPerMW         []float64
}

// cut is one recorded (θ, g) pair for a scenario's cutting-plane model,
// together with the Decision it was taken at (spec.md §3's
// CuttingPlaneModel). feasibility marks a Benders feasibility cut, taken
// when the scenario LP had no feasible point at atCapacity/atEmissions: it
// carries no epistemic cost theta and enters the master as a plain
// g.x <= g.atCapacity row instead of an optimality cut's tau-linked row.
type cut struct {
	theta       float64
	grad        dispatch.Subgradient
	emGrad      float64
	atCapacity  dispatch.CapacityDecision
	atEmissions float64
	feasibility bool
}

// scenarioState is the coordinator-owned mutable state for one scenario:
// its data, weight, monotonically-growing contingency set, and
// append-only cut sequence.
type scenarioState struct {
	data           dispatch.Scenario
	weight         float64
	contingencySet []dispatch.ContingencyTriple
	cuts           []cut
}

// Outcome is the bundle method's result for one call to Solve.
type Outcome struct {
	Status     string // "converged", "iteration_limit", or "cancelled"
	Incumbent  Decision
	UpperBound float64
	LowerBound float64
	Gap        float64
	Iterations int
	History    []ProgressEvent

	// ContingencySets is each scenario's final, monotonically-grown
	// contingency set, in scenario order. A caller re-running Solve for a
	// polishing pass after TransmissionCorrector (spec.md §4.8 step 6)
	// passes this back in via the initialContingencySets parameter so the
	// lazily-discovered triples survive even though their cutting planes
	// do not.
	ContingencySets [][]dispatch.ContingencyTriple
}
