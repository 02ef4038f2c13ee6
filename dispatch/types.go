// Package dispatch implements the per-scenario operational subproblem
// (C4 in the engine's component design): given a fixed CapacityDecision,
// solve the multi-period LP covering generation, storage, load shedding,
// reserves, cycle-based KVL, branch limits, and the currently-active N-1
// contingency set, returning the objective, primal solution, and the
// subgradient the bundle method needs with respect to x.
package dispatch

import (
	"errors"

	"github.com/canopi-project/canopi-engine/internal/simplex"
)

// ErrInfeasible names the case where the scenario LP has no feasible point
// given the current CapacityDecision. Solve does not return it: it reports
// that case with a nil error and a Result whose Status is Infeasible, whose
// Ray carries a Farkas certificate for the bundle method's feasibility cut
// (spec.md §4.4), and whose Subgradient is recovered from that Ray.
var ErrInfeasible = errors.New("dispatch: scenario subproblem infeasible")

// ContingencyTriple identifies one lazily-added N-1 constraint: at period
// Period, monitored branch Monitored must stay within limits assuming
// Outaged is out of service.
type ContingencyTriple struct {
	Period    int
	Monitored int
	Outaged   int
}

// Scenario holds the per-period data specific to one operating scenario ω:
// demand, generator availability, and the scenario's emissions cap.
type Scenario struct {
	// Demand[t][d] is load d's demand (MW) at period t.
	Demand [][]float64

	// Availability[t][g] is generator g's availability factor a_g[t,g] at
	// period t (e.g. 1.0 for dispatchable thermal, a capacity factor for
	// renewables).
	Availability [][]float64

	// GenCost[t][g] is generator g's marginal cost c_g[t,g] at period t.
	GenCost [][]float64

	// EmissionsCap is x_em[ω], the scenario's total emissions budget.
	EmissionsCap float64

	// ShedCost is c_sh, the cost per MWh of unserved load.
	ShedCost float64

	// ViolationCost is c_vio, the cost per MW of contingency slack.
	ViolationCost float64

	// ReserveMargin is γ_d, the system reserve requirement as a fraction
	// of total demand.
	ReserveMargin float64

	// ContingencyThreshold is η_c, the post-contingency loading factor
	// applied to a monitored branch's own limit.
	ContingencyThreshold float64
}

// CapacityDecision is the fixed investment vector x the subproblem solves
// against: added generation, storage power/energy, and transmission
// capacity, indexed in the same order as the network.Model's slices.
type CapacityDecision struct {
	GenExpansionMW            []float64
	StoragePowerExpansionMW   []float64
	StorageEnergyExpansionMWh []float64
	BranchExpansionMW         []float64 // indexed over AC branches
}

// Subgradient is ∂(objective)/∂x, recovered from the LP's constraint duals
// (spec.md §4.4: "the negative sum, over constraints where that capacity
// appears on the right-hand side, of the product of its coefficient and
// the dual value").
type Subgradient struct {
	GenExpansionMW            []float64
	StoragePowerExpansionMW   []float64
	StorageEnergyExpansionMWh []float64
	BranchExpansionMW         []float64
}

// Result is one scenario subproblem's solution.
type Result struct {
	Status      simplex.Status
	Objective   float64
	PG          [][]float64 // T x G
	RG          [][]float64 // T x G
	PChg        [][]float64 // T x S
	PDis        [][]float64 // T x S
	RDis        [][]float64 // T x S
	Q           [][]float64 // T x S
	PBr         [][]float64 // T x b
	PDC         [][]float64 // T x β
	PSh         [][]float64 // T x D
	SC          map[ContingencyTriple]float64
	Subgradient Subgradient

	// EmissionsDual is -d(objective)/d(EmissionsCap), the negated shadow
	// price of the scenario emissions row (0 if no generator in this
	// scenario has nonzero EmissionsPerMWh, so the row was never added). The
	// bundle engine uses its negation, d(objective)/d(EmissionsCap), to
	// extend the subgradient to the x_em[ω] component of CapacityDecision
	// (spec.md §4.4/§3).
	EmissionsDual float64

	Ray []float64 // Farkas certificate, valid only when Status == Infeasible
}
