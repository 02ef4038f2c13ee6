package bundle

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/canopi-project/canopi-engine/canopierr"
	"github.com/canopi-project/canopi-engine/config"
	"github.com/canopi-project/canopi-engine/contingency"
	"github.com/canopi-project/canopi-engine/cycle"
	"github.com/canopi-project/canopi-engine/dispatch"
	"github.com/canopi-project/canopi-engine/internal/simplex"
	"github.com/canopi-project/canopi-engine/network"
	"github.com/canopi-project/canopi-engine/transfer"
)

// maxConcurrentScenarios bounds the per-iteration scenario fan-out, the
// same SetLimit pattern errgroup's own docs recommend for a worker count
// independent of scenario count.
const maxConcurrentScenarios = 8

// contingencyScanTolerance is the slack below which a post-contingency
// flow estimate is not worth a lazy constraint (spec.md §4.5's "a small
// numerical tolerance").
const contingencyScanTolerance = 1e-6

// Solve runs the level-bundle method with interleaved N-1 contingency
// generation (spec.md §4.6): each iteration solves every scenario's
// operational subproblem at the current iterate (refining its
// contingency set until the oracle finds nothing new), records a cutting
// plane per scenario, solves the master LP for a lower bound, updates the
// incumbent upper bound, and advances to the analytic center of the
// current level set. It stops when the relative gap closes to
// cfg.Epsilon, the iteration cap is hit, or ctx is cancelled.
func Solve(ctx context.Context, net *network.Model, basis *cycle.Basis, kernel *transfer.Kernel, chiHat []float64, scenarios []dispatch.Scenario, weights []float64, initialContingencySets [][]dispatch.ContingencyTriple, limits Limits, costs Costs, cfg config.Params, sink ProgressSink, logger *zap.SugaredLogger) (Outcome, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if len(scenarios) != len(weights) {
		return Outcome{}, fmt.Errorf("bundle.Solve: %d scenarios but %d weights: %w", len(scenarios), len(weights), canopierr.ErrInvalidInput)
	}
	if initialContingencySets != nil && len(initialContingencySets) != len(scenarios) {
		return Outcome{}, fmt.Errorf("bundle.Solve: %d scenarios but %d initial contingency sets: %w", len(scenarios), len(initialContingencySets), canopierr.ErrInvalidInput)
	}

	d := newMasterDims(limits, len(scenarios))
	states := make([]*scenarioState, len(scenarios))
	for w, sc := range scenarios {
		states[w] = &scenarioState{data: sc, weight: weights[w]}
		if initialContingencySets != nil {
			states[w].contingencySet = append([]dispatch.ContingencyTriple(nil), initialContingencySets[w]...)
		}
	}

	incumbent := zeroDecision(limits, len(scenarios))
	best := incumbent.Clone()
	upperBound := math.Inf(1)
	lowerBound := math.Inf(-1)

	start := time.Now()
	var history []ProgressEvent
	status := "iteration_limit"
	iterationsRun := 0

	for iter := 1; iter <= cfg.MaxBundleIterations; iter++ {
		select {
		case <-ctx.Done():
			return Outcome{
				Status:          "cancelled",
				Incumbent:       best,
				UpperBound:      upperBound,
				LowerBound:      lowerBound,
				Gap:             gapOf(upperBound, lowerBound),
				Iterations:      iterationsRun,
				History:         history,
				ContingencySets: contingencySetsOf(states),
			}, fmt.Errorf("bundle.Solve: %w", canopierr.ErrCancelled)
		default:
		}
		iterationsRun = iter

		results, err := solveScenarios(ctx, net, basis, kernel, chiHat, incumbent, states, cfg)
		if err != nil {
			return Outcome{}, err
		}

		allFeasible := true
		epistemic := 0.0
		for w, res := range results {
			if res.Status == simplex.Infeasible {
				allFeasible = false
				continue
			}
			epistemic += states[w].weight * res.Objective
		}
		if allFeasible {
			candidate := investmentCost(costs, incumbent) + epistemic
			if candidate < upperBound {
				upperBound = candidate
				best = incumbent.Clone()
			}
		}

		lk, err := solveMaster(d, limits, costs, states)
		if err != nil {
			return Outcome{}, err
		}
		if lk > lowerBound {
			lowerBound = lk
		}

		gap := gapOf(upperBound, lowerBound)
		event := ProgressEvent{
			Iteration:      iter,
			UpperBound:     upperBound,
			LowerBound:     lowerBound,
			Gap:            gap,
			ElapsedSeconds: time.Since(start).Seconds(),
			Phase:          PhaseBundle,
		}
		history = append(history, event)
		if sink != nil {
			sink(event)
		}
		logger.Infow("bundle iteration", "iteration", iter, "upper_bound", upperBound, "lower_bound", lowerBound, "gap", gap)

		if gap <= cfg.Epsilon {
			status = "converged"
			break
		}

		level := lowerBound + cfg.Alpha*(upperBound-lowerBound)
		z, err := analyticCenterLevelSet(d, limits, costs, states, level)
		if err != nil {
			return Outcome{}, fmt.Errorf("bundle.Solve: %w", err)
		}
		incumbent = decisionFromZ(d, z, len(scenarios))
	}

	return Outcome{
		Status:          status,
		Incumbent:       best,
		UpperBound:      upperBound,
		LowerBound:      lowerBound,
		Gap:             gapOf(upperBound, lowerBound),
		Iterations:      iterationsRun,
		History:         history,
		ContingencySets: contingencySetsOf(states),
	}, nil
}

func contingencySetsOf(states []*scenarioState) [][]dispatch.ContingencyTriple {
	out := make([][]dispatch.ContingencyTriple, len(states))
	for w, st := range states {
		out[w] = st.contingencySet
	}
	return out
}

// solveScenarios solves every scenario's operational subproblem at dec
// concurrently, bounded to maxConcurrentScenarios in flight, and appends
// the resulting cutting plane (optimality or feasibility) to each
// scenario's state.
func solveScenarios(ctx context.Context, net *network.Model, basis *cycle.Basis, kernel *transfer.Kernel, chiHat []float64, dec Decision, states []*scenarioState, cfg config.Params) ([]dispatch.Result, error) {
	results := make([]dispatch.Result, len(states))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentScenarios)
	for w := range states {
		w := w
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, infeasible, err := solveScenarioWithContingencyRefinement(net, basis, kernel, chiHat, dec.Capacity, dec.Emissions[w], states[w], cfg)
			if err != nil {
				return err
			}
			results[w] = res
			if infeasible {
				states[w].cuts = append(states[w].cuts, cut{
					grad:        res.Subgradient,
					atCapacity:  dec.Capacity,
					atEmissions: dec.Emissions[w],
					feasibility: true,
				})
				return nil
			}
			states[w].cuts = append(states[w].cuts, cut{
				theta:       res.Objective,
				grad:        res.Subgradient,
				emGrad:      -res.EmissionsDual,
				atCapacity:  dec.Capacity,
				atEmissions: dec.Emissions[w],
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("bundle.Solve: %w", err)
	}
	return results, nil
}

// solveScenarioWithContingencyRefinement solves one scenario, lazily
// growing its contingency set from the oracle's screening until no new
// violation survives, then returns the final solve (spec.md §4.5's
// "interleaved" lazy-constraint loop). The bool return is true exactly
// when the final solve was infeasible.
func solveScenarioWithContingencyRefinement(net *network.Model, basis *cycle.Basis, kernel *transfer.Kernel, chiHat []float64, capacity dispatch.CapacityDecision, emissionsCap float64, st *scenarioState, cfg config.Params) (dispatch.Result, bool, error) {
	scen := st.data
	scen.EmissionsCap = emissionsCap

	for {
		res, err := dispatch.Solve(net, basis, kernel, chiHat, capacity, scen, st.contingencySet, cfg)
		if err != nil {
			return dispatch.Result{}, false, fmt.Errorf("bundle: scenario solve: %w", err)
		}
		if res.Status == simplex.Infeasible {
			return res, true, nil
		}

		violations := contingency.Scan(net, kernel, res.PBr, capacity.BranchExpansionMW, scen.ContingencyThreshold, contingencyScanTolerance, cfg.OracleBudget)
		triples := make([]dispatch.ContingencyTriple, len(violations))
		for i, v := range violations {
			triples[i] = v.Triple
		}
		merged, grew := contingency.Merge(st.contingencySet, triples)
		st.contingencySet = merged
		if !grew {
			return res, false, nil
		}
	}
}

func zeroDecision(limits Limits, numScenarios int) Decision {
	return Decision{
		Capacity: dispatch.CapacityDecision{
			GenExpansionMW:            make([]float64, len(limits.GenExpansionMaxMW)),
			StoragePowerExpansionMW:   make([]float64, len(limits.StoragePowerExpansionMaxMW)),
			StorageEnergyExpansionMWh: make([]float64, len(limits.StorageEnergyExpansionMaxMWh)),
			BranchExpansionMW:         make([]float64, len(limits.BranchExpansionMaxMW)),
		},
		Emissions: make([]float64, numScenarios),
	}
}

func investmentCost(costs Costs, dec Decision) float64 {
	s := 0.0
	for i, v := range dec.Capacity.GenExpansionMW {
		s += costs.GenPerMW[i] * v
	}
	for i, v := range dec.Capacity.StoragePowerExpansionMW {
		s += costs.StoragePowerPerMW[i] * v
	}
	for i, v := range dec.Capacity.StorageEnergyExpansionMWh {
		s += costs.StorageEnergyPerMWh[i] * v
	}
	for i, v := range dec.Capacity.BranchExpansionMW {
		s += costs.BranchPerMW[i] * v
	}
	return s
}

// decisionFromZ reads a Decision back out of the master LP's (or the
// analytic center's) flat variable vector.
func decisionFromZ(d masterDims, z []float64, numScenarios int) Decision {
	dec := Decision{
		Capacity: dispatch.CapacityDecision{
			GenExpansionMW:            make([]float64, d.G),
			StoragePowerExpansionMW:   make([]float64, d.SP),
			StorageEnergyExpansionMWh: make([]float64, d.SE),
			BranchExpansionMW:         make([]float64, d.B),
		},
		Emissions: make([]float64, numScenarios),
	}
	for i := 0; i < d.G; i++ {
		dec.Capacity.GenExpansionMW[i] = z[d.gen(i)]
	}
	for i := 0; i < d.SP; i++ {
		dec.Capacity.StoragePowerExpansionMW[i] = z[d.sp(i)]
	}
	for i := 0; i < d.SE; i++ {
		dec.Capacity.StorageEnergyExpansionMWh[i] = z[d.se(i)]
	}
	for i := 0; i < d.B; i++ {
		dec.Capacity.BranchExpansionMW[i] = z[d.br(i)]
	}
	for w := 0; w < d.S; w++ {
		dec.Emissions[w] = z[d.em(w)]
	}
	return dec
}

func gapOf(upperBound, lowerBound float64) float64 {
	if math.IsInf(upperBound, 1) || math.IsInf(lowerBound, -1) {
		return math.Inf(1)
	}
	denom := math.Abs(upperBound)
	if denom < 1 {
		denom = 1
	}
	return (upperBound - lowerBound) / denom
}
