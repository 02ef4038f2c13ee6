// Package facade implements the single solve entry point that sequences
// the cycle basis, bundle engine, and transmission corrector into one
// operation (C8 in the engine's component design, spec.md §4.8): build the
// network and cycle basis, run the bundle method to a gap target, run the
// transmission corrector, then re-run the bundle method once more for a
// polishing pass before returning the summarized Result.
package facade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/canopi-project/canopi-engine/bundle"
	"github.com/canopi-project/canopi-engine/canopierr"
	"github.com/canopi-project/canopi-engine/config"
	"github.com/canopi-project/canopi-engine/corrector"
	"github.com/canopi-project/canopi-engine/cycle"
	"github.com/canopi-project/canopi-engine/dispatch"
	"github.com/canopi-project/canopi-engine/network"
	"github.com/canopi-project/canopi-engine/transfer"
)

// ScenarioInput pairs one dispatch.Scenario with its weight, matching
// spec.md §6's per-scenario {weight, cost_matrix, availability_matrix,
// demand_matrix, shed_penalty, violation_penalty} ingestion shape.
type ScenarioInput struct {
	Scenario dispatch.Scenario
	Weight   float64
}

// IterationRecord is one entry of Result.Diagnostics, modeled on the
// original prototype's BundleIteration dashboard row (SPEC_FULL.md §3).
type IterationRecord struct {
	Phase          bundle.Phase
	Iteration      int
	UpperBound     float64
	LowerBound     float64
	Gap            float64
	ElapsedSeconds float64
}

// Result is the facade's summarized output (spec.md §6).
type Result struct {
	SolveID          string
	Status           string // "optimal", "timeout", "cancelled", "infeasible", "non_converged"
	TotalCost        float64
	ObjectiveValue   float64
	Gap              float64
	Iterations       int
	ElapsedSeconds   float64
	CapacityDecision bundle.Decision
	Diagnostics      []IterationRecord
}

// ProgressEvent is the facade's unified progress-sink payload (spec.md
// §6's "progress sink"), covering both bundle and corrector phases.
type ProgressEvent struct {
	Phase          bundle.Phase
	Iteration      int
	UpperBound     float64
	LowerBound     float64
	Gap            float64
	ElapsedSeconds float64
}

// ProgressSink receives ProgressEvents from Solve's coordinating goroutine.
type ProgressSink func(ProgressEvent)

// Solve runs the full sequence: build NetworkModel, build the cycle basis,
// run BundleEngine to convergence, run TransmissionCorrector, then
// re-run BundleEngine once more with the corrector's x̂_br baked into the
// PTDF/LODF kernel and the first run's contingency sets carried over but
// cutting planes cleared (spec.md §4.8 steps 1-6). timeout <= 0 means no
// wall-clock budget (spec.md §5's "Timeouts").
//
// A non-nil Result is always returned alongside a non-nil error when
// Result.Status is "timeout" or "non_converged": the error wraps
// canopierr.ErrTimeout/ErrNotConverged respectively so callers can
// errors.Is against the taxonomy, without losing the populated Result.
func Solve(ctx context.Context, buses []network.Bus, branches []network.Branch, gens []network.Generator, stores []network.Storage, loads []network.Load, scenarios []ScenarioInput, limits bundle.Limits, costs bundle.Costs, cfg config.Params, timeout time.Duration, sink ProgressSink, logger *zap.SugaredLogger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	solveID := uuid.NewString()
	logger = logger.With("solve_id", solveID)
	start := time.Now()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	net, err := network.Build(buses, branches, gens, stores, loads)
	if err != nil {
		return Result{}, fmt.Errorf("facade.Solve: %w", err)
	}
	basis, err := cycle.Build(net, cfg)
	if err != nil {
		return Result{}, fmt.Errorf("facade.Solve: %w", err)
	}

	scen := make([]dispatch.Scenario, len(scenarios))
	weights := make([]float64, len(scenarios))
	for i, s := range scenarios {
		scen[i] = s.Scenario
		weights[i] = s.Weight
	}

	xHat := make([]float64, len(net.ACBranches)) // nominal: zero added capacity
	nominalSusc := net.Susceptances(nil)
	chiHat := make([]float64, len(nominalSusc)) // branch impedances at xHat, for the KVL rows
	for j, bj := range nominalSusc {
		chiHat[j] = 1 / bj
	}
	kernel, err := transfer.Build(net, nominalSusc, cfg)
	if err != nil {
		return Result{}, fmt.Errorf("facade.Solve: %w", err)
	}

	var diagnostics []IterationRecord

	firstRun, err := bundle.Solve(ctx, net, basis, kernel, chiHat, scen, weights, nil, limits, costs, cfg, stampPhase(sink, bundle.PhaseBundle), logger)
	diagnostics = append(diagnostics, recordsOf(firstRun.History)...)
	if err != nil && !isExpectedOutcome(err) {
		return Result{}, fmt.Errorf("facade.Solve: %w", err)
	}
	if err != nil || firstRun.Status != "converged" {
		status := classifyBundle(ctx, firstRun.Status, err)
		return Result{
			SolveID:          solveID,
			Status:           status,
			TotalCost:        firstRun.UpperBound,
			ObjectiveValue:   firstRun.UpperBound,
			Gap:              firstRun.Gap,
			Iterations:       firstRun.Iterations,
			ElapsedSeconds:   time.Since(start).Seconds(),
			CapacityDecision: firstRun.Incumbent,
			Diagnostics:      diagnostics,
		}, terminalError(status)
	}

	correctorScenarios, err := realizedFlows(net, basis, kernel, chiHat, firstRun.Incumbent, scen, firstRun.ContingencySets, weights, cfg)
	if err != nil {
		return Result{}, fmt.Errorf("facade.Solve: %w", err)
	}

	branchCost := make([]float64, len(net.ACBranches))
	branchMax := make([]float64, len(net.ACBranches))
	for j := range net.ACBranches {
		branchCost[j] = costs.BranchPerMW[j]
		branchMax[j] = limits.BranchExpansionMaxMW[j]
	}

	correctSink := func(ev corrector.ProgressEvent) {
		diagnostics = append(diagnostics, IterationRecord{
			Phase:          bundle.PhaseCorrector,
			Iteration:      ev.Iteration,
			Gap:            ev.MaxRelativeChange,
			ElapsedSeconds: ev.ElapsedSeconds,
		})
		if sink != nil {
			sink(ProgressEvent{Phase: bundle.PhaseCorrector, Iteration: ev.Iteration, Gap: ev.MaxRelativeChange, ElapsedSeconds: ev.ElapsedSeconds})
		}
	}

	correctorOutcome, err := corrector.Correct(ctx, net, correctorScenarios, branchCost, branchMax, xHat, cfg, correctSink, logger)
	if err != nil {
		if errors.Is(err, canopierr.ErrCancelled) {
			status := classifyCancellation(ctx)
			return Result{
				SolveID:          solveID,
				Status:           status,
				TotalCost:        firstRun.UpperBound,
				ObjectiveValue:   firstRun.UpperBound,
				Gap:              firstRun.Gap,
				Iterations:       firstRun.Iterations,
				ElapsedSeconds:   time.Since(start).Seconds(),
				CapacityDecision: firstRun.Incumbent,
				Diagnostics:      diagnostics,
			}, terminalError(status)
		}
		return Result{}, fmt.Errorf("facade.Solve: %w", err)
	}
	xHatCorrected := correctorOutcome.XBr

	polishSusc := net.Susceptances(xHatCorrected)
	polishChi := make([]float64, len(polishSusc)) // branch impedances at xHatCorrected
	for j, bj := range polishSusc {
		polishChi[j] = 1 / bj
	}
	polishKernel, err := transfer.Build(net, polishSusc, cfg)
	if err != nil {
		return Result{}, fmt.Errorf("facade.Solve: %w", err)
	}

	polishRun, err := bundle.Solve(ctx, net, basis, polishKernel, polishChi, scen, weights, firstRun.ContingencySets, limits, costs, cfg, stampPhase(sink, bundle.PhasePolish), logger)
	diagnostics = append(diagnostics, recordsOf(polishRun.History)...)
	if err != nil && !isExpectedOutcome(err) {
		return Result{}, fmt.Errorf("facade.Solve: %w", err)
	}
	if err != nil || polishRun.Status != "converged" {
		status := classifyBundle(ctx, polishRun.Status, err)
		if status == "non_converged" && !correctorOutcome.Converged {
			logger.Infow("transmission corrector did not converge before the polishing pass", "iterations", correctorOutcome.Iterations)
		}
		return Result{
			SolveID:          solveID,
			Status:           status,
			TotalCost:        polishRun.UpperBound,
			ObjectiveValue:   polishRun.UpperBound,
			Gap:              polishRun.Gap,
			Iterations:       firstRun.Iterations + polishRun.Iterations,
			ElapsedSeconds:   time.Since(start).Seconds(),
			CapacityDecision: polishRun.Incumbent,
			Diagnostics:      diagnostics,
		}, terminalError(status)
	}

	status := "optimal"
	if !correctorOutcome.Converged {
		status = "non_converged"
	}
	return Result{
		SolveID:          solveID,
		Status:           status,
		TotalCost:        polishRun.UpperBound,
		ObjectiveValue:   polishRun.UpperBound,
		Gap:              polishRun.Gap,
		Iterations:       firstRun.Iterations + polishRun.Iterations,
		ElapsedSeconds:   time.Since(start).Seconds(),
		CapacityDecision: polishRun.Incumbent,
		Diagnostics:      diagnostics,
	}, terminalError(status)
}

// realizedFlows re-solves every scenario's operational subproblem at the
// bundle method's incumbent capacity decision, holding it fixed, so the
// corrector can read back the realized per-period branch flows it needs
// for its separable sub-solve (spec.md §4.7 step 1: "hold all
// non-transmission decisions from the bundle's solution fixed").
func realizedFlows(net *network.Model, basis *cycle.Basis, kernel *transfer.Kernel, chiHat []float64, incumbent bundle.Decision, scen []dispatch.Scenario, contingencySets [][]dispatch.ContingencyTriple, weights []float64, cfg config.Params) ([]corrector.ScenarioFlows, error) {
	out := make([]corrector.ScenarioFlows, len(scen))
	for w, sc := range scen {
		sc.EmissionsCap = incumbent.Emissions[w]
		var cset []dispatch.ContingencyTriple
		if contingencySets != nil {
			cset = contingencySets[w]
		}
		res, err := dispatch.Solve(net, basis, kernel, chiHat, incumbent.Capacity, sc, cset, cfg)
		if err != nil {
			return nil, fmt.Errorf("facade: re-solving scenario %d at incumbent: %w", w, err)
		}
		out[w] = corrector.ScenarioFlows{
			PBr:                  res.PBr,
			ContingencyThreshold: sc.ContingencyThreshold,
			ViolationCost:        sc.ViolationCost,
			Weight:               weights[w],
		}
	}
	return out, nil
}

// isExpectedOutcome reports whether err is one of the conditions spec.md
// §7 treats as a terminal Result rather than an error the caller must
// handle: cooperative cancellation/timeout, or every x in X yielding
// scenario infeasibility. A solver error is never swallowed this way.
func isExpectedOutcome(err error) bool {
	return errors.Is(err, canopierr.ErrCancelled) || errors.Is(err, canopierr.ErrScenarioInfeasible)
}

// classifyBundle maps a bundle.Outcome's internal status (plus any error)
// onto the external vocabulary spec.md §6 names for Result.status.
func classifyBundle(ctx context.Context, bundleStatus string, err error) string {
	if err != nil {
		switch {
		case errors.Is(err, canopierr.ErrCancelled):
			return classifyCancellation(ctx)
		case errors.Is(err, canopierr.ErrScenarioInfeasible):
			return "infeasible"
		}
	}
	switch bundleStatus {
	case "cancelled":
		return classifyCancellation(ctx)
	case "iteration_limit":
		return "non_converged"
	default:
		return "non_converged"
	}
}

// classifyCancellation distinguishes a caller-requested cancellation from
// wall-clock budget expiry, both of which the coordinator reports via the
// same canopierr.ErrCancelled sentinel (spec.md §5's "cancelled by the
// caller via a cooperative flag").
func classifyCancellation(ctx context.Context) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "timeout"
	}
	return "cancelled"
}

// terminalError wraps the sentinel matching a terminal Result.Status so
// callers can errors.Is against canopierr.ErrTimeout/ErrNotConverged
// instead of string-comparing Result.Status, while still receiving the
// populated Result alongside the error. Other statuses ("optimal",
// "cancelled", "infeasible") are reported via Result.Status alone.
func terminalError(status string) error {
	switch status {
	case "timeout":
		return fmt.Errorf("facade.Solve: %w", canopierr.ErrTimeout)
	case "non_converged":
		return fmt.Errorf("facade.Solve: %w", canopierr.ErrNotConverged)
	default:
		return nil
	}
}

func recordsOf(history []bundle.ProgressEvent) []IterationRecord {
	out := make([]IterationRecord, len(history))
	for i, ev := range history {
		out[i] = IterationRecord{
			Phase:          ev.Phase,
			Iteration:      ev.Iteration,
			UpperBound:     ev.UpperBound,
			LowerBound:     ev.LowerBound,
			Gap:            ev.Gap,
			ElapsedSeconds: ev.ElapsedSeconds,
		}
	}
	return out
}

// stampPhase adapts the facade's external ProgressSink into a
// bundle.ProgressSink, overriding the phase label so a caller can tell the
// first bundle run apart from the final polishing pass even though
// bundle.Solve itself always tags its own events PhaseBundle.
func stampPhase(sink ProgressSink, phase bundle.Phase) bundle.ProgressSink {
	if sink == nil {
		return nil
	}
	return func(ev bundle.ProgressEvent) {
		sink(ProgressEvent{
			Phase:          phase,
			Iteration:      ev.Iteration,
			UpperBound:     ev.UpperBound,
			LowerBound:     ev.LowerBound,
			Gap:            ev.Gap,
			ElapsedSeconds: ev.ElapsedSeconds,
		})
	}
}
