// Package corrector implements the outer fixed point that reconciles the
// bundle engine's impedance-defining capacity assumption with the
// capacity it actually chose (C7 in the engine's component design,
// spec.md §4.7).
package corrector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/canopi-project/canopi-engine/canopierr"
	"github.com/canopi-project/canopi-engine/config"
	"github.com/canopi-project/canopi-engine/network"
	"github.com/canopi-project/canopi-engine/transfer"
)

// ProgressEvent reports one outer fixed-point iteration (spec.md §4.8's
// "iteration, max relative change").
type ProgressEvent struct {
	Iteration         int
	MaxRelativeChange float64
	ElapsedSeconds    float64
}

// ProgressSink receives ProgressEvents from Correct.
type ProgressSink func(ProgressEvent)

// ScenarioFlows is the fixed, non-transmission data the corrector holds
// constant while it re-optimizes transmission capacity: one scenario's
// realized branch flows (from the bundle engine's final dispatch) and the
// contingency parameters needed to price a violation (spec.md §4.7 step 1).
type ScenarioFlows struct {
	PBr                  [][]float64 // T x b, from dispatch.Result.PBr
	ContingencyThreshold float64     // eta_c
	ViolationCost        float64     // c_vio
	Weight               float64
}

// Outcome is the corrector's result.
type Outcome struct {
	XBr        []float64
	Converged  bool
	Iterations int
	History    []ProgressEvent
}

// Correct runs the transmission-correction fixed point: at each outer
// iteration it recomputes Lambda at the current impedance-defining
// capacity x̂_br, resolves every branch's separable analytic sub-problem
// against the (fixed) realized flows, and damps the update by
// cfg.CorrectorDamping before checking the relative-change stopping rule.
// Non-convergence within cfg.MaxCorrectorIterations is reported via
// Outcome.Converged, not an error: the last iterate is always usable
// (spec.md §4.7's "report non-convergence but still return the last
// iterate").
func Correct(ctx context.Context, net *network.Model, scenarios []ScenarioFlows, branchInvestmentCost, branchExpansionMax, xHatInit []float64, cfg config.Params, sink ProgressSink, logger *zap.SugaredLogger) (Outcome, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	b := len(net.ACBranches)
	if len(branchInvestmentCost) != b || len(branchExpansionMax) != b || len(xHatInit) != b {
		return Outcome{}, fmt.Errorf("corrector.Correct: branch-dimensioned inputs must have length %d: %w", b, canopierr.ErrInvalidInput)
	}

	xHat := append([]float64(nil), xHatInit...)
	start := time.Now()
	var history []ProgressEvent
	converged := false

	for iter := 1; iter <= cfg.MaxCorrectorIterations; iter++ {
		select {
		case <-ctx.Done():
			return Outcome{XBr: xHat, Converged: false, Iterations: iter - 1, History: history}, fmt.Errorf("corrector.Correct: %w", canopierr.ErrCancelled)
		default:
		}

		kernel, err := transfer.Build(net, net.Susceptances(xHat), cfg)
		if err != nil {
			return Outcome{}, fmt.Errorf("corrector.Correct: %w", err)
		}

		xNew := make([]float64, b)
		for i := 0; i < b; i++ {
			raw := solveBranch(net, kernel, scenarios, i, branchInvestmentCost[i], branchExpansionMax[i])
			xNew[i] = (1-cfg.CorrectorDamping)*xHat[i] + cfg.CorrectorDamping*raw
		}

		relChange := relativeChange(xHat, xNew)
		event := ProgressEvent{Iteration: iter, MaxRelativeChange: relChange, ElapsedSeconds: time.Since(start).Seconds()}
		history = append(history, event)
		if sink != nil {
			sink(event)
		}
		logger.Infow("corrector iteration", "iteration", iter, "relative_change", relChange)

		xHat = xNew
		if relChange < cfg.Tau {
			converged = true
			break
		}
	}

	return Outcome{XBr: xHat, Converged: converged, Iterations: len(history), History: history}, nil
}

func relativeChange(old, new_ []float64) float64 {
	num, den := 0.0, 0.0
	for i := range old {
		diff := new_[i] - old[i]
		num += diff * diff
		den += old[i] * old[i]
	}
	return math.Sqrt(num) / (1 + math.Sqrt(den))
}

// deltaEntry is one post-contingency violation magnitude with the
// marginal benefit rate (probability-weighted shadow price) of covering
// it, used by solveBranch's sorted-threshold rule.
type deltaEntry struct {
	value float64
	rate  float64
}

// solveBranch computes branch i's analytic optimum (spec.md §4.7 step 3):
// the base-case floor x_lb, then the ⌈c_br/(eta_c*c_vio)⌉-th largest
// post-contingency violation magnitude, generalized to weighted
// multi-scenario input by walking the deltas in descending order and
// accumulating each one's probability-weighted benefit rate until it
// reaches the branch's investment cost.
func solveBranch(net *network.Model, kernel *transfer.Kernel, scenarios []ScenarioFlows, i int, costBr, capMax float64) float64 {
	wBr := net.ACBranches[i].Capacity

	xlb := 0.0
	for _, sc := range scenarios {
		for t := range sc.PBr {
			if base := math.Abs(sc.PBr[t][i]) - wBr; base > xlb {
				xlb = base
			}
		}
	}

	var entries []deltaEntry
	if !net.IsBridge(i) {
		eligible := net.ContingencyEligible()
		for _, sc := range scenarios {
			for _, j := range eligible {
				if j == i {
					continue
				}
				lambda, err := kernel.Lambda.At(i, j)
				if err != nil {
					continue
				}
				for t := range sc.PBr {
					pc := sc.PBr[t][i] + lambda*sc.PBr[t][j]
					delta := (math.Abs(pc) - sc.ContingencyThreshold*wBr) / sc.ContingencyThreshold
					if delta > 0 {
						entries = append(entries, deltaEntry{value: delta, rate: sc.Weight * sc.ContingencyThreshold * sc.ViolationCost})
					}
				}
			}
		}
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].value > entries[b].value })

	x := xlb
	cumulative := 0.0
	reached := false
	for _, e := range entries {
		cumulative += e.rate
		if cumulative >= costBr {
			x = e.value
			reached = true
			break
		}
	}
	if !reached {
		x = xlb
	}

	if x < xlb {
		x = xlb
	}
	if x > capMax {
		x = capMax
	}
	return x
}
