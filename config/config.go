// Package config loads solver tolerances and iteration caps for the CANOPI
// engine from YAML, the same Load/LoadUnchecked/Validate shape used by
// battery-backtest/internal/config for its battery and strategy settings.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Params holds every numeric knob spec.md §6 lists as a configuration
// input, plus the corrector damping factor spec.md §4.7 recommends as a
// default (the original prototype has no damping at all; see SPEC_FULL.md).
type Params struct {
	// Epsilon is the bundle method's relative-gap convergence target.
	Epsilon float64 `yaml:"epsilon"`

	// Tau is the transmission corrector's fixed-point convergence
	// tolerance on the relative change in x_br.
	Tau float64 `yaml:"tau"`

	// MaxBundleIterations caps the level-bundle method's outer loop.
	MaxBundleIterations int `yaml:"max_bundle_iterations"`

	// MaxCorrectorIterations caps the transmission-correction fixed
	// point's outer loop.
	MaxCorrectorIterations int `yaml:"max_corrector_iterations"`

	// Alpha is the level-bundle method's level parameter, α ∈ (0, 1).
	Alpha float64 `yaml:"alpha"`

	// OracleBudget bounds how many contingency violations the oracle
	// returns per call (top-K screening budget).
	OracleBudget int `yaml:"oracle_budget"`

	// CorrectorDamping is β in the damped update
	// (1-β)·x̂_br + β·x_br_new. β = 1 recovers the undorrected prototype
	// fixed point; the engine default is 0.5.
	CorrectorDamping float64 `yaml:"corrector_damping"`

	// BridgeSingularTol is the |1 - Φ_j·A_r[:,j]| threshold below which a
	// branch is treated as a bridge in LODF computation (spec §4.3).
	BridgeSingularTol float64 `yaml:"bridge_singular_tol"`

	// CycleShorteningNodeBudget bounds the branch-and-bound search node
	// count when shortening a single cycle-basis row (spec §4.2, Algorithm
	// 3). Exceeding the budget is not an error: the search returns the
	// best row found so far, which is always at least the fundamental
	// cycle it started from.
	CycleShorteningNodeBudget int `yaml:"cycle_shortening_node_budget"`
}

// Defaults returns the engine's documented default parameters (spec §6):
// {ε = 0.01, τ = 10⁻³, max_bundle_iters = 200, max_corrector_iters = 10,
// α = 0.3, oracle_budget = 50}.
func Defaults() Params {
	return Params{
		Epsilon:                0.01,
		Tau:                    1e-3,
		MaxBundleIterations:    200,
		MaxCorrectorIterations: 10,
		Alpha:                  0.3,
		OracleBudget:           50,
		CorrectorDamping:       0.5,
		BridgeSingularTol:      1e-9,
		CycleShorteningNodeBudget: 20000,
	}
}

// Load reads a YAML file at path, merges it over Defaults(), and validates
// the result. Mirrors battery-backtest's config.Load: parse then validate,
// never return a struct the caller cannot trust.
func Load(path string) (Params, error) {
	p, err := LoadUnchecked(path)
	if err != nil {
		return Params{}, err
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// LoadUnchecked reads and merges config without validating it, useful for
// debugging or printing a partially-specified override file.
func LoadUnchecked(path string) (Params, error) {
	p := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Params{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return p, nil
}

// Validate rejects parameter combinations that would make the bundle
// method or corrector malformed or non-terminating.
func (p Params) Validate() error {
	switch {
	case p.Epsilon <= 0:
		return fmt.Errorf("config: epsilon must be > 0, got %g", p.Epsilon)
	case p.Tau <= 0:
		return fmt.Errorf("config: tau must be > 0, got %g", p.Tau)
	case p.Alpha <= 0 || p.Alpha >= 1:
		return fmt.Errorf("config: alpha must be in (0,1), got %g", p.Alpha)
	case p.MaxBundleIterations <= 0:
		return fmt.Errorf("config: max_bundle_iterations must be > 0, got %d", p.MaxBundleIterations)
	case p.MaxCorrectorIterations <= 0:
		return fmt.Errorf("config: max_corrector_iterations must be > 0, got %d", p.MaxCorrectorIterations)
	case p.OracleBudget <= 0:
		return fmt.Errorf("config: oracle_budget must be > 0, got %d", p.OracleBudget)
	case p.CorrectorDamping <= 0 || p.CorrectorDamping > 1:
		return fmt.Errorf("config: corrector_damping must be in (0,1], got %g", p.CorrectorDamping)
	case p.BridgeSingularTol <= 0:
		return fmt.Errorf("config: bridge_singular_tol must be > 0, got %g", p.BridgeSingularTol)
	case p.CycleShorteningNodeBudget <= 0:
		return fmt.Errorf("config: cycle_shortening_node_budget must be > 0, got %d", p.CycleShorteningNodeBudget)
	}
	return nil
}
