// Package network implements the immutable transmission-network topology
// (C1 in the engine's component design): buses, branches, HVDC links, the
// incidence matrix, nominal impedances, and existing capacities. It is the
// leaf of the dependency graph — every other component (cycle, transfer,
// dispatch, bundle, corrector, facade) is built on top of a *network.Model.
//
// Errors:
//
//	ErrDanglingBranch      - a branch references a bus index that does not exist.
//	ErrNegativeCapacity    - a branch, generator, or storage capacity is negative.
//	ErrNonPositiveImpedance - an AC branch has impedance <= 0.
//	ErrNoSlackBus          - no bus is marked as slack.
//	ErrMultipleSlackBuses  - more than one bus is marked as slack.
package network

import (
	"errors"
	"fmt"

	"github.com/canopi-project/canopi-engine/canopierr"
)

// Sentinel errors for network construction, all wrapping canopierr.ErrInvalidInput.
var (
	ErrDanglingBranch       = errors.New("network: branch references unknown bus")
	ErrNegativeCapacity     = errors.New("network: negative capacity")
	ErrNonPositiveImpedance = errors.New("network: non-positive impedance")
	ErrNoSlackBus           = errors.New("network: no slack bus designated")
	ErrMultipleSlackBuses   = errors.New("network: more than one slack bus designated")
)

// Bus is an electrical bus/node. Exactly one Bus across a Model must have
// Slack set; its reference angle is never removed by any incidence
// reduction (spec.md §3's "never removed by any incidence reduction").
type Bus struct {
	ID        string // opaque external identifier
	Index     int    // contiguous internal index, assigned by Build
	Tag       string // optional geographic tag
	VoltageKV float64
	Slack     bool
}

// Branch is an AC transmission line/transformer or an HVDC link, sharing a
// single record per spec.md §3: "A branch is either AC ... or HVDC
// ... never contingent." From/To fix an arbitrary reference orientation.
type Branch struct {
	ID        string
	Index     int // index within its own kind (AC branches indexed separately from HVDC links)
	From, To  int // bus indices
	Capacity  float64 // nominal thermal capacity w (MW)
	Impedance float64 // nominal impedance χ₀ (per-unit); unused for HVDC
	VoltageKV float64
	IsHVDC    bool

	// ExpansionCeilingFactor bounds how far x_br[i] may grow relative to
	// nominal capacity when an explicit x_br_max is not supplied by the
	// caller (SPEC_FULL.md §3, following original_source's RTEP ceiling).
	// Zero means "use the package default of 2.0".
	ExpansionCeilingFactor float64
}

// Generator is a dispatchable or renewable generating unit.
type Generator struct {
	ID              string
	Index           int
	BusIndex        int
	Tech            string
	ExistingMW      float64
	MaxExpansionMW  float64
	RampFraction    float64 // fraction of (existing+expansion) capacity per period
	EmissionsPerMWh float64 // tons/MWh
	CapexPerMW      float64 // annualized investment coefficient, $/MW/yr
}

// Storage is a battery or other energy-limited storage device.
type Storage struct {
	ID                    string
	Index                 int
	BusIndex              int
	ExistingPowerMW       float64
	ExistingEnergyMWh     float64
	MaxExpansionPowerMW   float64
	MaxExpansionEnergyMWh float64
	Efficiency            float64 // round-trip efficiency η
	InitialSOCFraction    float64 // γ_es for q[-1]
	TerminalSOCFraction   float64 // γ_es for q[T-1]; equals InitialSOCFraction unless overridden
}

// Load is a demand point.
type Load struct {
	ID       string
	Index    int
	BusIndex int
}

// DefaultExpansionCeilingFactor is the multiplier applied to a branch's
// nominal capacity when no explicit x_br_max is supplied, matching
// original_source/canopi_engine's RTEP assumption that transmission
// capacity can at most double.
const DefaultExpansionCeilingFactor = 2.0

// wrapInvalid wraps err with both the package sentinel and canopierr.ErrInvalidInput
// so callers can classify with errors.Is against either.
func wrapInvalid(context string, sentinel error) error {
	return fmt.Errorf("network: %s: %w: %w", context, sentinel, canopierr.ErrInvalidInput)
}
