// Package canopierr defines the sentinel error taxonomy shared across the
// CANOPI capacity-expansion engine, so callers can classify a failed solve
// with errors.Is regardless of which component raised it.
package canopierr

import "errors"

// Sentinel errors for the engine's error taxonomy (spec §7).
var (
	// ErrInvalidInput marks a malformed topology or scenario: dangling
	// branch endpoints, negative capacity, multiple slack buses,
	// non-positive impedance, inconsistent matrix dimensions, or a
	// scenario with a non-positive horizon.
	ErrInvalidInput = errors.New("canopi: invalid input")

	// ErrSingular marks a reduced Laplacian that could not be factored,
	// almost always because the underlying graph is disconnected.
	ErrSingular = errors.New("canopi: singular system")

	// ErrScenarioInfeasible marks an operational subproblem that is
	// infeasible under the base constraints for a given capacity
	// decision. Internally this is treated as a +∞ cost and produces a
	// feasibility cut; it only escapes to the caller when every x ∈ X
	// is infeasible, so the master LP itself has no feasible point.
	ErrScenarioInfeasible = errors.New("canopi: scenario infeasible")

	// ErrNotConverged marks a transmission-correction fixed point that
	// did not close within its iteration cap. The last iterate is still
	// returned to the caller.
	ErrNotConverged = errors.New("canopi: fixed point did not converge")

	// ErrCancelled marks cooperative cancellation requested by the
	// caller.
	ErrCancelled = errors.New("canopi: solve cancelled")

	// ErrTimeout marks expiry of the caller's wall-clock budget.
	ErrTimeout = errors.New("canopi: solve timed out")

	// ErrSolver marks an internal failure of the LP solver black box.
	// Its diagnostic string is always wrapped in, never swallowed.
	ErrSolver = errors.New("canopi: solver error")
)
