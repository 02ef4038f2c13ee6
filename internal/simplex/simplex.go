// Package simplex implements a bounded-variable, two-phase primal simplex
// solver for linear programs in the form
//
//	minimize    c^T x
//	subject to  A x = b
//	            l_j <= x_j <= u_j   (u_j may be +Inf, l_j may be -Inf)
//
// None of this module's dependencies ship an LP solver, so the operational
// subproblem (C4) needs one built from scratch, grounded in the same dense
// tableau style lvlath/matrix/ops uses for its linear algebra (explicit
// pivot bookkeeping, no external numerical library). The bounded-variable
// formulation (nonbasic variables may rest at either bound, not just zero)
// avoids needing to split every free or negative-lower-bound variable into
// a difference of two nonnegative variables, which would double the
// problem size for a power-flow LP's many free branch-flow variables.
package simplex

import (
	"errors"
	"fmt"
	"math"
)

// Status classifies how Solve terminated.
type Status int

const (
	// Optimal means x is a globally optimal basic feasible solution.
	Optimal Status = iota
	// Infeasible means no x satisfies Ax=b within the given bounds; Ray
	// holds a Farkas certificate (a dual direction proving infeasibility).
	Infeasible
	// Unbounded means the objective is unbounded below on the feasible region.
	Unbounded
	// IterationLimit means MaxIterations was reached before phase 2 converged.
	IterationLimit
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Infeasible:
		return "infeasible"
	case Unbounded:
		return "unbounded"
	case IterationLimit:
		return "iteration_limit"
	default:
		return "unknown"
	}
}

// ErrDimensionMismatch indicates the problem's A, b, c, and bounds disagree in size.
var ErrDimensionMismatch = errors.New("simplex: dimension mismatch")

const inf = math.MaxFloat64

// Problem describes a bounded-variable LP in equality-constraint standard form.
type Problem struct {
	A    [][]float64 // m × n constraint matrix
	B    []float64   // length m
	C    []float64   // length n, objective coefficients
	Lo   []float64   // length n, lower bounds (use math.Inf(-1) for none)
	Hi   []float64   // length n, upper bounds (use math.Inf(1) for none)

	MaxIterations int // 0 means a package default of 10000
}

// Result is a solved LP.
type Result struct {
	Status       Status
	X            []float64 // primal solution (valid when Status == Optimal)
	Objective    float64
	Duals        []float64 // one per row of A, the constraint shadow prices (valid when Status == Optimal)
	ReducedCosts []float64 // one per original variable; nonzero only when that variable sits at a bound
	Ray          []float64 // Farkas dual ray (valid when Status == Infeasible)
	Iterations   int
}

// Solve runs two-phase bounded-variable simplex on p.
func Solve(p Problem) (Result, error) {
	m := len(p.A)
	if m == 0 {
		return Result{}, fmt.Errorf("simplex: empty constraint matrix: %w", ErrDimensionMismatch)
	}
	n := len(p.A[0])
	if len(p.B) != m || len(p.C) != n || len(p.Lo) != n || len(p.Hi) != n {
		return Result{}, fmt.Errorf("simplex: A is %dx%d, b=%d c=%d lo=%d hi=%d: %w",
			m, n, len(p.B), len(p.C), len(p.Lo), len(p.Hi), ErrDimensionMismatch)
	}
	maxIter := p.MaxIterations
	if maxIter <= 0 {
		maxIter = 10000
	}

	t := newTableau(p, maxIter)
	if err := t.phase1(); err != nil {
		return Result{}, err
	}
	if !t.feasible {
		return Result{
			Status:     Infeasible,
			Ray:        t.farkasRay(),
			Iterations: t.iterations,
		}, nil
	}

	status := t.phase2()
	x := t.extractX()
	duals := t.extractDuals()
	reduced := t.reducedCosts(t.c2)[:n]
	obj := 0.0
	for j, cj := range p.C {
		obj += cj * x[j]
	}

	return Result{
		Status:       status,
		X:            x,
		Objective:    obj,
		Duals:        duals,
		ReducedCosts: reduced,
		Iterations:   t.iterations,
	}, nil
}
