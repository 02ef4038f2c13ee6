// Package transfer computes the power transfer distribution factor (PTDF)
// and line outage distribution factor (LODF) matrices for a network at a
// given transmission-capacity vector (C3 in the engine's component
// design). A single weighted-Laplacian factorization supports every PTDF
// column and every LODF entry, so callers construct one Kernel per distinct
// x_br and reuse it for however many (t, i, j) lookups the operational
// subproblem and contingency oracle need.
package transfer

import (
	"errors"
	"fmt"

	"github.com/canopi-project/canopi-engine/config"
	"github.com/canopi-project/canopi-engine/internal/mat"
	"github.com/canopi-project/canopi-engine/network"
)

// ErrSingularLaplacian indicates the reduced weighted Laplacian could not
// be factored, meaning the AC subgraph (minus the slack bus) is not
// connected.
var ErrSingularLaplacian = errors.New("transfer: reduced weighted Laplacian is singular")

// Kernel holds the PTDF and LODF matrices factored at one transmission
// capacity vector.
type Kernel struct {
	// Phi is the b × (n-1) PTDF matrix, columns ordered by non-slack bus
	// (bus index, skipping the slack bus).
	Phi *mat.Dense

	// Lambda is the b × b LODF matrix. Bridge branches have an all-zero
	// column (spec.md §4.3).
	Lambda *mat.Dense

	// Bridge marks, per AC branch, whether its self-sensitivity
	// denominator was numerically singular — i.e. it is a bridge.
	Bridge []bool

	nonSlackBus []int // nonSlackBus[k] = bus index of PTDF column k
}

// Build factors the network's reduced weighted Laplacian at susceptances b
// (one per AC branch, as returned by network.Model.Susceptances) and
// derives Phi and Lambda.
func Build(net *network.Model, susceptances []float64, cfg config.Params) (*Kernel, error) {
	n := len(net.Buses)
	b := len(net.ACBranches)
	if len(susceptances) != b {
		return nil, fmt.Errorf("transfer: susceptance length %d, want %d", len(susceptances), b)
	}

	nonSlack := make([]int, 0, n-1)
	for i := 0; i < n; i++ {
		if i != net.SlackBus {
			nonSlack = append(nonSlack, i)
		}
	}

	// A_r: b × (n-1), the reduced incidence matrix with the slack bus's
	// row dropped.
	ar, err := mat.NewDense(b, len(nonSlack))
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	for col, bus := range nonSlack {
		for j := 0; j < b; j++ {
			v, _ := net.Incidence.At(bus, j)
			if v != 0 {
				ar.MustSet(j, col, v)
			}
		}
	}

	// L = A_rᵀ B A_r, (n-1)×(n-1), symmetric positive definite whenever
	// the network (minus the slack bus) is connected.
	nm1 := len(nonSlack)
	lap, err := mat.NewDense(nm1, nm1)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	for j := 0; j < b; j++ {
		bj := susceptances[j]
		if bj == 0 {
			continue
		}
		for p := 0; p < nm1; p++ {
			aip := ar.MustAt(j, p)
			if aip == 0 {
				continue
			}
			for q := 0; q < nm1; q++ {
				aiq := ar.MustAt(j, q)
				if aiq == 0 {
					continue
				}
				lap.Add(p, q, bj*aip*aiq)
			}
		}
	}

	lapInv, err := mat.Inverse(lap)
	if err != nil {
		return nil, fmt.Errorf("transfer: factoring reduced Laplacian: %w: %w", err, ErrSingularLaplacian)
	}

	// Phi = B · A_r · L⁻¹, b × (n-1).
	arLinv, err := mat.Mul(ar, lapInv)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	phi, err := mat.NewDense(b, nm1)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	for j := 0; j < b; j++ {
		bj := susceptances[j]
		for col := 0; col < nm1; col++ {
			phi.MustSet(j, col, bj*arLinv.MustAt(j, col))
		}
	}

	k := &Kernel{Phi: phi, nonSlackBus: nonSlack}
	if err := k.buildLODF(ar, cfg.BridgeSingularTol); err != nil {
		return nil, err
	}
	return k, nil
}

// buildLODF computes Lambda[i,j] = (Phi[i,:]·A_r[:,j]) / (1 - Phi[j,:]·A_r[:,j])
// for every branch pair, marking branch j a bridge when the denominator is
// numerically zero (spec.md §4.3).
func (k *Kernel) buildLODF(ar *mat.Dense, tol float64) error {
	b := k.Phi.Rows()
	lambda, err := mat.NewDense(b, b)
	if err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	k.Bridge = make([]bool, b)

	// sens[j] = Phi[j,:] · A_r[:,j], the self-sensitivity of branch j.
	sens := make([]float64, b)
	for j := 0; j < b; j++ {
		sens[j] = mat.Dot(k.Phi.Row(j), ar.Col(j))
	}

	for j := 0; j < b; j++ {
		denom := 1 - sens[j]
		if absf(denom) < tol {
			k.Bridge[j] = true
			continue // column stays all-zero
		}
		col := ar.Col(j)
		for i := 0; i < b; i++ {
			if i == j {
				continue
			}
			num := mat.Dot(k.Phi.Row(i), col)
			lambda.MustSet(i, j, num/denom)
		}
	}
	k.Lambda = lambda
	return nil
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// InjectionFlow returns the branch flow vector resulting from a vector of
// nodal injections (length n, in bus-index order; the slack bus's entry is
// ignored since its angle is the reference).
func (k *Kernel) InjectionFlow(injections []float64) []float64 {
	b := k.Phi.Rows()
	flows := make([]float64, b)
	reduced := make([]float64, len(k.nonSlackBus))
	for col, bus := range k.nonSlackBus {
		reduced[col] = injections[bus]
	}
	for j := 0; j < b; j++ {
		flows[j] = mat.Dot(k.Phi.Row(j), reduced)
	}
	return flows
}
