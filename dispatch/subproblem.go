package dispatch

import (
	"math"

	"github.com/canopi-project/canopi-engine/config"
	"github.com/canopi-project/canopi-engine/cycle"
	"github.com/canopi-project/canopi-engine/internal/simplex"
	"github.com/canopi-project/canopi-engine/network"
	"github.com/canopi-project/canopi-engine/transfer"
)

// dims caches the network's per-kind counts and the per-period column
// layout so every constraint-assembly helper can compute variable indices
// without repeating arithmetic.
type dims struct {
	T, G, S, B, K, D int
	offPG, offRG     int
	offPChg, offPDis int
	offRDis, offQ    int
	offPBr, offPDC   int
	offPSh           int
	perPeriod        int
}

func newDims(net *network.Model, scen Scenario) dims {
	d := dims{
		T: len(scen.Demand),
		G: len(net.Generators),
		S: len(net.Storages),
		B: len(net.ACBranches),
		K: len(net.DCLinks),
		D: len(net.Loads),
	}
	d.offPG = 0
	d.offRG = d.offPG + d.G
	d.offPChg = d.offRG + d.G
	d.offPDis = d.offPChg + d.S
	d.offRDis = d.offPDis + d.S
	d.offQ = d.offRDis + d.S
	d.offPBr = d.offQ + d.S
	d.offPDC = d.offPBr + d.B
	d.offPSh = d.offPDC + d.K
	d.perPeriod = d.offPSh + d.D
	return d
}

func (d dims) pg(t, g int) int   { return t*d.perPeriod + d.offPG + g }
func (d dims) rg(t, g int) int   { return t*d.perPeriod + d.offRG + g }
func (d dims) pchg(t, s int) int { return t*d.perPeriod + d.offPChg + s }
func (d dims) pdis(t, s int) int { return t*d.perPeriod + d.offPDis + s }
func (d dims) rdis(t, s int) int { return t*d.perPeriod + d.offRDis + s }
func (d dims) q(t, s int) int    { return t*d.perPeriod + d.offQ + s }
func (d dims) pbr(t, j int) int  { return t*d.perPeriod + d.offPBr + j }
func (d dims) pdc(t, k int) int  { return t*d.perPeriod + d.offPDC + k }
func (d dims) psh(t, l int) int  { return t*d.perPeriod + d.offPSh + l }

// Solve builds and solves the scenario LP for decision x, at the given
// impedance-defining kernel (PTDF/LODF computed at x̂_br per spec.md §4.7,
// not at the current x) and the currently-active contingency set.
func Solve(net *network.Model, basis *cycle.Basis, kernel *transfer.Kernel, chiHat []float64, x CapacityDecision, scen Scenario, contingencySet []ContingencyTriple, cfg config.Params) (Result, error) {
	d := newDims(net, scen)
	lb := newLPBuilder()

	// Allocate the fixed per-period decision variables first, so the
	// dims index functions above line up with column indices 0..T*perPeriod-1.
	for t := 0; t < d.T; t++ {
		for g := 0; g < d.G; g++ {
			must(lb, d.pg(t, g), 0, math.Inf(1))
			must(lb, d.rg(t, g), 0, math.Inf(1))
		}
		for s := 0; s < d.S; s++ {
			must(lb, d.pchg(t, s), 0, math.Inf(1))
			must(lb, d.pdis(t, s), 0, math.Inf(1))
			must(lb, d.rdis(t, s), 0, math.Inf(1))
			must(lb, d.q(t, s), 0, math.Inf(1))
		}
		for j := 0; j < d.B; j++ {
			cap := net.ACBranches[j].Capacity + x.BranchExpansionMW[j]
			must(lb, d.pbr(t, j), -cap, cap)
		}
		for k := 0; k < d.K; k++ {
			must(lb, d.pdc(t, k), math.Inf(-1), math.Inf(1))
		}
		for l := 0; l < d.D; l++ {
			must(lb, d.psh(t, l), 0, math.Inf(1))
		}
	}

	scIndex := make(map[ContingencyTriple]int, len(contingencySet))
	for _, trip := range contingencySet {
		scIndex[trip] = lb.newVar(0, math.Inf(1))
	}

	// Objective: generator cost + load shed cost + contingency violation cost.
	for t := 0; t < d.T; t++ {
		for g := 0; g < d.G; g++ {
			lb.addCost(d.pg(t, g), scen.GenCost[t][g])
		}
		for l := 0; l < d.D; l++ {
			lb.addCost(d.psh(t, l), scen.ShedCost)
		}
	}
	for _, trip := range contingencySet {
		lb.addCost(scIndex[trip], scen.ViolationCost)
	}

	var links capacityLinks

	// Generation capacity with reserve, and ramp.
	for t := 0; t < d.T; t++ {
		for g, gen := range net.Generators {
			capG := gen.ExistingMW + x.GenExpansionMW[g]
			avail := scen.Availability[t][g]
			_, row := lb.le(map[int]float64{d.pg(t, g): 1, d.rg(t, g): 1}, avail*capG)
			links.gen = append(links.gen, capLink{idx: g, coeff: avail, row: row})

			if t > 0 {
				rampMax := gen.RampFraction * capG
				_, row1 := lb.le(map[int]float64{d.pg(t, g): 1, d.pg(t-1, g): -1}, rampMax)
				_, row2 := lb.le(map[int]float64{d.pg(t, g): -1, d.pg(t-1, g): 1}, rampMax)
				links.gen = append(links.gen, capLink{idx: g, coeff: gen.RampFraction, row: row1})
				links.gen = append(links.gen, capLink{idx: g, coeff: gen.RampFraction, row: row2})
			}
		}
	}

	// Scenario emissions cap (one constraint over the whole horizon).
	emissionsRow := map[int]float64{}
	for t := 0; t < d.T; t++ {
		for g, gen := range net.Generators {
			if gen.EmissionsPerMWh != 0 {
				emissionsRow[d.pg(t, g)] += gen.EmissionsPerMWh
			}
		}
	}
	emissionsRowIdx := -1
	if len(emissionsRow) > 0 {
		_, emissionsRowIdx = lb.le(emissionsRow, scen.EmissionsCap)
	}

	// Storage: capacity envelope, SoC bound, dynamics, endpoints.
	for t := 0; t < d.T; t++ {
		for s, st := range net.Storages {
			capP := st.ExistingPowerMW + x.StoragePowerExpansionMW[s]
			capE := st.ExistingEnergyMWh + x.StorageEnergyExpansionMWh[s]

			_, rowP := lb.le(map[int]float64{d.pchg(t, s): 1, d.pdis(t, s): 1, d.rdis(t, s): 1}, capP)
			links.storagePower = append(links.storagePower, capLink{idx: s, coeff: 1, row: rowP})

			lb.le(map[int]float64{d.rdis(t, s): 1, d.q(t, s): -1}, 0) // r_dis <= q[t,s]

			_, rowSoC := lb.le(map[int]float64{d.q(t, s): 1}, capE)
			links.storageEnergy = append(links.storageEnergy, capLink{idx: s, coeff: 1, row: rowSoC})

			eta := st.Efficiency
			if eta <= 0 {
				eta = 1
			}
			if t == 0 {
				initial := st.InitialSOCFraction * capE
				rowInit := lb.eq(map[int]float64{d.q(t, s): 1, d.pchg(t, s): -eta, d.pdis(t, s): 1 / eta}, initial)
				links.storageEnergy = append(links.storageEnergy, capLink{idx: s, coeff: st.InitialSOCFraction, row: rowInit})
			} else {
				lb.eq(map[int]float64{d.q(t, s): 1, d.q(t-1, s): -1, d.pchg(t, s): -eta, d.pdis(t, s): 1 / eta}, 0)
			}
			if t == d.T-1 {
				terminal := st.TerminalSOCFraction
				if terminal == 0 {
					terminal = st.InitialSOCFraction
				}
				rowTerm := lb.eq(map[int]float64{d.q(t, s): 1}, terminal*capE)
				links.storageEnergy = append(links.storageEnergy, capLink{idx: s, coeff: terminal, row: rowTerm})
			}
		}
	}

	// System reserve requirement per period.
	for t := 0; t < d.T; t++ {
		row := map[int]float64{}
		for g := 0; g < d.G; g++ {
			row[d.rg(t, g)] += 1
		}
		for s := 0; s < d.S; s++ {
			row[d.rdis(t, s)] += 1
		}
		totalDemand := 0.0
		for l := 0; l < d.D; l++ {
			totalDemand += scen.Demand[t][l]
		}
		lb.ge(row, scen.ReserveMargin*totalDemand)
	}

	// Nodal balance at every bus and period.
	n := len(net.Buses)
	for t := 0; t < d.T; t++ {
		for bus := 0; bus < n; bus++ {
			row := map[int]float64{}
			for g, gen := range net.Generators {
				if gen.BusIndex == bus {
					row[d.pg(t, g)] += 1
				}
			}
			for s, st := range net.Storages {
				if st.BusIndex == bus {
					row[d.pdis(t, s)] += 1
					row[d.pchg(t, s)] -= 1
				}
			}
			demand := 0.0
			for l, load := range net.Loads {
				if load.BusIndex == bus {
					row[d.psh(t, l)] += 1
					demand += scen.Demand[t][l]
				}
			}
			for j, br := range net.ACBranches {
				if br.From == bus {
					row[d.pbr(t, j)] -= 1
				} else if br.To == bus {
					row[d.pbr(t, j)] += 1
				}
			}
			for k, br := range net.DCLinks {
				if br.From == bus {
					row[d.pdc(t, k)] -= 1
				} else if br.To == bus {
					row[d.pdc(t, k)] += 1
				}
			}
			lb.eq(row, demand)
		}
	}

	// Cycle-based KVL: D . diag(chi) . p_br[t,:] = 0.
	for t := 0; t < d.T; t++ {
		for kappa := 0; kappa < basis.NumCycles; kappa++ {
			rowVals := basis.Row(kappa)
			row := map[int]float64{}
			for j, coeff := range rowVals {
				if coeff != 0 {
					row[d.pbr(t, j)] += coeff * chiHat[j]
				}
			}
			if len(row) > 0 {
				lb.eq(row, 0)
			}
		}
	}

	// N-1 contingency, lazy: only the triples currently in contingencySet.
	for _, trip := range contingencySet {
		br := net.ACBranches[trip.Monitored]
		limit := scen.ContingencyThreshold * (br.Capacity + x.BranchExpansionMW[trip.Monitored])
		lodf, _ := kernel.Lambda.At(trip.Monitored, trip.Outaged)
		sc := scIndex[trip]

		_, row1 := lb.le(map[int]float64{
			d.pbr(trip.Period, trip.Monitored): 1,
			d.pbr(trip.Period, trip.Outaged):   lodf,
			sc:                                 -1,
		}, limit)
		_, row2 := lb.le(map[int]float64{
			d.pbr(trip.Period, trip.Monitored): -1,
			d.pbr(trip.Period, trip.Outaged):   -lodf,
			sc:                                 -1,
		}, limit)
		links.branch = append(links.branch,
			capLink{idx: trip.Monitored, coeff: scen.ContingencyThreshold, row: row1},
			capLink{idx: trip.Monitored, coeff: scen.ContingencyThreshold, row: row2},
		)
	}

	prob := simplex.Problem{
		A:             lb.denseRows(),
		B:             lb.rhs,
		C:             lb.cost,
		Lo:            lb.lo,
		Hi:            lb.hi,
		MaxIterations: 0,
	}
	res, err := simplex.Solve(prob)
	if err != nil {
		return Result{}, err
	}
	if res.Status == simplex.Infeasible {
		return Result{
			Status:      res.Status,
			Ray:         res.Ray,
			Subgradient: recoverFeasibilityGradient(d, links, res.Ray),
		}, nil
	}

	out := extractResult(d, net, x, scIndex, links, res)
	if emissionsRowIdx >= 0 {
		out.EmissionsDual = -res.Duals[emissionsRowIdx]
	}
	return out, nil
}

func must(lb *lpBuilder, wantIdx int, lo, hi float64) {
	idx := lb.newVar(lo, hi)
	if idx != wantIdx {
		panic("dispatch: variable allocation order drifted from dims index scheme")
	}
}

// capLink records one constraint row whose right-hand side depends on a
// capacity-decision component, so the subgradient can be assembled from
// the solved LP's row duals afterward (spec.md §4.4).
type capLink struct {
	idx   int // index into the relevant CapacityDecision slice
	coeff float64
	row   int
}

type capacityLinks struct {
	gen           []capLink
	storagePower  []capLink
	storageEnergy []capLink
	branch        []capLink
}

func extractResult(d dims, net *network.Model, x CapacityDecision, scIndex map[ContingencyTriple]int, links capacityLinks, res simplex.Result) Result {
	out := Result{
		Status:    res.Status,
		Objective: res.Objective,
		PG:        make([][]float64, d.T),
		RG:        make([][]float64, d.T),
		PChg:      make([][]float64, d.T),
		PDis:      make([][]float64, d.T),
		RDis:      make([][]float64, d.T),
		Q:         make([][]float64, d.T),
		PBr:       make([][]float64, d.T),
		PDC:       make([][]float64, d.T),
		PSh:       make([][]float64, d.T),
		SC:        make(map[ContingencyTriple]float64, len(scIndex)),
	}
	for t := 0; t < d.T; t++ {
		out.PG[t] = extractRow(res.X, d.G, func(k int) int { return d.pg(t, k) })
		out.RG[t] = extractRow(res.X, d.G, func(k int) int { return d.rg(t, k) })
		out.PChg[t] = extractRow(res.X, d.S, func(k int) int { return d.pchg(t, k) })
		out.PDis[t] = extractRow(res.X, d.S, func(k int) int { return d.pdis(t, k) })
		out.RDis[t] = extractRow(res.X, d.S, func(k int) int { return d.rdis(t, k) })
		out.Q[t] = extractRow(res.X, d.S, func(k int) int { return d.q(t, k) })
		out.PBr[t] = extractRow(res.X, d.B, func(k int) int { return d.pbr(t, k) })
		out.PDC[t] = extractRow(res.X, d.K, func(k int) int { return d.pdc(t, k) })
		out.PSh[t] = extractRow(res.X, d.D, func(k int) int { return d.psh(t, k) })
	}
	for trip, idx := range scIndex {
		out.SC[trip] = res.X[idx]
	}

	out.Subgradient = recoverSubgradient(d, links, res)
	return out
}

func extractRow(x []float64, count int, idx func(int) int) []float64 {
	row := make([]float64, count)
	for k := 0; k < count; k++ {
		row[k] = x[idx(k)]
	}
	return row
}

// recoverSubgradient assembles ∂objective/∂x from the solved LP's row
// duals: each capLink names a row whose right-hand side is coeff*x[idx],
// so its contribution is -coeff*dual(row), summed over every row tied to
// that capacity component (spec.md §4.4). Branch expansion additionally
// enters through p_br's own box bounds ([-cap,+cap]); that contribution is
// read from ReducedCosts (+1 at the upper bound, -1 at the lower bound).
func recoverSubgradient(d dims, links capacityLinks, res simplex.Result) Subgradient {
	sg := Subgradient{
		GenExpansionMW:            make([]float64, d.G),
		StoragePowerExpansionMW:   make([]float64, d.S),
		StorageEnergyExpansionMWh: make([]float64, d.S),
		BranchExpansionMW:         make([]float64, d.B),
	}
	for _, l := range links.gen {
		sg.GenExpansionMW[l.idx] += -l.coeff * res.Duals[l.row]
	}
	for _, l := range links.storagePower {
		sg.StoragePowerExpansionMW[l.idx] += -l.coeff * res.Duals[l.row]
	}
	for _, l := range links.storageEnergy {
		sg.StorageEnergyExpansionMWh[l.idx] += -l.coeff * res.Duals[l.row]
	}
	for _, l := range links.branch {
		sg.BranchExpansionMW[l.idx] += -l.coeff * res.Duals[l.row]
	}

	for t := 0; t < d.T; t++ {
		for j := 0; j < d.B; j++ {
			col := d.pbr(t, j)
			rc := res.ReducedCosts[col]
			if rc == 0 {
				continue
			}
			if res.X[col] >= 0 {
				sg.BranchExpansionMW[j] += rc
			} else {
				sg.BranchExpansionMW[j] -= rc
			}
		}
	}
	return sg
}

// recoverFeasibilityGradient gives the bundle method a Benders feasibility
// cut's direction when the scenario LP has no feasible point at x: the same
// row-based capLink sum recoverSubgradient uses for the optimal case, but
// against the phase-1 Farkas ray instead of the optimal duals, and without
// the box-bound refinement term (which needs a primal solution that an
// infeasible LP does not have).
func recoverFeasibilityGradient(d dims, links capacityLinks, ray []float64) Subgradient {
	sg := Subgradient{
		GenExpansionMW:            make([]float64, d.G),
		StoragePowerExpansionMW:   make([]float64, d.S),
		StorageEnergyExpansionMWh: make([]float64, d.S),
		BranchExpansionMW:         make([]float64, d.B),
	}
	for _, l := range links.gen {
		sg.GenExpansionMW[l.idx] += -l.coeff * ray[l.row]
	}
	for _, l := range links.storagePower {
		sg.StoragePowerExpansionMW[l.idx] += -l.coeff * ray[l.row]
	}
	for _, l := range links.storageEnergy {
		sg.StorageEnergyExpansionMWh[l.idx] += -l.coeff * ray[l.row]
	}
	for _, l := range links.branch {
		sg.BranchExpansionMW[l.idx] += -l.coeff * ray[l.row]
	}
	return sg
}
