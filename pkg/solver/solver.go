// Package solver defines the external optimization boundary named in
// spec.md as solve(inputs, seed, policy) -> result + audits, and a
// deterministic reference implementation that exercises every lifecycle
// transition without attempting real VRPTW/roster optimization.
package solver

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/pkg/ingest"
)

// Assignment binds a single order to a driver and, if applicable, the
// tour it was drawn from.
type Assignment struct {
	OrderID  uuid.UUID `json:"order_id"`
	DriverID uuid.UUID `json:"driver_id"`
	TourID   *uuid.UUID `json:"tour_id,omitempty"`
}

// Result is what a solver invocation returns on success.
type Result struct {
	Assignments []Assignment `json:"assignments"`
	// Unassigned lists orders the solver could not cover; a non-empty
	// list does not itself fail the solve, it surfaces as a violation at
	// compute_violations time.
	Unassigned []uuid.UUID `json:"unassigned_order_ids"`
}

// Solver is the pluggable contract real VRPTW/roster heuristics implement.
// Invocations must be cancellable by cooperative deadline (spec 5): a
// well-behaved Solver checks ctx.Err() between units of work.
type Solver interface {
	Solve(ctx context.Context, forecast ingest.ForecastVersion, seed int64, policyHash string) (Result, error)
}

// ReferenceSolver performs a deterministic greedy coverage assignment: for
// each tour, walk its orders in order and assign the first driver whose
// home depot matches and whose qualifications cover the order's
// requirements, round-robin across eligible drivers keyed by seed. It is
// not an optimizer; it exists to give every lifecycle transition and
// audit-count path something real to run against.
type ReferenceSolver struct{}

// NewReferenceSolver builds a ReferenceSolver. It holds no state.
func NewReferenceSolver() *ReferenceSolver {
	return &ReferenceSolver{}
}

func (s *ReferenceSolver) Solve(ctx context.Context, forecast ingest.ForecastVersion, seed int64, policyHash string) (Result, error) {
	driversByDepot := make(map[uuid.UUID][]ingest.Driver)
	for _, d := range forecast.Drivers {
		driversByDepot[d.HomeDepotID] = append(driversByDepot[d.HomeDepotID], d)
	}
	for depot := range driversByDepot {
		sort.Slice(driversByDepot[depot], func(i, j int) bool {
			return driversByDepot[depot][i].ID.String() < driversByDepot[depot][j].ID.String()
		})
	}

	ordersByID := make(map[uuid.UUID]ingest.Order, len(forecast.Orders))
	for _, o := range forecast.Orders {
		ordersByID[o.ID] = o
	}

	cursor := make(map[uuid.UUID]int) // depot -> next driver index, seeded for determinism
	for depot, drivers := range driversByDepot {
		if len(drivers) > 0 {
			cursor[depot] = int(seed) % len(drivers)
		}
	}

	var assignments []Assignment
	var unassigned []uuid.UUID

	for _, tour := range forecast.Tours {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		drivers := driversByDepot[tour.DepotID]
		for _, orderID := range tour.OrderID {
			order, ok := ordersByID[orderID]
			if !ok || len(drivers) == 0 {
				unassigned = append(unassigned, orderID)
				continue
			}
			driver, ok := pickEligible(drivers, order, cursor[tour.DepotID])
			if !ok {
				unassigned = append(unassigned, orderID)
				continue
			}
			cursor[tour.DepotID] = (cursor[tour.DepotID] + 1) % len(drivers)
			tourID := tour.ID
			assignments = append(assignments, Assignment{OrderID: orderID, DriverID: driver.ID, TourID: &tourID})
		}
	}

	return Result{Assignments: assignments, Unassigned: unassigned}, nil
}

// pickEligible returns the first driver, scanning round-robin from start,
// whose qualifications are a superset of the order's requirements.
func pickEligible(drivers []ingest.Driver, order ingest.Order, start int) (ingest.Driver, bool) {
	n := len(drivers)
	for i := 0; i < n; i++ {
		d := drivers[(start+i)%n]
		if qualifies(d, order) {
			return d, true
		}
	}
	return ingest.Driver{}, false
}

func qualifies(d ingest.Driver, order ingest.Order) bool {
	have := make(map[string]struct{}, len(d.Qualifications))
	for _, q := range d.Qualifications {
		have[q] = struct{}{}
	}
	for _, req := range order.Requirements {
		if _, ok := have[req]; !ok {
			return false
		}
	}
	return true
}
