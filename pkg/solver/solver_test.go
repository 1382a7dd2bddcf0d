package solver

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/pkg/ingest"
)

func TestReferenceSolverAssignsWithinDepot(t *testing.T) {
	depot := uuid.New()
	driver := ingest.Driver{ID: uuid.New(), HomeDepotID: depot}
	order := ingest.Order{ID: uuid.New()}
	tour := ingest.Tour{ID: uuid.New(), DepotID: depot, OrderID: []uuid.UUID{order.ID}}

	forecast := ingest.ForecastVersion{
		Drivers: []ingest.Driver{driver},
		Orders:  []ingest.Order{order},
		Tours:   []ingest.Tour{tour},
	}

	result, err := NewReferenceSolver().Solve(context.Background(), forecast, 0, "policy-hash")
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(result.Assignments) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(result.Assignments))
	}
	if result.Assignments[0].DriverID != driver.ID {
		t.Errorf("expected order assigned to the only eligible driver")
	}
	if len(result.Unassigned) != 0 {
		t.Errorf("expected no unassigned orders, got %v", result.Unassigned)
	}
}

func TestReferenceSolverLeavesUnmatchableOrdersUnassigned(t *testing.T) {
	depot := uuid.New()
	driver := ingest.Driver{ID: uuid.New(), HomeDepotID: depot, Qualifications: []string{"standard"}}
	order := ingest.Order{ID: uuid.New(), Requirements: []string{"hazmat"}}
	tour := ingest.Tour{ID: uuid.New(), DepotID: depot, OrderID: []uuid.UUID{order.ID}}

	forecast := ingest.ForecastVersion{
		Drivers: []ingest.Driver{driver},
		Orders:  []ingest.Order{order},
		Tours:   []ingest.Tour{tour},
	}

	result, err := NewReferenceSolver().Solve(context.Background(), forecast, 0, "policy-hash")
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(result.Assignments) != 0 {
		t.Fatalf("expected no assignments for unqualified driver, got %d", len(result.Assignments))
	}
	if len(result.Unassigned) != 1 || result.Unassigned[0] != order.ID {
		t.Errorf("expected order to be reported unassigned")
	}
}

func TestReferenceSolverIsDeterministicForSameSeed(t *testing.T) {
	depot := uuid.New()
	drivers := []ingest.Driver{
		{ID: uuid.New(), HomeDepotID: depot},
		{ID: uuid.New(), HomeDepotID: depot},
	}
	orders := []ingest.Order{{ID: uuid.New()}, {ID: uuid.New()}}
	tour := ingest.Tour{ID: uuid.New(), DepotID: depot, OrderID: []uuid.UUID{orders[0].ID, orders[1].ID}}

	forecast := ingest.ForecastVersion{Drivers: drivers, Orders: orders, Tours: []ingest.Tour{tour}}

	a, err := NewReferenceSolver().Solve(context.Background(), forecast, 7, "policy-hash")
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	b, err := NewReferenceSolver().Solve(context.Background(), forecast, 7, "policy-hash")
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(a.Assignments) != len(b.Assignments) {
		t.Fatal("expected identical assignment counts across runs with the same seed")
	}
	for i := range a.Assignments {
		if a.Assignments[i] != b.Assignments[i] {
			t.Errorf("expected identical assignment at index %d across runs with the same seed", i)
		}
	}
}
