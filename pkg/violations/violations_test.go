package violations

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/pkg/ingest"
	"github.com/solvereign/solvereign/pkg/solver"
)

func TestComputeFlagsUnassignedOrderAsBlock(t *testing.T) {
	orderID := uuid.New()
	result := solver.Result{Unassigned: []uuid.UUID{orderID}}

	out := Compute(ingest.ForecastVersion{}, result, DefaultPolicy)
	if out.BlockCount != 1 {
		t.Fatalf("expected 1 block violation, got %d", out.BlockCount)
	}
	if out.Details[0].Rule != "coverage" {
		t.Errorf("expected coverage rule, got %s", out.Details[0].Rule)
	}
}

func TestComputeFlagsOverlappingWindowsAsBlock(t *testing.T) {
	driverID := uuid.New()
	base := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	orderA := ingest.Order{ID: uuid.New(), WindowStart: base, WindowEnd: base.Add(2 * time.Hour)}
	orderB := ingest.Order{ID: uuid.New(), WindowStart: base.Add(time.Hour), WindowEnd: base.Add(3 * time.Hour)}

	forecast := ingest.ForecastVersion{Orders: []ingest.Order{orderA, orderB}}
	result := solver.Result{Assignments: []solver.Assignment{
		{OrderID: orderA.ID, DriverID: driverID},
		{OrderID: orderB.ID, DriverID: driverID},
	}}

	out := Compute(forecast, result, DefaultPolicy)
	if out.BlockCount != 1 {
		t.Fatalf("expected 1 block violation for overlap, got %d (%+v)", out.BlockCount, out.Details)
	}
	if out.Details[0].Rule != "overlap" {
		t.Errorf("expected overlap rule, got %s", out.Details[0].Rule)
	}
}

func TestComputeIsCleanForNonOverlappingWellRestedAssignments(t *testing.T) {
	driverID := uuid.New()
	base := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	orderA := ingest.Order{ID: uuid.New(), WindowStart: base, WindowEnd: base.Add(time.Hour), ServiceMin: 60}

	forecast := ingest.ForecastVersion{
		Orders:  []ingest.Order{orderA},
		Drivers: []ingest.Driver{{ID: driverID, MaxWeeklyHours: 40}},
	}
	result := solver.Result{Assignments: []solver.Assignment{{OrderID: orderA.ID, DriverID: driverID}}}

	out := Compute(forecast, result, DefaultPolicy)
	if out.BlockCount != 0 || out.WarnCount != 0 {
		t.Fatalf("expected no violations, got %+v", out.Details)
	}
}

func TestComputeFlagsWeeklyHoursExceeded(t *testing.T) {
	driverID := uuid.New()
	base := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	order := ingest.Order{ID: uuid.New(), WindowStart: base, WindowEnd: base.Add(time.Hour), ServiceMin: 3000}

	forecast := ingest.ForecastVersion{
		Orders:  []ingest.Order{order},
		Drivers: []ingest.Driver{{ID: driverID, MaxWeeklyHours: 40}},
	}
	result := solver.Result{Assignments: []solver.Assignment{{OrderID: order.ID, DriverID: driverID}}}

	out := Compute(forecast, result, DefaultPolicy)
	found := false
	for _, v := range out.Details {
		if v.Rule == "weekly_hours" && v.Severity == Block {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected weekly_hours block violation, got %+v", out.Details)
	}
}
