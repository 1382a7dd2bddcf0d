package repair

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/pkg/solver"
)

func TestApplyChangesReassignsMatchedOrders(t *testing.T) {
	orderA, orderB := uuid.New(), uuid.New()
	driverOld, driverNew := uuid.New(), uuid.New()

	base := solver.Result{Assignments: []solver.Assignment{
		{OrderID: orderA, DriverID: driverOld},
		{OrderID: orderB, DriverID: driverOld},
	}}
	changes := []Reassignment{{OrderID: orderA, NewDriverID: driverNew}}

	out := applyChanges(base, changes)
	if out.Assignments[0].DriverID != driverNew {
		t.Errorf("expected order A reassigned to new driver")
	}
	if out.Assignments[1].DriverID != driverOld {
		t.Errorf("expected order B left unchanged")
	}
}

func TestSessionExpiredOnlyWhenOpenAndPastDeadline(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	open := Session{Status: StatusOpen, ExpiresAt: now.Add(-time.Minute)}
	if !open.expired(now) {
		t.Error("expected an OPEN session past its deadline to be expired")
	}

	stillOpen := Session{Status: StatusOpen, ExpiresAt: now.Add(time.Minute)}
	if stillOpen.expired(now) {
		t.Error("expected an OPEN session before its deadline to not be expired")
	}

	applied := Session{Status: StatusApplied, ExpiresAt: now.Add(-time.Minute)}
	if applied.expired(now) {
		t.Error("expected a non-OPEN session to never report as expired")
	}
}

func TestHashResultDeterministic(t *testing.T) {
	r := solver.Result{Assignments: []solver.Assignment{{OrderID: uuid.New(), DriverID: uuid.New()}}}
	a, err := hashResult(r)
	if err != nil {
		t.Fatalf("hashResult: %v", err)
	}
	b, err := hashResult(r)
	if err != nil {
		t.Fatalf("hashResult: %v", err)
	}
	if a != b {
		t.Error("expected identical results to hash identically")
	}
}
