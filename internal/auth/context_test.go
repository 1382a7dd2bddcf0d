package auth

import (
	"context"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	sc := &SessionContext{Email: "ops@example.com", Permissions: map[string]struct{}{"plan.view": {}}}
	ctx := NewContext(context.Background(), sc)

	got := FromContext(ctx)
	if got == nil || got.Email != sc.Email {
		t.Fatalf("FromContext() = %+v, want %+v", got, sc)
	}
}

func TestFromContextAbsent(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext() = %+v, want nil", got)
	}
}

func TestHasPermissionBypassesForPlatformScope(t *testing.T) {
	sc := &SessionContext{IsPlatformScope: true}
	if !sc.HasPermission("plan.publish") {
		t.Error("expected platform-scope session to bypass permission check")
	}
}

func TestHasPermissionMembership(t *testing.T) {
	sc := &SessionContext{Permissions: map[string]struct{}{"plan.view": {}}}
	if !sc.HasPermission("plan.view") {
		t.Error("expected plan.view to be granted")
	}
	if sc.HasPermission("plan.publish") {
		t.Error("expected plan.publish to be denied")
	}
}

func TestHasPermissionNilSession(t *testing.T) {
	var sc *SessionContext
	if sc.HasPermission("plan.view") {
		t.Error("expected nil session to deny every permission")
	}
}

func TestRequirePermissionNilSession(t *testing.T) {
	if err := RequirePermission(nil, "plan.view"); err == nil {
		t.Error("expected error for nil session")
	}
}

func TestRequirePermissionDenied(t *testing.T) {
	sc := &SessionContext{Permissions: map[string]struct{}{}}
	if err := RequirePermission(sc, "plan.publish"); err == nil {
		t.Error("expected permission denied error")
	}
}

func TestRequirePermissionGranted(t *testing.T) {
	sc := &SessionContext{Permissions: map[string]struct{}{"plan.publish": {}}}
	if err := RequirePermission(sc, "plan.publish"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
