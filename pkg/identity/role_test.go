package identity

import "testing"

func TestResolvePermissions(t *testing.T) {
	tests := []struct {
		name    string
		role    Role
		wantErr bool
		has     string
		lacks   string
		empty   bool
	}{
		{name: "operator_admin has plan.publish", role: RoleOperatorAdmin, has: PermPlanPublish},
		{name: "dispatcher has plan.create", role: RoleDispatcher, has: PermPlanCreate},
		{name: "dispatcher lacks plan.publish", role: RoleDispatcher, lacks: PermPlanPublish},
		{name: "ops_readonly has audit.view", role: RoleOpsReadonly, has: PermAuditView},
		{name: "platform_admin returns empty bypass set", role: RolePlatformAdmin, empty: true},
		{name: "unknown role errors", role: Role("made_up"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perms, err := ResolvePermissions(tt.role)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolvePermissions(%q) error = %v, wantErr %v", tt.role, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.has != "" {
				if _, ok := perms[tt.has]; !ok {
					t.Errorf("ResolvePermissions(%q) missing %q", tt.role, tt.has)
				}
			}
			if tt.lacks != "" {
				if _, ok := perms[tt.lacks]; ok {
					t.Errorf("ResolvePermissions(%q) unexpectedly has %q", tt.role, tt.lacks)
				}
			}
			if tt.empty && len(perms) != 0 {
				t.Errorf("ResolvePermissions(%q) = %v, want empty set", tt.role, perms)
			}
		})
	}
}

func TestDispatcherLacksPublish(t *testing.T) {
	perms, err := ResolvePermissions(RoleDispatcher)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := perms[PermPlanPublish]; ok {
		t.Errorf("dispatcher should not have %q", PermPlanPublish)
	}
}

func TestValidRole(t *testing.T) {
	if !ValidRole("platform_admin") {
		t.Error("platform_admin should be valid")
	}
	if ValidRole("made_up_role") {
		t.Error("made_up_role should be invalid")
	}
}

func TestUserPermissionsUnion(t *testing.T) {
	u := User{Roles: []string{string(RoleDispatcher), string(RoleOpsReadonly)}}
	perms, err := u.Permissions()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{PermPlanCreate, PermAuditView} {
		if _, ok := perms[want]; !ok {
			t.Errorf("union permissions missing %q", want)
		}
	}
}

func TestIsPlatformAdmin(t *testing.T) {
	u := User{IsPlatform: true, Roles: []string{string(RolePlatformAdmin)}}
	if !u.IsPlatformAdmin() {
		t.Error("expected IsPlatformAdmin to be true")
	}

	notAdmin := User{IsPlatform: false, Roles: []string{string(RoleDispatcher)}}
	if notAdmin.IsPlatformAdmin() {
		t.Error("expected IsPlatformAdmin to be false")
	}
}
