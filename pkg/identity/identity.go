package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/internal/apperr"
)

// Sentinel errors for the C1 public contract (spec 4.1).
var (
	ErrTenantCodeExists = apperr.New(apperr.KindConflict, "TENANT_CODE_EXISTS", "a tenant with this code already exists")
	ErrUserEmailExists  = apperr.New(apperr.KindConflict, "USER_EMAIL_EXISTS", "a user with this email already exists")
	ErrUnknownRole      = apperr.New(apperr.KindValidation, "UNKNOWN_ROLE", "role is not a recognized, seeded role")
)

// User is an authenticatable principal. Platform-scope users have
// TenantID == nil and IsPlatform == true; these two fields are constrained
// to always agree (spec 4.1 invariant, spec 9 migration-drift note).
type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	TenantID     *uuid.UUID `json:"tenant_id,omitempty"`
	IsPlatform   bool       `json:"is_platform"`
	Roles        []string   `json:"roles"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
}

// HasRole reports whether the user has the given role assigned.
func (u User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == string(role) {
			return true
		}
	}
	return false
}

// IsPlatformAdmin reports whether the user bypasses all permission checks.
func (u User) IsPlatformAdmin() bool {
	return u.IsPlatform && u.HasRole(RolePlatformAdmin)
}

// Permissions computes the union of permissions across all of the user's
// roles. platform_admin yields the bypass (empty set; callers must check
// IsPlatformAdmin separately, since an empty set must never be mistaken for
// "no permissions").
func (u User) Permissions() (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, r := range u.Roles {
		perms, err := ResolvePermissions(Role(r))
		if err != nil {
			return nil, err
		}
		for p := range perms {
			out[p] = struct{}{}
		}
	}
	return out, nil
}
