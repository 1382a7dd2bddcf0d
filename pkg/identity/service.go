package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/pkg/tenant"
)

// Service implements the C1 Identity & Tenant Store public contract:
// create_tenant, create_user, resolve_permissions.
type Service struct {
	Tenants *tenant.Store
	Users   *Store
}

// NewService builds a Service over the given stores.
func NewService(tenants *tenant.Store, users *Store) *Service {
	return &Service{Tenants: tenants, Users: users}
}

// CreateTenant creates a new tenant. Platform-scope callers only; the
// permission check happens in the handler/middleware layer, not here.
func (s *Service) CreateTenant(ctx context.Context, code, name string) (tenant.Tenant, error) {
	return s.Tenants.CreateTenant(ctx, code, name)
}

// CreateUser creates a new user. tenantID is nil only for platform-scope
// users (isPlatform must then be true); every role in roles must be a
// recognized, seeded role.
func (s *Service) CreateUser(ctx context.Context, email, passwordHash string, tenantID *uuid.UUID, isPlatform bool, roles []string) (User, error) {
	if (tenantID == nil) != isPlatform {
		return User{}, fmt.Errorf("tenant_id and is_platform must agree")
	}
	for _, r := range roles {
		if !ValidRole(r) {
			return User{}, ErrUnknownRole
		}
	}
	return s.Users.Create(ctx, email, passwordHash, tenantID, isPlatform, roles)
}

// ResolvePermissionsForRole is the pure-function C1 contract
// (ResolvePermissions) re-exported for callers that only have a role
// string, not a full User.
func ResolvePermissionsForRole(role string) (map[string]struct{}, error) {
	return ResolvePermissions(Role(role))
}
