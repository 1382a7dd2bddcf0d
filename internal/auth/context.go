// Package auth implements session issuance, validation, and permission
// checks for SOLVEREIGN (C2 Session & RBAC).
package auth

import (
	"context"

	"github.com/google/uuid"
)

// SessionContext is the authenticated principal bound to a request, per
// spec 4.2: validate(cookie_value) returns
// {user, tenant_id, site_id, is_platform_scope, permissions}.
type SessionContext struct {
	SessionID       uuid.UUID
	UserID          uuid.UUID
	Email           string
	Roles           []string
	TenantID        *uuid.UUID
	SiteID          *uuid.UUID
	IsPlatformScope bool
	Permissions     map[string]struct{}
}

// HasPermission reports whether the session holds the given permission key.
// platform_admin and is_platform_scope bypass membership entirely.
func (s *SessionContext) HasPermission(key string) bool {
	if s == nil {
		return false
	}
	if s.IsPlatformScope {
		return true
	}
	_, ok := s.Permissions[key]
	return ok
}

type contextKey int

const sessionContextKey contextKey = iota

// NewContext returns a copy of ctx carrying the given SessionContext.
func NewContext(ctx context.Context, sc *SessionContext) context.Context {
	return context.WithValue(ctx, sessionContextKey, sc)
}

// FromContext returns the SessionContext stored in ctx, or nil if absent.
func FromContext(ctx context.Context) *SessionContext {
	sc, _ := ctx.Value(sessionContextKey).(*SessionContext)
	return sc
}
