// Package tenant models the canonical Tenant and Site catalog (spec
// component C1, tenant half) and the database-level row-security context
// that binds every scoped query to the session's tenant.
package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tenant is the canonical scoping identifier for all tenant-owned data.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Site is a depot/location within a tenant. (tenant_id, site_code) is unique.
type Site struct {
	ID             uuid.UUID `json:"id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	SiteCode       string    `json:"site_code"`
	Name           string    `json:"name"`
	PublishEnabled bool      `json:"publish_enabled"`
	LockEnabled    bool      `json:"lock_enabled"`
	CreatedAt      time.Time `json:"created_at"`
}

type contextKey string

const (
	infoKey contextKey = "tenant_info"
	connKey contextKey = "tenant_conn"
)

// Info is the minimal tenant binding carried on the request context, set
// exclusively by Middleware from the session-backed Resolver. It is never
// derived from request headers.
type Info struct {
	ID   uuid.UUID
	Code string
}

// NewContext stores the resolved tenant binding in the context.
func NewContext(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, infoKey, info)
}

// FromContext extracts the tenant binding from the context, or nil for a
// platform-scope request with no tenant binding.
func FromContext(ctx context.Context) *Info {
	v, _ := ctx.Value(infoKey).(*Info)
	return v
}

// NewConnContext stores the RLS-scoped pooled connection in the context for
// the duration of the request.
func NewConnContext(ctx context.Context, conn *pgxpool.Conn) context.Context {
	return context.WithValue(ctx, connKey, conn)
}

// ConnFromContext extracts the RLS-scoped connection, or nil if none is bound
// (platform-scope requests that never touch tenant-owned tables).
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	v, _ := ctx.Value(connKey).(*pgxpool.Conn)
	return v
}
