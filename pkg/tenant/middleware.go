package tenant

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Resolver provides the Info bound to the current request; the API wires
// the session-backed resolver defined in internal/app. Resolve MUST NEVER read
// the tenant from request headers; it reads it off the already-authenticated
// SessionContext.
type Resolver interface {
	Resolve(r *http.Request) (*Info, error)
}

// Middleware acquires a dedicated pooled connection per request, applies the
// Postgres row-level-security binding with a session-level
// `set_config('app.tenant_id', ...)` (cleared before release), and stores
// both the tenant Info and the bound connection on the request context. This
// is the storage-layer "second line of defense": every tenant-scoped query
// issued over the bound connection is additionally filtered by RLS policy,
// independent of the service layer's own `WHERE tenant_id = $1` clauses.
//
// Requests with no tenant binding (platform-scope sessions) skip RLS
// entirely and operate over the bare pool.
func Middleware(pool *pgxpool.Pool, resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := resolver.Resolve(r)
			if err != nil {
				// No tenant binding: platform-scope request. Proceed without RLS.
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				logger.Error("acquiring tenant-scoped connection", "error", err)
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			defer func() {
				// Session-level GUCs survive on the underlying connection across
				// pool checkouts; always clear before the connection is returned
				// so the next, unrelated request never inherits this tenant binding.
				if _, err := conn.Exec(ctx, "SELECT set_config('app.tenant_id', '', false)"); err != nil {
					logger.Error("clearing row-level security context", "error", err)
				}
				conn.Release()
			}()

			if _, err := conn.Exec(ctx, "SELECT set_config('app.tenant_id', $1, false)", info.ID.String()); err != nil {
				logger.Error("binding row-level security context", "error", err, "tenant_id", info.ID)
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			ctx = NewContext(ctx, info)
			ctx = NewConnContext(ctx, conn)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SlugResolver is a development-only Resolver that reads the tenant code
// from a header. Production code paths must use the session-bound resolver
// wired in internal/app; this exists only for local tooling and tests.
type SlugResolver struct {
	Lookup func(code string) (*Info, error)
}

func (s SlugResolver) Resolve(r *http.Request) (*Info, error) {
	code := r.Header.Get("X-Tenant-Code-Dev-Only")
	if code == "" {
		return nil, fmt.Errorf("missing dev tenant header")
	}
	return s.Lookup(code)
}
