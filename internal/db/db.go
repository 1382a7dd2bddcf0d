// Package db defines the narrow interface SOLVEREIGN's stores execute raw
// SQL against, whether the call is happening against the open pool or
// inside a transaction (advisory-lock critical sections, multi-statement
// mutations that must commit atomically).
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solvereign/solvereign/pkg/tenant"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx, and *pgxpool.Conn. Stores take
// a DBTX instead of a concrete pool so the same query code runs standalone
// or inside a caller-managed transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// FromContext returns the request's row-level-security-bound connection if
// pkg/tenant's tenant-binding middleware acquired one, falling back to
// the shared pool for platform-scope requests that were never bound to a
// tenant. Every store's query methods resolve their DBTX this way instead
// of holding the pool directly, so the same store code picks up RLS
// enforcement without threading a connection through every call site.
func FromContext(ctx context.Context, pool *pgxpool.Pool) DBTX {
	if conn := tenant.ConnFromContext(ctx); conn != nil {
		return conn
	}
	return pool
}

// BeginFromContext starts a transaction on the request's RLS-bound
// connection when one is present, so multi-statement writes (publish,
// solve-completion) stay inside the same row-security context as the
// reads that preceded them; it falls back to a fresh pool transaction for
// platform-scope requests.
func BeginFromContext(ctx context.Context, pool *pgxpool.Pool) (pgx.Tx, error) {
	if conn := tenant.ConnFromContext(ctx); conn != nil {
		return conn.Begin(ctx)
	}
	return pool.Begin(ctx)
}
