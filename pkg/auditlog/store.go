package auditlog

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solvereign/solvereign/internal/db"
)

const eventColumns = `id, ts, tenant_id, user_id, event_type, entity_type, entity_id, severity, details, prev_hash, hash`

// Store provides raw-SQL operations over the audit_events table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanEvent(row pgx.Row) (Event, error) {
	var e Event
	if err := row.Scan(&e.ID, &e.TS, &e.TenantID, &e.UserID, &e.EventType, &e.EntityType, &e.EntityID, &e.Severity, &e.Details, &e.PrevHash, &e.Hash); err != nil {
		return Event{}, err
	}
	return e, nil
}

// tenantLockKey derives a stable per-tenant advisory-lock key so chain
// appends for the same tenant are strictly serialized. Platform-scope
// events (tenantID nil) share a single lock key.
func tenantLockKey(tenantID *uuid.UUID) int64 {
	h := fnv.New64a()
	if tenantID != nil {
		_, _ = h.Write(tenantID[:])
	} else {
		_, _ = h.Write([]byte("platform"))
	}
	return int64(h.Sum64())
}

// AppendLocked serializes chain appends for tenantID inside a single
// transaction: it holds a transaction-scoped advisory lock for the
// tenant, reads the current head hash, lets build construct the fully
// hashed Event, and inserts it — all before the lock releases on commit.
func (s *Store) AppendLocked(ctx context.Context, tenantID *uuid.UUID, build func(prevHash string) (Event, error)) (Event, error) {
	tx, err := db.BeginFromContext(ctx, s.pool)
	if err != nil {
		return Event{}, fmt.Errorf("beginning audit append transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, tenantLockKey(tenantID)); err != nil {
		return Event{}, fmt.Errorf("acquiring audit chain lock: %w", err)
	}

	prevHash := GenesisHash
	var row pgx.Row
	if tenantID != nil {
		row = tx.QueryRow(ctx, `SELECT hash FROM audit_events WHERE tenant_id = $1 ORDER BY ts DESC LIMIT 1`, *tenantID)
	} else {
		row = tx.QueryRow(ctx, `SELECT hash FROM audit_events WHERE tenant_id IS NULL ORDER BY ts DESC LIMIT 1`)
	}
	if err := row.Scan(&prevHash); err != nil && err != pgx.ErrNoRows {
		return Event{}, fmt.Errorf("reading audit chain head: %w", err)
	}

	e, err := build(prevHash)
	if err != nil {
		return Event{}, err
	}

	insertRow := tx.QueryRow(ctx,
		`INSERT INTO audit_events (id, ts, tenant_id, user_id, event_type, entity_type, entity_id, severity, details, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+eventColumns,
		e.ID, e.TS, e.TenantID, e.UserID, e.EventType, e.EntityType, e.EntityID, e.Severity, e.Details, e.PrevHash, e.Hash,
	)
	saved, err := scanEvent(insertRow)
	if err != nil {
		return Event{}, fmt.Errorf("inserting audit event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Event{}, fmt.Errorf("committing audit append: %w", err)
	}
	return saved, nil
}

// ListPage returns events for a tenant in ascending ts order, for
// pagination and chain verification. A nil tenantID lists platform-scope
// events; a nil after starts from the beginning of the chain.
func (s *Store) ListPage(ctx context.Context, tenantID *uuid.UUID, after *uuid.UUID, limit int) ([]Event, error) {
	var rows pgx.Rows
	var err error
	if tenantID != nil {
		rows, err = db.FromContext(ctx, s.pool).Query(ctx,
			`SELECT `+eventColumns+` FROM audit_events
			 WHERE tenant_id = $1 AND ($2::uuid IS NULL OR ts > (SELECT ts FROM audit_events WHERE id = $2))
			 ORDER BY ts ASC LIMIT $3`,
			*tenantID, after, limit,
		)
	} else {
		rows, err = db.FromContext(ctx, s.pool).Query(ctx,
			`SELECT `+eventColumns+` FROM audit_events
			 WHERE tenant_id IS NULL AND ($1::uuid IS NULL OR ts > (SELECT ts FROM audit_events WHERE id = $1))
			 ORDER BY ts ASC LIMIT $2`,
			after, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
