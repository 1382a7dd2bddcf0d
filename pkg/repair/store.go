package repair

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solvereign/solvereign/internal/db"
)

const sessionColumns = `id, tenant_id, plan_version_id, user_id, created_at, expires_at, status,
	preview_payload, undo_payload, idempotency_key, applied_plan_id`

// Store provides raw-SQL operations over the repair_sessions table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.TenantID, &s.PlanVersionID, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &s.Status,
		&s.PreviewPayload, &s.UndoPayload, &s.IdempotencyKey, &s.AppliedPlanID)
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

// Create inserts a new OPEN repair session. A partial unique index on
// (plan_version_id) WHERE status = 'OPEN' enforces the one-open-session
// invariant at the storage layer; a conflict here surfaces as a regular
// insert error, which Engine.Create returns unchanged. Engine.Create
// reports SESSION_ALREADY_EXISTS from its own GetOpenForPlan check, made
// under the repair advisory lock before inserting.
func (s *Store) Create(ctx context.Context, sess Session) error {
	_, err := db.FromContext(ctx, s.pool).Exec(ctx,
		`INSERT INTO repair_sessions (id, tenant_id, plan_version_id, user_id, created_at, expires_at, status, preview_payload, idempotency_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.TenantID, sess.PlanVersionID, sess.UserID, sess.CreatedAt, sess.ExpiresAt, sess.Status, sess.PreviewPayload, sess.IdempotencyKey,
	)
	if err != nil {
		return fmt.Errorf("creating repair session: %w", err)
	}
	return nil
}

// Get reads a single session by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	row := db.FromContext(ctx, s.pool).QueryRow(ctx, `SELECT `+sessionColumns+` FROM repair_sessions WHERE id = $1`, id)
	return scanSession(row)
}

// GetOpenForPlan reads the current OPEN session for a plan, if any.
func (s *Store) GetOpenForPlan(ctx context.Context, planID uuid.UUID) (Session, error) {
	row := db.FromContext(ctx, s.pool).QueryRow(ctx, `SELECT `+sessionColumns+` FROM repair_sessions WHERE plan_version_id = $1 AND status = 'OPEN'`, planID)
	return scanSession(row)
}

// SetStatus transitions a session's status column.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	_, err := db.FromContext(ctx, s.pool).Exec(ctx, `UPDATE repair_sessions SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("updating repair session status: %w", err)
	}
	return nil
}

// MarkApplied transitions a session to APPLIED, recording the new plan
// id it produced and the undo payload needed to revert it.
func (s *Store) MarkApplied(ctx context.Context, id, appliedPlanID uuid.UUID, undoPayload []byte, idempotencyKey string) error {
	_, err := db.FromContext(ctx, s.pool).Exec(ctx,
		`UPDATE repair_sessions SET status = 'APPLIED', applied_plan_id = $2, undo_payload = $3, idempotency_key = $4 WHERE id = $1`,
		id, appliedPlanID, undoPayload, idempotencyKey,
	)
	if err != nil {
		return fmt.Errorf("marking repair session applied: %w", err)
	}
	return nil
}
