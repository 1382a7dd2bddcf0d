package approval

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solvereign/solvereign/internal/db"
)

const requestColumns = `id, tenant_id, action, entity_type, entity_id, risk_level, required_approvals, status, created_at`

// Store provides raw-SQL operations over the approval_requests and
// approval_decisions tables.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanRequest(row pgx.Row) (Request, error) {
	var r Request
	if err := row.Scan(&r.ID, &r.TenantID, &r.Action, &r.EntityType, &r.EntityID, &r.RiskLevel, &r.RequiredApprovals, &r.Status, &r.CreatedAt); err != nil {
		return Request{}, err
	}
	return r, nil
}

// CreateRequest inserts a new approval request.
func (s *Store) CreateRequest(ctx context.Context, r Request) error {
	_, err := db.FromContext(ctx, s.pool).Exec(ctx,
		`INSERT INTO approval_requests (id, tenant_id, action, entity_type, entity_id, risk_level, required_approvals, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.TenantID, r.Action, r.EntityType, r.EntityID, r.RiskLevel, r.RequiredApprovals, r.Status, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating approval request: %w", err)
	}
	return nil
}

// GetRequest reads a single request by id.
func (s *Store) GetRequest(ctx context.Context, id uuid.UUID) (Request, error) {
	row := db.FromContext(ctx, s.pool).QueryRow(ctx, `SELECT `+requestColumns+` FROM approval_requests WHERE id = $1`, id)
	return scanRequest(row)
}

// SetStatus transitions a request's status.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := db.FromContext(ctx, s.pool).Exec(ctx, `UPDATE approval_requests SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("updating approval request status: %w", err)
	}
	return nil
}

// RecordDecision upserts an approver's vote, keyed by (request_id,
// approver_id) so a repeat vote overwrites rather than duplicates.
func (s *Store) RecordDecision(ctx context.Context, requestID, approverID uuid.UUID, decision, reason string) error {
	_, err := db.FromContext(ctx, s.pool).Exec(ctx,
		`INSERT INTO approval_decisions (request_id, approver_id, decision, reason, decided_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (request_id, approver_id) DO UPDATE SET decision = $3, reason = $4, decided_at = now()`,
		requestID, approverID, decision, reason,
	)
	if err != nil {
		return fmt.Errorf("recording approval decision: %w", err)
	}
	return nil
}

// CountApprovals counts distinct approvers who voted APPROVE.
func (s *Store) CountApprovals(ctx context.Context, requestID uuid.UUID) (int, error) {
	var count int
	err := db.FromContext(ctx, s.pool).QueryRow(ctx,
		`SELECT count(*) FROM approval_decisions WHERE request_id = $1 AND decision = 'APPROVE'`,
		requestID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting approvals: %w", err)
	}
	return count, nil
}
