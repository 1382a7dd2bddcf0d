package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solvereign/solvereign/internal/db"
)

const recordColumns = `tenant_id, action_key, user_id, request_fingerprint, response_status, response_body, expires_at, created_at`

// Store provides raw-SQL operations over the idempotency_keys table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	if err := row.Scan(&r.TenantID, &r.ActionKey, &r.UserID, &r.RequestFingerprint, &r.ResponseStatus, &r.ResponseBody, &r.ExpiresAt, &r.CreatedAt); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Get returns the stored record for (tenant, action key, user), or
// pgx.ErrNoRows if none exists or it has expired. Expired keys are treated
// as absent rather than actively pruned on the read path; DeleteExpired
// handles cleanup.
func (s *Store) Get(ctx context.Context, tenantID uuid.UUID, actionKey string, userID *uuid.UUID) (Record, error) {
	row := db.FromContext(ctx, s.pool).QueryRow(ctx,
		`SELECT `+recordColumns+` FROM idempotency_keys
		 WHERE tenant_id = $1 AND action_key = $2 AND user_id IS NOT DISTINCT FROM $3 AND expires_at > now()`,
		tenantID, actionKey, userID,
	)
	return scanRecord(row)
}

// ErrKeyExists reports that a record already exists for the given key. No
// function in this package returns it.
var ErrKeyExists = errors.New("idempotency key already recorded")

// Save persists the outcome of a first execution; a record that is still
// live for the same key is left unchanged. The lookup-then-Save sequence in
// Middleware is not atomic, so two identical requests racing in can both
// execute; no advisory lock on (tenant, action_key) is taken.
func (s *Store) Save(ctx context.Context, tenantID uuid.UUID, actionKey string, userID *uuid.UUID, requestFingerprint string, responseStatus int, responseBody []byte, ttl time.Duration) error {
	_, err := db.FromContext(ctx, s.pool).Exec(ctx,
		`INSERT INTO idempotency_keys (tenant_id, action_key, user_id, request_fingerprint, response_status, response_body, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (tenant_id, action_key, user_id) DO UPDATE SET
		   request_fingerprint = EXCLUDED.request_fingerprint,
		   response_status = EXCLUDED.response_status,
		   response_body = EXCLUDED.response_body,
		   expires_at = EXCLUDED.expires_at
		 WHERE idempotency_keys.expires_at <= now()`,
		tenantID, actionKey, userID, requestFingerprint, responseStatus, responseBody, time.Now().Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("saving idempotency record: %w", err)
	}
	return nil
}

// DeleteExpired removes idempotency records past their TTL.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := db.FromContext(ctx, s.pool).Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("deleting expired idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
