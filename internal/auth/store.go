package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, user_id, session_hash, tenant_id, site_id, is_platform_scope, expires_at, revoked_at, created_at`

// SessionStore provides raw-SQL operations over the sessions table.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a SessionStore backed by the given connection pool.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	if err := row.Scan(&s.ID, &s.UserID, &s.SessionHash, &s.TenantID, &s.SiteID, &s.IsPlatformScope, &s.ExpiresAt, &s.RevokedAt, &s.CreatedAt); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Create inserts a new session row valid for ttl and returns it alongside
// the raw cookie value, which the caller must set on the response cookie
// and never persist.
func (s *SessionStore) Create(ctx context.Context, userID uuid.UUID, tenantID, siteID *uuid.UUID, isPlatformScope bool, ttl time.Duration) (Session, string, error) {
	raw, hash, err := generateCookieValue()
	if err != nil {
		return Session{}, "", err
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (user_id, session_hash, tenant_id, site_id, is_platform_scope, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+sessionColumns,
		userID, hash, tenantID, siteID, isPlatformScope, time.Now().Add(ttl),
	)
	sess, err := scanSession(row)
	if err != nil {
		return Session{}, "", fmt.Errorf("creating session: %w", err)
	}
	return sess, raw, nil
}

// GetByHash looks up a session by the sha256 hash of its raw cookie value.
// This is the only lookup path; the raw value is never queried directly.
func (s *SessionStore) GetByHash(ctx context.Context, hash string) (Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_hash = $1`, hash)
	return scanSession(row)
}

// Revoke marks a session as revoked, ending it immediately regardless of
// remaining TTL.
func (s *SessionStore) Revoke(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE sessions SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Rotate replaces a session's hash with a freshly generated one, serialized
// per session by the row's UPDATE (spec 4.2: "rotation is serialized per
// session"). Returns the new raw cookie value.
func (s *SessionStore) Rotate(ctx context.Context, id uuid.UUID) (string, error) {
	raw, hash, err := generateCookieValue()
	if err != nil {
		return "", err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE sessions SET session_hash = $1 WHERE id = $2 AND revoked_at IS NULL`, hash, id)
	if err != nil {
		return "", fmt.Errorf("rotating session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", errors.New("session not found or already revoked")
	}
	return raw, nil
}

// DeleteExpired removes sessions past their TTL, for periodic housekeeping.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
