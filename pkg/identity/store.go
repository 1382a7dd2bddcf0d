package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solvereign/solvereign/internal/db"
)

const userColumns = `id, email, password_hash, tenant_id, is_platform, roles, is_active, created_at`

// Store provides raw-SQL operations over the users table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a user Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.TenantID, &u.IsPlatform, &u.Roles, &u.IsActive, &u.CreatedAt); err != nil {
		return User{}, err
	}
	return u, nil
}

// NormalizeEmail case-folds an email address for uniqueness comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a new user. tenantID is nil for platform-scope users, in
// which case isPlatform must be true; the two fields are constrained
// together by the users table's CHECK constraint as the storage-layer
// backstop for this invariant.
func (s *Store) Create(ctx context.Context, email, passwordHash string, tenantID *uuid.UUID, isPlatform bool, roles []string) (User, error) {
	email = NormalizeEmail(email)

	row := db.FromContext(ctx, s.pool).QueryRow(ctx,
		`INSERT INTO users (email, password_hash, tenant_id, is_platform, roles)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+userColumns,
		email, passwordHash, tenantID, isPlatform, roles,
	)
	u, err := scanUser(row)
	if err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
			return User{}, ErrUserEmailExists
		}
		return User{}, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// GetByEmail returns an active user by case-folded email.
func (s *Store) GetByEmail(ctx context.Context, email string) (User, error) {
	row := db.FromContext(ctx, s.pool).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 AND is_active = true`, NormalizeEmail(email))
	return scanUser(row)
}

// Get returns a user by id, regardless of tenant, for use by
// platform-level lookups (e.g. session validation already holds tenant_id).
func (s *Store) Get(ctx context.Context, id uuid.UUID) (User, error) {
	row := db.FromContext(ctx, s.pool).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// ListByTenant returns all active users scoped to a tenant.
func (s *Store) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]User, error) {
	rows, err := db.FromContext(ctx, s.pool).Query(ctx, `SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND is_active = true ORDER BY email`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Deactivate soft-deletes a user, revoking future logins without deleting
// audit-referenced history.
func (s *Store) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := db.FromContext(ctx, s.pool).Exec(ctx, `UPDATE users SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivating user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
