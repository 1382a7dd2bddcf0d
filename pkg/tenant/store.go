package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solvereign/solvereign/internal/apperr"
)

const tenantColumns = `id, code, name, created_at`
const siteColumns = `id, tenant_id, site_code, name, publish_enabled, lock_enabled, created_at`

// Store provides raw-SQL operations over the tenants and sites tables.
// Both tables live in the shared public schema; row-level isolation for
// tenant-owned data is enforced separately, per request, by Middleware.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a tenant Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Code, &t.Name, &t.CreatedAt)
	return t, err
}

func scanSite(row pgx.Row) (Site, error) {
	var s Site
	err := row.Scan(&s.ID, &s.TenantID, &s.SiteCode, &s.Name, &s.PublishEnabled, &s.LockEnabled, &s.CreatedAt)
	return s, err
}

// CreateTenant inserts a new tenant. Platform-scope only; enforced by the caller.
func (s *Store) CreateTenant(ctx context.Context, code, name string) (Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO tenants (code, name) VALUES ($1, $2) RETURNING `+tenantColumns,
		code, name,
	)
	t, err := scanTenant(row)
	if err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
			return Tenant{}, apperr.New(apperr.KindConflict, "TENANT_CODE_EXISTS", "a tenant with this code already exists")
		}
		return Tenant{}, fmt.Errorf("creating tenant: %w", err)
	}
	return t, nil
}

// GetTenant returns a tenant by id.
func (s *Store) GetTenant(ctx context.Context, id uuid.UUID) (Tenant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, apperr.NotFound("tenant")
	}
	return t, err
}

// GetTenantByCode returns a tenant by its code.
func (s *Store) GetTenantByCode(ctx context.Context, code string) (Tenant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE code = $1`, code)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, apperr.NotFound("tenant")
	}
	return t, err
}

// CreateSite inserts a new site under a tenant.
func (s *Store) CreateSite(ctx context.Context, tenantID uuid.UUID, siteCode, name string) (Site, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO sites (tenant_id, site_code, name) VALUES ($1, $2, $3) RETURNING `+siteColumns,
		tenantID, siteCode, name,
	)
	site, err := scanSite(row)
	if err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
			return Site{}, apperr.New(apperr.KindConflict, "SITE_CODE_EXISTS", "a site with this code already exists for the tenant")
		}
		return Site{}, fmt.Errorf("creating site: %w", err)
	}
	return site, nil
}

// GetSite returns a site scoped to tenantID. Returns NotFound if the site
// belongs to a different tenant, never leaking existence across tenants.
func (s *Store) GetSite(ctx context.Context, tenantID, siteID uuid.UUID) (Site, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE id = $1 AND tenant_id = $2`, siteID, tenantID)
	site, err := scanSite(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Site{}, apperr.NotFound("site")
	}
	return site, err
}

// ListSites returns all sites for a tenant ordered by site_code.
func (s *Store) ListSites(ctx context.Context, tenantID uuid.UUID) ([]Site, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+siteColumns+` FROM sites WHERE tenant_id = $1 ORDER BY site_code`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}
	defer rows.Close()

	var out []Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning site row: %w", err)
		}
		out = append(out, site)
	}
	return out, rows.Err()
}

// SetCapability flips a site's publish_enabled or lock_enabled flag. Used by
// the kill switch (C10) capability gate.
func (s *Store) SetCapability(ctx context.Context, tenantID, siteID uuid.UUID, capability string, enabled bool) error {
	var column string
	switch capability {
	case "publish":
		column = "publish_enabled"
	case "lock":
		column = "lock_enabled"
	default:
		return fmt.Errorf("unknown capability %q", capability)
	}

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE sites SET %s = $3 WHERE id = $1 AND tenant_id = $2`, column),
		siteID, tenantID, enabled,
	)
	if err != nil {
		return fmt.Errorf("updating site capability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("site")
	}
	return nil
}
