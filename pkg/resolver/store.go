package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solvereign/solvereign/internal/db"
)

const mappingColumns = `tenant_id, external_system, entity_type, external_id, internal_id, sync_status, created_at, updated_at`

// Store provides raw-SQL operations over the external_mappings table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanMapping(row pgx.Row) (Mapping, error) {
	var m Mapping
	if err := row.Scan(&m.TenantID, &m.ExternalSystem, &m.EntityType, &m.ExternalID, &m.InternalID, &m.SyncStatus, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return Mapping{}, err
	}
	return m, nil
}

// Get looks up a single mapping by its four-tuple key.
func (s *Store) Get(ctx context.Context, tenantID uuid.UUID, system, entityType, externalID string) (Mapping, error) {
	row := db.FromContext(ctx, s.pool).QueryRow(ctx,
		`SELECT `+mappingColumns+` FROM external_mappings
		 WHERE tenant_id = $1 AND external_system = $2 AND entity_type = $3 AND external_id = $4`,
		tenantID, system, entityType, externalID,
	)
	return scanMapping(row)
}

// GetBulk looks up every mapping matching the given external IDs in a
// single round trip.
func (s *Store) GetBulk(ctx context.Context, tenantID uuid.UUID, system, entityType string, externalIDs []string) ([]Mapping, error) {
	rows, err := db.FromContext(ctx, s.pool).Query(ctx,
		`SELECT `+mappingColumns+` FROM external_mappings
		 WHERE tenant_id = $1 AND external_system = $2 AND entity_type = $3 AND external_id = ANY($4)`,
		tenantID, system, entityType, externalIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("bulk resolving mappings: %w", err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning mapping row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateMapping inserts a new canonical mapping. conflict is true when a
// concurrent insert won the unique-constraint race; the caller should
// re-read rather than treat this as a hard failure.
func (s *Store) CreateMapping(ctx context.Context, tenantID uuid.UUID, system, entityType, externalID string, internalID uuid.UUID, createPayload []byte) (Mapping, bool, error) {
	row := db.FromContext(ctx, s.pool).QueryRow(ctx,
		`INSERT INTO external_mappings (tenant_id, external_system, entity_type, external_id, internal_id, sync_status, create_payload)
		 VALUES ($1, $2, $3, $4, $5, 'active', $6)
		 RETURNING `+mappingColumns,
		tenantID, system, entityType, externalID, internalID, createPayload,
	)
	m, err := scanMapping(row)
	if err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
			return Mapping{}, true, nil
		}
		return Mapping{}, false, fmt.Errorf("creating external mapping: %w", err)
	}
	return m, false, nil
}

// Deprecate marks a mapping's sync_status deprecated in place.
func (s *Store) Deprecate(ctx context.Context, tenantID uuid.UUID, system, entityType, externalID string) error {
	tag, err := db.FromContext(ctx, s.pool).Exec(ctx,
		`UPDATE external_mappings SET sync_status = 'deprecated', updated_at = now()
		 WHERE tenant_id = $1 AND external_system = $2 AND entity_type = $3 AND external_id = $4`,
		tenantID, system, entityType, externalID,
	)
	if err != nil {
		return fmt.Errorf("deprecating external mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
