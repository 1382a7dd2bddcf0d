// Package resolver implements the C3 Master-Data Resolver: deterministic
// external-id to canonical-UUID mapping underpinning identity across
// imports.
package resolver

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/internal/apperr"
)

// MaxBulkIDs bounds a single resolve_bulk call (spec 4.3: "<= 1000 per
// call").
const MaxBulkIDs = 1000

// ErrInputTooLarge is returned when a bulk request exceeds MaxBulkIDs.
var ErrInputTooLarge = apperr.InputTooLarge()

// Mapping is an external_mapping row: the unique (tenant, system, type,
// external_id) four-tuple bound to an internal canonical UUID.
type Mapping struct {
	TenantID       uuid.UUID
	ExternalSystem string
	EntityType     string
	ExternalID     string
	InternalID     uuid.UUID
	SyncStatus     string // "active" | "deprecated"
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Resolution is the result of a single resolve call.
type Resolution struct {
	InternalID uuid.UUID
	Created    bool
}

// BulkResult is one entry of a resolve_bulk response, in input order.
type BulkResult struct {
	ExternalID string
	InternalID *uuid.UUID
	Found      bool
}

// Resolver implements the C3 public contract over a Store.
type Resolver struct {
	store *Store
}

// NewResolver builds a Resolver over the given Store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve implements resolve(tenant, system, type, ext_id, create_payload?).
// If the mapping already exists it is returned unchanged (idempotent
// retries yield the same internal_id). If it does not exist and
// createPayload is non-nil, a new canonical UUID and mapping row are
// created atomically. If it does not exist and createPayload is nil,
// apperr.NotFound is returned.
//
// A unique-violation race from a concurrent identical create is retried
// once by re-reading the now-existing row, matching spec 4.3's "CONFLICT if
// concurrent creates race (retry once on conflict)".
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID, system, entityType, externalID string, createPayload []byte) (Resolution, error) {
	existing, err := r.store.Get(ctx, tenantID, system, entityType, externalID)
	if err == nil {
		return Resolution{InternalID: existing.InternalID, Created: false}, nil
	}

	if createPayload == nil {
		return Resolution{}, apperr.NotFound("external mapping")
	}

	internalID := uuid.New()
	created, conflict, err := r.store.CreateMapping(ctx, tenantID, system, entityType, externalID, internalID, createPayload)
	if err != nil {
		return Resolution{}, err
	}
	if conflict {
		// Lost the race to a concurrent identical create; the winner's row
		// is now visible, so resolve it exactly as the cache-hit path above.
		existing, err := r.store.Get(ctx, tenantID, system, entityType, externalID)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{InternalID: existing.InternalID, Created: false}, nil
	}

	return Resolution{InternalID: created.InternalID, Created: true}, nil
}

// ResolveBulk implements resolve_bulk: a single round trip, order preserved,
// at most MaxBulkIDs entries.
func (r *Resolver) ResolveBulk(ctx context.Context, tenantID uuid.UUID, system, entityType string, externalIDs []string) ([]BulkResult, error) {
	if len(externalIDs) > MaxBulkIDs {
		return nil, ErrInputTooLarge
	}

	found, err := r.store.GetBulk(ctx, tenantID, system, entityType, externalIDs)
	if err != nil {
		return nil, err
	}

	byExternalID := make(map[string]uuid.UUID, len(found))
	for _, m := range found {
		byExternalID[m.ExternalID] = m.InternalID
	}

	out := make([]BulkResult, len(externalIDs))
	for i, id := range externalIDs {
		if internal, ok := byExternalID[id]; ok {
			v := internal
			out[i] = BulkResult{ExternalID: id, InternalID: &v, Found: true}
		} else {
			out[i] = BulkResult{ExternalID: id, Found: false}
		}
	}
	return out, nil
}

// Deprecate marks a mapping deprecated without deleting it (spec 3:
// "deprecated rows use sync_status='deprecated' and are never physically
// deleted").
func (r *Resolver) Deprecate(ctx context.Context, tenantID uuid.UUID, system, entityType, externalID string) error {
	return r.store.Deprecate(ctx, tenantID, system, entityType, externalID)
}
