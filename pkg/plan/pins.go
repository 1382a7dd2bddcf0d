package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/solvereign/solvereign/internal/apperr"
	"github.com/solvereign/solvereign/pkg/auditlog"
)

// ErrPinExists guards pin creation against its uniqueness constraint;
// checked with a lookup before insert rather than a constraint-violation
// catch, matching how the repair engine guards its own unique index.
var ErrPinExists = apperr.New(apperr.KindConflict, "PIN_EXISTS", "a pin with this type and key already exists on the plan")

// Pin is an operator-declared constraint bound to a plan, e.g. "driver D
// on tour T". Unique within a plan for its (pin_type, pin_key); creation
// and deletion are both forbidden once the plan is LOCKED.
type Pin struct {
	ID            uuid.UUID
	PlanVersionID uuid.UUID
	TenantID      uuid.UUID
	PinType       string
	PinKey        string
	Payload       json.RawMessage
	CreatedBy     uuid.UUID
	CreatedAt     time.Time
}

const pinColumns = `id, plan_version_id, tenant_id, pin_type, pin_key, payload, created_by, created_at`

func scanPin(row pgx.Row) (Pin, error) {
	var p Pin
	err := row.Scan(&p.ID, &p.PlanVersionID, &p.TenantID, &p.PinType, &p.PinKey, &p.Payload, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		return Pin{}, err
	}
	return p, nil
}

// ExistsByKey reports whether a pin with this (pin_type, pin_key) already
// exists on the plan.
func (s *Store) ExistsByKey(ctx context.Context, planID uuid.UUID, pinType, pinKey string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM plan_pins WHERE plan_version_id = $1 AND pin_type = $2 AND pin_key = $3)`,
		planID, pinType, pinKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking pin existence: %w", err)
	}
	return exists, nil
}

// CreatePin inserts a plan_pins row.
func (s *Store) CreatePin(ctx context.Context, p Pin) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO plan_pins (id, plan_version_id, tenant_id, pin_type, pin_key, payload, created_by, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.PlanVersionID, p.TenantID, p.PinType, p.PinKey, p.Payload, p.CreatedBy, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating pin: %w", err)
	}
	return nil
}

// ListPins returns all pins for a plan version, oldest first.
func (s *Store) ListPins(ctx context.Context, planID uuid.UUID) ([]Pin, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pinColumns+` FROM plan_pins WHERE plan_version_id = $1 ORDER BY created_at`, planID)
	if err != nil {
		return nil, fmt.Errorf("listing pins: %w", err)
	}
	defer rows.Close()

	var out []Pin
	for rows.Next() {
		p, err := scanPin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPin reads a single pin scoped to its plan.
func (s *Store) GetPin(ctx context.Context, planID, pinID uuid.UUID) (Pin, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pinColumns+` FROM plan_pins WHERE id = $1 AND plan_version_id = $2`, pinID, planID)
	p, err := scanPin(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Pin{}, apperr.NotFound("pin")
		}
		return Pin{}, err
	}
	return p, nil
}

// DeletePin removes a pin by id, scoped to its plan.
func (s *Store) DeletePin(ctx context.Context, planID, pinID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM plan_pins WHERE id = $1 AND plan_version_id = $2`, pinID, planID)
	if err != nil {
		return fmt.Errorf("deleting pin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("pin")
	}
	return nil
}

// AddPin implements POST /plans/{id}/pins. Locked plans reject every
// mutation, pins included.
func (m *Manager) AddPin(ctx context.Context, tenantID, planID, actorID uuid.UUID, pinType, pinKey string, payload json.RawMessage) (Pin, error) {
	v, err := m.store.GetVersion(ctx, tenantID, planID)
	if err != nil {
		return Pin{}, err
	}
	if v.State == StateLocked {
		return Pin{}, ErrAlreadyLocked
	}

	exists, err := m.store.ExistsByKey(ctx, planID, pinType, pinKey)
	if err != nil {
		return Pin{}, err
	}
	if exists {
		return Pin{}, ErrPinExists
	}

	p := Pin{
		ID:            uuid.New(),
		PlanVersionID: planID,
		TenantID:      v.TenantID,
		PinType:       pinType,
		PinKey:        pinKey,
		Payload:       payload,
		CreatedBy:     actorID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.store.CreatePin(ctx, p); err != nil {
		return Pin{}, err
	}

	_, err = m.audit.Append(ctx, &v.TenantID, &actorID, "plan.pin_added", "plan_pin", p.ID.String(), auditlog.SeverityInfo, map[string]any{
		"plan_id": planID, "pin_type": pinType, "pin_key": pinKey,
	})
	if err != nil {
		return Pin{}, err
	}
	return p, nil
}

// RemovePin implements DELETE /plans/{id}/pins/{pin_id}.
func (m *Manager) RemovePin(ctx context.Context, tenantID, planID, pinID, actorID uuid.UUID) error {
	v, err := m.store.GetVersion(ctx, tenantID, planID)
	if err != nil {
		return err
	}
	if v.State == StateLocked {
		return ErrAlreadyLocked
	}

	if err := m.store.DeletePin(ctx, planID, pinID); err != nil {
		return err
	}

	_, err = m.audit.Append(ctx, &v.TenantID, &actorID, "plan.pin_removed", "plan_pin", pinID.String(), auditlog.SeverityInfo, map[string]any{
		"plan_id": planID,
	})
	return err
}

// ListPins returns the pins on a plan for the matrix/detail views.
func (m *Manager) ListPins(ctx context.Context, planID uuid.UUID) ([]Pin, error) {
	return m.store.ListPins(ctx, planID)
}
