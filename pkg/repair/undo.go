package repair

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/pkg/auditlog"
)

// Undo implements undo(session_id, approver, idempotency_key): restores
// the prior state onto the same plan version apply created, and
// marks the session UNDONE (a distinct terminal status from APPLIED, so
// "still applied" vs "rolled back" stays externally observable).
func (e *Engine) Undo(ctx context.Context, sessionID uuid.UUID, approverID uuid.UUID, idempotencyKey string) (Session, error) {
	s, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return Session{}, ErrSessionNotFound
	}

	if s.Status == StatusUndone {
		// Idempotent replay.
		return s, nil
	}
	if s.Status != StatusApplied {
		return Session{}, ErrNotApplied
	}
	if s.AppliedPlanID == nil {
		return Session{}, ErrNotApplied
	}

	lk, err := e.locker.TryAcquire(ctx, s.TenantID, s.PlanVersionID.String(), "repair", e.lockTimeout)
	if err != nil {
		return Session{}, ErrSessionBusy
	}
	defer lk.Release(ctx)

	var undo UndoData
	if err := json.Unmarshal(s.UndoPayload, &undo); err != nil {
		return Session{}, err
	}

	if err := e.plans.CompleteSolve(ctx, *s.AppliedPlanID, undo.PriorOutputHash, undo.PriorResult, undo.PriorAudit.BlockCount, undo.PriorAudit.WarnCount); err != nil {
		return Session{}, err
	}

	if err := e.store.SetStatus(ctx, sessionID, StatusUndone); err != nil {
		return Session{}, err
	}
	s.Status = StatusUndone

	_, err = e.audit.Append(ctx, &s.TenantID, &approverID, "repair.undone", "plan_version", s.AppliedPlanID.String(), auditlog.SeverityInfo, map[string]any{
		"session_id": sessionID, "idempotency_key": idempotencyKey,
	})
	if err != nil {
		return Session{}, err
	}

	return s, nil
}
