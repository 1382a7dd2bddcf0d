package repair

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/pkg/auditlog"
	"github.com/solvereign/solvereign/pkg/plan"
)

// Apply implements apply(session_id, approver, idempotency_key): under the
// (tenant, plan_id, "repair") advisory lock it compares the plan's current
// output_hash with the one the preview was computed from to detect drift,
// then persists the change as a new plan version, inserted as DRAFT and
// moved straight to SOLVED (its assignments are already known, so it
// never enters SOLVING).
func (e *Engine) Apply(ctx context.Context, sessionID uuid.UUID, approverID uuid.UUID, idempotencyKey string) (Session, uuid.UUID, error) {
	s, err := e.Get(ctx, sessionID)
	if err != nil {
		return Session{}, uuid.Nil, err
	}
	if s.Status == StatusApplied {
		// Idempotent replay: the same key returns the original success payload.
		if s.IdempotencyKey == idempotencyKey && s.AppliedPlanID != nil {
			return s, *s.AppliedPlanID, nil
		}
	}
	if s.Status != StatusOpen {
		return Session{}, uuid.Nil, ErrNotOpen
	}

	v, err := e.plans.GetVersion(ctx, s.TenantID, s.PlanVersionID)
	if err != nil {
		return Session{}, uuid.Nil, err
	}

	lk, err := e.locker.TryAcquire(ctx, v.TenantID, s.PlanVersionID.String(), "repair", e.lockTimeout)
	if err != nil {
		return Session{}, uuid.Nil, ErrSessionBusy
	}
	defer lk.Release(ctx)

	var preview Preview
	if err := json.Unmarshal(s.PreviewPayload, &preview); err != nil {
		return Session{}, uuid.Nil, err
	}

	// Re-read the plan under the lock: if output_hash drifted since the
	// preview was computed, a concurrent mutation raced us.
	v, err = e.plans.GetVersion(ctx, s.TenantID, s.PlanVersionID)
	if err != nil {
		return Session{}, uuid.Nil, err
	}
	if v.OutputHash != preview.BaseOutputHash {
		return Session{}, uuid.Nil, ErrPreviewStale
	}

	priorResultBytes, err := e.plans.GetSolveResultJSON(ctx, s.PlanVersionID)
	if err != nil {
		return Session{}, uuid.Nil, err
	}
	priorAudit, err := e.plans.GetAuditResult(ctx, s.PlanVersionID)
	if err != nil {
		return Session{}, uuid.Nil, err
	}

	newPlanID := uuid.New()
	outputHash, err := hashResult(preview.Result)
	if err != nil {
		return Session{}, uuid.Nil, err
	}

	newVersion := plan.Version{
		ID:                newPlanID,
		TenantID:          v.TenantID,
		SiteID:            v.SiteID,
		ForecastVersionID: v.ForecastVersionID,
		State:             plan.StateDraft,
		Seed:              v.Seed,
		InputHash:         v.InputHash,
		CreatedAt:         time.Now().UTC(),
	}
	if err := e.plans.CreateVersion(ctx, newVersion); err != nil {
		return Session{}, uuid.Nil, err
	}
	if err := e.plans.CompleteSolve(ctx, newPlanID, outputHash, preview.Result, preview.Audit.BlockCount, preview.Audit.WarnCount); err != nil {
		return Session{}, uuid.Nil, err
	}

	undo := UndoData{PriorOutputHash: v.OutputHash, PriorAudit: priorAudit}
	if err := json.Unmarshal(priorResultBytes, &undo.PriorResult); err != nil {
		return Session{}, uuid.Nil, err
	}
	undoBytes, err := json.Marshal(undo)
	if err != nil {
		return Session{}, uuid.Nil, err
	}

	s.Status = StatusApplied
	s.AppliedPlanID = &newPlanID
	s.UndoPayload = undoBytes
	s.IdempotencyKey = idempotencyKey
	if err := e.store.MarkApplied(ctx, sessionID, newPlanID, undoBytes, idempotencyKey); err != nil {
		return Session{}, uuid.Nil, err
	}

	_, err = e.audit.Append(ctx, &v.TenantID, &approverID, "repair.applied", "plan_version", newPlanID.String(), auditlog.SeverityInfo, map[string]any{
		"session_id": sessionID, "source_plan_id": s.PlanVersionID,
	})
	if err != nil {
		return Session{}, uuid.Nil, err
	}

	return s, newPlanID, nil
}

func hashResult(r any) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
