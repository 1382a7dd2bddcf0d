package plan

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/internal/apperr"
	"github.com/solvereign/solvereign/pkg/approval"
	"github.com/solvereign/solvereign/pkg/auditlog"
	"github.com/solvereign/solvereign/pkg/evidence"
	"github.com/solvereign/solvereign/pkg/killswitch"
)

var (
	// ErrAlreadyLocked guards precondition 1.
	ErrAlreadyLocked = apperr.New(apperr.KindState, "ALREADY_LOCKED", "plan is locked and cannot be mutated")
	// ErrKillSwitchActive is the kill-switch code of precondition 2. Publish
	// and Lock do not return it: the capability gate reports only enabled
	// or disabled, and a disabled capability is reported as ErrSiteNotEnabled.
	ErrKillSwitchActive = apperr.New(apperr.KindGate, "KILL_SWITCH_ACTIVE", "publish capability is disabled for this site")
	// ErrSiteNotEnabled guards precondition 2.
	ErrSiteNotEnabled = apperr.New(apperr.KindGate, "SITE_NOT_ENABLED", "site is not enabled for publishing")
	// ErrReasonTooShort guards precondition 4.
	ErrReasonTooShort = apperr.New(apperr.KindValidation, "REASON_TOO_SHORT", "publish reason is shorter than the configured minimum")
	// ErrViolationsBlockPublish guards precondition 5.
	ErrViolationsBlockPublish = apperr.New(apperr.KindGate, "VIOLATIONS_BLOCK_PUBLISH", "plan has unresolved BLOCK violations")
	// ErrFreezeWindowActive guards precondition 6 absent an override.
	ErrFreezeWindowActive = apperr.New(apperr.KindGate, "FREEZE_WINDOW_ACTIVE", "a predecessor plan is still within its freeze window")
	// ErrNotSolved guards publish against a plan that never reached SOLVED.
	ErrNotSolved = apperr.New(apperr.KindState, "NOT_SOLVED", "plan must be SOLVED before it can be published")
	// ErrApprovalRequired guards the C8 risk gate: above-LOW risk publishes
	// need a caller-supplied, already-APPROVED request for this plan.
	ErrApprovalRequired = apperr.New(apperr.KindGate, "APPROVAL_REQUIRED", "this publish needs an approved C8 approval request")
)

// Publish implements publish(plan_id, approver, reason, idempotency_key).
// The idempotency key itself is handled by the HTTP pipeline (C12); this
// method is the side-effecting body the pipeline invokes once, serialized
// per (tenant, plan_id) by an advisory lock (spec 5).
func (m *Manager) Publish(ctx context.Context, planID uuid.UUID, approver Approver, reason, forceReason string, approvalRequestID *uuid.UUID) (Snapshot, error) {
	v, err := m.store.GetVersion(ctx, approver.TenantID, planID)
	if err != nil {
		return Snapshot{}, err
	}

	lk, err := m.locker.TryAcquire(ctx, v.TenantID, planID.String(), "plan_transition", m.policy.LockTimeout)
	if err != nil {
		return Snapshot{}, err
	}
	defer lk.Release(ctx)

	// Re-read under the lock: another request may have mutated state
	// between the unlocked read above and lock acquisition.
	v, err = m.store.GetVersion(ctx, approver.TenantID, planID)
	if err != nil {
		return Snapshot{}, err
	}

	// 1. Not LOCKED.
	if v.State == StateLocked {
		return Snapshot{}, ErrAlreadyLocked
	}
	if v.State != StateSolved {
		return Snapshot{}, ErrNotSolved
	}

	// 2. Kill switch / site enablement.
	enabled, err := m.gate.Enabled(ctx, v.TenantID, v.SiteID, killswitch.CapabilityPublish)
	if err != nil {
		return Snapshot{}, err
	}
	if !enabled {
		return Snapshot{}, ErrSiteNotEnabled
	}

	// 3. Permission.
	if !approver.IsPlatformScope && !approver.HasPublish {
		return Snapshot{}, apperr.PermissionDenied("plan.publish")
	}

	// 4. Reason length.
	if len(reason) < m.policy.ReasonMinLen {
		return Snapshot{}, ErrReasonTooShort
	}

	// 5. Fresh block count over current output_hash.
	if v.AuditBlockCount > 0 {
		return Snapshot{}, ErrViolationsBlockPublish
	}

	// 6. Freeze window.
	predecessor, err := m.store.GetActiveSnapshotForSite(ctx, v.TenantID, v.SiteID)
	if err != nil && err != ErrNoActiveSnapshot {
		return Snapshot{}, err
	}
	forcedFreeze := false
	if err == nil && time.Now().UTC().Before(predecessor.FreezeUntil) {
		if forceReason == "" {
			return Snapshot{}, ErrFreezeWindowActive
		}
		forcedFreeze = true
	}

	// C8 risk gate: a freeze-window override or a plan carrying WARN
	// violations raises the risk level past LOW, in which case publish
	// must be backed by an already-APPROVED request for this plan.
	if m.approvals != nil {
		riskCtx := approval.Context{AffectedDriverCount: v.AuditWarnCount, InFreezeWindow: forcedFreeze}
		if level := approval.Score(riskCtx); level != approval.RiskLow {
			if approvalRequestID == nil {
				return Snapshot{}, ErrApprovalRequired
			}
			reqRec, err := m.approvals.Get(ctx, *approvalRequestID)
			if err != nil {
				return Snapshot{}, err
			}
			if reqRec.EntityType != "plan_version" || reqRec.EntityID != planID.String() || reqRec.Status != approval.StatusApproved {
				return Snapshot{}, ErrApprovalRequired
			}
		}
	}

	now := time.Now().UTC()
	versionNumber, err := m.store.NextSnapshotVersionNumber(ctx, planID)
	if err != nil {
		return Snapshot{}, err
	}

	assignments, err := m.store.GetSolveResultJSON(ctx, planID)
	if err != nil {
		return Snapshot{}, err
	}
	auditResult, err := m.store.GetAuditResult(ctx, planID)
	if err != nil {
		return Snapshot{}, err
	}
	matrixHash, err := hashOf(assignments)
	if err != nil {
		return Snapshot{}, err
	}

	pack, evidenceHash, err := evidence.Build(
		v.InputHash, v.OutputHash, matrixHash, m.policy.PolicyHash, m.policy.PolicyProfile, v.Seed, auditResult, assignments, now,
		evidence.ApproverInfo{UserID: approver.UserID, Email: approver.Email, DecidedAt: now, Reason: reason, ForceFlags: forceFlags(forcedFreeze)},
	)
	if err != nil {
		return Snapshot{}, err
	}
	payload, err := json.Marshal(pack)
	if err != nil {
		return Snapshot{}, err
	}

	freezeUntil := now.Add(m.policy.FreezeDuration)
	snap := Snapshot{
		ID:              uuid.New(),
		PlanVersionID:   planID,
		TenantID:        v.TenantID,
		VersionNumber:   versionNumber,
		PublishedAt:     now,
		PublishedBy:     approver.UserID,
		PublishReason:   reason,
		FreezeUntil:     freezeUntil,
		InputHash:       v.InputHash,
		MatrixHash:      matrixHash,
		OutputHash:      v.OutputHash,
		EvidenceHash:    evidenceHash,
		EvidencePayload: payload,
		Status:          SnapshotActive,
	}

	if err := m.store.PublishTx(ctx, v.TenantID, v.SiteID, planID, snap); err != nil {
		return Snapshot{}, err
	}

	severity := auditlog.SeverityInfo
	if forcedFreeze {
		severity = auditlog.SeverityWarning
	}
	_, err = m.audit.Append(ctx, &v.TenantID, &approver.UserID, "plan.published", "plan_version", planID.String(), severity, map[string]any{
		"snapshot_id": snap.ID, "version_number": versionNumber, "reason": reason, "forced_freeze": forcedFreeze, "force_reason": forceReason,
	})
	if err != nil {
		return Snapshot{}, err
	}

	return snap, nil
}

func forceFlags(forced bool) []string {
	if forced {
		return []string{"freeze_window_override"}
	}
	return nil
}
