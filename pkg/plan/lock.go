package plan

import (
	"context"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/internal/apperr"
	"github.com/solvereign/solvereign/pkg/auditlog"
	"github.com/solvereign/solvereign/pkg/killswitch"
)

// ErrNotPublished guards lock against a plan that isn't PUBLISHED.
var ErrNotPublished = apperr.New(apperr.KindState, "NOT_PUBLISHED", "plan must be PUBLISHED before it can be locked")

// ErrLockNotConfirmed guards against an accidental lock call.
var ErrLockNotConfirmed = apperr.New(apperr.KindValidation, "CONFIRM_REQUIRED", "lock requires confirm=true")

// Lock implements lock(plan_id, approver, reason, confirm=true): requires
// PUBLISHED, re-checks the same approver/kill-switch/reason preconditions
// as publish, and transitions to LOCKED. Irreversibility is enforced in
// the application: no code path moves a plan out of LOCKED, and publish,
// pins and repair-session creation refuse a LOCKED plan. plan_versions
// has no storage-layer trigger; plan_snapshots rows reject DELETE and any
// UPDATE other than of status, whatever the plan's state.
func (m *Manager) Lock(ctx context.Context, planID uuid.UUID, approver Approver, reason string, confirm bool) error {
	if !confirm {
		return ErrLockNotConfirmed
	}

	v, err := m.store.GetVersion(ctx, approver.TenantID, planID)
	if err != nil {
		return err
	}

	lk, err := m.locker.TryAcquire(ctx, v.TenantID, planID.String(), "plan_transition", m.policy.LockTimeout)
	if err != nil {
		return err
	}
	defer lk.Release(ctx)

	v, err = m.store.GetVersion(ctx, approver.TenantID, planID)
	if err != nil {
		return err
	}
	if v.State == StateLocked {
		return ErrAlreadyLocked
	}
	if v.State != StatePublished {
		return ErrNotPublished
	}

	enabled, err := m.gate.Enabled(ctx, v.TenantID, v.SiteID, killswitch.CapabilityLock)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrSiteNotEnabled
	}

	if !approver.IsPlatformScope && !approver.HasLock {
		return apperr.PermissionDenied("plan.lock")
	}
	if len(reason) < m.policy.ReasonMinLen {
		return ErrReasonTooShort
	}

	if err := m.store.LockTx(ctx, planID); err != nil {
		return err
	}

	_, err = m.audit.Append(ctx, &v.TenantID, &approver.UserID, "plan.locked", "plan_version", planID.String(), auditlog.SeverityInfo, map[string]any{
		"reason": reason,
	})
	return err
}
