// Package repair implements C6, the repair session engine: a scoped
// preview/apply/undo workflow for editing a plan's assignments without
// mutating it until the operator confirms.
package repair

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/internal/apperr"
	"github.com/solvereign/solvereign/pkg/auditlog"
	"github.com/solvereign/solvereign/pkg/lock"
	"github.com/solvereign/solvereign/pkg/plan"
	"github.com/solvereign/solvereign/pkg/solver"
	"github.com/solvereign/solvereign/pkg/violations"
)

// Status is a RepairSession's lifecycle state.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusApplied  Status = "APPLIED"
	StatusAborted  Status = "ABORTED"
	StatusExpired  Status = "EXPIRED"
	StatusUndone   Status = "UNDONE"
)

// Reassignment moves a single order to a different driver; it is the one
// requested-change shape this engine understands.
type Reassignment struct {
	OrderID     uuid.UUID `json:"order_id"`
	NewDriverID uuid.UUID `json:"new_driver_id"`
}

// Preview is the computed effect of applying requested changes, stored on
// the session row without touching the plan itself.
type Preview struct {
	BaseOutputHash string              `json:"base_output_hash"`
	Result         solver.Result       `json:"result"`
	Audit          violations.Result   `json:"audit"`
	Changes        []Reassignment      `json:"changes"`
}

// UndoData is what apply stores so undo can restore the plan to its
// pre-apply state without a second fork (per the project's undo-semantics
// decision: undo reverts the same plan version apply created, in place).
type UndoData struct {
	PriorResult     solver.Result     `json:"prior_result"`
	PriorAudit      violations.Result `json:"prior_audit"`
	PriorOutputHash string            `json:"prior_output_hash"`
}

// Session is a repair_sessions row.
type Session struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	PlanVersionID  uuid.UUID
	UserID         uuid.UUID
	CreatedAt      time.Time
	ExpiresAt      time.Time
	Status         Status
	PreviewPayload json.RawMessage
	UndoPayload    json.RawMessage
	IdempotencyKey string
	AppliedPlanID  *uuid.UUID
}

var (
	// ErrPlanLocked guards create against a LOCKED plan.
	ErrPlanLocked = apperr.New(apperr.KindState, "ALREADY_LOCKED", "plan is locked and cannot accept a repair session")
	// ErrSessionBusy is returned when the advisory lock times out.
	ErrSessionBusy = apperr.New(apperr.KindResource, "SESSION_BUSY", "another repair operation is in progress for this plan")
	// ErrSessionAlreadyExists is returned when an OPEN session already covers the plan.
	ErrSessionAlreadyExists = apperr.New(apperr.KindConflict, "SESSION_ALREADY_EXISTS", "an open repair session already exists for this plan")
	// ErrSessionNotFound guards get/apply/undo/abort against an unknown id.
	ErrSessionNotFound = apperr.New(apperr.KindState, "SESSION_NOT_FOUND", "repair session not found")
	// ErrSessionExpired is surfaced when a session's TTL has lapsed.
	ErrSessionExpired = apperr.New(apperr.KindState, "SESSION_EXPIRED", "repair session has expired")
	// ErrPreviewStale is returned when the plan changed since the preview was computed.
	ErrPreviewStale = apperr.New(apperr.KindConflict, "PREVIEW_STALE", "plan state has changed since this session's preview was computed")
	// ErrNotOpen guards apply/abort against a session that isn't OPEN.
	ErrNotOpen = apperr.New(apperr.KindState, "SESSION_NOT_OPEN", "repair session is not open")
	// ErrNotApplied guards undo against a session that isn't APPLIED.
	ErrNotApplied = apperr.New(apperr.KindState, "SESSION_NOT_APPLIED", "repair session has not been applied")
)

// Engine implements the C6 public contract.
type Engine struct {
	store       *Store
	plans       *plan.Store
	locker      *lock.Locker
	audit       *auditlog.Logger
	ttl         time.Duration // repair session lifetime (REPAIR_SESSION_TTL_SECONDS)
	lockTimeout time.Duration // advisory lock acquisition timeout (ADVISORY_LOCK_TIMEOUT_MS)
	rules       violations.Policy
}

// NewEngine builds an Engine from its collaborators. ttl and lockTimeout are
// deliberately distinct: ttl governs how long an OPEN session stays valid,
// while lockTimeout bounds how long a create/apply/undo call blocks trying
// to acquire the per-plan advisory lock before surfacing SESSION_BUSY.
func NewEngine(store *Store, plans *plan.Store, locker *lock.Locker, audit *auditlog.Logger, ttl, lockTimeout time.Duration, rules violations.Policy) *Engine {
	return &Engine{store: store, plans: plans, locker: locker, audit: audit, ttl: ttl, lockTimeout: lockTimeout, rules: rules}
}

// Create implements create(plan_id, requested_changes, user, idempotency_key).
func (e *Engine) Create(ctx context.Context, tenantID, planID, userID uuid.UUID, changes []Reassignment, idempotencyKey string) (Session, error) {
	v, err := e.plans.GetVersion(ctx, tenantID, planID)
	if err != nil {
		return Session{}, err
	}
	if v.State == plan.StateLocked {
		return Session{}, ErrPlanLocked
	}

	lk, err := e.locker.TryAcquire(ctx, v.TenantID, planID.String(), "repair", e.lockTimeout)
	if err != nil {
		return Session{}, ErrSessionBusy
	}
	defer lk.Release(ctx)

	existing, err := e.store.GetOpenForPlan(ctx, planID)
	if err == nil {
		if !existing.expired(time.Now().UTC()) {
			return Session{}, ErrSessionAlreadyExists
		}
		_ = e.store.SetStatus(ctx, existing.ID, StatusExpired)
	}

	forecast, err := e.plans.GetForecast(ctx, planID)
	if err != nil {
		return Session{}, err
	}
	result, err := e.plans.GetSolveResultJSON(ctx, planID)
	if err != nil {
		return Session{}, err
	}
	var baseResult solver.Result
	if err := json.Unmarshal(result, &baseResult); err != nil {
		return Session{}, err
	}

	previewResult := applyChanges(baseResult, changes)
	auditResult := violations.Compute(forecast, previewResult, e.rules)

	preview := Preview{BaseOutputHash: v.OutputHash, Result: previewResult, Audit: auditResult, Changes: changes}
	previewBytes, err := json.Marshal(preview)
	if err != nil {
		return Session{}, err
	}

	now := time.Now().UTC()
	session := Session{
		ID:             uuid.New(),
		TenantID:       v.TenantID,
		PlanVersionID:  planID,
		UserID:         userID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(e.ttl),
		Status:         StatusOpen,
		PreviewPayload: previewBytes,
		IdempotencyKey: idempotencyKey,
	}
	if err := e.store.Create(ctx, session); err != nil {
		return Session{}, err
	}
	return session, nil
}

func (s Session) expired(now time.Time) bool {
	return s.Status == StatusOpen && !now.Before(s.ExpiresAt)
}

// Get implements get(session_id): expiry is lazily detected and
// persisted on read.
func (e *Engine) Get(ctx context.Context, sessionID uuid.UUID) (Session, error) {
	s, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return Session{}, ErrSessionNotFound
	}
	if s.expired(time.Now().UTC()) {
		_ = e.store.SetStatus(ctx, s.ID, StatusExpired)
		s.Status = StatusExpired
		return s, ErrSessionExpired
	}
	return s, nil
}

// Abort implements abort(session_id): OPEN -> ABORTED, no plan mutation.
func (e *Engine) Abort(ctx context.Context, sessionID uuid.UUID) error {
	s, err := e.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Status != StatusOpen {
		return ErrNotOpen
	}
	return e.store.SetStatus(ctx, sessionID, StatusAborted)
}

func applyChanges(base solver.Result, changes []Reassignment) solver.Result {
	byOrder := make(map[uuid.UUID]int, len(changes))
	for i, c := range changes {
		byOrder[c.OrderID] = i
	}

	out := solver.Result{Unassigned: append([]uuid.UUID(nil), base.Unassigned...)}
	for _, a := range base.Assignments {
		if i, ok := byOrder[a.OrderID]; ok {
			a.DriverID = changes[i].NewDriverID
		}
		out.Assignments = append(out.Assignments, a)
	}
	return out
}
