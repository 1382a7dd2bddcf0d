// Package plan implements C5, the plan lifecycle manager: create_draft,
// start_solve, publish, lock, and repair_from_snapshot, with the state
// machine and preconditions from spec.md 4.5.
package plan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/internal/apperr"
	"github.com/solvereign/solvereign/pkg/approval"
	"github.com/solvereign/solvereign/pkg/auditlog"
	"github.com/solvereign/solvereign/pkg/ingest"
	"github.com/solvereign/solvereign/pkg/killswitch"
	"github.com/solvereign/solvereign/pkg/lock"
	"github.com/solvereign/solvereign/pkg/solver"
	"github.com/solvereign/solvereign/pkg/violations"
)

// State is a PlanVersion's lifecycle state.
type State string

const (
	StateDraft     State = "DRAFT"
	StateSolving   State = "SOLVING"
	StateSolved    State = "SOLVED"
	StateFailed    State = "FAILED"
	StatePublished State = "PUBLISHED"
	StateLocked    State = "LOCKED"
)

// Version is a plan_versions row.
type Version struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	SiteID            uuid.UUID
	ForecastVersionID uuid.UUID
	State             State
	Seed              int64
	InputHash         string
	OutputHash        string
	AuditBlockCount   int
	AuditWarnCount    int
	CurrentSnapshotID *uuid.UUID
	PublishCount      int
	FreezeUntil       *time.Time
	RepairSourceID    *uuid.UUID
	CreatedAt         time.Time
}

// SnapshotStatus values.
type SnapshotStatus string

const (
	SnapshotActive     SnapshotStatus = "ACTIVE"
	SnapshotSuperseded SnapshotStatus = "SUPERSEDED"
	SnapshotArchived   SnapshotStatus = "ARCHIVED"
)

// Snapshot is an immutable publish-time record.
type Snapshot struct {
	ID              uuid.UUID
	PlanVersionID   uuid.UUID
	TenantID        uuid.UUID
	VersionNumber   int
	PublishedAt     time.Time
	PublishedBy     uuid.UUID
	PublishReason   string
	FreezeUntil     time.Time
	InputHash       string
	MatrixHash      string
	OutputHash      string
	EvidenceHash    string
	EvidencePayload json.RawMessage
	Status          SnapshotStatus
}

// Approver is the minimal identity the lifecycle manager needs from an
// authenticated session: who did this, and do they hold the permission.
type Approver struct {
	UserID          uuid.UUID
	TenantID        uuid.UUID
	Email           string
	HasPublish      bool
	HasLock         bool
	IsPlatformScope bool
}

// Policy carries server-side tunables sourced from config at wiring time.
type Policy struct {
	ReasonMinLen  int
	FreezeDuration time.Duration
	LockTimeout   time.Duration
	RuleSet       violations.Policy
	PolicyHash    string
	PolicyProfile json.RawMessage
}

// Manager implements the C5 public contract.
type Manager struct {
	store     *Store
	locker    *lock.Locker
	gate      *killswitch.Gate
	solve     solver.Solver
	audit     *auditlog.Logger
	approvals *approval.Service
	policy    Policy
}

// NewManager builds a Manager from its collaborators. approvals may be nil
// for deployments that haven't wired C8 in, in which case the risk gate in
// Publish is skipped entirely rather than blocking every publish.
func NewManager(store *Store, locker *lock.Locker, gate *killswitch.Gate, solve solver.Solver, audit *auditlog.Logger, approvals *approval.Service, policy Policy) *Manager {
	return &Manager{store: store, locker: locker, gate: gate, solve: solve, audit: audit, approvals: approvals, policy: policy}
}

func hashOf(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// ListPlans implements GET /plans.
func (m *Manager) ListPlans(ctx context.Context, tenantID, siteID uuid.UUID, state State) ([]Version, error) {
	return m.store.ListVersions(ctx, tenantID, siteID, state)
}

// GetPlan implements GET /plans/{id}. The lookup is tenant-scoped so a
// plan belonging to another tenant falls out the same NOT_FOUND path as
// one that doesn't exist; if an unscoped check finds the row exists under
// another tenant, a TENANT_ISOLATION_ATTEMPT audit event is recorded
// before returning the identical NOT_FOUND error.
func (m *Manager) GetPlan(ctx context.Context, tenantID, planID uuid.UUID) (Version, error) {
	v, err := m.store.GetVersion(ctx, tenantID, planID)
	if err == nil {
		return v, nil
	}
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindNotFound {
		return Version{}, err
	}
	if exists, existsErr := m.store.VersionExists(ctx, planID); existsErr == nil && exists {
		_, _ = m.audit.Append(ctx, &tenantID, nil, "TENANT_ISOLATION_ATTEMPT", "plan_version", planID.String(), auditlog.SeverityHigh, map[string]any{
			"plan_id": planID,
		})
	}
	return Version{}, err
}

// CreateDraft implements create_draft(tenant, site, forecast, seed?).
func (m *Manager) CreateDraft(ctx context.Context, tenantID, siteID uuid.UUID, forecast ingest.ForecastVersion, seed *int64) (Version, error) {
	inputHash, err := hashOf(forecast)
	if err != nil {
		return Version{}, err
	}
	s := int64(0)
	if seed != nil {
		s = *seed
	}

	v := Version{
		ID:                uuid.New(),
		TenantID:          tenantID,
		SiteID:            siteID,
		ForecastVersionID: forecast.ID,
		State:             StateDraft,
		Seed:              s,
		InputHash:         inputHash,
		CreatedAt:         time.Now().UTC(),
	}
	if err := m.store.CreateVersion(ctx, v); err != nil {
		return Version{}, err
	}
	if err := m.store.SaveForecast(ctx, v.ID, forecast); err != nil {
		return Version{}, err
	}
	return v, nil
}

// ErrNotDraft guards start_solve against a non-DRAFT plan.
var ErrNotDraft = apperr.New(apperr.KindState, "NOT_DRAFT", "plan is not in DRAFT state")

// StartSolve implements start_solve(plan_id, policy_hash): DRAFT->SOLVING,
// then SOLVING->SOLVED|FAILED once the solver returns.
func (m *Manager) StartSolve(ctx context.Context, tenantID, planID uuid.UUID, policyHash string) (Version, violations.Result, error) {
	v, err := m.store.GetVersion(ctx, tenantID, planID)
	if err != nil {
		return Version{}, violations.Result{}, err
	}
	if v.State != StateDraft {
		return Version{}, violations.Result{}, ErrNotDraft
	}
	if err := m.store.SetState(ctx, planID, StateSolving); err != nil {
		return Version{}, violations.Result{}, err
	}

	forecast, err := m.store.GetForecast(ctx, planID)
	if err != nil {
		_ = m.store.SetState(ctx, planID, StateFailed)
		return Version{}, violations.Result{}, err
	}

	result, solveErr := m.solve.Solve(ctx, forecast, v.Seed, policyHash)
	if solveErr != nil {
		reason := "SOLVER_ERROR"
		if ctx.Err() != nil {
			reason = "CANCELLED"
		}
		_ = m.store.SetState(ctx, planID, StateFailed)
		_, _ = m.audit.Append(ctx, &v.TenantID, nil, "plan.solve_failed", "plan_version", planID.String(), auditlog.SeverityWarning, map[string]any{"reason": reason})
		return Version{}, violations.Result{}, solveErr
	}

	outputHash, err := hashOf(result)
	if err != nil {
		return Version{}, violations.Result{}, err
	}
	audit := violations.Compute(forecast, result, m.policy.RuleSet)

	if err := m.store.CompleteSolve(ctx, planID, outputHash, result, audit.BlockCount, audit.WarnCount); err != nil {
		return Version{}, violations.Result{}, err
	}

	v.State = StateSolved
	v.OutputHash = outputHash
	v.AuditBlockCount = audit.BlockCount
	v.AuditWarnCount = audit.WarnCount

	_, err = m.audit.Append(ctx, &v.TenantID, nil, "plan.solved", "plan_version", planID.String(), auditlog.SeverityInfo, map[string]any{
		"output_hash": outputHash, "block_count": audit.BlockCount, "warn_count": audit.WarnCount,
	})
	if err != nil {
		return Version{}, violations.Result{}, err
	}

	return v, audit, nil
}

// Matrix implements GET /plans/{id}/matrix: the raw solver assignment
// result for the plan's current output.
func (m *Manager) Matrix(ctx context.Context, planID uuid.UUID) (json.RawMessage, error) {
	return m.store.GetSolveResultJSON(ctx, planID)
}

// Violations implements GET /plans/{id}/violations: the BLOCK and WARN
// counts recorded at solve time. The individual violations are not
// stored, so the returned Result has no Details.
func (m *Manager) Violations(ctx context.Context, planID uuid.UUID) (violations.Result, error) {
	return m.store.GetAuditResult(ctx, planID)
}
