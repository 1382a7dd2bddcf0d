// Package approval implements C8: the risk-tiered approval policy engine
// gating sensitive plan operations.
package approval

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/internal/apperr"
	"github.com/solvereign/solvereign/pkg/auditlog"
)

// RiskLevel classifies an approval request's sensitivity.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// requiredApprovals maps each risk level to the approver count needed to
// complete a request, per spec 4.8.
var requiredApprovals = map[RiskLevel]int{
	RiskLow:      1,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 2,
}

// Decision is a single approver's vote.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// Context is the scoring input used to compute a request's risk level.
type Context struct {
	AffectedDriverCount   int
	NearRestViolation      bool
	InFreezeWindow        bool
	HoursToDeadline       float64
}

// Score computes the risk level from a Context. Thresholds are
// deliberately conservative: any freeze-window action is at least HIGH,
// and a freeze-window action touching more than 10 drivers is CRITICAL.
// Outside a freeze window the result is at most HIGH: rest-time proximity
// with more than 5 drivers, more than 20 drivers, or fewer than 2 hours to
// the deadline each give HIGH.
func Score(ctx Context) RiskLevel {
	switch {
	case ctx.InFreezeWindow && ctx.AffectedDriverCount > 10:
		return RiskCritical
	case ctx.InFreezeWindow, ctx.NearRestViolation && ctx.AffectedDriverCount > 5:
		return RiskHigh
	case ctx.AffectedDriverCount > 20 || ctx.HoursToDeadline < 2:
		return RiskHigh
	case ctx.AffectedDriverCount > 5:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Request is an approval_requests row.
type Request struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	Action            string
	EntityType        string
	EntityID          string
	RiskLevel         RiskLevel
	RequiredApprovals int
	Status            string // PENDING | APPROVED | REJECTED
	CreatedAt         time.Time
}

// RequestStatus values.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// Service implements the C8 public contract.
type Service struct {
	store                 *Store
	audit                 *auditlog.Logger
	emergencyReviewWindow time.Duration
}

// NewService builds a Service over the given store and audit logger.
// emergencyReviewWindow is how long an emergency override has before it
// must be reviewed post-hoc (EMERGENCY_REVIEW_HOURS).
func NewService(store *Store, audit *auditlog.Logger, emergencyReviewWindow time.Duration) *Service {
	return &Service{store: store, audit: audit, emergencyReviewWindow: emergencyReviewWindow}
}

// Get reads an approval request by id. Callers outside this package (the
// publish flow, chiefly) use it to verify a request reached APPROVED
// before proceeding with the gated action.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Request, error) {
	return s.store.GetRequest(ctx, id)
}

// Request implements request(action, entity, context) -> request_id.
func (s *Service) Request(ctx context.Context, tenantID uuid.UUID, action, entityType, entityID string, riskCtx Context) (Request, error) {
	level := Score(riskCtx)
	req := Request{
		ID:                uuid.New(),
		TenantID:          tenantID,
		Action:            action,
		EntityType:        entityType,
		EntityID:          entityID,
		RiskLevel:         level,
		RequiredApprovals: requiredApprovals[level],
		Status:            StatusPending,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return Request{}, err
	}

	_, err := s.audit.Append(ctx, &tenantID, nil, "approval.requested", entityType, entityID, auditlog.SeverityInfo, map[string]any{
		"request_id": req.ID, "action": action, "risk_level": level, "required_approvals": req.RequiredApprovals,
	})
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

// ErrAlreadyTerminal is returned when deciding on a request that already
// reached APPROVED or REJECTED.
var ErrAlreadyTerminal = apperr.New(apperr.KindState, "REQUEST_ALREADY_DECIDED", "approval request already reached a terminal state")

// Decide implements decide(request_id, approver, APPROVE|REJECT, reason).
// Decisions are idempotent per approver: a repeat vote from the same
// approver with the same decision is a no-op; a changed vote overwrites
// the approver's prior one as long as the request is still pending.
// A REJECT decision is terminal; the request completes once distinct
// APPROVE votes reach RequiredApprovals.
func (s *Service) Decide(ctx context.Context, requestID uuid.UUID, approver uuid.UUID, decision Decision, reason string) (Request, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if req.Status != StatusPending {
		return Request{}, ErrAlreadyTerminal
	}

	if err := s.store.RecordDecision(ctx, requestID, approver, string(decision), reason); err != nil {
		return Request{}, err
	}

	if decision == DecisionReject {
		req.Status = StatusRejected
		if err := s.store.SetStatus(ctx, requestID, StatusRejected); err != nil {
			return Request{}, err
		}
	} else {
		approveCount, err := s.store.CountApprovals(ctx, requestID)
		if err != nil {
			return Request{}, err
		}
		if approveCount >= req.RequiredApprovals {
			req.Status = StatusApproved
			if err := s.store.SetStatus(ctx, requestID, StatusApproved); err != nil {
				return Request{}, err
			}
		}
	}

	_, err = s.audit.Append(ctx, &req.TenantID, &approver, "approval.decided", req.EntityType, req.EntityID, auditlog.SeverityInfo, map[string]any{
		"request_id": requestID, "decision": decision, "reason": reason, "resulting_status": req.Status,
	})
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

// EmergencyOverride implements emergency_override(request_id, approver,
// justification): bypasses the approval threshold entirely, writes a
// HIGH-severity audit event, and returns the review deadline the caller
// must schedule a mandatory post-hoc review against.
func (s *Service) EmergencyOverride(ctx context.Context, requestID uuid.UUID, approver uuid.UUID, justification string) (Request, time.Time, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return Request{}, time.Time{}, err
	}

	if err := s.store.SetStatus(ctx, requestID, StatusApproved); err != nil {
		return Request{}, time.Time{}, err
	}
	req.Status = StatusApproved

	reviewBy := time.Now().UTC().Add(s.emergencyReviewWindow)
	_, err = s.audit.Append(ctx, &req.TenantID, &approver, "approval.emergency_override", req.EntityType, req.EntityID, auditlog.SeverityHigh, map[string]any{
		"request_id": requestID, "justification": justification, "post_hoc_review_by": reviewBy,
	})
	if err != nil {
		return Request{}, time.Time{}, err
	}
	return req, reviewBy, nil
}
