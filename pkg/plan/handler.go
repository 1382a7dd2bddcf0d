package plan

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/solvereign/solvereign/internal/apperr"
	"github.com/solvereign/solvereign/internal/auth"
	"github.com/solvereign/solvereign/internal/httpserver"
	"github.com/solvereign/solvereign/pkg/identity"
	"github.com/solvereign/solvereign/pkg/ingest"
)

// Handler provides HTTP handlers for the plan lifecycle endpoints: list,
// create, detail, solve, matrix, violations, and pins. Publish and lock
// live on the same Handler since both act on a Manager but are mounted at
// their own spec-defined paths.
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler creates a Handler over the given Manager.
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

// Routes returns a chi.Router with the plan lifecycle routes mounted at
// "/plans". Publish is mounted separately by the caller at
// "/snapshots/publish" via PublishHandler.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/solve", h.handleSolve)
	r.Post("/{id}/lock", h.handleLock)
	r.Get("/{id}/matrix", h.handleMatrix)
	r.Get("/{id}/violations", h.handleViolations)
	r.Post("/{id}/pins", h.handleAddPin)
	r.Delete("/{id}/pins/{pin_id}", h.handleRemovePin)
	return r
}

// PublishHandler returns the standalone handler for POST /snapshots/publish.
func (h *Handler) PublishHandler() http.HandlerFunc {
	return h.handlePublish
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	if ae, ok := apperr.As(err); ok {
		httpserver.RespondAppError(w, r, h.logger, ae)
		return
	}
	httpserver.RespondAppError(w, r, h.logger, apperr.Internal(err))
}

func planID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

type createPlanRequest struct {
	SiteID   uuid.UUID             `json:"site_id" validate:"required"`
	Forecast ingest.ForecastVersion `json:"forecast" validate:"required"`
	Seed     *int64                `json:"seed,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	sc := auth.FromContext(r.Context())
	if sc == nil || sc.TenantID == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}
	if !sc.HasPermission("plan.create") {
		httpserver.RespondAppError(w, r, h.logger, apperr.PermissionDenied("plan.create"))
		return
	}

	var req createPlanRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	v, err := h.manager.CreateDraft(r.Context(), *sc.TenantID, req.SiteID, req.Forecast, req.Seed)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, v)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	sc := auth.FromContext(r.Context())
	if sc == nil || sc.TenantID == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}

	var siteID uuid.UUID
	if v := r.URL.Query().Get("site_id"); v != "" {
		parsed, err := uuid.Parse(v)
		if err != nil {
			httpserver.RespondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid site_id")
			return
		}
		siteID = parsed
	}

	plans, err := h.manager.ListPlans(r.Context(), *sc.TenantID, siteID, State(r.URL.Query().Get("state")))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"plans": plans})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := planID(r)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid plan id")
		return
	}

	sc := auth.FromContext(r.Context())
	if sc == nil || sc.TenantID == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}

	// GetPlan is tenant-scoped: a cross-tenant plan id returns the same
	// NOT_FOUND as a nonexistent one, never a distinguishable status.
	v, err := h.manager.GetPlan(r.Context(), *sc.TenantID, id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, v)
}

type solveRequest struct {
	PolicyHash string `json:"policy_hash" validate:"required"`
}

func (h *Handler) handleSolve(w http.ResponseWriter, r *http.Request) {
	id, err := planID(r)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid plan id")
		return
	}

	sc := auth.FromContext(r.Context())
	if sc == nil || sc.TenantID == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}

	var req solveRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	// StartSolve leaves the plan FAILED when the solver returns an error (or
	// the request is cancelled) and returns that error, reported here.
	v, audit, err := h.manager.StartSolve(r.Context(), *sc.TenantID, id, req.PolicyHash)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"plan": v, "audit": audit})
}

type publishRequest struct {
	PlanID            uuid.UUID  `json:"plan_id" validate:"required"`
	Reason            string     `json:"reason" validate:"required"`
	ForceReason       string     `json:"force_reason,omitempty"`
	ApprovalRequestID *uuid.UUID `json:"approval_request_id,omitempty"`
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	sc := auth.FromContext(r.Context())
	if sc == nil || sc.TenantID == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}

	var req publishRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	approver := Approver{
		UserID:          sc.UserID,
		TenantID:        *sc.TenantID,
		Email:           sc.Email,
		HasPublish:      sc.HasPermission("plan.publish"),
		HasLock:         sc.HasPermission("plan.lock"),
		IsPlatformScope: sc.IsPlatformScope,
	}

	snap, err := h.manager.Publish(r.Context(), req.PlanID, approver, req.Reason, req.ForceReason, req.ApprovalRequestID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, snap)
}

type lockRequest struct {
	Reason  string `json:"reason" validate:"required"`
	Confirm bool   `json:"confirm" validate:"required"`
}

func (h *Handler) handleLock(w http.ResponseWriter, r *http.Request) {
	id, err := planID(r)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid plan id")
		return
	}

	sc := auth.FromContext(r.Context())
	if sc == nil || sc.TenantID == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}

	var req lockRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	approver := Approver{
		UserID:          sc.UserID,
		TenantID:        *sc.TenantID,
		Email:           sc.Email,
		HasPublish:      sc.HasPermission("plan.publish"),
		HasLock:         sc.HasPermission("plan.lock"),
		IsPlatformScope: sc.IsPlatformScope,
	}

	if err := h.manager.Lock(r.Context(), id, approver, req.Reason, req.Confirm); err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "locked"})
}

func (h *Handler) handleMatrix(w http.ResponseWriter, r *http.Request) {
	id, err := planID(r)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid plan id")
		return
	}

	matrix, err := h.manager.Matrix(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(matrix)
}

func (h *Handler) handleViolations(w http.ResponseWriter, r *http.Request) {
	id, err := planID(r)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid plan id")
		return
	}

	result, err := h.manager.Violations(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, result)
}

type addPinRequest struct {
	PinType string          `json:"pin_type" validate:"required"`
	PinKey  string          `json:"pin_key" validate:"required"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (h *Handler) handleAddPin(w http.ResponseWriter, r *http.Request) {
	id, err := planID(r)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid plan id")
		return
	}

	sc := auth.FromContext(r.Context())
	if sc == nil || sc.TenantID == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}
	if !sc.HasPermission(identity.PermPlanPin) {
		httpserver.RespondAppError(w, r, h.logger, apperr.PermissionDenied(identity.PermPlanPin))
		return
	}

	var req addPinRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	p, err := h.manager.AddPin(r.Context(), *sc.TenantID, id, sc.UserID, req.PinType, req.PinKey, req.Payload)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, p)
}

func (h *Handler) handleRemovePin(w http.ResponseWriter, r *http.Request) {
	id, err := planID(r)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid plan id")
		return
	}
	pinID, err := uuid.Parse(chi.URLParam(r, "pin_id"))
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid pin id")
		return
	}

	sc := auth.FromContext(r.Context())
	if sc == nil || sc.TenantID == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}
	if !sc.HasPermission(identity.PermPlanPin) {
		httpserver.RespondAppError(w, r, h.logger, apperr.PermissionDenied(identity.PermPlanPin))
		return
	}

	if err := h.manager.RemovePin(r.Context(), *sc.TenantID, id, pinID, sc.UserID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
