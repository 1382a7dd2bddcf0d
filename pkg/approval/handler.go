package approval

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/solvereign/solvereign/internal/apperr"
	"github.com/solvereign/solvereign/internal/auth"
	"github.com/solvereign/solvereign/internal/httpserver"
	"github.com/solvereign/solvereign/pkg/identity"
)

// Handler provides HTTP handlers for the approval request lifecycle:
// request, decide, emergency_override.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a Handler over the given Service.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes returns a chi.Router with the approval routes mounted at
// "/approvals".
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleRequest)
	r.Post("/{id}/decide", h.handleDecide)
	r.Post("/{id}/override", h.handleOverride)
	return r
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	if ae, ok := apperr.As(err); ok {
		httpserver.RespondAppError(w, r, h.logger, ae)
		return
	}
	httpserver.RespondAppError(w, r, h.logger, apperr.Internal(err))
}

type requestRequest struct {
	Action     string  `json:"action" validate:"required"`
	EntityType string  `json:"entity_type" validate:"required"`
	EntityID   string  `json:"entity_id" validate:"required"`
	Context    Context `json:"context"`
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	sc := auth.FromContext(r.Context())
	if sc == nil || sc.TenantID == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}
	if !sc.HasPermission(identity.PermPlanPublish) {
		httpserver.RespondAppError(w, r, h.logger, apperr.PermissionDenied(identity.PermPlanPublish))
		return
	}

	var req requestRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Request(r.Context(), *sc.TenantID, req.Action, req.EntityType, req.EntityID, req.Context)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, result)
}

type decideRequest struct {
	Decision Decision `json:"decision" validate:"required"`
	Reason   string   `json:"reason" validate:"required"`
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request id")
		return
	}

	sc := auth.FromContext(r.Context())
	if sc == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}
	if !sc.HasPermission(identity.PermPlanApprove) {
		httpserver.RespondAppError(w, r, h.logger, apperr.PermissionDenied(identity.PermPlanApprove))
		return
	}

	var req decideRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Decide(r.Context(), id, sc.UserID, req.Decision, req.Reason)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, result)
}

type overrideRequest struct {
	Justification string `json:"justification" validate:"required"`
}

func (h *Handler) handleOverride(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request id")
		return
	}

	sc := auth.FromContext(r.Context())
	if sc == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}
	if !sc.HasPermission(identity.PermPlanApprove) {
		httpserver.RespondAppError(w, r, h.logger, apperr.PermissionDenied(identity.PermPlanApprove))
		return
	}

	var req overrideRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	result, reviewBy, err := h.service.EmergencyOverride(r.Context(), id, sc.UserID, req.Justification)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"request": result, "post_hoc_review_by": reviewBy})
}
