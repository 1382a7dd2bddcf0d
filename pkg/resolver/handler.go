package resolver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/solvereign/solvereign/internal/apperr"
	"github.com/solvereign/solvereign/internal/auth"
	"github.com/solvereign/solvereign/internal/httpserver"
	"github.com/solvereign/solvereign/pkg/identity"
)

// Handler exposes the C3 resolver over HTTP for import pipelines that run
// outside this process (e.g. a TMS sync job) and need external-id lookups
// without reimplementing the resolve/resolve_bulk semantics themselves.
type Handler struct {
	resolver *Resolver
	logger   *slog.Logger
}

// NewHandler creates a Handler over the given Resolver.
func NewHandler(resolver *Resolver, logger *slog.Logger) *Handler {
	return &Handler{resolver: resolver, logger: logger}
}

// Routes returns a chi.Router with the resolver routes mounted at
// "/resolve".
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleResolve)
	r.Post("/bulk", h.handleResolveBulk)
	return r
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	if ae, ok := apperr.As(err); ok {
		httpserver.RespondAppError(w, r, h.logger, ae)
		return
	}
	httpserver.RespondAppError(w, r, h.logger, apperr.Internal(err))
}

type resolveRequest struct {
	ExternalSystem string          `json:"external_system" validate:"required"`
	EntityType     string          `json:"entity_type" validate:"required"`
	ExternalID     string          `json:"external_id" validate:"required"`
	CreatePayload  json.RawMessage `json:"create_payload,omitempty"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	sc := auth.FromContext(r.Context())
	if sc == nil || sc.TenantID == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}
	if !sc.HasPermission(identity.PermPlanCreate) {
		httpserver.RespondAppError(w, r, h.logger, apperr.PermissionDenied(identity.PermPlanCreate))
		return
	}

	var req resolveRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	var payload []byte
	if len(req.CreatePayload) > 0 {
		payload = req.CreatePayload
	}

	result, err := h.resolver.Resolve(r.Context(), *sc.TenantID, req.ExternalSystem, req.EntityType, req.ExternalID, payload)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, result)
}

type resolveBulkRequest struct {
	ExternalSystem string   `json:"external_system" validate:"required"`
	EntityType     string   `json:"entity_type" validate:"required"`
	ExternalIDs    []string `json:"external_ids" validate:"required,min=1"`
}

func (h *Handler) handleResolveBulk(w http.ResponseWriter, r *http.Request) {
	sc := auth.FromContext(r.Context())
	if sc == nil || sc.TenantID == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}
	if !sc.HasPermission(identity.PermPlanCreate) {
		httpserver.RespondAppError(w, r, h.logger, apperr.PermissionDenied(identity.PermPlanCreate))
		return
	}

	var req resolveBulkRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	results, err := h.resolver.ResolveBulk(r.Context(), *sc.TenantID, req.ExternalSystem, req.EntityType, req.ExternalIDs)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"results": results})
}
