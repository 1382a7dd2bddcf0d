package auditlog

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

// Handler serves GET /audit: a paginated, tenant-scoped view of the
// append-only audit log. Platform-scope sessions see the platform log
// (tenant_id IS NULL) instead of a tenant's.
type Handler struct {
	store  *Store
	logger *slog.Logger
}

// NewHandler creates a Handler over the audit Store.
func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Routes returns a chi.Router with the audit route mounted at "/audit".
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	sc := auth.FromContext(r.Context())
	if sc == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}
	if !sc.HasPermission(identity.PermAuditView) {
		httpserver.RespondAppError(w, r, h.logger, apperr.PermissionDenied(identity.PermAuditView))
		return
	}

	params, err := httpserver.ParseCursorParams(r)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var after *uuid.UUID
	if params.After != nil {
		after = &params.After.ID
	}

	var tenantID *uuid.UUID
	if !sc.IsPlatformScope {
		tenantID = sc.TenantID
	}

	events, err := h.store.ListPage(r.Context(), tenantID, after, params.Limit+1)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.Internal(err))
		return
	}

	page := httpserver.NewCursorPage(events, params.Limit, func(e Event) httpserver.Cursor {
		return httpserver.Cursor{CreatedAt: e.TS, ID: e.ID}
	})
	httpserver.Respond(w, http.StatusOK, page)
}
