package repair

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/solvereign/solvereign/internal/apperr"
	"github.com/solvereign/solvereign/internal/auth"
	"github.com/solvereign/solvereign/internal/httpserver"
)

// Handler provides HTTP handlers for the repair session lifecycle:
// create, get, apply, undo, abort.
type Handler struct {
	engine *Engine
	logger *slog.Logger
}

// NewHandler creates a Handler over the given Engine.
func NewHandler(engine *Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Routes returns a chi.Router with repair session routes mounted at
// "/repairs/sessions".
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/{sid}", h.handleGet)
	r.Post("/{sid}/apply", h.handleApply)
	r.Post("/{sid}/undo", h.handleUndo)
	r.Post("/{sid}/abort", h.handleAbort)
	return r
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	if ae, ok := apperr.As(err); ok {
		httpserver.RespondAppError(w, r, h.logger, ae)
		return
	}
	httpserver.RespondAppError(w, r, h.logger, apperr.Internal(err))
}

func sessionID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "sid"))
}

type createSessionRequest struct {
	PlanID  uuid.UUID      `json:"plan_id" validate:"required"`
	Changes []Reassignment `json:"changes" validate:"required,min=1"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	sc := auth.FromContext(r.Context())
	if sc == nil || sc.TenantID == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}
	if !sc.HasPermission("repair.create") {
		httpserver.RespondAppError(w, r, h.logger, apperr.PermissionDenied("repair.create"))
		return
	}

	var req createSessionRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	session, err := h.engine.Create(r.Context(), *sc.TenantID, req.PlanID, sc.UserID, req.Changes, idemKey)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, session)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}

	session, err := h.engine.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, session)
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}

	sc := auth.FromContext(r.Context())
	if sc == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}
	if !sc.HasPermission("repair.apply") {
		httpserver.RespondAppError(w, r, h.logger, apperr.PermissionDenied("repair.apply"))
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	session, newPlanID, err := h.engine.Apply(r.Context(), id, sc.UserID, idemKey)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"session": session, "new_plan_id": newPlanID})
}

func (h *Handler) handleUndo(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}

	sc := auth.FromContext(r.Context())
	if sc == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}
	if !sc.HasPermission("repair.undo") {
		httpserver.RespondAppError(w, r, h.logger, apperr.PermissionDenied("repair.undo"))
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	session, err := h.engine.Undo(r.Context(), id, sc.UserID, idemKey)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, session)
}

func (h *Handler) handleAbort(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}

	sc := auth.FromContext(r.Context())
	if sc == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}
	if !sc.HasPermission("repair.abort") {
		httpserver.RespondAppError(w, r, h.logger, apperr.PermissionDenied("repair.abort"))
		return
	}

	if err := h.engine.Abort(r.Context(), id); err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "aborted"})
}
