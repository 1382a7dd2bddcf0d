package evidence

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/solvereign/solvereign/internal/apperr"
	"github.com/solvereign/solvereign/internal/auth"
	"github.com/solvereign/solvereign/internal/httpserver"
	"github.com/solvereign/solvereign/pkg/identity"
)

// View is the narrow projection of a plan_snapshots row this handler
// needs. It is defined here, not borrowed from pkg/plan, so that plan
// (which imports this package to build packs) and evidence never import
// each other.
type View struct {
	ID              uuid.UUID
	EvidenceHash    string
	EvidencePayload json.RawMessage
}

// SnapshotReader reads the evidence view of a snapshot by id. pkg/plan's
// Store satisfies this via its own GetEvidenceView method.
type SnapshotReader interface {
	GetEvidenceView(ctx context.Context, tenantID, id uuid.UUID) (View, error)
}

// Handler serves GET /evidence/{snapshot_id}: the evidence pack bytes plus
// their content hash, read straight off the immutable snapshot row.
type Handler struct {
	snapshots SnapshotReader
	logger    *slog.Logger
}

// NewHandler creates a Handler over the given SnapshotReader.
func NewHandler(snapshots SnapshotReader, logger *slog.Logger) *Handler {
	return &Handler{snapshots: snapshots, logger: logger}
}

// Routes returns a chi.Router with the evidence route mounted at
// "/evidence".
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{snapshot_id}", h.handleGet)
	return r
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sc := auth.FromContext(r.Context())
	if sc == nil || sc.TenantID == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}
	if !sc.HasPermission(identity.PermEvidenceView) {
		httpserver.RespondAppError(w, r, h.logger, apperr.PermissionDenied(identity.PermEvidenceView))
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "snapshot_id"))
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid snapshot id")
		return
	}

	snap, err := h.snapshots.GetEvidenceView(r.Context(), *sc.TenantID, id)
	if err != nil {
		if ae, ok := apperr.As(err); ok {
			httpserver.RespondAppError(w, r, h.logger, ae)
			return
		}
		httpserver.RespondAppError(w, r, h.logger, apperr.NotFound("snapshot"))
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"snapshot_id":   snap.ID,
		"evidence_hash": snap.EvidenceHash,
		"pack":          snap.EvidencePayload,
	})
}
