package idempotency

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/internal/apperr"
	"github.com/solvereign/solvereign/internal/auth"
	"github.com/solvereign/solvereign/internal/httpserver"
)

// HeaderName is the request header carrying the client-supplied idempotency
// token (spec 4.4/4.12: "all mutating endpoints accept an Idempotency-Key
// header").
const HeaderName = "Idempotency-Key"

// Middleware implements request-pipeline steps 4 and 6 (spec 4.12): on
// entry, a short-circuiting replay lookup; on exit, recording the
// fingerprint and response for future replays. actionKey scopes the stored
// record to this handler (the route, not the raw path, to keep the key
// stable across path parameter values the handler itself re-derives from
// context).
func Middleware(store *Store, logger *slog.Logger, ttl time.Duration, actionKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderName)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			sc := auth.FromContext(r.Context())
			if sc == nil {
				next.ServeHTTP(w, r)
				return
			}
			tenantID := uuid.Nil
			if sc.TenantID != nil {
				tenantID = *sc.TenantID
			}
			userID := sc.UserID

			body, err := io.ReadAll(r.Body)
			if err != nil {
				httpserver.RespondAppError(w, r, logger, apperr.New(apperr.KindValidation, "BAD_REQUEST", "could not read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			reqFingerprint := Fingerprint(body)

			scopedKey := actionKey + ":" + key
			existing, err := store.Get(r.Context(), tenantID, scopedKey, &userID)
			if err == nil {
				if existing.RequestFingerprint != reqFingerprint {
					httpserver.RespondAppError(w, r, logger, apperr.IdempotencyConflict())
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(existing.ResponseStatus)
				_, _ = w.Write(existing.ResponseBody)
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK, body: &bytes.Buffer{}}
			next.ServeHTTP(rec, r)

			if rec.status < 500 {
				if err := store.Save(r.Context(), tenantID, scopedKey, &userID, reqFingerprint, rec.status, rec.body.Bytes(), ttl); err != nil {
					logger.Error("idempotency: saving record", "error", err)
				}
			}
		})
	}
}

// recorder buffers the response body alongside the status code so it can be
// persisted for future replays without double-writing to the client.
type recorder struct {
	http.ResponseWriter
	status int
	body   *bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
