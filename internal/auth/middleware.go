package auth

import (
	"log/slog"
	"net/http"

	"github.com/solvereign/solvereign/internal/apperr"
	"github.com/solvereign/solvereign/internal/httpserver"
)

// Middleware authenticates the caller via the session cookie, stores the
// resulting SessionContext in the request context, and rejects the request
// otherwise: AUTH_REQUIRED when no cookie is sent, AUTH_FAIL when the
// cookie does not map to a live session. It replaces the teacher's multi-method Bearer
// chain: SOLVEREIGN sessions are cookie-bound only (spec 4.2).
func Middleware(mgr *Manager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(mgr.CookieName)
			if err != nil {
				httpserver.RespondAppError(w, r, logger, apperr.AuthRequired())
				return
			}

			sc, err := mgr.Validate(r.Context(), cookie.Value)
			if err != nil {
				appErr, ok := apperr.As(err)
				if !ok {
					appErr = apperr.Internal(err)
				}
				httpserver.RespondAppError(w, r, logger, appErr)
				return
			}

			ctx := NewContext(r.Context(), sc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalMiddleware behaves like Middleware but lets unauthenticated
// requests through with no SessionContext set, for endpoints such as
// /auth/me and /auth/logout that must answer with or without a session.
func OptionalMiddleware(mgr *Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(mgr.CookieName)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			sc, err := mgr.Validate(r.Context(), cookie.Value)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := NewContext(r.Context(), sc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
