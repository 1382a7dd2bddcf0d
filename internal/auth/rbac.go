package auth

import (
	"log/slog"
	"net/http"

	"github.com/solvereign/solvereign/internal/apperr"
	"github.com/solvereign/solvereign/internal/httpserver"
)

// RequireAuth rejects requests that have no validated SessionContext.
func RequireAuth(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if FromContext(r.Context()) == nil {
				httpserver.RespondAppError(w, r, logger, apperr.AuthRequired())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermissionMiddleware returns middleware enforcing require_permission
// (spec 4.2): platform_admin and is_platform_scope bypass the check;
// otherwise membership is tested against the session's permission set.
// Denial is FORBIDDEN with an error code and trace id.
func RequirePermissionMiddleware(logger *slog.Logger, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc := FromContext(r.Context())
			if err := RequirePermission(sc, key); err != nil {
				appErr, _ := apperr.As(err)
				httpserver.RespondAppError(w, r, logger, appErr)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
