package auth

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/solvereign/solvereign/internal/apperr"
	"github.com/solvereign/solvereign/internal/httpserver"
	"github.com/solvereign/solvereign/pkg/identity"
)

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserInfo is the public user information returned in auth responses.
type UserInfo struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	Roles      []string `json:"roles"`
	IsPlatform bool     `json:"is_platform"`
}

// LoginResponse is the JSON response for a successful login.
type LoginResponse struct {
	User UserInfo `json:"user"`
}

// AuthConfigResponse tells the frontend which auth methods are available.
type AuthConfigResponse struct {
	OIDCEnabled  bool `json:"oidc_enabled"`
	LocalEnabled bool `json:"local_enabled"`
}

// LoginHandler implements login, logout, auth discovery, and the session
// self-description endpoint (spec 4.2 login/validate, HTTP surface
// GET /auth/me).
type LoginHandler struct {
	mgr          *Manager
	users        *identity.Store
	limiter      *RateLimiter
	logger       *slog.Logger
	oidcEnabled  bool
	secureCookie bool
}

// NewLoginHandler creates a new login handler. secureCookie should be true
// in production, where the cookie carries Secure and the __Host- prefix.
func NewLoginHandler(mgr *Manager, users *identity.Store, limiter *RateLimiter, logger *slog.Logger, oidcEnabled, secureCookie bool) *LoginHandler {
	return &LoginHandler{
		mgr:          mgr,
		users:        users,
		limiter:      limiter,
		logger:       logger,
		oidcEnabled:  oidcEnabled,
		secureCookie: secureCookie,
	}
}

// HandleLogin authenticates a user with email/password and issues a
// cookie-bound session. Constant-time comparison is bcrypt's own.
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	ip := clientIP(r)
	if h.limiter != nil {
		result, err := h.limiter.Check(r.Context(), ip)
		if err != nil {
			h.logger.Error("login: rate limit check failed", "error", err)
		} else if !result.Allowed {
			httpserver.RespondAppError(w, r, h.logger, apperr.New(apperr.KindRate, "TOO_MANY_ATTEMPTS", "too many login attempts").WithRetryAfter(int(time.Until(result.RetryAt).Seconds())))
			return
		}
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil || user.PasswordHash == "" {
		h.recordFailure(r, ip)
		httpserver.RespondAppError(w, r, h.logger, invalidCredentials())
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		h.recordFailure(r, ip)
		httpserver.RespondAppError(w, r, h.logger, invalidCredentials())
		return
	}

	if h.limiter != nil {
		_ = h.limiter.Reset(r.Context(), ip)
	}

	sess, raw, err := h.mgr.Issue(r.Context(), user)
	if err != nil {
		h.logger.Error("login: issuing session", "error", err)
		httpserver.RespondAppError(w, r, h.logger, apperr.Internal(err))
		return
	}

	h.setCookie(w, raw, sess.ExpiresAt)

	httpserver.Respond(w, http.StatusOK, LoginResponse{
		User: UserInfo{
			ID:         user.ID.String(),
			Email:      user.Email,
			Roles:      user.Roles,
			IsPlatform: user.IsPlatform,
		},
	})
}

func (h *LoginHandler) recordFailure(r *http.Request, ip string) {
	if h.limiter == nil {
		return
	}
	if err := h.limiter.Record(r.Context(), ip); err != nil {
		h.logger.Warn("login: recording failed attempt", "error", err)
	}
}

// HandleAuthConfig returns the available authentication methods.
func (h *LoginHandler) HandleAuthConfig(w http.ResponseWriter, _ *http.Request) {
	httpserver.Respond(w, http.StatusOK, AuthConfigResponse{
		OIDCEnabled:  h.oidcEnabled,
		LocalEnabled: true,
	})
}

// HandleMe returns the current session's SessionContext (GET /auth/me).
func (h *LoginHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	sc := FromContext(r.Context())
	if sc == nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.AuthRequired())
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"user_id":           sc.UserID,
		"email":             sc.Email,
		"roles":             sc.Roles,
		"tenant_id":         sc.TenantID,
		"site_id":           sc.SiteID,
		"is_platform_scope": sc.IsPlatformScope,
	})
}

// HandleLogout revokes the current session and clears the cookie.
func (h *LoginHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sc := FromContext(r.Context())
	if sc != nil {
		if err := h.mgr.Sessions.Revoke(r.Context(), sc.SessionID); err != nil {
			h.logger.Warn("logout: revoking session", "error", err)
		}
	}
	h.clearCookie(w)
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *LoginHandler) setCookie(w http.ResponseWriter, raw string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.mgr.CookieName,
		Value:    raw,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
		Expires:  expiresAt,
	})
}

func (h *LoginHandler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.mgr.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

func invalidCredentials() *apperr.Error {
	return apperr.New(apperr.KindAuth, "AUTH_FAIL", "invalid email or password")
}

// clientIP extracts the caller's IP for rate limiting, preferring
// X-Forwarded-For's first hop when present behind a trusted proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	return r.RemoteAddr
}
