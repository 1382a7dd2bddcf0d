package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/solvereign/solvereign/internal/apperr"
	"github.com/solvereign/solvereign/internal/httpserver"
	"github.com/solvereign/solvereign/pkg/identity"
	"github.com/solvereign/solvereign/pkg/tenant"
)

// OIDCFlowHandler handles the OAuth2 Authorization Code flow for SSO login.
// A successful callback issues the same DB-backed, hash-indexed session the
// local login path issues; OIDC is an authentication method feeding the one
// C2 session store, not a parallel session mechanism.
type OIDCFlowHandler struct {
	oauth2Cfg    *oauth2.Config
	oidcAuth     *OIDCAuthenticator
	mgr          *Manager
	tenants      *tenant.Store
	users        *identity.Store
	redis        *redis.Client
	logger       *slog.Logger
	secureCookie bool
	redirectTo   string
}

// NewOIDCFlowHandler creates a handler for the full OIDC Authorization Code
// flow. redirectTo is the frontend URL the browser lands on after a
// successful callback (the session is already cookie-bound by then, so no
// token is passed in the URL).
func NewOIDCFlowHandler(
	oauth2Cfg *oauth2.Config,
	oidcAuth *OIDCAuthenticator,
	mgr *Manager,
	tenants *tenant.Store,
	users *identity.Store,
	rdb *redis.Client,
	logger *slog.Logger,
	secureCookie bool,
	redirectTo string,
) *OIDCFlowHandler {
	return &OIDCFlowHandler{
		oauth2Cfg:    oauth2Cfg,
		oidcAuth:     oidcAuth,
		mgr:          mgr,
		tenants:      tenants,
		users:        users,
		redis:        rdb,
		logger:       logger,
		secureCookie: secureCookie,
		redirectTo:   redirectTo,
	}
}

// HandleLogin redirects the user to the OIDC identity provider.
func (h *OIDCFlowHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.Internal(err))
		return
	}

	if err := h.redis.Set(r.Context(), "oidc_state:"+state, "1", 10*time.Minute).Err(); err != nil {
		h.logger.Error("oidc: storing state in redis", "error", err)
		httpserver.RespondAppError(w, r, h.logger, apperr.Internal(err))
		return
	}

	url := h.oauth2Cfg.AuthCodeURL(state)
	http.Redirect(w, r, url, http.StatusFound)
}

// HandleCallback handles the IdP callback after authentication.
func (h *OIDCFlowHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	state := r.URL.Query().Get("state")
	if state == "" {
		httpserver.RespondAppError(w, r, h.logger, apperr.New(apperr.KindValidation, "BAD_REQUEST", "missing state parameter"))
		return
	}

	result, err := h.redis.GetDel(ctx, "oidc_state:"+state).Result()
	if err != nil || result == "" {
		httpserver.RespondAppError(w, r, h.logger, apperr.New(apperr.KindValidation, "BAD_REQUEST", "invalid or expired state"))
		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		desc := r.URL.Query().Get("error_description")
		h.logger.Warn("oidc: IdP returned error", "error", errParam, "description", desc)
		httpserver.RespondAppError(w, r, h.logger, apperr.New(apperr.KindAuth, "AUTH_FAIL", "authentication failed: "+errParam))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		httpserver.RespondAppError(w, r, h.logger, apperr.New(apperr.KindValidation, "BAD_REQUEST", "missing code parameter"))
		return
	}

	oauth2Token, err := h.oauth2Cfg.Exchange(ctx, code)
	if err != nil {
		h.logger.Error("oidc: code exchange failed", "error", err)
		httpserver.RespondAppError(w, r, h.logger, apperr.New(apperr.KindAuth, "AUTH_FAIL", "code exchange failed"))
		return
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		httpserver.RespondAppError(w, r, h.logger, apperr.New(apperr.KindAuth, "AUTH_FAIL", "no id_token in response"))
		return
	}

	claims, err := h.oidcAuth.Authenticate(ctx, "Bearer "+rawIDToken)
	if err != nil {
		h.logger.Error("oidc: token verification failed", "error", err)
		httpserver.RespondAppError(w, r, h.logger, apperr.New(apperr.KindAuth, "AUTH_FAIL", "invalid id_token"))
		return
	}

	user, err := h.findOrCreateUser(ctx, claims)
	if err != nil {
		h.logger.Error("oidc: user resolution failed", "error", err)
		httpserver.RespondAppError(w, r, h.logger, apperr.Internal(err))
		return
	}

	sess, raw, err := h.mgr.Issue(ctx, user)
	if err != nil {
		h.logger.Error("oidc: issuing session", "error", err)
		httpserver.RespondAppError(w, r, h.logger, apperr.Internal(err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.mgr.CookieName,
		Value:    raw,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
		Expires:  sess.ExpiresAt,
	})

	http.Redirect(w, r, h.redirectTo, http.StatusFound)
}

// findOrCreateUser resolves an OIDC principal to a local user row,
// provisioning one on first login. Platform-scope SSO (empty TenantCode) is
// not auto-provisioned: it resolves only to an existing platform user, since
// platform_admin accounts are always created via migration or an existing
// platform_admin, never by SSO self-service.
func (h *OIDCFlowHandler) findOrCreateUser(ctx context.Context, claims *OIDCClaims) (identity.User, error) {
	if claims.TenantCode == "" {
		user, err := h.users.GetByEmail(ctx, claims.Email)
		if err != nil || !user.IsPlatform {
			return identity.User{}, fmt.Errorf("platform-scope SSO self-provisioning is not supported")
		}
		return user, nil
	}

	t, err := h.tenants.GetTenantByCode(ctx, claims.TenantCode)
	if err != nil {
		return identity.User{}, fmt.Errorf("looking up tenant %s: %w", claims.TenantCode, err)
	}

	user, err := h.users.GetByEmail(ctx, claims.Email)
	if err == nil {
		return user, nil
	}

	user, err = h.users.Create(ctx, claims.Email, "", &t.ID, false, []string{claims.Role})
	if err != nil {
		return identity.User{}, fmt.Errorf("provisioning SSO user: %w", err)
	}

	h.logger.Info("oidc: provisioned new user", "user_id", user.ID, "email", claims.Email, "tenant", claims.TenantCode)
	return user, nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
