package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/internal/apperr"
	"github.com/solvereign/solvereign/pkg/identity"
)

// ErrAuthFail is returned by Validate when the cookie value does not map to
// a live session (spec 4.2: "Expired/revoked -> AUTH_FAIL").
var ErrAuthFail = apperr.New(apperr.KindAuth, "AUTH_FAIL", "session is missing, expired, or revoked")

// Manager implements the C2 public contract: login, validate,
// require_permission.
type Manager struct {
	Sessions   *SessionStore
	Users      *identity.Store
	CookieName string
	TTL        time.Duration
}

// NewManager builds a Manager over the given session and user stores.
func NewManager(sessions *SessionStore, users *identity.Store, cookieName string, ttl time.Duration) *Manager {
	return &Manager{Sessions: sessions, Users: users, CookieName: cookieName, TTL: ttl}
}

// Issue creates a session for an already-authenticated user (password or
// OIDC verified by the caller) and returns the raw cookie value to set on
// the response.
func (m *Manager) Issue(ctx context.Context, user identity.User) (Session, string, error) {
	var siteID *uuid.UUID // site scope is selected post-login, not at issuance
	return m.Sessions.Create(ctx, user.ID, user.TenantID, siteID, user.IsPlatform, m.TTL)
}

// Validate looks up a session by the hash of the raw cookie value and
// builds its SessionContext. Expired or revoked sessions, or sessions
// belonging to a deactivated user, return ErrAuthFail.
func (m *Manager) Validate(ctx context.Context, rawCookieValue string) (*SessionContext, error) {
	hash := HashCookieValue(rawCookieValue)

	sess, err := m.Sessions.GetByHash(ctx, hash)
	if err != nil {
		return nil, ErrAuthFail
	}
	if sess.Expired(time.Now()) {
		return nil, ErrAuthFail
	}

	user, err := m.Users.Get(ctx, sess.UserID)
	if err != nil {
		return nil, ErrAuthFail
	}
	if !user.IsActive {
		return nil, ErrAuthFail
	}

	perms, err := user.Permissions()
	if err != nil {
		return nil, fmt.Errorf("resolving permissions: %w", err)
	}

	return &SessionContext{
		SessionID:       sess.ID,
		UserID:          user.ID,
		Email:           user.Email,
		Roles:           user.Roles,
		TenantID:        sess.TenantID,
		SiteID:          sess.SiteID,
		IsPlatformScope: sess.IsPlatformScope || user.IsPlatformAdmin(),
		Permissions:     perms,
	}, nil
}

// RequirePermission reports whether sc is authorized for key. platform_admin
// and is_platform_scope sessions bypass the membership test entirely (spec
// 4.2).
func RequirePermission(sc *SessionContext, key string) error {
	if sc == nil {
		return apperr.AuthRequired()
	}
	if sc.HasPermission(key) {
		return nil
	}
	return apperr.PermissionDenied(key)
}
