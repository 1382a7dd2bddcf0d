package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/solvereign/solvereign/pkg/identity"
)

// OIDCClaims are the JWT claims extracted for SSO authentication. TenantCode
// is empty for platform-scope principals.
type OIDCClaims struct {
	Subject    string `json:"sub"`
	Email      string `json:"email"`
	TenantCode string `json:"tenant_code"`
	Role       string `json:"role"`
}

// OIDCAuthenticator validates OIDC ID tokens and extracts claims.
type OIDCAuthenticator struct {
	Verifier *oidc.IDTokenVerifier
}

// NewOIDCAuthenticator creates an authenticator by performing OIDC discovery
// against the issuer URL. This makes a network call to fetch the provider's
// public keys.
func NewOIDCAuthenticator(ctx context.Context, issuerURL, clientID string) (*OIDCAuthenticator, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering OIDC provider %s: %w", issuerURL, err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})

	return &OIDCAuthenticator{Verifier: verifier}, nil
}

// Authenticate validates a Bearer ID token and returns the extracted claims.
// An unrecognized or missing role defaults to dispatcher, the least
// privileged non-readonly role, mirroring the teacher's conservative
// default for SSO-provisioned accounts.
func (a *OIDCAuthenticator) Authenticate(ctx context.Context, bearerToken string) (*OIDCClaims, error) {
	token := strings.TrimPrefix(bearerToken, "Bearer ")
	token = strings.TrimPrefix(token, "bearer ")
	token = strings.TrimSpace(token)

	if token == "" {
		return nil, fmt.Errorf("empty bearer token")
	}

	idToken, err := a.Verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("verifying token: %w", err)
	}

	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("extracting claims: %w", err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}
	if !identity.ValidRole(claims.Role) {
		claims.Role = string(identity.RoleDispatcher)
	}

	return &claims, nil
}
