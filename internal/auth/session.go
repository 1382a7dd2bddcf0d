package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is the C2 session row: lookup is always by session_hash, never
// the raw cookie value, so a leaked database row cannot be replayed as a
// cookie.
type Session struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	SessionHash     string // 64-hex sha256 of the raw cookie value
	TenantID        *uuid.UUID
	SiteID          *uuid.UUID
	IsPlatformScope bool
	ExpiresAt       time.Time
	RevokedAt       *time.Time
	CreatedAt       time.Time
}

// Expired reports whether the session is past its TTL or revoked.
func (s Session) Expired(now time.Time) bool {
	return s.RevokedAt != nil || now.After(s.ExpiresAt)
}

// generateCookieValue returns a random raw cookie value and its sha256 hash,
// following the same raw/hash split used for API keys: the raw value is
// handed to the caller once and never stored, only its hash is persisted.
func generateCookieValue() (raw, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("reading random bytes: %w", err)
	}
	raw = hex.EncodeToString(b)
	sum := sha256.Sum256([]byte(raw))
	hash = hex.EncodeToString(sum[:])
	return raw, hash, nil
}

// HashCookieValue hashes a raw cookie value for lookup.
func HashCookieValue(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
