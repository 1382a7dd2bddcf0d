// Package idempotency implements the C4 idempotency-key half of the
// request pipeline: per-action keys scoped by (tenant_id, action_key,
// user_id?) that make a mutating request safe to retry.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record is a stored idempotency key row. The first successful execution of
// an action writes its response; replays with the same request body return
// the stored response verbatim.
type Record struct {
	TenantID        uuid.UUID
	ActionKey       string
	UserID          *uuid.UUID
	RequestFingerprint string
	ResponseStatus  int
	ResponseBody    []byte
	ExpiresAt       time.Time
	CreatedAt       time.Time
}

// Fingerprint returns the sha256 hex digest of body exactly as given. No
// canonicalisation is applied, so bodies that differ only in whitespace or
// key order get different fingerprints.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// CanonicalFingerprint re-marshals v through encoding/json (whose map keys
// sort lexically) before hashing, giving a stable fingerprint independent of
// field order in the caller's original struct literal.
func CanonicalFingerprint(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return Fingerprint(b), nil
}
