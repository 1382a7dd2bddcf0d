// Package auditlog implements C11: an append-only, hash-chained event log.
// Each event's hash commits to the previous event's hash, so a verifier can
// walk the chain and report the first broken link.
package auditlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one audit-log row. Severity defaults to INFO; WARNING is used
// for soft-gate overrides (freeze-window publish), HIGH for emergency
// approval overrides.
type Event struct {
	ID         uuid.UUID
	TS         time.Time
	TenantID   *uuid.UUID
	UserID     *uuid.UUID
	EventType  string
	EntityType string
	EntityID   string
	Severity   string
	Details    json.RawMessage
	PrevHash   string
	Hash       string
}

const (
	SeverityInfo    = "INFO"
	SeverityWarning = "WARNING"
	SeverityHigh    = "HIGH"
)

// canonicalEvent is the struct hashed to produce Hash; it excludes
// PrevHash and Hash themselves, and canonicalizes details via json.Marshal
// (Go's encoding/json sorts map keys, making this deterministic for
// map[string]any payloads).
type canonicalEvent struct {
	ID         uuid.UUID       `json:"id"`
	TS         int64           `json:"ts"`
	TenantID   *uuid.UUID      `json:"tenant_id"`
	UserID     *uuid.UUID      `json:"user_id"`
	EventType  string          `json:"event_type"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Severity   string          `json:"severity"`
	Details    json.RawMessage `json:"details"`
	PrevHash   string          `json:"prev_hash"`
}

// computeHash implements hash = H(prev_hash || canonical(event_without_hashes)).
func computeHash(e Event) (string, error) {
	ce := canonicalEvent{
		ID:         e.ID,
		TS:         e.TS.UTC().UnixNano(),
		TenantID:   e.TenantID,
		UserID:     e.UserID,
		EventType:  e.EventType,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Severity:   e.Severity,
		Details:    e.Details,
		PrevHash:   e.PrevHash,
	}
	b, err := json.Marshal(ce)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Logger appends events to the chain, serializing writes per tenant so
// prev_hash always reflects the immediately preceding committed event
// (spec 5: "Audit log is append-only; writers never contend with readers").
type Logger struct {
	store *Store
}

// NewLogger builds a Logger over the given Store.
func NewLogger(store *Store) *Logger {
	return &Logger{store: store}
}

// Append writes a new event, chaining it off the tenant's current head
// hash. The genesis hash for a tenant with no prior events is the
// all-zero sha256 hex string.
func (l *Logger) Append(ctx context.Context, tenantID *uuid.UUID, userID *uuid.UUID, eventType, entityType, entityID, severity string, details any) (Event, error) {
	if severity == "" {
		severity = SeverityInfo
	}
	detailBytes, err := json.Marshal(details)
	if err != nil {
		return Event{}, err
	}

	return l.store.AppendLocked(ctx, tenantID, func(prevHash string) (Event, error) {
		e := Event{
			ID:         uuid.New(),
			TS:         time.Now().UTC(),
			TenantID:   tenantID,
			UserID:     userID,
			EventType:  eventType,
			EntityType: entityType,
			EntityID:   entityID,
			Severity:   severity,
			Details:    detailBytes,
			PrevHash:   prevHash,
		}
		hash, err := computeHash(e)
		if err != nil {
			return Event{}, err
		}
		e.Hash = hash
		return e, nil
	})
}

// GenesisHash is the prev_hash recorded for the first event in a chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// BrokenLink describes the first event in the chain whose stored hash does
// not match the recomputed hash, breaking chain verification.
type BrokenLink struct {
	EventID uuid.UUID
	Reason  string
}

// Verify walks events in ascending ts order and recomputes each hash,
// reporting the first event where the chain breaks (stored hash mismatch
// or a prev_hash that doesn't match the prior event's hash). A nil
// result means the chain verified cleanly.
func Verify(events []Event) *BrokenLink {
	prev := GenesisHash
	for _, e := range events {
		if e.PrevHash != prev {
			return &BrokenLink{EventID: e.ID, Reason: "prev_hash does not match preceding event's hash"}
		}
		want, err := computeHash(e)
		if err != nil {
			return &BrokenLink{EventID: e.ID, Reason: "failed to recompute hash: " + err.Error()}
		}
		if want != e.Hash {
			return &BrokenLink{EventID: e.ID, Reason: "stored hash does not match recomputed hash"}
		}
		prev = e.Hash
	}
	return nil
}
