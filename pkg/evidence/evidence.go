// Package evidence implements C9: materializing the self-verifying bundle
// attached to a snapshot at publish time.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/pkg/violations"
)

// ApproverInfo records who approved the publish and when, embedded in the
// pack so the pack is self-describing.
type ApproverInfo struct {
	UserID     uuid.UUID `json:"user_id"`
	Email      string    `json:"email"`
	DecidedAt  time.Time `json:"decided_at"`
	Reason     string    `json:"reason"`
	ForceFlags []string  `json:"force_flags,omitempty"`
}

// Pack is the canonical evidence bundle. PolicyProfile embeds the raw
// policy profile bytes, not just its hash, so the pack can be
// re-validated without a side channel to wherever that profile lives.
type Pack struct {
	InputHash      string               `json:"input_hash"`
	OutputHash     string               `json:"output_hash"`
	MatrixHash     string               `json:"matrix_hash"`
	PolicyHash     string               `json:"policy_hash"`
	PolicyProfile  json.RawMessage      `json:"policy_profile"`
	Seed           int64                `json:"seed"`
	AuditResults   violations.Result    `json:"audit_results"`
	Assignments    json.RawMessage      `json:"assignments"`
	PublishedAt    time.Time            `json:"published_at"`
	Approver       ApproverInfo         `json:"approver_info"`
}

// canonicalPack is Pack minus EvidenceHash (there is no such field on Pack
// itself — the hash lives alongside the pack, never inside the bytes it
// commits to) and with a stable field order guaranteed by json.Marshal's
// struct-tag ordering.
type canonicalPack Pack

// Build assembles a Pack and computes its evidence_hash over the
// canonical JSON encoding of the pack's own fields.
func Build(inputHash, outputHash, matrixHash, policyHash string, policyProfile json.RawMessage, seed int64, audit violations.Result, assignments json.RawMessage, publishedAt time.Time, approver ApproverInfo) (Pack, string, error) {
	pack := Pack{
		InputHash:     inputHash,
		OutputHash:    outputHash,
		MatrixHash:    matrixHash,
		PolicyHash:    policyHash,
		PolicyProfile: policyProfile,
		Seed:          seed,
		AuditResults:  audit,
		Assignments:   assignments,
		PublishedAt:   publishedAt.UTC(),
		Approver:      approver,
	}
	hash, err := Hash(pack)
	if err != nil {
		return Pack{}, "", err
	}
	return pack, hash, nil
}

// Hash recomputes evidence_hash = H(canonical(pack)). Rebuilding a pack
// from the same stored bytes must yield the identical hash, so callers
// verifying a previously stored pack should call Hash on the decoded
// value and compare against the stored evidence_hash rather than trusting
// an embedded field.
func Hash(pack Pack) (string, error) {
	b, err := json.Marshal(canonicalPack(pack))
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
