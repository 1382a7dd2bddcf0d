package evidence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/solvereign/solvereign/pkg/violations"
)

func TestBuildIsDeterministic(t *testing.T) {
	approver := ApproverInfo{UserID: uuid.New(), Email: "ops@example.com", DecidedAt: time.Now().UTC(), Reason: "quarterly rollout"}
	audit := violations.Result{WarnCount: 1}

	a, hashA, err := Build("in", "out", "matrix", "policy", json.RawMessage(`{"rules":[]}`), 42, audit, json.RawMessage(`[]`), time.Now(), approver)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, hashB, err := Build("in", "out", "matrix", "policy", json.RawMessage(`{"rules":[]}`), 42, audit, json.RawMessage(`[]`), a.PublishedAt, approver)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if hashA != hashB {
		t.Error("expected identical inputs to produce identical evidence hashes")
	}
	recomputed, err := Hash(b)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if recomputed != hashB {
		t.Error("expected re-hashing the decoded pack to reproduce the stored hash")
	}
}

func TestBuildDiffersOnApproverReason(t *testing.T) {
	approverA := ApproverInfo{UserID: uuid.New(), Reason: "reason one"}
	approverB := approverA
	approverB.Reason = "reason two"

	_, hashA, err := Build("in", "out", "matrix", "policy", nil, 1, violations.Result{}, nil, time.Time{}, approverA)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	_, hashB, err := Build("in", "out", "matrix", "policy", nil, 1, violations.Result{}, nil, time.Time{}, approverB)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if hashA == hashB {
		t.Error("expected differing approver reason to change the evidence hash")
	}
}
