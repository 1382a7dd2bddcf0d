package auditlog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func buildChain(t *testing.T, n int) []Event {
	t.Helper()
	tenantID := uuid.New()
	prev := GenesisHash
	var events []Event
	for i := 0; i < n; i++ {
		e := Event{
			ID:         uuid.New(),
			TS:         time.Now().UTC().Add(time.Duration(i) * time.Second),
			TenantID:   &tenantID,
			EventType:  "plan.publish",
			EntityType: "plan_version",
			EntityID:   uuid.New().String(),
			Severity:   SeverityInfo,
			Details:    json.RawMessage(`{"reason":"test"}`),
			PrevHash:   prev,
		}
		hash, err := computeHash(e)
		if err != nil {
			t.Fatalf("computeHash: %v", err)
		}
		e.Hash = hash
		events = append(events, e)
		prev = hash
	}
	return events
}

func TestVerifyAcceptsValidChain(t *testing.T) {
	events := buildChain(t, 5)
	if broken := Verify(events); broken != nil {
		t.Fatalf("expected clean chain, got break at %v: %s", broken.EventID, broken.Reason)
	}
}

func TestVerifyDetectsTamperedDetails(t *testing.T) {
	events := buildChain(t, 5)
	events[2].Details = json.RawMessage(`{"reason":"tampered"}`)

	broken := Verify(events)
	if broken == nil {
		t.Fatal("expected tampering to break the chain")
	}
	if broken.EventID != events[2].ID {
		t.Errorf("expected break reported at tampered event %v, got %v", events[2].ID, broken.EventID)
	}
}

func TestVerifyDetectsReorderedEvents(t *testing.T) {
	events := buildChain(t, 4)
	events[1], events[2] = events[2], events[1]

	if broken := Verify(events); broken == nil {
		t.Fatal("expected reordering to break prev_hash linkage")
	}
}

func TestComputeHashDeterministic(t *testing.T) {
	events := buildChain(t, 1)
	again, err := computeHash(events[0])
	if err != nil {
		t.Fatalf("computeHash: %v", err)
	}
	if again != events[0].Hash {
		t.Error("expected recomputation to be stable")
	}
}
