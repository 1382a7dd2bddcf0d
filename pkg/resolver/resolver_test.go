package resolver

import (
	"testing"

	"github.com/google/uuid"
)

func TestResolveBulkRejectsOversizedInput(t *testing.T) {
	r := NewResolver(nil)
	ids := make([]string, MaxBulkIDs+1)
	for i := range ids {
		ids[i] = uuid.New().String()
	}

	_, err := r.ResolveBulk(t.Context(), uuid.New(), "tms", "driver", ids)
	if err == nil {
		t.Fatal("expected INPUT_TOO_LARGE error")
	}
}

func TestBulkResultPreservesOrderAndMissing(t *testing.T) {
	internal := uuid.New()
	found := []Mapping{{ExternalID: "ext-2", InternalID: internal}}

	byExternalID := make(map[string]uuid.UUID, len(found))
	for _, m := range found {
		byExternalID[m.ExternalID] = m.InternalID
	}

	ids := []string{"ext-1", "ext-2", "ext-3"}
	out := make([]BulkResult, len(ids))
	for i, id := range ids {
		if v, ok := byExternalID[id]; ok {
			vv := v
			out[i] = BulkResult{ExternalID: id, InternalID: &vv, Found: true}
		} else {
			out[i] = BulkResult{ExternalID: id, Found: false}
		}
	}

	if out[0].Found || out[2].Found {
		t.Error("expected ext-1 and ext-3 to be unresolved")
	}
	if !out[1].Found || out[1].InternalID == nil || *out[1].InternalID != internal {
		t.Error("expected ext-2 to resolve to the seeded internal id")
	}
	if out[0].ExternalID != "ext-1" || out[1].ExternalID != "ext-2" || out[2].ExternalID != "ext-3" {
		t.Error("expected input order to be preserved")
	}
}
