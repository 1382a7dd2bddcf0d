package lock

import (
	"testing"

	"github.com/google/uuid"
)

func TestDeriveKeyStableForSameInputs(t *testing.T) {
	tenant := uuid.New()
	a := deriveKey(tenant, "plan-1", "publish")
	b := deriveKey(tenant, "plan-1", "publish")
	if a != b {
		t.Error("expected deriveKey to be deterministic")
	}
}

func TestDeriveKeyDiffersByPurpose(t *testing.T) {
	tenant := uuid.New()
	a := deriveKey(tenant, "plan-1", "publish")
	b := deriveKey(tenant, "plan-1", "repair")
	if a == b {
		t.Error("expected distinct purposes to derive distinct keys")
	}
}

func TestDeriveKeyDiffersByTenant(t *testing.T) {
	a := deriveKey(uuid.New(), "plan-1", "publish")
	b := deriveKey(uuid.New(), "plan-1", "publish")
	if a == b {
		t.Error("expected distinct tenants to derive distinct keys (extremely unlikely collision)")
	}
}
