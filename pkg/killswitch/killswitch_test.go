package killswitch

import (
	"testing"

	"github.com/google/uuid"
)

func TestCacheKeyDiffersByCapability(t *testing.T) {
	tenantID, siteID := uuid.New(), uuid.New()
	a := cacheKey(tenantID, siteID, CapabilityPublish)
	b := cacheKey(tenantID, siteID, CapabilityLock)
	if a == b {
		t.Error("expected distinct capabilities to derive distinct cache keys")
	}
}

func TestGateStoresAndReadsCacheEntry(t *testing.T) {
	g := NewGate(nil, nil, 0)
	key := cacheKey(uuid.New(), uuid.New(), CapabilityPublish)
	g.store(key, true)

	g.mu.RLock()
	entry, ok := g.cache[key]
	g.mu.RUnlock()
	if !ok || !entry.enabled {
		t.Fatal("expected cache to retain the stored entry")
	}
}
