// Package killswitch implements C10: process-wide publish/lock enablement
// per site, cached with a short TTL so the gate check stays cheap on the
// hot path while remaining observable within seconds of a toggle.
package killswitch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/solvereign/solvereign/internal/telemetry"
	"github.com/solvereign/solvereign/pkg/tenant"
)

// Capability is a togglable gate. Only publish and lock are modeled per
// spec 4.10.
type Capability string

const (
	CapabilityPublish Capability = "publish"
	CapabilityLock    Capability = "lock"
)

// Gate is the injected service named in spec 9's design notes
// ("implicit singletons (kill switch, config): model as an injected service
// with a narrow interface plus an in-process cache with explicit TTL").
type Gate struct {
	tenants *tenant.Store
	redis   *redis.Client
	ttl     time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	enabled   bool
	fetchedAt time.Time
}

// NewGate builds a Gate backed by the tenant store (durable truth) and a
// Redis process-wide cache (fast path, shared across instances so a toggle
// propagates to every process within ttl).
func NewGate(tenants *tenant.Store, rdb *redis.Client, ttl time.Duration) *Gate {
	return &Gate{tenants: tenants, redis: rdb, ttl: ttl, cache: make(map[string]cacheEntry)}
}

func cacheKey(tenantID, siteID uuid.UUID, capability Capability) string {
	return fmt.Sprintf("killswitch:%s:%s:%s", tenantID, siteID, capability)
}

// Enabled reports whether capability is enabled for (tenant, site). It
// checks an in-process cache first, then Redis, then falls back to the
// tenant store on a cache miss — the durable truth is always the sites
// table; Redis and the in-process map are both just TTL-bounded caches.
func (g *Gate) Enabled(ctx context.Context, tenantID, siteID uuid.UUID, capability Capability) (bool, error) {
	key := cacheKey(tenantID, siteID, capability)

	g.mu.RLock()
	entry, ok := g.cache[key]
	g.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < g.ttl {
		return entry.enabled, nil
	}

	if g.redis != nil {
		val, err := g.redis.Get(ctx, key).Result()
		if err == nil {
			enabled := val == "1"
			g.store(key, enabled)
			return enabled, nil
		}
	}

	site, err := g.tenants.GetSite(ctx, tenantID, siteID)
	if err != nil {
		return false, err
	}

	var enabled bool
	switch capability {
	case CapabilityPublish:
		enabled = site.PublishEnabled
	case CapabilityLock:
		enabled = site.LockEnabled
	}

	g.store(key, enabled)
	if g.redis != nil {
		val := "0"
		if enabled {
			val = "1"
		}
		_ = g.redis.Set(ctx, key, val, g.ttl).Err()
	}

	return enabled, nil
}

func (g *Gate) store(key string, enabled bool) {
	g.mu.Lock()
	g.cache[key] = cacheEntry{enabled: enabled, fetchedAt: time.Now()}
	g.mu.Unlock()
}

// Toggle activates or deactivates a capability. Callers must already have
// verified platform_admin; Toggle only writes the durable row, invalidates
// the cache, and records the telemetry counter — the AuditEvent write
// (operator identity + reason) is the caller's responsibility via pkg/auditlog,
// since Gate has no audit dependency of its own.
func (g *Gate) Toggle(ctx context.Context, tenantID, siteID uuid.UUID, capability Capability, enabled bool) error {
	if err := g.tenants.SetCapability(ctx, tenantID, siteID, string(capability), enabled); err != nil {
		return err
	}

	key := cacheKey(tenantID, siteID, capability)
	g.store(key, enabled)
	if g.redis != nil {
		val := "0"
		if enabled {
			val = "1"
		}
		_ = g.redis.Set(ctx, key, val, g.ttl).Err()
	}

	outcome := "disabled"
	if enabled {
		outcome = "enabled"
	}
	telemetry.KillSwitchTogglesTotal.WithLabelValues(string(capability), outcome).Inc()

	return nil
}
