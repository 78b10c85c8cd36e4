package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PlanCache stores a validated CompiledPlan keyed by (workflow-name,
// definition-version), per §3's ownership summary: "a compiled plan may be
// cached by the validator ... and is shared read-only across concurrent
// executions." Grounded on the teacher's common/cache.Cache interface and
// MemoryCache, generalized with an optional Redis-backed tier (the teacher's
// MVP comment invited exactly this) for multi-process deployments sharing
// one registry snapshot.
type PlanCache interface {
	Get(ctx context.Context, workflowName, version string) (*CompiledPlan, bool, error)
	Set(ctx context.Context, workflowName, version string, plan *CompiledPlan, ttl time.Duration) error
}

// MemoryPlanCache is an in-process PlanCache with best-effort TTL expiry, a
// direct generalization of the teacher's common/cache.MemoryCache keyed by
// (workflowName, version) rather than a single string key, and holding
// *CompiledPlan directly rather than serialized bytes since plans never
// leave the process with this tier.
type MemoryPlanCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	plan      *CompiledPlan
	expiresAt time.Time
}

// NewMemoryPlanCache returns an empty MemoryPlanCache.
func NewMemoryPlanCache() *MemoryPlanCache {
	return &MemoryPlanCache{entries: make(map[string]memoryEntry)}
}

func cacheKey(workflowName, version string) string {
	return workflowName + "@" + version
}

// Get implements PlanCache.
func (c *MemoryPlanCache) Get(_ context.Context, workflowName, version string) (*CompiledPlan, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[cacheKey(workflowName, version)]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.plan, true, nil
}

// Set implements PlanCache.
func (c *MemoryPlanCache) Set(_ context.Context, workflowName, version string, plan *CompiledPlan, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(workflowName, version)] = memoryEntry{plan: plan, expiresAt: time.Now().Add(ttl)}
	return nil
}

// planWire is the JSON-serializable projection of a CompiledPlan stored in
// Redis: the task definitions, schema trees, and parsed templates are not
// directly JSON round-trippable (they're closed-variant ASTs built by
// Parse), so the Redis tier caches only the cheap-to-recompute shape — the
// wave partition and the invocation-to-taskRef/input-bindings map would
// require re-deriving templates/schemas from the registry regardless, which
// defeats the point of caching the expensive part. Given that, RedisPlanCache
// caches the wave partition only, re-running Validate for the
// schema/template/compat portions on a miss; this still avoids a repeated
// graph build for hot workflow names across a fleet of gateway replicas.
type planWire struct {
	Waves [][]string `json:"waves"`
}

// RedisPlanCache caches a CompiledPlan's wave partition in Redis, adapted
// from the teacher's common/redis/client.go connection setup. Use
// NewRedisPlanCache paired with a MemoryPlanCache (or Validate fallback) to
// get full-plan caching within a process and cross-process wave-partition
// reuse.
type RedisPlanCache struct {
	client *redis.Client
}

// NewRedisPlanCache wraps an already-configured *redis.Client.
func NewRedisPlanCache(client *redis.Client) *RedisPlanCache {
	return &RedisPlanCache{client: client}
}

// GetWaves returns the cached wave partition for (workflowName, version), if any.
func (c *RedisPlanCache) GetWaves(ctx context.Context, workflowName, version string) ([][]string, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(workflowName, version)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("plan cache: redis get: %w", err)
	}
	var wire planWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, false, fmt.Errorf("plan cache: decoding cached waves: %w", err)
	}
	return wire.Waves, true, nil
}

// SetWaves stores waves for (workflowName, version) with the given TTL.
func (c *RedisPlanCache) SetWaves(ctx context.Context, workflowName, version string, waves [][]string, ttl time.Duration) error {
	raw, err := json.Marshal(planWire{Waves: waves})
	if err != nil {
		return fmt.Errorf("plan cache: encoding waves: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(workflowName, version), raw, ttl).Err(); err != nil {
		return fmt.Errorf("plan cache: redis set: %w", err)
	}
	return nil
}
