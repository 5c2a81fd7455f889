package rbac

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// MetricsRecorder receives access-control observations. Implemented by the
// observability package; a nil recorder is valid.
type MetricsRecorder interface {
	GuardDecision(outcome string)
	MappingLoad(source string)
}

// Mapping load sources reported to the MetricsRecorder.
const (
	MappingSourceStore    = "store"
	MappingSourceFallback = "fallback"
)

// MappingCache owns the shared role-permission mapping for one process. It
// loads lazily, refreshes on demand via Reload, and substitutes the built-in
// fallback mapping when the store cannot be read, so the admin surface never
// goes fully dark during an outage.
type MappingCache struct {
	store   Store
	logger  *slog.Logger
	metrics MetricsRecorder
	group   singleflight.Group

	mu       sync.RWMutex
	mapping  Mapping
	loaded   bool
	degraded bool
}

// NewMappingCache constructs a MappingCache.
func NewMappingCache(store Store, logger *slog.Logger, metrics MetricsRecorder) *MappingCache {
	return &MappingCache{store: store, logger: logger, metrics: metrics}
}

// Mapping returns the current mapping, loading it on first use. Concurrent
// first loads collapse into a single store query. The returned mapping is
// shared; callers must not mutate it.
func (c *MappingCache) Mapping(ctx context.Context) Mapping {
	c.mu.RLock()
	if c.loaded {
		m := c.mapping
		c.mu.RUnlock()
		return m
	}
	c.mu.RUnlock()

	result, _, _ := c.group.Do("load", func() (any, error) {
		return c.load(ctx), nil
	})
	return result.(Mapping)
}

// Reload refetches the mapping from the store. On failure the previous
// mapping (or the fallback when nothing was ever loaded) stays in place and
// the error is returned.
func (c *MappingCache) Reload(ctx context.Context) error {
	pairs, err := c.store.ListRolePermissions(ctx)
	if err != nil {
		c.mu.Lock()
		if !c.loaded {
			c.mapping = FallbackMapping()
			c.loaded = true
			c.degraded = true
		}
		c.mu.Unlock()
		if c.logger != nil {
			c.logger.Error("rbac: reload mapping", slog.Any("error", err))
		}
		return err
	}
	c.set(MappingFromPairs(pairs), false)
	if c.metrics != nil {
		c.metrics.MappingLoad(MappingSourceStore)
	}
	return nil
}

// Degraded reports whether the cache is serving the fallback mapping.
func (c *MappingCache) Degraded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.degraded
}

// PermissionsFor resolves a single role against the shared mapping.
func (c *MappingCache) PermissionsFor(ctx context.Context, role Role) PermissionSet {
	return c.Mapping(ctx).PermissionsFor(role)
}

func (c *MappingCache) load(ctx context.Context) Mapping {
	pairs, err := c.store.ListRolePermissions(ctx)
	if err != nil {
		if c.logger != nil {
			c.logger.Error("rbac: load mapping, serving fallback", slog.Any("error", err))
		}
		fallback := FallbackMapping()
		c.set(fallback, true)
		if c.metrics != nil {
			c.metrics.MappingLoad(MappingSourceFallback)
		}
		return fallback
	}
	mapping := MappingFromPairs(pairs)
	c.set(mapping, false)
	if c.metrics != nil {
		c.metrics.MappingLoad(MappingSourceStore)
	}
	return mapping
}

func (c *MappingCache) set(m Mapping, degraded bool) {
	c.mu.Lock()
	c.mapping = m
	c.loaded = true
	c.degraded = degraded
	c.mu.Unlock()
}
