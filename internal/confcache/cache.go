// SPDX-License-Identifier: MIT

// Package confcache is the read-through, TTL-bounded cache in front of the
// config store. Admission decisions are soft limits, so bounded staleness
// (at most the poll interval of the version watcher) is acceptable.
package confcache

import (
	"context"
	"sync"
	"time"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/core"
	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/store"
)

// entry is a cached record with its expiration time.
type entry struct {
	value      any
	expiration time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiration)
}

// Cache serves Action and ActionGroup lookups from memory, falling through
// to the config store on miss or expiry. Negative results are not cached:
// a NotFound is always re-checked against the store.
type Cache struct {
	source *store.ConfigStore
	ttl    time.Duration

	mu      sync.RWMutex
	entries map[string]*entry

	now func() time.Time
}

// New creates a cache over source with the given entry TTL.
func New(source *store.ConfigStore, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{
		source:  source,
		ttl:     ttl,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || e.expired(c.now()) {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{value: value, expiration: c.now().Add(c.ttl)}
}

// Action resolves an action by id, preferring the cache.
func (c *Cache) Action(ctx context.Context, actionID string) (*core.Action, error) {
	key := "action:" + actionID
	if v, ok := c.get(key); ok {
		return v.(*core.Action), nil
	}
	action, err := c.source.Action(ctx, actionID)
	if err != nil {
		return nil, err
	}
	c.set(key, action)
	return action, nil
}

// ActionGroup resolves an action group by id, preferring the cache.
func (c *Cache) ActionGroup(ctx context.Context, actionGroupID string) (*core.ActionGroup, error) {
	key := "group:" + actionGroupID
	if v, ok := c.get(key); ok {
		return v.(*core.ActionGroup), nil
	}
	group, err := c.source.ActionGroup(ctx, actionGroupID)
	if err != nil {
		return nil, err
	}
	c.set(key, group)
	return group, nil
}

// InvalidateAll drops every cached entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Len returns the number of cached entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
