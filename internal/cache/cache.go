package cache

import (
	"sync"
	"time"
)

// TTLCache is a small in-memory cache where every entry expires after the
// cache's TTL. It is injected where needed instead of being held as ambient
// package state, so each consumer owns its own TTL and invalidation.
type TTLCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// New creates a TTLCache with the given entry lifetime
func New(ttl time.Duration) *TTLCache {
	return &TTLCache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached value for key, or false if absent or expired
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set stores a value under key with the cache's TTL
func (c *TTLCache) Set(key string, value interface{}) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Delete removes a key from the cache
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge drops expired entries. Callers with long-lived caches can run it
// periodically; Get already treats expired entries as absent.
func (c *TTLCache) Purge() {
	now := c.now()
	c.mu.Lock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}
