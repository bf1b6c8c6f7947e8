package assistant

import (
	"sync"
	"time"
)

type cacheEntry struct {
	assistantID string
	storedAt    time.Time
}

// Cache is the in-process tenant → assistant id cache. It is the only
// mutable shared state in the orchestration core, so it is owned by the
// Manager instance instead of living at package level, and supports
// per-tenant and bulk invalidation.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached assistant id and its age. Expired entries are
// treated as absent.
func (c *Cache) Get(tenantID string) (string, time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[tenantID]
	if !ok {
		return "", 0, false
	}
	age := c.now().Sub(entry.storedAt)
	if age > c.ttl {
		return "", 0, false
	}
	return entry.assistantID, age, true
}

func (c *Cache) Put(tenantID, assistantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tenantID] = cacheEntry{assistantID: assistantID, storedAt: c.now()}
}

func (c *Cache) Invalidate(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenantID)
}

func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
