package routing

import (
	"container/list"
	"sync"
	"time"
)

// DefaultModelCacheTTL is how long a provider's model list stays fresh
const DefaultModelCacheTTL = time.Hour

// cacheEntry represents a single provider's model list with TTL
type cacheEntry struct {
	provider   string
	models     []string
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

// ModelCache is an in-memory LRU cache with TTL for provider model lists.
// Thread-safe implementation using sync.RWMutex
type ModelCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry // Key: provider name
	lruList *list.List             // Doubly linked list for LRU tracking
	maxSize int                    // Maximum number of entries
	ttl     time.Duration          // Time-to-live for entries
	hits    uint64                 // Cache hit counter
	misses  uint64                 // Cache miss counter
	now     func() time.Time
}

// NewModelCache creates a new ModelCache with specified max size and TTL
func NewModelCache(maxSize int, ttl time.Duration) *ModelCache {
	if maxSize <= 0 {
		maxSize = 16
	}
	if ttl <= 0 {
		ttl = DefaultModelCacheTTL
	}
	return &ModelCache{
		entries: make(map[string]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *ModelCache) isExpired(e *cacheEntry) bool {
	return c.now().Sub(e.insertedAt) > c.ttl
}

// Get returns the cached models of a provider.
// Returns nil if not found or expired
func (c *ModelCache) Get(provider string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[provider]
	if !exists || c.isExpired(entry) {
		c.misses++
		if exists {
			c.removeEntry(provider)
		}
		return nil
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++

	out := make([]string, len(entry.models))
	copy(out, entry.models)
	return out
}

// Set stores a provider's models in cache
func (c *ModelCache) Set(provider string, models []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]string, len(models))
	copy(stored, models)

	if entry, exists := c.entries[provider]; exists {
		entry.models = stored
		entry.insertedAt = c.now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{
		provider:   provider,
		models:     stored,
		insertedAt: c.now(),
	}
	entry.element = c.lruList.PushFront(provider)
	c.entries[provider] = entry
}

// Invalidate removes a provider's entry
func (c *ModelCache) Invalidate(provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeEntry(provider)
}

// Clear removes all entries from the cache
func (c *ModelCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.lruList.Init()
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns cache statistics
func (c *ModelCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var hitRate float64
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: hitRate,
	}
}

// removeEntry removes an entry from the cache (must be called with lock held)
func (c *ModelCache) removeEntry(provider string) {
	if entry, exists := c.entries[provider]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, provider)
	}
}

// evictLRU evicts the least recently used entry (must be called with lock held)
func (c *ModelCache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	provider := back.Value.(string)
	c.lruList.Remove(back)
	delete(c.entries, provider)
}

// CleanupExpired removes all expired entries and returns how many were dropped.
// Called periodically by the scheduler.
func (c *ModelCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []string
	for provider, entry := range c.entries {
		if c.isExpired(entry) {
			expired = append(expired, provider)
		}
	}
	for _, provider := range expired {
		c.removeEntry(provider)
	}
	return len(expired)
}
