// Package cache provides a generic TTL+LRU cache, and SearchCache, its
// application to full search responses.
//
// Repeated identical queries (a dashboard widget, a retried request) are
// common enough that skipping the whole classify-retrieve-fuse pipeline
// on a cache hit matters.
package cache

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryCache is a thread-safe TTL-aware cache over an LRU eviction
// policy. Values are stored as interface{}; SearchCache below is the
// typed wrapper search responses actually go through.
//
// LRU bookkeeping (the hot path on every Get/Put) is delegated to
// hashicorp/golang-lru; this type layers expiry on top, since golang-lru's
// Cache has no notion of a TTL.
type QueryCache struct {
	inner *lru.Cache[uint64, *cacheEntry]

	maxSize int
	ttl     time.Duration

	mu      sync.RWMutex
	enabled bool

	hits   atomic.Uint64
	misses atomic.Uint64
}

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// NewQueryCache creates a cache holding up to maxSize entries for ttl
// each. maxSize <= 0 selects 1000; ttl == 0 disables expiry.
func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	inner, err := lru.New[uint64, *cacheEntry](maxSize)
	if err != nil {
		// Only returns an error for a non-positive size, already guarded above.
		inner, _ = lru.New[uint64, *cacheEntry](1000)
	}
	return &QueryCache{
		inner:   inner,
		maxSize: maxSize,
		ttl:     ttl,
		enabled: true,
	}
}

// Key hashes the given parts into a cache key. Parts are separated by a
// NUL byte so ("ab", "c") and ("a", "bc") key different entries.
func Key(parts ...string) uint64 {
	h := fnv.New64a()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return h.Sum64()
}

// Get retrieves a cached value if present and not expired.
func (c *QueryCache) Get(key uint64) (interface{}, bool) {
	if !c.isEnabled() {
		c.misses.Add(1)
		return nil, false
	}

	entry, ok := c.inner.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.inner.Remove(key)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return entry.value, true
}

// Put adds a value, evicting the least recently used entry if the cache
// is at capacity. No-op while the cache is disabled.
func (c *QueryCache) Put(key uint64, value interface{}) {
	if !c.isEnabled() {
		return
	}

	entry := &cacheEntry{value: value}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}
	c.inner.Add(key, entry)
}

// Remove drops a single entry.
func (c *QueryCache) Remove(key uint64) {
	c.inner.Remove(key)
}

// Clear removes all entries.
func (c *QueryCache) Clear() {
	c.inner.Purge()
}

// Len returns the number of cached entries, counting expired entries
// that haven't been touched since they lapsed.
func (c *QueryCache) Len() int {
	return c.inner.Len()
}

// Stats returns hit/miss counters accumulated since construction.
func (c *QueryCache) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return CacheStats{
		Size:    c.inner.Len(),
		MaxSize: c.maxSize,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate,
	}
}

// CacheStats holds cache counters.
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64 // percentage, 0–100
}

// SetEnabled turns the cache on or off at runtime. Disabling also purges
// it, so re-enabling starts cold rather than serving entries of unknown
// age.
func (c *QueryCache) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()

	if !enabled {
		c.inner.Purge()
	}
}

func (c *QueryCache) isEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}
