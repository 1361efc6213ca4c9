package embed

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder wraps an Embedder with an in-process LRU cache keyed by
// the exact input text. Support queries repeat heavily (the same "reset
// my password" arrives many times a day), and a hit costs microseconds
// against the 50–200ms a model round trip takes.
//
// Keys are the raw text rather than a hash: exact-match semantics with
// no collision question to answer, and the cached vector dwarfs the key
// anyway (~4KB per 1024-dim embedding).
type CachedEmbedder struct {
	base    Embedder
	cache   *lru.Cache[string, []float32]
	maxSize int

	hits   atomic.Uint64
	misses atomic.Uint64
}

const defaultEmbedCacheSize = 10000

// NewCachedEmbedder wraps base with a cache of at most maxSize
// embeddings. maxSize <= 0 selects the default of 10,000 entries,
// roughly 40MB at 1024 dimensions.
func NewCachedEmbedder(base Embedder, maxSize int) *CachedEmbedder {
	if maxSize <= 0 {
		maxSize = defaultEmbedCacheSize
	}
	cache, err := lru.New[string, []float32](maxSize)
	if err != nil {
		// lru.New only fails on a non-positive size, guarded above.
		cache, _ = lru.New[string, []float32](defaultEmbedCacheSize)
	}
	return &CachedEmbedder{base: base, cache: cache, maxSize: maxSize}
}

// Embed returns the cached embedding for text, or computes and caches it.
// Errors from the base embedder are never cached.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	v, err := c.base.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, v)
	return v, nil
}

// EmbedBatch resolves what it can from the cache and sends only the
// misses to the base embedder, in one batch.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if v, ok := c.cache.Get(text); ok {
			c.hits.Add(1)
			out[i] = v
			continue
		}
		c.misses.Add(1)
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) > 0 {
		vecs, err := c.base.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, v := range vecs {
			out[missIdx[j]] = v
			c.cache.Add(missTexts[j], v)
		}
	}
	return out, nil
}

// Dimensions returns the base embedder's vector dimension.
func (c *CachedEmbedder) Dimensions() int { return c.base.Dimensions() }

// Model returns the base embedder's model name.
func (c *CachedEmbedder) Model() string { return c.base.Model() }

// CacheStats holds embedding cache counters.
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"` // percentage, 0–100
}

// Stats returns current cache counters.
func (c *CachedEmbedder) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	return CacheStats{
		Size:    c.cache.Len(),
		MaxSize: c.maxSize,
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
	}
}

// Clear drops every cached embedding.
func (c *CachedEmbedder) Clear() {
	c.cache.Purge()
}
