package cache

import (
	"strconv"
	"time"

	"github.com/saagar210/AssistSupport/pkg/article"
)

// SearchCache caches full search responses keyed by the request's query
// text, fusion strategy, and top_k, the inputs that fully determine the
// response for a given corpus state. It's invalidated implicitly by TTL
// rather than on every write, since article updates are comparatively
// rare next to repeated identical queries.
type SearchCache struct {
	inner *QueryCache
}

// NewSearchCache creates a search response cache holding up to maxSize
// entries for ttl each.
func NewSearchCache(maxSize int, ttl time.Duration) *SearchCache {
	return &SearchCache{inner: NewQueryCache(maxSize, ttl)}
}

func (s *SearchCache) cacheKey(query string, strategy article.FusionStrategy, topK int) uint64 {
	return Key(query, string(strategy), strconv.Itoa(topK))
}

// Entry is what SearchCache stores per (query, strategy, topK): the
// post-pipeline candidate list plus the two per-request fields that would
// otherwise be lost on a cache hit, since classification never reruns for
// a cached query.
type Entry struct {
	Results          []article.CandidateResult
	Intent           article.Intent
	IntentConfidence float64
}

// Get returns a cached entry, if present and unexpired.
func (s *SearchCache) Get(query string, strategy article.FusionStrategy, topK int) (Entry, bool) {
	v, ok := s.inner.Get(s.cacheKey(query, strategy, topK))
	if !ok {
		return Entry{}, false
	}
	entry, ok := v.(Entry)
	return entry, ok
}

// Put caches results and the intent/confidence that produced them for the
// given request shape.
func (s *SearchCache) Put(query string, strategy article.FusionStrategy, topK int, entry Entry) {
	s.inner.Put(s.cacheKey(query, strategy, topK), entry)
}

// Stats returns the underlying cache's hit/miss statistics.
func (s *SearchCache) Stats() CacheStats {
	return s.inner.Stats()
}

// Clear empties the cache.
func (s *SearchCache) Clear() {
	s.inner.Clear()
}
