// Package pool recycles the candidate slices the HTTP layer builds once
// per search request, so steady traffic doesn't allocate a fresh backing
// array per response render.
package pool

import "sync"

// PooledCandidate is the minimal per-result record the response renderer
// walks: the article plus the scores the caller may have asked to see.
type PooledCandidate struct {
	ArticleID   string
	FusionScore float64
	BM25Score   float64
	VectorScore float64
}

// PoolConfig controls whether slices are recycled at all and how large a
// slice may grow before it is discarded instead of pooled. Oversized
// slices (a burst request with top_k at the cap) would otherwise pin
// their capacity forever.
type PoolConfig struct {
	Enabled bool
	MaxSize int // largest capacity worth keeping
}

const defaultSliceCap = 64

var (
	mu     sync.RWMutex
	config = PoolConfig{Enabled: true, MaxSize: 1000}

	candidates = sync.Pool{
		New: func() any {
			s := make([]*PooledCandidate, 0, defaultSliceCap)
			return &s
		},
	}
)

// Configure replaces the pool configuration. Call once during startup,
// before traffic; slices already in the pool are unaffected.
func Configure(c PoolConfig) {
	mu.Lock()
	config = c
	mu.Unlock()
}

// IsEnabled reports whether slices are currently being recycled.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return config.Enabled
}

// GetCandidateSlice returns an empty candidate slice, reusing a pooled
// backing array when one is available.
func GetCandidateSlice() []*PooledCandidate {
	if !IsEnabled() {
		return make([]*PooledCandidate, 0, defaultSliceCap)
	}
	return (*candidates.Get().(*[]*PooledCandidate))[:0]
}

// PutCandidateSlice hands a slice back for reuse. Entries are nilled out
// first so pooled arrays don't keep result data reachable between
// requests.
func PutCandidateSlice(s []*PooledCandidate) {
	mu.RLock()
	enabled, maxSize := config.Enabled, config.MaxSize
	mu.RUnlock()

	if !enabled || cap(s) > maxSize {
		return
	}
	for i := range s {
		s[i] = nil
	}
	s = s[:0]
	candidates.Put(&s)
}
