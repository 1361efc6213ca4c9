// Exact vector similarity search over a flat set of embeddings.
//
// This is the index behind MemoryStore's vector search, and the only
// index a small corpus ever needs: scanning every vector is cheap enough
// that an approximate graph would only add risk of missing a true match
// for no real speedup. BadgerStore graduates to the HNSW index in
// hnsw.go, which answers the same Search contract approximately.
//
// Vectors are normalized on Add, so cosine similarity at query time
// degrades to a plain dot product; see pkg/math/vector.
package search

import (
	"container/heap"
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/saagar210/AssistSupport/pkg/article"
	"github.com/saagar210/AssistSupport/pkg/math/vector"
)

// ErrDimensionMismatch is returned when a vector's length doesn't match
// the index's configured dimensionality.
var ErrDimensionMismatch = errors.New("search: vector dimension mismatch")

// VectorIndex scans every stored embedding against the query and keeps
// the best matches. Safe for concurrent use.
type VectorIndex struct {
	dimensions int
	mu         sync.RWMutex
	byID       map[article.ID][]float32
}

// NewVectorIndex creates an empty index for vectors of the given
// dimensionality.
func NewVectorIndex(dimensions int) *VectorIndex {
	return &VectorIndex{
		dimensions: dimensions,
		byID:       make(map[article.ID][]float32),
	}
}

// Add inserts or replaces the vector for id, normalizing it to unit
// length first.
func (v *VectorIndex) Add(id article.ID, vec []float32) error {
	if len(vec) != v.dimensions {
		return ErrDimensionMismatch
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.byID[id] = vector.Normalize(vec)
	return nil
}

// Remove drops id from the index. A no-op if id isn't present.
func (v *VectorIndex) Remove(id article.ID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.byID, id)
}

// Count returns the number of indexed vectors.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.byID)
}

// HasVector reports whether id has an indexed vector.
func (v *VectorIndex) HasVector(id article.ID) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.byID[id]
	return ok
}

// GetDimensions returns the index's configured vector dimensionality.
func (v *VectorIndex) GetDimensions() int {
	return v.dimensions
}

// Search returns up to limit hits with cosine similarity >= minSimilarity,
// best first. Respects ctx cancellation mid-scan since a brute-force pass
// over a large corpus can take long enough to matter.
//
// Rather than scoring every vector and sorting the whole result set, the
// scan keeps only the current best `limit` candidates in a bounded
// min-heap: once the heap is full, a new hit is only worth the cost of a
// push+pop when it beats the current worst kept candidate. For a corpus
// much larger than limit this touches far less memory than sorting
// everything that passed the threshold.
func (v *VectorIndex) Search(ctx context.Context, query []float32, limit int, minSimilarity float64) ([]IndexResult, error) {
	if len(query) != v.dimensions {
		return nil, ErrDimensionMismatch
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	normalizedQuery := vector.Normalize(query)

	if limit <= 0 || limit >= len(v.byID) {
		return v.scanAll(ctx, normalizedQuery, minSimilarity, limit)
	}
	return v.scanBounded(ctx, normalizedQuery, minSimilarity, limit)
}

func (v *VectorIndex) scanAll(ctx context.Context, query []float32, minSimilarity float64, limit int) ([]IndexResult, error) {
	results := make([]IndexResult, 0, len(v.byID))
	for id, vec := range v.byID {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if sim := vector.DotProduct(query, vec); sim >= minSimilarity {
			results = append(results, IndexResult{ID: id, Score: sim})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (v *VectorIndex) scanBounded(ctx context.Context, query []float32, minSimilarity float64, limit int) ([]IndexResult, error) {
	kept := make(worstFirstHeap, 0, limit)
	for id, vec := range v.byID {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		sim := vector.DotProduct(query, vec)
		if sim < minSimilarity {
			continue
		}
		if len(kept) < limit {
			heap.Push(&kept, IndexResult{ID: id, Score: sim})
			continue
		}
		if sim > kept[0].Score {
			kept[0] = IndexResult{ID: id, Score: sim}
			heap.Fix(&kept, 0)
		}
	}

	out := make([]IndexResult, len(kept))
	copy(out, kept)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// worstFirstHeap is a min-heap over IndexResult.Score: the worst-scoring
// kept candidate always sits at index 0, so dropping it to make room for
// a better candidate is a single Fix call.
type worstFirstHeap []IndexResult

func (h worstFirstHeap) Len() int            { return len(h) }
func (h worstFirstHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h worstFirstHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *worstFirstHeap) Push(x interface{}) { *h = append(*h, x.(IndexResult)) }
func (h *worstFirstHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
