// Approximate nearest-neighbor search over article embeddings using a
// navigable small-world graph: vectors are nodes, each node keeps a short
// list of neighbors per layer, and a query walks down from a sparse top
// layer into a dense bottom layer instead of scanning every vector.
//
// EfSearch is the one knob operators actually tune in production: higher
// values widen the search frontier (better recall, higher latency), lower
// values are faster and noisier. SetEfSearch changes it per-session
// without rebuilding the graph.
package search

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/saagar210/AssistSupport/pkg/article"
	"github.com/saagar210/AssistSupport/pkg/math/vector"
)

// HNSWConfig contains construction and search parameters for the ANN
// index.
type HNSWConfig struct {
	M               int     // Max links per node per layer (default: 16)
	EfConstruction  int     // Frontier width while building (default: 200)
	EfSearch        int     // Frontier width while searching (default: 100)
	LevelMultiplier float64 // Level decay = 1/ln(M)
}

// DefaultHNSWConfig returns the defaults used when no override is given.
func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{
		M:               16,
		EfConstruction:  200,
		EfSearch:        100,
		LevelMultiplier: 1.0 / math.Log(16.0),
	}
}

// graphNode is one indexed vector plus its per-layer neighbor lists.
// links[l] holds the node's connections at layer l; a node only exists at
// layers 0..level.
type graphNode struct {
	id     article.ID
	vector []float32
	level  int
	links  [][]article.ID
	mu     sync.RWMutex
}

// HNSWIndex provides approximate nearest-neighbor search over article
// embeddings. Safe for concurrent use.
type HNSWIndex struct {
	config     HNSWConfig
	dimensions int
	mu         sync.RWMutex
	graph      map[article.ID]*graphNode
	entryPoint article.ID
	topLevel   int
}

// NewHNSWIndex creates an ANN index for the given dimensionality. A
// zero-value config is replaced with DefaultHNSWConfig.
func NewHNSWIndex(dimensions int, config HNSWConfig) *HNSWIndex {
	if config.M == 0 {
		config = DefaultHNSWConfig()
	}
	return &HNSWIndex{
		config:     config,
		dimensions: dimensions,
		graph:      make(map[article.ID]*graphNode),
	}
}

// SetEfSearch adjusts the search-time frontier width without rebuilding
// the graph. This is what pkg/store's SetANNConfig calls per session.
func (h *HNSWIndex) SetEfSearch(ef int) {
	if ef <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.config.EfSearch = ef
}

// Size returns the number of indexed vectors.
func (h *HNSWIndex) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.graph)
}

// Add inserts a vector into the graph, assigning it a random level and
// wiring it into every layer at or below that level.
func (h *HNSWIndex) Add(id article.ID, vec []float32) error {
	if len(vec) != h.dimensions {
		return ErrDimensionMismatch
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	normalized := vector.Normalize(vec)
	level := h.drawLevel()

	node := &graphNode{
		id:     id,
		vector: normalized,
		level:  level,
		links:  make([][]article.ID, level+1),
	}
	for l := range node.links {
		node.links[l] = make([]article.ID, 0, h.config.M)
	}
	h.graph[id] = node

	if h.entryPoint == "" {
		h.entryPoint = id
		h.topLevel = level
		return nil
	}

	entry := h.entryPoint
	for l := h.nodeLevel(entry); l > level; l-- {
		entry = h.stepToClosest(normalized, entry, l)
	}

	for l := min(level, h.nodeLevel(entry)); l >= 0; l-- {
		frontier := h.expandFrontier(normalized, entry, h.config.EfConstruction, l)
		chosen := h.chooseLinks(normalized, frontier, h.config.M)
		node.links[l] = chosen

		for _, peerID := range chosen {
			h.linkBack(peerID, id, l)
		}
		if len(frontier) > 0 {
			entry = frontier[0].id
		}
	}

	if level > h.topLevel {
		h.entryPoint = id
		h.topLevel = level
	}
	return nil
}

// linkBack adds id as a neighbor of peerID at layer l, pruning peerID's
// link list back down to M via chooseLinks if it's now oversized.
func (h *HNSWIndex) linkBack(peerID, id article.ID, l int) {
	peer, ok := h.graph[peerID]
	if !ok {
		return
	}
	peer.mu.Lock()
	defer peer.mu.Unlock()
	if len(peer.links) <= l {
		return
	}
	if len(peer.links[l]) < h.config.M {
		peer.links[l] = append(peer.links[l], id)
		return
	}
	candidates := append(append([]article.ID{}, peer.links[l]...), id)
	peer.links[l] = h.chooseLinks(peer.vector, scoredFromIDs(h, peer.vector, candidates), h.config.M)
}

// Remove deletes id from the graph and repairs every neighbor list that
// referenced it.
func (h *HNSWIndex) Remove(id article.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	node, ok := h.graph[id]
	if !ok {
		return
	}

	for l := 0; l <= node.level; l++ {
		for _, peerID := range node.links[l] {
			peer, ok := h.graph[peerID]
			if !ok {
				continue
			}
			peer.mu.Lock()
			if len(peer.links) > l {
				kept := peer.links[l][:0:0]
				for _, nid := range peer.links[l] {
					if nid != id {
						kept = append(kept, nid)
					}
				}
				peer.links[l] = kept
			}
			peer.mu.Unlock()
		}
	}

	delete(h.graph, id)

	if h.entryPoint != id {
		return
	}
	h.entryPoint = ""
	h.topLevel = -1
	for nid, n := range h.graph {
		if n.level > h.topLevel {
			h.topLevel = n.level
			h.entryPoint = nid
		}
	}
	if h.topLevel == -1 {
		h.topLevel = 0
	}
}

// Search returns up to k approximate nearest neighbors with similarity >=
// minSimilarity, best first.
func (h *HNSWIndex) Search(ctx context.Context, query []float32, k int, minSimilarity float64) ([]IndexResult, error) {
	if len(query) != h.dimensions {
		return nil, ErrDimensionMismatch
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.graph) == 0 {
		return nil, nil
	}

	normalized := vector.Normalize(query)
	entry := h.entryPoint
	for l := h.topLevel; l > 0; l-- {
		entry = h.stepToClosest(normalized, entry, l)
	}

	frontier := h.expandFrontier(normalized, entry, h.config.EfSearch, 0)

	out := make([]IndexResult, 0, k)
	for _, cand := range frontier {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		sim := 1 - cand.dist
		if sim >= minSimilarity {
			out = append(out, IndexResult{ID: cand.id, Score: sim})
		}
		if len(out) >= k {
			break
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// stepToClosest walks from entryID along a single layer, always moving to
// whichever linked neighbor is closer to query than the current position,
// until no neighbor improves on it. This is the coarse single-path descent
// used on every layer above 0.
func (h *HNSWIndex) stepToClosest(query []float32, entryID article.ID, level int) article.ID {
	current := entryID
	best := vector.CosineDistance(query, h.graph[current].vector)

	for {
		node := h.graph[current]
		node.mu.RLock()
		neighbors := node.links[level]
		node.mu.RUnlock()

		next := current
		for _, id := range neighbors {
			d := vector.CosineDistance(query, h.graph[id].vector)
			if d < best {
				best = d
				next = id
			}
		}
		if next == current {
			return current
		}
		current = next
	}
}

// scored is one candidate in a search frontier: an id and its distance to
// the query that frontier was expanded for.
type scored struct {
	id   article.ID
	dist float64
}

// expandFrontier runs a bounded beam search from entryID at the given
// layer and returns up to width candidates sorted nearest-first.
//
// Unlike a dual-heap formulation, the frontier here is kept as a single
// slice in sorted order. Every insertion uses sort.Search to find its
// place and a slice splice to land it there; the slice is trimmed back to
// width after each batch of insertions. A cursor walks the already-sorted
// frontier expanding one unvisited candidate at a time, and stops as soon
// as it catches up to the frontier's tail; at that point every remaining
// candidate has already been expanded or is worse than everything kept.
func (h *HNSWIndex) expandFrontier(query []float32, entryID article.ID, width, level int) []scored {
	visited := map[article.ID]struct{}{entryID: {}}
	frontier := []scored{{id: entryID, dist: vector.CosineDistance(query, h.graph[entryID].vector)}}

	cursor := 0
	for cursor < len(frontier) {
		current := frontier[cursor]
		cursor++

		node := h.graph[current.id]
		node.mu.RLock()
		neighbors := node.links[level]
		node.mu.RUnlock()

		for _, id := range neighbors {
			if _, seen := visited[id]; seen {
				continue
			}
			visited[id] = struct{}{}

			d := vector.CosineDistance(query, h.graph[id].vector)
			if len(frontier) >= width && d >= frontier[len(frontier)-1].dist {
				continue
			}
			frontier = insertSorted(frontier, scored{id: id, dist: d})
			if len(frontier) > width {
				frontier = frontier[:width]
			}
		}
	}
	return frontier
}

// insertSorted inserts item into a slice already sorted ascending by
// dist, preserving order.
func insertSorted(sorted []scored, item scored) []scored {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i].dist >= item.dist })
	sorted = append(sorted, scored{})
	copy(sorted[i+1:], sorted[i:])
	sorted[i] = item
	return sorted
}

func scoredFromIDs(h *HNSWIndex, query []float32, ids []article.ID) []scored {
	out := make([]scored, len(ids))
	for i, id := range ids {
		out[i] = scored{id: id, dist: vector.CosineDistance(query, h.graph[id].vector)}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].dist < out[j].dist })
	return out
}

// chooseLinks picks up to m neighbors for a node out of a candidate
// frontier, preferring diversity over raw closeness: a candidate is kept
// only if it isn't closer to an already-kept neighbor than it is to the
// query itself. This avoids wiring every node to a tight cluster of
// near-duplicates at the expense of reaching other parts of the graph.
// If diversification prunes below m, the closest remaining candidates
// backfill the rest so a node is never left under-connected.
func (h *HNSWIndex) chooseLinks(query []float32, frontier []scored, m int) []article.ID {
	if len(frontier) <= m {
		out := make([]article.ID, len(frontier))
		for i, c := range frontier {
			out[i] = c.id
		}
		return out
	}

	var kept []scored
	var skipped []scored
	for _, cand := range frontier {
		if len(kept) >= m {
			skipped = append(skipped, cand)
			continue
		}
		dominated := false
		for _, k := range kept {
			if vector.CosineDistance(h.graph[cand.id].vector, h.graph[k.id].vector) < cand.dist {
				dominated = true
				break
			}
		}
		if dominated {
			skipped = append(skipped, cand)
			continue
		}
		kept = append(kept, cand)
	}

	for i := 0; len(kept) < m && i < len(skipped); i++ {
		kept = append(kept, skipped[i])
	}

	out := make([]article.ID, len(kept))
	for i, c := range kept {
		out[i] = c.id
	}
	return out
}

func (h *HNSWIndex) nodeLevel(id article.ID) int {
	if n, ok := h.graph[id]; ok {
		return n.level
	}
	return 0
}

// maxLevel bounds drawLevel's exponential sample; rand.Float64 can
// return exactly 0, and an unbounded level would allocate a link list
// per layer for no recall benefit.
const maxLevel = 32

// drawLevel samples a node's top layer from the standard HNSW
// exponential-decay distribution, so most nodes only exist at layer 0 and
// progressively fewer exist at each layer above it.
func (h *HNSWIndex) drawLevel() int {
	r := rand.Float64()
	if r == 0 {
		return maxLevel
	}
	level := int(-math.Log(r) * h.config.LevelMultiplier)
	if level > maxLevel {
		return maxLevel
	}
	return level
}

