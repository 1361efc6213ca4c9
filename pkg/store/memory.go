package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/saagar210/AssistSupport/pkg/article"
	"github.com/saagar210/AssistSupport/pkg/search"
	"github.com/saagar210/AssistSupport/pkg/search/text"
)

// MemoryStore is a process-local ArticleStore backed by plain maps and a
// brute-force inverted index. It implements the exact same contract as
// BadgerStore and is the store of choice for unit tests and the `serve
// --in-memory` demo mode: no data survives a restart.
type MemoryStore struct {
	mu sync.RWMutex

	articles map[article.ID]*article.Article

	// invertedIndex maps a token to the set of article ids whose title or
	// body contains it. Good enough for tests and small corpora; it is not a
	// substitute for a real BM25 index and intentionally scores by
	// overlap count rather than BM25; callers that need BM25-accurate
	// scores should exercise BadgerStore instead.
	invertedIndex map[string]map[article.ID]bool

	// vectors is a flat exact-scan index, created lazily from the first
	// embedded article's dimensionality.
	vectors *search.VectorIndex

	queryLog []article.QueryLogEntry
	feedback []article.FeedbackEntry

	annConfig ANNConfig
}

// NewMemoryStore returns an empty MemoryStore ready for use.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		articles:      make(map[article.ID]*article.Article),
		invertedIndex: make(map[string]map[article.ID]bool),
		annConfig:     ANNConfig{EfSearch: 100},
	}
}

func (m *MemoryStore) KeywordSearch(ctx context.Context, query string, limit int) ([]KeywordHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	tokens := text.Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	counts := make(map[article.ID]int)
	for _, tok := range tokens {
		for id := range m.invertedIndex[tok] {
			counts[id]++
		}
	}

	hits := make([]KeywordHit, 0, len(counts))
	for id, c := range counts {
		a, ok := m.articles[id]
		if !ok || !a.IsActive {
			continue
		}
		hits = append(hits, KeywordHit{ArticleID: id, Score: float64(c) / float64(len(tokens))})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ArticleID < hits[j].ArticleID
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryStore) VectorSearch(ctx context.Context, embedding []float32, limit int) ([]VectorHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(embedding) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	index := m.vectors
	m.mu.RUnlock()

	if index == nil {
		return nil, nil
	}

	hits, err := index.Search(ctx, embedding, limit, -1.0)
	if err != nil {
		return nil, err
	}
	out := make([]VectorHit, len(hits))
	for i, h := range hits {
		out[i] = VectorHit{ArticleID: h.ID, Score: h.Score}
	}
	return out, nil
}

// SetANNConfig is a no-op on the brute-force index beyond bookkeeping: a
// flat scan visits every vector regardless of ef_search, so the knob has
// no effect on recall here. It's recorded so Stats/Config reporting stays
// truthful about what was requested.
func (m *MemoryStore) SetANNConfig(cfg ANNConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.annConfig = cfg
}

func (m *MemoryStore) GetArticles(ctx context.Context, ids []article.ID) ([]*article.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*article.Article, 0, len(ids))
	for _, id := range ids {
		if a, ok := m.articles[id]; ok && a.IsActive {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) PutArticle(ctx context.Context, a *article.Article) error {
	if a == nil || a.ID == "" {
		return article.ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	// Default before clamping: clamping a zero value would floor it to
	// QualityScoreMin instead of the neutral default.
	if cp.QualityScore == 0 {
		cp.QualityScore = article.QualityScoreDefault
	}
	cp.QualityScore = article.ClampQuality(cp.QualityScore)
	if old, ok := m.articles[a.ID]; ok {
		for _, tok := range text.Tokenize(old.Title + " " + old.Body) {
			delete(m.invertedIndex[tok], a.ID)
		}
	}
	m.articles[a.ID] = &cp

	for _, tok := range text.Tokenize(a.Title + " " + a.Body) {
		set, ok := m.invertedIndex[tok]
		if !ok {
			set = make(map[article.ID]bool)
			m.invertedIndex[tok] = set
		}
		set[a.ID] = true
	}

	switch {
	case !cp.IsActive:
		if m.vectors != nil {
			m.vectors.Remove(cp.ID)
		}
	case len(cp.Embedding) > 0:
		if m.vectors == nil {
			m.vectors = search.NewVectorIndex(len(cp.Embedding))
		}
		// A dimension mismatch is silently skipped, same as BadgerStore:
		// the article stays keyword-searchable.
		_ = m.vectors.Add(cp.ID, cp.Embedding)
	}
	return nil
}

func (m *MemoryStore) UpdateQualityScore(ctx context.Context, id article.ID, score float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.articles[id]
	if !ok {
		return article.ErrNotFound
	}
	a.QualityScore = article.ClampQuality(score)
	return nil
}

func (m *MemoryStore) AppendQueryLog(ctx context.Context, entry article.QueryLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryLog = append(m.queryLog, entry)
	return nil
}

func (m *MemoryStore) AppendFeedback(ctx context.Context, entry article.FeedbackEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = append(m.feedback, entry)
	return nil
}

func (m *MemoryStore) ListFeedbackForArticle(ctx context.Context, id article.ID) ([]article.FeedbackEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []article.FeedbackEntry
	for _, f := range m.feedback {
		if f.ArticleID == id {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListArticleIDs(ctx context.Context) ([]article.ID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]article.ID, 0, len(m.articles))
	for id, a := range m.articles {
		if a.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MemoryStore) ListQueryLog(ctx context.Context, since time.Time) ([]article.QueryLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []article.QueryLogEntry
	for _, q := range m.queryLog {
		if !q.CreatedAt.Before(since) {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListFeedback(ctx context.Context, since time.Time) ([]article.FeedbackEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []article.FeedbackEntry
	for _, f := range m.feedback {
		if !f.CreatedAt.Before(since) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

var _ ArticleStore = (*MemoryStore)(nil)
