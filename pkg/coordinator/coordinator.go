// Package coordinator wires the classifier, the two retrievers, fusion,
// post-adjustment, deduplication, and the optional reranker into the one
// operation everything else in this module exists to support: answer a
// query.
//
// Every stage below is replaceable independently (a different Classifier,
// a different ArticleStore, a different Reranker) but the order they run
// in is fixed by Coordinator.Search and is not configurable: classify,
// embed, retrieve, fuse, boost, weight, deduplicate, materialize, rerank,
// log.
package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/saagar210/AssistSupport/pkg/article"
	"github.com/saagar210/AssistSupport/pkg/cache"
	"github.com/saagar210/AssistSupport/pkg/embed"
	"github.com/saagar210/AssistSupport/pkg/intent"
	"github.com/saagar210/AssistSupport/pkg/search"
	"github.com/saagar210/AssistSupport/pkg/store"
)

// Defaults governing every request unless overridden by Config.
const (
	DefaultTopK            = 10
	MaxTopK                = 50
	DefaultRequestDeadline = 10 * time.Second
	DefaultEfSearch        = 100

	// retrievalPoolSize bounds how many rows each retriever fetches
	// before fusion. Wider than topK so RRF/weighted fusion has enough
	// overlap to work with.
	retrievalPoolSize = 100
)

// ErrInvalidQuery is returned for an empty query string or an unrecognized
// fusion strategy; both are caller mistakes, not transient failures.
var ErrInvalidQuery = errors.New("coordinator: invalid query")

// Embedder is the narrow slice of embed.RoleAwareEmbedder the coordinator
// needs: turn one query string into its unit vector. Defined here so the
// coordinator doesn't depend on any particular embedding backend.
type Embedder interface {
	EmbedWithRole(ctx context.Context, text string, role embed.Role) ([]float32, error)
}

// Reranker is the narrow slice of search.CrossEncoder the coordinator
// needs.
type Reranker interface {
	Rerank(ctx context.Context, query string, inputs []search.RerankInput) ([]article.CandidateResult, error)
}

// Config tunes coordinator behavior that isn't part of a single request.
type Config struct {
	// RequestDeadline bounds total request latency. A context already
	// carrying an earlier deadline is left alone.
	RequestDeadline time.Duration

	// EfSearch is pushed to the store's ANN index via SetANNConfig.
	EfSearch int

	// Deduplicate controls whether Search removes repeat chunks from the
	// same source document. Exposed here rather than per-request because
	// the HTTP contract doesn't surface it as a request field.
	Deduplicate bool
}

// DefaultConfig returns the Config used when the caller doesn't build one
// explicitly.
func DefaultConfig() Config {
	return Config{
		RequestDeadline: DefaultRequestDeadline,
		EfSearch:        DefaultEfSearch,
		Deduplicate:     true,
	}
}

// Coordinator is the single entry point for answering a query: it owns no
// state of its own beyond its collaborators and is safe for concurrent use
// by multiple goroutines, same as the store and reranker it wraps.
type Coordinator struct {
	store      store.ArticleStore
	classifier *intent.Detector
	embedder   Embedder
	reranker   Reranker
	respCache  *cache.SearchCache

	config Config
}

// New builds a Coordinator. embedder and reranker may be nil: a nil
// embedder disables vector retrieval for every request; a
// nil reranker degrades a "rerank" strategy request to adaptive fusion
// only. respCache may be nil to disable response caching.
func New(st store.ArticleStore, classifier *intent.Detector, embedder Embedder, reranker Reranker, respCache *cache.SearchCache, config Config) *Coordinator {
	if config.RequestDeadline <= 0 {
		config.RequestDeadline = DefaultRequestDeadline
	}
	if config.EfSearch <= 0 {
		config.EfSearch = DefaultEfSearch
	}
	st.SetANNConfig(store.ANNConfig{EfSearch: config.EfSearch})
	return &Coordinator{
		store:      st,
		classifier: classifier,
		embedder:   embedder,
		reranker:   reranker,
		respCache:  respCache,
		config:     config,
	}
}

// Request is one call to Search.
type Request struct {
	Query          string
	TopK           int
	FusionStrategy article.FusionStrategy
}

// Result is one row of a Response, an article plus the scores and ranks it
// accumulated along the pipeline.
type Result struct {
	Rank             int
	ArticleID        article.ID
	Title            string
	Category         article.Category
	Preview          string
	SourceDocumentID string
	HeadingPath      string
	Score            float64
	BM25Score        float64
	VectorScore      float64
	RerankScore      float64
	HasRerank        bool
}

// Response is the full result of a Search call.
type Response struct {
	// QueryID identifies this request in the query log; feedback
	// submissions reference it.
	QueryID          string
	Results          []Result
	Intent           article.Intent
	IntentConfidence float64
	FusionStrategy   article.FusionStrategy
	Metrics          Metrics
}

// Metrics reports per-stage timing for one request, in milliseconds.
type Metrics struct {
	TotalMS     float64
	EmbeddingMS float64
	RetrievalMS float64
	RerankMS    float64
	CacheHit    bool
}

const previewLength = 240

// Search runs the full retrieval pipeline for req and returns the ranked,
// materialized results. An embedding failure aborts the request, since
// without a query vector adaptive/rerank fusion degrades to keyword-only in
// a way callers asking for hybrid search did not ask for. Keyword and
// vector retriever failures are not fatal: each degrades to an empty result
// set and the other retriever's hits still answer the request. Store errors
// from the post-fusion lookups (category boost, quality multiplier, article
// fetch) are returned to the caller.
func (c *Coordinator) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestDeadline)
		defer cancel()
	}

	if len(req.Query) == 0 {
		return nil, ErrInvalidQuery
	}

	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	strategy := req.FusionStrategy
	if strategy == "" {
		strategy = article.StrategyAdaptive
	}
	switch strategy {
	case article.StrategyRRF, article.StrategyWeighted, article.StrategyAdaptive, article.StrategyRerank:
	default:
		return nil, ErrInvalidQuery
	}

	queryID := generateID("q")

	if c.respCache != nil {
		if cached, ok := c.respCache.Get(req.Query, strategy, topK); ok {
			resp := c.materializeCached(ctx, cached.Results, topK)
			resp.QueryID = queryID
			resp.Intent = cached.Intent
			resp.IntentConfidence = cached.IntentConfidence
			resp.FusionStrategy = strategy
			resp.Metrics.TotalMS = msSince(start)
			resp.Metrics.CacheHit = true
			// Cached answers are still real queries; feedback may
			// reference them and stats should count them.
			c.logQuery(queryID, req, cached.Intent, cached.IntentConfidence, strategy, 0, 0, len(resp.Results), resp.Metrics.TotalMS)
			return resp, nil
		}
	}

	queryIntent, intentConfidence := c.classifier.Classify(req.Query)

	retrieved, err := c.retrieve(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	bm25Hits, vectorHits := retrieved.bm25, retrieved.vector

	bm25Results := keywordHitsToIndexResults(bm25Hits)
	vectorResults := vectorHitsToIndexResults(vectorHits)

	var fused []article.CandidateResult
	switch strategy {
	case article.StrategyRRF:
		fused = search.RRFFusion(bm25Results, vectorResults, search.DefaultRRFK)
	case article.StrategyWeighted:
		fused = search.WeightedFusion(bm25Results, vectorResults, search.DefaultBM25Weight, search.DefaultVectorWeight)
	default: // adaptive, rerank
		fused = search.AdaptiveFusion(queryIntent, bm25Results, vectorResults)
	}

	fused, err = search.ApplyCategoryBoost(ctx, c.store, fused, queryIntent, intentConfidence)
	if err != nil {
		return nil, err
	}
	fused, err = search.ApplyQualityMultiplier(ctx, c.store, fused)
	if err != nil {
		return nil, err
	}

	if c.config.Deduplicate {
		// One batched lookup for the whole fused list; a per-candidate
		// fetch here would turn dedup into N store round trips.
		docs, docErr := c.sourceDocsFor(ctx, fused)
		if docErr == nil {
			fused = search.Deduplicate(fused, func(id article.ID) string { return docs[id] })
		}
	}

	poolSize := topK
	var rerankMS float64
	if strategy == article.StrategyRerank && c.reranker != nil {
		poolSize = search.RerankPoolSize(topK)
	}
	if poolSize > len(fused) {
		poolSize = len(fused)
	}
	pool := fused[:poolSize]

	articles, err := c.store.GetArticles(ctx, idsOf(pool))
	if err != nil {
		return nil, err
	}
	byID := make(map[article.ID]*article.Article, len(articles))
	for _, a := range articles {
		byID[a.ID] = a
	}

	if strategy == article.StrategyRerank && c.reranker != nil {
		rerankStart := time.Now()
		inputs := make([]search.RerankInput, 0, len(pool))
		for _, cand := range pool {
			a := byID[cand.ArticleID]
			if a == nil {
				continue
			}
			inputs = append(inputs, search.RerankInput{Candidate: cand, Title: a.Title, Body: a.Body})
		}
		reranked, err := c.reranker.Rerank(ctx, req.Query, inputs)
		if err == nil {
			pool = reranked
		}
		rerankMS = msSince(rerankStart)
	}

	if len(pool) > topK {
		pool = pool[:topK]
	}

	if c.respCache != nil {
		c.respCache.Put(req.Query, strategy, topK, cache.Entry{
			Results:          pool,
			Intent:           queryIntent,
			IntentConfidence: intentConfidence,
		})
	}

	resp := &Response{
		QueryID:          queryID,
		Intent:           queryIntent,
		IntentConfidence: intentConfidence,
		FusionStrategy:   strategy,
		Results:          c.toResults(pool, byID),
	}
	resp.Metrics = Metrics{
		TotalMS:     msSince(start),
		EmbeddingMS: retrieved.embeddingMS,
		RetrievalMS: retrieved.searchMS,
		RerankMS:    rerankMS,
	}

	c.logQuery(queryID, req, queryIntent, intentConfidence, strategy, len(bm25Hits), len(vectorHits), len(resp.Results), resp.Metrics.TotalMS)

	return resp, nil
}

// retrieval carries both retrievers' hits plus how long the model call
// and the store searches each took, so Search can report them as separate
// stages.
type retrieval struct {
	bm25        []store.KeywordHit
	vector      []store.VectorHit
	embeddingMS float64
	searchMS    float64
}

// retrieve runs the keyword retriever and, if an embedder is configured,
// the embedding call concurrently; the vector retriever follows once the
// query vector exists. The keyword path never waits on embedding: it has
// no use for the query vector.
func (c *Coordinator) retrieve(ctx context.Context, query string) (retrieval, error) {
	var (
		wg        sync.WaitGroup
		r         retrieval
		keywordMS float64
		embedErr  error
		queryVec  []float32
	)

	searchStart := time.Now()
	wg.Add(2)
	go func() {
		defer wg.Done()
		hits, err := c.store.KeywordSearch(ctx, query, retrievalPoolSize)
		if err != nil {
			// A transient retriever failure degrades to no keyword
			// hits rather than failing the whole request.
			hits = nil
		}
		r.bm25 = hits
		keywordMS = msSince(searchStart)
	}()
	go func() {
		defer wg.Done()
		if c.embedder == nil {
			return
		}
		embedStart := time.Now()
		vec, err := c.embedder.EmbedWithRole(ctx, query, embed.RoleQuery)
		r.embeddingMS = msSince(embedStart)
		if err != nil {
			embedErr = err
			return
		}
		queryVec = vec
	}()
	wg.Wait()

	if embedErr != nil {
		return retrieval{}, embedErr
	}

	r.searchMS = keywordMS
	if len(queryVec) > 0 {
		vectorStart := time.Now()
		hits, err := c.store.VectorSearch(ctx, queryVec, retrievalPoolSize)
		if err == nil {
			r.vector = hits
		}
		r.searchMS += msSince(vectorStart)
	}

	return r, nil
}

// sourceDocsFor fetches the source document id of every candidate in one
// store call.
func (c *Coordinator) sourceDocsFor(ctx context.Context, candidates []article.CandidateResult) (map[article.ID]string, error) {
	articles, err := c.store.GetArticles(ctx, idsOf(candidates))
	if err != nil {
		return nil, err
	}
	docs := make(map[article.ID]string, len(articles))
	for _, a := range articles {
		docs[a.ID] = a.SourceDocumentID
	}
	return docs, nil
}

func (c *Coordinator) toResults(candidates []article.CandidateResult, byID map[article.ID]*article.Article) []Result {
	out := make([]Result, 0, len(candidates))
	for i, cand := range candidates {
		a := byID[cand.ArticleID]
		if a == nil {
			continue
		}
		out = append(out, Result{
			Rank:             i + 1,
			ArticleID:        a.ID,
			Title:            a.Title,
			Category:         a.Category,
			Preview:          a.ContentPreview(previewLength),
			SourceDocumentID: a.SourceDocumentID,
			HeadingPath:      a.HeadingPath,
			Score:            cand.FusionScore,
			BM25Score:        cand.BM25Score,
			VectorScore:      cand.VectorScore,
			RerankScore:      cand.RerankScore,
			HasRerank:        cand.HasRerank,
		})
	}
	return out
}

// materializeCached rebuilds a Response from a cached candidate list. The
// cache only stores post-pipeline candidates, so no fusion/boost/dedup
// work is repeated on a hit, only the article lookups needed to render
// rows.
func (c *Coordinator) materializeCached(ctx context.Context, candidates []article.CandidateResult, topK int) *Response {
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	articles, _ := c.store.GetArticles(ctx, idsOf(candidates))
	byID := make(map[article.ID]*article.Article, len(articles))
	for _, a := range articles {
		byID[a.ID] = a
	}
	return &Response{Results: c.toResults(candidates, byID)}
}

func (c *Coordinator) logQuery(queryID string, req Request, intentLabel article.Intent, intentConfidence float64, strategy article.FusionStrategy, bm25Count, vectorCount, resultCount int, responseTimeMS float64) {
	entry := article.QueryLogEntry{
		ID:                 queryID,
		QueryText:          req.Query,
		Intent:             intentLabel,
		IntentConfidence:   intentConfidence,
		BM25ResultsCount:   bm25Count,
		VectorResultsCount: vectorCount,
		ResultsReturned:    resultCount,
		ResponseTimeMS:     responseTimeMS,
		EfSearchUsed:       c.config.EfSearch,
		FusionStrategy:     strategy,
		CreatedAt:          time.Now(),
	}
	// Fire-and-forget: logging failures never affect the response
	// already sent to the caller.
	go func() {
		_ = c.store.AppendQueryLog(context.Background(), entry)
	}()
}

// SubmitFeedback validates and persists one user rating.
func (c *Coordinator) SubmitFeedback(ctx context.Context, entry article.FeedbackEntry) error {
	if entry.ResultRank < 1 || !entry.Rating.Valid() {
		return ErrInvalidQuery
	}
	if entry.ID == "" {
		entry.ID = generateID("f")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return c.store.AppendFeedback(ctx, entry)
}

// generateID creates a unique id with prefix, e.g. "q-3af1c02899d04b1e".
func generateID(prefix string) string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}

func idsOf(candidates []article.CandidateResult) []article.ID {
	ids := make([]article.ID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ArticleID
	}
	return ids
}

func keywordHitsToIndexResults(hits []store.KeywordHit) []search.IndexResult {
	out := make([]search.IndexResult, len(hits))
	for i, h := range hits {
		out[i] = search.IndexResult{ID: h.ArticleID, Score: h.Score}
	}
	return out
}

func vectorHitsToIndexResults(hits []store.VectorHit) []search.IndexResult {
	out := make([]search.IndexResult, len(hits))
	for i, h := range hits {
		out[i] = search.IndexResult{ID: h.ArticleID, Score: h.Score}
	}
	return out
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}
