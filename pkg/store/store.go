// Package store defines the persistence contract the retrieval core runs
// against, plus a Badger-backed implementation and an in-memory one for
// tests and single-binary demos.
//
// The core never talks to BadgerDB directly; it only ever sees the
// ArticleStore interface. That's what lets pkg/search and pkg/coordinator
// run unit tests against MemoryStore in microseconds instead of opening a
// database for every test case.
package store

import (
	"context"
	"time"

	"github.com/saagar210/AssistSupport/pkg/article"
)

// KeywordHit is one row of a keyword (BM25) search result.
type KeywordHit struct {
	ArticleID article.ID
	Score     float64
}

// VectorHit is one row of an ANN search result. Score is cosine similarity
// in [-1, 1], though in practice article embeddings are unit vectors so
// the useful range is [0, 1].
type VectorHit struct {
	ArticleID article.ID
	Score     float64
}

// ANNConfig tunes the approximate nearest-neighbor search. EfSearch trades
// recall for latency: higher values search more of the graph per query.
type ANNConfig struct {
	EfSearch int
}

// ArticleStore is the contract the coordinator and the search package
// build on. Everything above this interface is storage-engine agnostic;
// everything below it is free to be BadgerDB, Postgres, or an in-memory
// map, as long as it honors the method semantics below.
//
// Category filtering, active-only filtering, and result ordering are the
// store's responsibility for KeywordSearch and VectorSearch: callers
// never see inactive articles and never need to re-sort by score.
type ArticleStore interface {
	// KeywordSearch returns up to limit (article_id, bm25_score) pairs
	// for query, ordered by descending score. Only active articles are
	// eligible. An empty result (not an error) is the correct response
	// to a query that matches nothing.
	KeywordSearch(ctx context.Context, query string, limit int) ([]KeywordHit, error)

	// VectorSearch returns up to limit (article_id, cosine_score) pairs
	// for the query embedding, ordered by descending score. Only active
	// articles with a non-nil embedding are eligible.
	VectorSearch(ctx context.Context, embedding []float32, limit int) ([]VectorHit, error)

	// SetANNConfig adjusts per-session ANN tuning (e.g. ef_search). It
	// takes effect for subsequent VectorSearch calls on this store
	// handle; implementations that share one handle across goroutines
	// must make this safe for concurrent use alongside VectorSearch.
	SetANNConfig(cfg ANNConfig)

	// GetArticles fetches a row for each id present in the store. Ids
	// that don't resolve (deleted, never existed, inactive) are simply
	// omitted from the result rather than causing an error.
	GetArticles(ctx context.Context, ids []article.ID) ([]*article.Article, error)

	// PutArticle inserts or replaces an article and reindexes it for
	// keyword and vector search in the same call.
	PutArticle(ctx context.Context, a *article.Article) error

	// UpdateQualityScore updates only the quality_score column for id.
	// It never touches content, embeddings, or indexes, so it's cheap
	// enough to call once per article on every feedback aggregation
	// pass.
	UpdateQualityScore(ctx context.Context, id article.ID, score float64) error

	// AppendQueryLog persists one query_log row. Callers treat failures
	// as non-fatal: logging never blocks or fails a search request.
	AppendQueryLog(ctx context.Context, entry article.QueryLogEntry) error

	// AppendFeedback persists one feedback row.
	AppendFeedback(ctx context.Context, entry article.FeedbackEntry) error

	// ListFeedbackForArticle returns every feedback row recorded against
	// id, in no particular order. Used by the feedback aggregator to
	// recompute a single article's quality score.
	ListFeedbackForArticle(ctx context.Context, id article.ID) ([]article.FeedbackEntry, error)

	// ListArticleIDs returns every active article id currently indexed.
	// Used by the aggregator's full sweep and by index-rebuild tooling.
	ListArticleIDs(ctx context.Context) ([]article.ID, error)

	// ListQueryLog returns every query_log row recorded at or after
	// since. Used by the stats endpoint to compute latency percentiles,
	// fusion-strategy mix, and intent distribution over a trailing
	// window.
	ListQueryLog(ctx context.Context, since time.Time) ([]article.QueryLogEntry, error)

	// ListFeedback returns every feedback row recorded at or after
	// since, regardless of article. Used by the stats endpoint to
	// compute feedback rating counts over a trailing window.
	ListFeedback(ctx context.Context, since time.Time) ([]article.FeedbackEntry, error)

	// Close releases underlying resources (file handles, connections).
	Close() error
}
