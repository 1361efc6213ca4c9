// BadgerStore is the persistent ArticleStore implementation, backed by
// BadgerDB for articles/query_log/feedback rows and by an in-process
// search.FulltextIndex + search.HNSWIndex for the BM25 and ANN search
// paths. BadgerDB has no native full-text or vector index, so this store
// rebuilds its in-memory indexes from the persisted rows at open time and
// keeps them in sync on every write.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/saagar210/AssistSupport/pkg/article"
	"github.com/saagar210/AssistSupport/pkg/search"
)

// Key prefixes for BadgerDB storage organization. Single-byte prefixes
// keep key comparisons and prefix scans cheap.
const (
	prefixArticle           = byte(0x01) // article:id -> JSON(articleRecord)
	prefixQueryLog          = byte(0x02) // querylog:id -> JSON(article.QueryLogEntry)
	prefixFeedback          = byte(0x03) // feedback:id -> JSON(article.FeedbackEntry)
	prefixFeedbackByArticle = byte(0x04) // feedbackidx:articleID:feedbackID -> empty
)

// BadgerOptions configures the BadgerDB-backed store.
type BadgerOptions struct {
	// DataDir is the directory for storing data files. Required unless
	// InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode. Data is not persisted;
	// useful for tests that want real transaction semantics without
	// touching disk.
	InMemory bool

	// SyncWrites forces fsync after each write. Slower but more durable.
	SyncWrites bool

	// HNSW overrides the vector index's construction/search parameters.
	// Zero value uses search.DefaultHNSWConfig.
	HNSW search.HNSWConfig
}

// BadgerStore is a persistent ArticleStore.
type BadgerStore struct {
	db *badger.DB

	mu         sync.RWMutex
	fulltext   *search.FulltextIndex
	vector     *search.HNSWIndex
	dimensions int
	annConfig  ANNConfig
	hnswConfig search.HNSWConfig

	closed bool
}

// NewBadgerStore opens (or creates) a BadgerDB-backed store at dataDir and
// rebuilds its in-memory search indexes from whatever articles are
// already persisted there.
func NewBadgerStore(dataDir string) (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerStoreInMemory opens an in-memory BadgerDB store. Data is lost
// when the store is closed. Intended for tests that want transactional
// semantics without disk I/O.
func NewBadgerStoreInMemory() (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{InMemory: true})
}

// NewBadgerStoreWithOptions opens a store with full control over Badger's
// durability and the ANN index's construction parameters.
func NewBadgerStoreWithOptions(opts BadgerOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.WithLogger(nil)

	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	hnswConfig := opts.HNSW
	if hnswConfig.M == 0 {
		hnswConfig = search.DefaultHNSWConfig()
	}

	bs := &BadgerStore{
		db:         db,
		fulltext:   search.NewFulltextIndex(),
		hnswConfig: hnswConfig,
		annConfig:  ANNConfig{EfSearch: hnswConfig.EfSearch},
	}

	if err := bs.rebuildIndexes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("rebuild indexes: %w", err)
	}

	return bs, nil
}

// articleRecord is the on-disk encoding for an article. It's a thin
// wrapper rather than article.Article itself so timestamps round-trip as
// Unix seconds instead of depending on time.Time's JSON format staying
// stable across Go versions.
type articleRecord struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Body             string    `json:"body"`
	Category         string    `json:"category"`
	SourceDocumentID string    `json:"source_document_id,omitempty"`
	ChunkIndex       int       `json:"chunk_index"`
	HeadingPath      string    `json:"heading_path,omitempty"`
	Embedding        []float32 `json:"embedding,omitempty"`
	EmbeddingModel   string    `json:"embedding_model,omitempty"`
	EmbeddingVersion int       `json:"embedding_version,omitempty"`
	IsActive         bool      `json:"is_active"`
	QualityScore     float64   `json:"quality_score"`
	CreatedAtUnix    int64     `json:"created_at"`
	UpdatedAtUnix    int64     `json:"updated_at"`
}

func encodeArticle(a *article.Article) ([]byte, error) {
	rec := articleRecord{
		ID:               string(a.ID),
		Title:            a.Title,
		Body:             a.Body,
		Category:         string(a.Category),
		SourceDocumentID: a.SourceDocumentID,
		ChunkIndex:       a.ChunkIndex,
		HeadingPath:      a.HeadingPath,
		Embedding:        a.Embedding,
		EmbeddingModel:   a.EmbeddingModel,
		EmbeddingVersion: a.EmbeddingVersion,
		IsActive:         a.IsActive,
		QualityScore:     a.QualityScore,
		CreatedAtUnix:    a.CreatedAt.Unix(),
		UpdatedAtUnix:    a.UpdatedAt.Unix(),
	}
	return json.Marshal(rec)
}

func decodeArticle(data []byte) (*article.Article, error) {
	var rec articleRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &article.Article{
		ID:               article.ID(rec.ID),
		Title:            rec.Title,
		Body:             rec.Body,
		Category:         article.Category(rec.Category),
		SourceDocumentID: rec.SourceDocumentID,
		ChunkIndex:       rec.ChunkIndex,
		HeadingPath:      rec.HeadingPath,
		Embedding:        rec.Embedding,
		EmbeddingModel:   rec.EmbeddingModel,
		EmbeddingVersion: rec.EmbeddingVersion,
		IsActive:         rec.IsActive,
		QualityScore:     rec.QualityScore,
		CreatedAt:        unixToTime(rec.CreatedAtUnix),
		UpdatedAt:        unixToTime(rec.UpdatedAtUnix),
	}, nil
}

func unixToTime(unix int64) time.Time {
	if unix <= 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}

func articleKey(id article.ID) []byte {
	return append([]byte{prefixArticle}, []byte(id)...)
}

func queryLogKey(id string) []byte {
	return append([]byte{prefixQueryLog}, []byte(id)...)
}

func feedbackKey(id string) []byte {
	return append([]byte{prefixFeedback}, []byte(id)...)
}

func feedbackIndexKey(articleID article.ID, feedbackID string) []byte {
	key := make([]byte, 0, 1+len(articleID)+1+len(feedbackID))
	key = append(key, prefixFeedbackByArticle)
	key = append(key, []byte(articleID)...)
	key = append(key, 0x00)
	key = append(key, []byte(feedbackID)...)
	return key
}

func feedbackIndexPrefix(articleID article.ID) []byte {
	key := make([]byte, 0, 1+len(articleID)+1)
	key = append(key, prefixFeedbackByArticle)
	key = append(key, []byte(articleID)...)
	key = append(key, 0x00)
	return key
}

// rebuildIndexes scans every persisted article and repopulates the
// fulltext and vector indexes. Called once at open time; after that,
// PutArticle keeps both indexes in sync incrementally.
func (b *BadgerStore) rebuildIndexes() error {
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte{prefixArticle}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				a, err := decodeArticle(val)
				if err != nil {
					return err
				}
				b.indexArticleLocked(a)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// indexArticleLocked updates the in-memory fulltext/vector indexes for a.
// Caller must hold b.mu for writing.
func (b *BadgerStore) indexArticleLocked(a *article.Article) {
	if !a.IsActive {
		b.fulltext.Remove(a.ID)
		if b.vector != nil {
			b.vector.Remove(a.ID)
		}
		return
	}

	b.fulltext.Index(a.ID, a.Title+" "+a.Body)

	if len(a.Embedding) == 0 {
		return
	}
	if b.vector == nil {
		b.dimensions = len(a.Embedding)
		b.vector = search.NewHNSWIndex(b.dimensions, b.hnswConfig)
	}
	if len(a.Embedding) != b.dimensions {
		return // dimension mismatch: skip rather than corrupt the index
	}
	_ = b.vector.Add(a.ID, a.Embedding)
}

func (b *BadgerStore) KeywordSearch(ctx context.Context, query string, limit int) ([]KeywordHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	hits := b.fulltext.Search(query, limit)
	out := make([]KeywordHit, len(hits))
	for i, h := range hits {
		out[i] = KeywordHit{ArticleID: h.ID, Score: h.Score}
	}
	return out, nil
}

func (b *BadgerStore) VectorSearch(ctx context.Context, embedding []float32, limit int) ([]VectorHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(embedding) == 0 {
		return nil, nil
	}

	b.mu.RLock()
	vectorIndex := b.vector
	b.mu.RUnlock()

	if vectorIndex == nil {
		return nil, nil
	}

	hits, err := vectorIndex.Search(ctx, embedding, limit, -1.0)
	if err != nil {
		return nil, err
	}
	out := make([]VectorHit, len(hits))
	for i, h := range hits {
		out[i] = VectorHit{ArticleID: h.ID, Score: h.Score}
	}
	return out, nil
}

func (b *BadgerStore) SetANNConfig(cfg ANNConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.annConfig = cfg
	if cfg.EfSearch > 0 {
		// Keep the construction config in sync too, so an index created
		// lazily by a later PutArticle starts with the requested ef.
		b.hnswConfig.EfSearch = cfg.EfSearch
		if b.vector != nil {
			b.vector.SetEfSearch(cfg.EfSearch)
		}
	}
}

func (b *BadgerStore) GetArticles(ctx context.Context, ids []article.ID) ([]*article.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]*article.Article, 0, len(ids))
	err := b.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(articleKey(id))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				a, err := decodeArticle(val)
				if err != nil {
					return err
				}
				if a.IsActive {
					out = append(out, a)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (b *BadgerStore) PutArticle(ctx context.Context, a *article.Article) error {
	if a == nil || a.ID == "" {
		return article.ErrInvalidInput
	}
	if b.isClosed() {
		return article.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Default before clamping: clamping a zero value would floor it to
	// QualityScoreMin instead of the neutral default.
	if a.QualityScore == 0 {
		a.QualityScore = article.QualityScoreDefault
	}
	a.QualityScore = article.ClampQuality(a.QualityScore)

	data, err := encodeArticle(a)
	if err != nil {
		return fmt.Errorf("encode article: %w", err)
	}

	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(articleKey(a.ID), data)
	}); err != nil {
		return err
	}

	b.mu.Lock()
	b.indexArticleLocked(a)
	b.mu.Unlock()
	return nil
}

func (b *BadgerStore) UpdateQualityScore(ctx context.Context, id article.ID, score float64) error {
	if b.isClosed() {
		return article.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		key := articleKey(id)
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return article.ErrNotFound
		}
		if err != nil {
			return err
		}

		var a *article.Article
		if err := item.Value(func(val []byte) error {
			var decodeErr error
			a, decodeErr = decodeArticle(val)
			return decodeErr
		}); err != nil {
			return err
		}

		a.QualityScore = article.ClampQuality(score)
		data, err := encodeArticle(a)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

func (b *BadgerStore) AppendQueryLog(ctx context.Context, entry article.QueryLogEntry) error {
	if b.isClosed() {
		return article.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(queryLogKey(entry.ID), data)
	})
}

func (b *BadgerStore) AppendFeedback(ctx context.Context, entry article.FeedbackEntry) error {
	if b.isClosed() {
		return article.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(feedbackKey(entry.ID), data); err != nil {
			return err
		}
		if entry.ArticleID != "" {
			if err := txn.Set(feedbackIndexKey(entry.ArticleID, entry.ID), []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerStore) ListFeedbackForArticle(ctx context.Context, id article.ID) ([]article.FeedbackEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []article.FeedbackEntry
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := feedbackIndexPrefix(id)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			feedbackID := it.Item().Key()[len(prefix):]

			item, err := txn.Get(feedbackKey(string(feedbackID)))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				var entry article.FeedbackEntry
				if err := json.Unmarshal(val, &entry); err != nil {
					return err
				}
				out = append(out, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (b *BadgerStore) ListArticleIDs(ctx context.Context) ([]article.ID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []article.ID
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte{prefixArticle}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				a, err := decodeArticle(val)
				if err != nil {
					return err
				}
				if a.IsActive {
					ids = append(ids, a.ID)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return ids, err
}

func (b *BadgerStore) ListQueryLog(ctx context.Context, since time.Time) ([]article.QueryLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []article.QueryLogEntry
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte{prefixQueryLog}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var entry article.QueryLogEntry
				if err := json.Unmarshal(val, &entry); err != nil {
					return err
				}
				if !entry.CreatedAt.Before(since) {
					out = append(out, entry)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (b *BadgerStore) ListFeedback(ctx context.Context, since time.Time) ([]article.FeedbackEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []article.FeedbackEntry
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte{prefixFeedback}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var entry article.FeedbackEntry
				if err := json.Unmarshal(val, &entry); err != nil {
					return err
				}
				if !entry.CreatedAt.Before(since) {
					out = append(out, entry)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (b *BadgerStore) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

var _ ArticleStore = (*BadgerStore)(nil)
