// Package search implements the retrieval and fusion core: a BM25
// keyword index, a flat/HNSW vector index, reciprocal-rank and weighted
// score fusion, category/quality post-adjustment, deduplication, and
// optional cross-encoder reranking.
package search

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/saagar210/AssistSupport/pkg/article"
	"github.com/saagar210/AssistSupport/pkg/search/text"
)

// BM25 parameters (Robertson/Sparck-Jones defaults).
const (
	bm25K1 = 1.2  // term-frequency saturation point
	bm25B  = 0.75 // how strongly document length is penalized
)

// posting is one (document, frequency) pair for a term.
type posting struct {
	doc  article.ID
	freq int
}

// FulltextIndex is a BM25-scored inverted index over article bodies.
//
// Terms are kept in per-term postings lists rather than a nested map, and
// a sorted view of the vocabulary (sortedTerms) is rebuilt lazily on the
// first Search after any Index/Remove, so a prefix query only has to walk
// the contiguous slice range that actually starts with the prefix instead
// of every term in the vocabulary.
type FulltextIndex struct {
	mu sync.RWMutex

	bodies      map[article.ID]string
	postings    map[string][]posting
	docLength   map[article.ID]int
	totalLength int
	docCount    int

	sortedTerms []string
	termsStale  bool
}

// NewFulltextIndex creates an empty BM25 index.
func NewFulltextIndex() *FulltextIndex {
	return &FulltextIndex{
		bodies:    make(map[article.ID]string),
		postings:  make(map[string][]posting),
		docLength: make(map[article.ID]int),
	}
}

// Index adds or replaces the indexed text for id. Callers normally pass
// the article's title and body concatenated so a match on either field
// surfaces the article.
func (f *FulltextIndex) Index(id article.ID, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.removeLocked(id)

	tokens := text.Tokenize(body)
	if len(tokens) == 0 {
		return
	}

	f.bodies[id] = body
	f.docLength[id] = len(tokens)
	f.totalLength += len(tokens)
	f.docCount++

	for term, freq := range termFrequencies(tokens) {
		f.postings[term] = append(f.postings[term], posting{doc: id, freq: freq})
	}
	f.termsStale = true
}

// Remove drops id from the index.
func (f *FulltextIndex) Remove(id article.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(id)
}

func (f *FulltextIndex) removeLocked(id article.ID) {
	body, ok := f.bodies[id]
	if !ok {
		return
	}

	for term := range termFrequencies(text.Tokenize(body)) {
		list := f.postings[term]
		kept := list[:0:0]
		for _, p := range list {
			if p.doc != id {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(f.postings, term)
		} else {
			f.postings[term] = kept
		}
	}

	f.totalLength -= f.docLength[id]
	delete(f.bodies, id)
	delete(f.docLength, id)
	f.docCount--
	f.termsStale = true
}

// IndexResult is one scored hit from the fulltext or vector index.
type IndexResult struct {
	ID    article.ID
	Score float64
}

// Search runs BM25 scoring and returns up to limit hits, best first.
// Query terms also match as a prefix against longer indexed terms
// (discounted 0.8x) so "config" surfaces documents containing
// "configuration".
func (f *FulltextIndex) Search(query string, limit int) []IndexResult {
	f.mu.Lock()
	f.refreshSortedTermsLocked()
	f.mu.Unlock()

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.docCount == 0 {
		return nil
	}

	queryTerms := text.Tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	scores := make(map[article.ID]float64)
	seen := make(map[string]bool, len(queryTerms))

	for _, term := range queryTerms {
		if seen[term] {
			continue
		}
		seen[term] = true

		f.accumulate(scores, term, 1.0)
		for _, extended := range f.termsWithPrefix(term) {
			if extended == term {
				continue
			}
			f.accumulate(scores, extended, 0.8)
		}
	}

	results := make([]IndexResult, 0, len(scores))
	for id, score := range scores {
		results = append(results, IndexResult{ID: id, Score: score})
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
	return results
}

// accumulate adds term's BM25 contribution, scaled by weight, into scores
// for every document that contains it.
func (f *FulltextIndex) accumulate(scores map[article.ID]float64, term string, weight float64) {
	list := f.postings[term]
	if len(list) == 0 {
		return
	}
	idf := f.idf(len(list))
	avgLen := f.averageDocLength()
	for _, p := range list {
		scores[p.doc] += weight * idf * f.saturatedFrequency(p.freq, f.docLength[p.doc], avgLen)
	}
}

// saturatedFrequency is the BM25 term-frequency component: frequency
// grows the score with diminishing returns, and documents longer than
// average are discounted by bm25B so a term's sheer repetition in a long
// document doesn't dominate a precise short match.
func (f *FulltextIndex) saturatedFrequency(freq, docLen int, avgLen float64) float64 {
	if avgLen == 0 {
		return 0
	}
	tf := float64(freq)
	lengthNorm := 1 - bm25B + bm25B*(float64(docLen)/avgLen)
	return (tf * (bm25K1 + 1)) / (tf + bm25K1*lengthNorm)
}

// idf is the Lucene/Elasticsearch +0.5-smoothed BM25 IDF formula, which
// stays non-negative even for a term appearing in most documents.
func (f *FulltextIndex) idf(docFreq int) float64 {
	n := float64(f.docCount)
	df := float64(docFreq)
	v := math.Log(1 + (n-df+0.5)/(df+0.5))
	if v < 0 {
		return 0
	}
	return v
}

func (f *FulltextIndex) averageDocLength() float64 {
	if f.docCount == 0 {
		return 0
	}
	return float64(f.totalLength) / float64(f.docCount)
}

// termsWithPrefix returns every indexed term starting with prefix,
// including prefix itself if indexed, using the contiguous range of
// sortedTerms located by two binary searches rather than scanning the
// whole vocabulary.
func (f *FulltextIndex) termsWithPrefix(prefix string) []string {
	lo := sort.SearchStrings(f.sortedTerms, prefix)
	hi := lo
	for hi < len(f.sortedTerms) && strings.HasPrefix(f.sortedTerms[hi], prefix) {
		hi++
	}
	return f.sortedTerms[lo:hi]
}

func (f *FulltextIndex) refreshSortedTermsLocked() {
	if !f.termsStale && f.sortedTerms != nil {
		return
	}
	terms := make([]string, 0, len(f.postings))
	for term := range f.postings {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	f.sortedTerms = terms
	f.termsStale = false
}

func termFrequencies(tokens []string) map[string]int {
	freq := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freq[tok]++
	}
	return freq
}

// Count returns the number of indexed documents.
func (f *FulltextIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.docCount
}

// GetDocument returns the indexed text for id.
func (f *FulltextIndex) GetDocument(id article.ID) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	body, ok := f.bodies[id]
	return body, ok
}
