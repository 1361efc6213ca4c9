// Cross-encoder reranking is the optional second stage used when the
// fusion strategy is "rerank". Stage 1 (BM25 + vector + fusion) is fast
// but scores query and document independently; a cross-encoder sees the
// (query, document) pair together and catches relevance signal a
// bi-encoder can't, at the cost of one model call per candidate. That
// cost is why it only ever runs on a small pool, never the full result
// set.
//
// Reference: Nogueira & Cho (2019), "Passage Re-ranking with BERT".
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/saagar210/AssistSupport/pkg/article"
	"github.com/saagar210/AssistSupport/pkg/search/text"
)

// RerankPassageMaxLen is the cross-encoder's effective context window for
// one passage; anything past this is truncated after cleaning.
const RerankPassageMaxLen = 512

// FusionBlendWeight and RerankBlendWeight control how much the final score
// trusts retrieval (fusion) versus the cross-encoder. The blend is
// fusion-dominant by design: rerank breaks ties among already-relevant
// candidates, it doesn't override retrieval.
const (
	FusionBlendWeight = 0.85
	RerankBlendWeight = 0.15
)

// RerankPoolSize returns how many candidates the reranker considers for a
// request asking for topK results: min(2*topK, 20).
func RerankPoolSize(topK int) int {
	pool := topK * 2
	if pool > 20 {
		pool = 20
	}
	return pool
}

// CrossEncoderConfig configures the cross-encoder reranker.
type CrossEncoderConfig struct {
	Enabled bool

	// APIURL is the reranking service endpoint. Supports Cohere,
	// HuggingFace TEI, and a simple {rankings:[{index,score}]} format.
	APIURL string
	APIKey string
	Model  string

	Timeout  time.Duration
	MinScore float64
}

// DefaultCrossEncoderConfig returns sensible defaults; reranking is off
// until a caller opts in with a real APIURL.
func DefaultCrossEncoderConfig() *CrossEncoderConfig {
	return &CrossEncoderConfig{
		Enabled:  false,
		APIURL:   "http://localhost:8081/rerank",
		Model:    "cross-encoder/ms-marco-MiniLM-L-6-v2",
		Timeout:  30 * time.Second,
		MinScore: 0.0,
	}
}

// CrossEncoder reranks candidates by blending a cross-encoder relevance
// score into the existing fusion score.
type CrossEncoder struct {
	config *CrossEncoderConfig
	client *http.Client
}

// NewCrossEncoder creates a reranker. A nil config falls back to
// DefaultCrossEncoderConfig (i.e. disabled).
func NewCrossEncoder(config *CrossEncoderConfig) *CrossEncoder {
	if config == nil {
		config = DefaultCrossEncoderConfig()
	}
	return &CrossEncoder{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// RerankInput is one candidate plus the article fields needed to build its
// passage string.
type RerankInput struct {
	Candidate article.CandidateResult
	Title     string
	Body      string
}

// BuildPassage assembles and cleans the text the cross-encoder actually
// sees: "title. body", with Attachments/Related-Articles trailers
// stripped, whitespace collapsed, and the result capped at
// RerankPassageMaxLen characters.
func BuildPassage(title, body string) string {
	raw := title + ". " + body
	return text.CleanPassage(raw, RerankPassageMaxLen)
}

// Rerank scores each input against query, blends the normalized
// cross-encoder score into the normalized fusion score
// (FusionBlendWeight/RerankBlendWeight), resorts, and returns the updated
// candidates. On any API failure it returns the inputs' original
// candidates unchanged rather than failing the request: a broken
// reranker degrades to fusion-only ranking, it never turns into a 500.
func (ce *CrossEncoder) Rerank(ctx context.Context, query string, inputs []RerankInput) ([]article.CandidateResult, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if !ce.config.Enabled {
		return passThrough(inputs), nil
	}

	passages := make([]string, len(inputs))
	for i, in := range inputs {
		passages[i] = BuildPassage(in.Title, in.Body)
	}

	rawScores, err := ce.callRerankAPI(ctx, query, passages)
	if err != nil {
		return passThrough(inputs), nil
	}

	normRerank := minMaxNormalize(rawScores)

	fusionScores := make([]float64, len(inputs))
	for i, in := range inputs {
		fusionScores[i] = in.Candidate.FusionScore
	}
	normFusion := minMaxNormalize(fusionScores)

	out := make([]article.CandidateResult, len(inputs))
	for i, in := range inputs {
		c := in.Candidate
		c.RerankScore = rawScores[i]
		c.HasRerank = true
		c.FusionScore = FusionBlendWeight*normFusion[i] + RerankBlendWeight*normRerank[i]
		out[i] = c
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FusionScore != out[j].FusionScore {
			return out[i].FusionScore > out[j].FusionScore
		}
		return out[i].ArticleID < out[j].ArticleID
	})

	if ce.config.MinScore > 0 {
		filtered := out[:0]
		for _, c := range out {
			if c.RerankScore >= ce.config.MinScore {
				filtered = append(filtered, c)
			}
		}
		out = filtered
	}

	return out, nil
}

func passThrough(inputs []RerankInput) []article.CandidateResult {
	out := make([]article.CandidateResult, len(inputs))
	for i, in := range inputs {
		out[i] = in.Candidate
	}
	return out
}

// minMaxNormalize scales values to [0, 1]. When every value is equal
// (range-zero), it maps everything to 1.0 rather than dividing by zero;
// a flat set of scores shouldn't collapse to 0 and drop out of ranking.
func minMaxNormalize(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	out := make([]float64, len(values))
	rng := hi - lo
	if rng == 0 {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / rng
	}
	return out
}

// callRerankAPI posts (query, documents) to the configured endpoint and
// parses whichever of the three known response shapes comes back.
func (ce *CrossEncoder) callRerankAPI(ctx context.Context, query string, passages []string) ([]float64, error) {
	reqBody := map[string]interface{}{
		"query":     query,
		"documents": passages,
		"model":     ce.config.Model,
		"top_n":     len(passages),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ce.config.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ce.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+ce.config.APIKey)
	}

	resp, err := ce.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank API returned status %d", resp.StatusCode)
	}

	var result struct {
		// Cohere format
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`

		// HuggingFace TEI format
		Scores []float64 `json:"scores"`

		// Simple format
		Rankings []struct {
			Index int     `json:"index"`
			Score float64 `json:"score"`
		} `json:"rankings"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parse rerank response: %w", err)
	}

	scores := make([]float64, len(passages))

	if len(result.Results) > 0 {
		for _, r := range result.Results {
			if r.Index < len(scores) {
				scores[r.Index] = r.RelevanceScore
			}
		}
		return scores, nil
	}
	if len(result.Scores) > 0 {
		copy(scores, result.Scores)
		return scores, nil
	}
	if len(result.Rankings) > 0 {
		for _, r := range result.Rankings {
			if r.Index < len(scores) {
				scores[r.Index] = r.Score
			}
		}
		return scores, nil
	}

	return nil, fmt.Errorf("unrecognized rerank response shape")
}

// IsAvailable probes the reranker's health endpoint. A disabled reranker
// reports false without probing.
func (ce *CrossEncoder) IsAvailable(ctx context.Context) bool {
	if !ce.config.Enabled {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	healthURL := strings.TrimSuffix(ce.config.APIURL, "/rerank") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return false
	}

	resp, err := ce.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Config returns the reranker's current configuration.
func (ce *CrossEncoder) Config() *CrossEncoderConfig {
	return ce.config
}
