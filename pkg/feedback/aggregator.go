// Package feedback turns accumulated user feedback (helpful / not_helpful
// / incorrect) into the per-article quality_score multiplier that the
// search post-adjustment stage applies to fusion scores.
//
// ELI12:
//
// Every time someone clicks "this helped" or "this was wrong" on a
// search result, that's one vote. An article needs at least a few votes
// before its score moves at all; one angry click shouldn't tank an
// article forever. Once there are enough votes, the article's score
// nudges up if most people found it helpful, and down if they didn't,
// but it can never move by more than 0.15 points in either direction.
package feedback

import (
	"context"
	"sync"
	"time"

	"github.com/saagar210/AssistSupport/pkg/article"
)

// MinFeedbackCount is the minimum number of feedback entries an article
// must have accumulated before its quality score is touched at all.
// Below this, there isn't enough signal to distinguish "genuinely
// unhelpful" from "one unlucky rating".
const MinFeedbackCount = 3

// MaxWeight caps how much the helpful ratio can move the score away from
// the neutral 1.0, regardless of how much feedback has piled up.
const MaxWeight = 0.3

// WeightPerFeedback is how much each additional feedback entry adds to
// the weight, before the MaxWeight cap applies.
const WeightPerFeedback = 0.02

// ratingValue maps a rating to its contribution toward the helpful-ratio
// numerator. "incorrect" counts as worse than simply unhelpful.
var ratingValue = map[article.Rating]float64{
	article.RatingHelpful:    1.0,
	article.RatingNotHelpful: 0.0,
	article.RatingIncorrect:  -0.5,
}

// Store is the narrow slice of the persistence contract the aggregator
// needs: list every article, pull its feedback, and write its recomputed
// score back. Defined locally so this package has no dependency on a
// concrete storage engine.
type Store interface {
	ListArticleIDs(ctx context.Context) ([]article.ID, error)
	ListFeedbackForArticle(ctx context.Context, id article.ID) ([]article.FeedbackEntry, error)
	UpdateQualityScore(ctx context.Context, id article.ID, score float64) error
}

// ComputeQualityScore aggregates entries into a single quality score for
// one article. Returns (score, true) if entries meets MinFeedbackCount,
// or (article.QualityScoreDefault, false) otherwise. The caller decides
// whether "not enough feedback" means "leave the existing score alone"
// or "reset to neutral".
func ComputeQualityScore(entries []article.FeedbackEntry) (float64, bool) {
	total := len(entries)
	if total < MinFeedbackCount {
		return article.QualityScoreDefault, false
	}

	var scoreSum float64
	for _, e := range entries {
		scoreSum += ratingValue[e.Rating]
	}

	helpfulRatio := scoreSum / float64(total)
	if helpfulRatio < 0 {
		helpfulRatio = 0
	}

	weight := float64(total) * WeightPerFeedback
	if weight > MaxWeight {
		weight = MaxWeight
	}

	quality := 1.0 + (helpfulRatio-0.5)*weight
	return article.ClampQuality(quality), true
}

// Config controls the aggregator's background sweep cadence.
type Config struct {
	// Interval between full sweeps. Default: 1 hour.
	Interval time.Duration
}

// DefaultConfig returns the aggregator's default sweep cadence.
func DefaultConfig() *Config {
	return &Config{Interval: time.Hour}
}

// Aggregator periodically recomputes quality_score for every article with
// sufficient feedback and writes the result back to the store.
type Aggregator struct {
	store  Store
	config *Config

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Aggregator against store. A nil config uses DefaultConfig.
func New(store Store, config *Config) *Aggregator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Aggregator{store: store, config: config}
}

// RunOnce sweeps every article once, recomputing and persisting its
// quality score where enough feedback exists. Returns the number of
// articles whose score was updated.
func (a *Aggregator) RunOnce(ctx context.Context) (int, error) {
	ids, err := a.store.ListArticleIDs(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, id := range ids {
		entries, err := a.store.ListFeedbackForArticle(ctx, id)
		if err != nil {
			return updated, err
		}

		score, sufficient := ComputeQualityScore(entries)
		if !sufficient {
			continue
		}

		if err := a.store.UpdateQualityScore(ctx, id, score); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// Start begins periodic background sweeps at config.Interval. Non-blocking;
// always call Stop to release the goroutine.
func (a *Aggregator) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return // already running
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.ctx = runCtx
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ticker := time.NewTicker(a.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				_, _ = a.RunOnce(runCtx)
			}
		}
	}()
}

// Stop cancels the background sweep and waits for it to exit.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		a.wg.Wait()
	}
}
