package feedback

import (
	"context"
	"testing"

	"github.com/saagar210/AssistSupport/pkg/article"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(ratings ...article.Rating) []article.FeedbackEntry {
	out := make([]article.FeedbackEntry, len(ratings))
	for i, r := range ratings {
		out[i] = article.FeedbackEntry{ID: string(rune('a' + i)), Rating: r}
	}
	return out
}

func TestComputeQualityScoreBelowMinimumIsInsufficient(t *testing.T) {
	_, sufficient := ComputeQualityScore(entries(article.RatingHelpful, article.RatingHelpful))
	assert.False(t, sufficient)
}

func TestComputeQualityScoreMatchesReferenceFormula(t *testing.T) {
	// 3 helpful + 1 incorrect: score_sum = 3*1.0 + 1*(-0.5) = 2.5, ratio =
	// 2.5/4 = 0.625, weight = min(0.3, 4*0.02) = 0.08,
	// quality = 1 + (0.625-0.5)*0.08 = 1.01.
	score, sufficient := ComputeQualityScore(entries(
		article.RatingHelpful, article.RatingHelpful, article.RatingHelpful, article.RatingIncorrect,
	))
	require.True(t, sufficient)
	assert.InDelta(t, 1.01, score, 1e-6)
}

func TestComputeQualityScoreFiveHelpful(t *testing.T) {
	// 5 helpful, nothing else: ratio = 1.0, weight = min(0.3, 5*0.02) =
	// 0.10, quality = 1 + (1.0-0.5)*0.10 = 1.05.
	score, sufficient := ComputeQualityScore(entries(
		article.RatingHelpful, article.RatingHelpful, article.RatingHelpful,
		article.RatingHelpful, article.RatingHelpful,
	))
	require.True(t, sufficient)
	assert.InDelta(t, 1.05, score, 1e-9)
}

func TestComputeQualityScoreNeutralAtHalfRatio(t *testing.T) {
	// 2 helpful + 1 incorrect: score_sum = 2 - 0.5 = 1.5, ratio = 0.5,
	// so the (ratio - 0.5) term zeroes out and quality stays neutral.
	score, sufficient := ComputeQualityScore(entries(
		article.RatingHelpful, article.RatingHelpful, article.RatingIncorrect,
	))
	require.True(t, sufficient)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestComputeQualityScoreCapsWeightOnAllHelpful(t *testing.T) {
	all := make([]article.Rating, 100)
	for i := range all {
		all[i] = article.RatingHelpful
	}
	score, sufficient := ComputeQualityScore(entries(all...))
	require.True(t, sufficient)
	assert.InDelta(t, 1.15, score, 1e-9)
}

func TestComputeQualityScoreCapsWeightOnAllIncorrect(t *testing.T) {
	all := make([]article.Rating, 100)
	for i := range all {
		all[i] = article.RatingIncorrect
	}
	score, sufficient := ComputeQualityScore(entries(all...))
	require.True(t, sufficient)
	assert.InDelta(t, 0.85, score, 1e-9)
}

type fakeStore struct {
	ids      []article.ID
	feedback map[article.ID][]article.FeedbackEntry
	updated  map[article.ID]float64
}

func (f *fakeStore) ListArticleIDs(ctx context.Context) ([]article.ID, error) {
	return f.ids, nil
}

func (f *fakeStore) ListFeedbackForArticle(ctx context.Context, id article.ID) ([]article.FeedbackEntry, error) {
	return f.feedback[id], nil
}

func (f *fakeStore) UpdateQualityScore(ctx context.Context, id article.ID, score float64) error {
	if f.updated == nil {
		f.updated = make(map[article.ID]float64)
	}
	f.updated[id] = score
	return nil
}

func TestAggregatorRunOnceSkipsArticlesWithInsufficientFeedback(t *testing.T) {
	store := &fakeStore{
		ids: []article.ID{"article-1", "article-2"},
		feedback: map[article.ID][]article.FeedbackEntry{
			"article-1": entries(article.RatingHelpful, article.RatingHelpful, article.RatingHelpful, article.RatingIncorrect),
			"article-2": entries(article.RatingHelpful, article.RatingHelpful),
		},
	}

	agg := New(store, nil)
	updated, err := agg.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	assert.Contains(t, store.updated, article.ID("article-1"))
	assert.NotContains(t, store.updated, article.ID("article-2"))
}

func TestAggregatorRunOnceIsIdempotent(t *testing.T) {
	store := &fakeStore{
		ids: []article.ID{"article-1"},
		feedback: map[article.ID][]article.FeedbackEntry{
			"article-1": entries(article.RatingHelpful, article.RatingHelpful, article.RatingHelpful, article.RatingHelpful, article.RatingHelpful),
		},
	}

	agg := New(store, nil)
	_, err := agg.RunOnce(context.Background())
	require.NoError(t, err)
	first := store.updated[article.ID("article-1")]

	_, err = agg.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, store.updated[article.ID("article-1")])
}
