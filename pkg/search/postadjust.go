// Post-adjustment nudges fusion scores using signals the fusion stage
// doesn't see: the query's detected intent and each article's accumulated
// feedback quality. Both adjustments are bounded to the top 30 candidates
// so a long tail of low-relevance results never costs real CPU.
package search

import (
	"context"

	"github.com/saagar210/AssistSupport/pkg/article"
)

// ArticleLookup is the narrow slice of the store contract post-adjustment
// needs: fetching rows by id. Defined here (rather than importing
// pkg/store) so search has no dependency on a storage engine; any
// store.ArticleStore already satisfies this interface structurally.
type ArticleLookup interface {
	GetArticles(ctx context.Context, ids []article.ID) ([]*article.Article, error)
}

// PostAdjustPoolSize bounds how many top candidates category boost and
// quality multiplier touch. Candidates past this point are already
// unlikely to be returned, so re-scoring them isn't worth the lookups.
const PostAdjustPoolSize = 30

// CategoryBoostThreshold is the minimum intent confidence required before
// category boosting is applied at all. Below this, the intent signal is
// too weak to trust for reordering.
const CategoryBoostThreshold = 0.3

// CategoryBoostFactor is the multiplier applied to a candidate whose
// article category matches the intent's mapped category.
const CategoryBoostFactor = 1.20

// ApplyCategoryBoost multiplies the fusion score of every candidate (within
// the top PostAdjustPoolSize) whose article category matches the category
// mapped from intent, provided intentConfidence clears
// CategoryBoostThreshold. Results are re-sorted after boosting. A no-op
// when intent is unknown or confidence is too low.
func ApplyCategoryBoost(ctx context.Context, st ArticleLookup, candidates []article.CandidateResult, intent article.Intent, intentConfidence float64) ([]article.CandidateResult, error) {
	category, boostable := intent.Category()
	if !boostable || intentConfidence < CategoryBoostThreshold {
		return candidates, nil
	}

	pool := min(len(candidates), PostAdjustPoolSize)
	if pool == 0 {
		return candidates, nil
	}

	ids := make([]article.ID, pool)
	for i := 0; i < pool; i++ {
		ids[i] = candidates[i].ArticleID
	}

	articles, err := st.GetArticles(ctx, ids)
	if err != nil {
		return nil, err
	}
	categoryByID := make(map[article.ID]article.Category, len(articles))
	for _, a := range articles {
		categoryByID[a.ID] = a.Category
	}

	for i := 0; i < pool; i++ {
		if categoryByID[candidates[i].ArticleID] == category {
			candidates[i].FusionScore *= CategoryBoostFactor
		}
	}

	sortByScoreDesc(candidates)
	return candidates, nil
}

// ApplyQualityMultiplier multiplies the fusion score of every candidate
// (within the top PostAdjustPoolSize) by the article's quality_score,
// defaulting to article.QualityScoreDefault for articles with no recorded
// score. Results are re-sorted after adjustment.
func ApplyQualityMultiplier(ctx context.Context, st ArticleLookup, candidates []article.CandidateResult) ([]article.CandidateResult, error) {
	pool := min(len(candidates), PostAdjustPoolSize)
	if pool == 0 {
		return candidates, nil
	}

	ids := make([]article.ID, pool)
	for i := 0; i < pool; i++ {
		ids[i] = candidates[i].ArticleID
	}

	articles, err := st.GetArticles(ctx, ids)
	if err != nil {
		return nil, err
	}
	qualityByID := make(map[article.ID]float64, len(articles))
	for _, a := range articles {
		qualityByID[a.ID] = a.QualityScore
	}

	for i := 0; i < pool; i++ {
		quality, ok := qualityByID[candidates[i].ArticleID]
		if !ok || quality == 0 {
			quality = article.QualityScoreDefault
		}
		candidates[i].FusionScore *= quality
	}

	sortByScoreDesc(candidates)
	return candidates, nil
}
