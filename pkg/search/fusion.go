// Score fusion combines a keyword (BM25) ranked list and a vector (cosine)
// ranked list into one ranked candidate list. Three strategies are
// available; all three take the same two input lists and return a single
// descending-score list with no duplicate ids.
package search

import (
	"sort"

	"github.com/saagar210/AssistSupport/pkg/article"
)

// DefaultRRFK is the rank-offset constant in the RRF formula. Larger values
// flatten the influence of rank 1 vs rank 10; 60 is the standard choice
// from the original reciprocal-rank-fusion paper.
const DefaultRRFK = 60

// DefaultBM25Weight and DefaultVectorWeight are the weighted-combination
// defaults used when a caller doesn't pick adaptive-per-intent weights.
const (
	DefaultBM25Weight   = 0.3
	DefaultVectorWeight = 0.6
)

// weightedFloor is the minimum denominator used when normalizing BM25
// scores by their max, so a corpus with one weak match doesn't blow up a
// tiny score into 1.0.
const weightedFloor = 0.01

// adaptiveWeights maps intent to the (bm25, vector) weight pair used by
// Adaptive Fusion. Policy and reference lean harder on the vector side
// ("am I allowed" and definitional queries are semantic questions);
// procedure queries carry salient keywords and keep more BM25 weight.
var adaptiveWeights = map[article.Intent][2]float64{
	article.IntentPolicy:    {0.35, 0.65},
	article.IntentProcedure: {0.40, 0.60},
	article.IntentReference: {0.20, 0.80},
	article.IntentUnknown:   {0.30, 0.70},
}

// RRFFusion combines bm25 and vector rankings with Reciprocal Rank Fusion:
// score(id) = sum over lists containing id of 1/(k + rank), rank 1-based.
func RRFFusion(bm25, vector []IndexResult, k int) []article.CandidateResult {
	if k <= 0 {
		k = DefaultRRFK
	}

	bm25Rank := rankOf(bm25)
	vectorRank := rankOf(vector)
	bm25Score := scoreOf(bm25)
	vectorScore := scoreOf(vector)

	ids := unionIDs(bm25, vector)
	results := make([]article.CandidateResult, 0, len(ids))
	for id := range ids {
		var fused float64
		br, hasB := bm25Rank[id]
		vr, hasV := vectorRank[id]
		if hasB {
			fused += 1.0 / float64(k+br)
		}
		if hasV {
			fused += 1.0 / float64(k+vr)
		}
		results = append(results, article.CandidateResult{
			ArticleID:   id,
			BM25Score:   bm25Score[id],
			VectorScore: vectorScore[id],
			FusionScore: fused,
			BM25Rank:    br,
			VectorRank:  vr,
		})
	}

	sortByScoreDesc(results)
	return results
}

// WeightedFusion normalizes both lists to [0, 1] and combines them as
// wB*norm(bm25) + wV*norm(vector). BM25 scores normalize by division by
// the list max (floored at weightedFloor to avoid a single weak match
// dominating); negative BM25 scores normalize to <= 0 and are then
// clipped to 0 so the final score never goes negative. Vector scores are
// clipped directly to [0, 1] since cosine similarity on normalized
// vectors is already scaled.
func WeightedFusion(bm25, vector []IndexResult, wB, wV float64) []article.CandidateResult {
	bm25Score := scoreOf(bm25)
	vectorScore := scoreOf(vector)
	bm25Rank := rankOf(bm25)
	vectorRank := rankOf(vector)

	bm25Max := weightedFloor
	for _, r := range bm25 {
		if r.Score > bm25Max {
			bm25Max = r.Score
		}
	}

	ids := unionIDs(bm25, vector)
	results := make([]article.CandidateResult, 0, len(ids))
	for id := range ids {
		normB := clip01(bm25Score[id] / bm25Max)
		normV := clip01(vectorScore[id])

		results = append(results, article.CandidateResult{
			ArticleID:   id,
			BM25Score:   bm25Score[id],
			VectorScore: vectorScore[id],
			FusionScore: wB*normB + wV*normV,
			BM25Rank:    bm25Rank[id],
			VectorRank:  vectorRank[id],
		})
	}

	sortByScoreDesc(results)
	return results
}

// AdaptiveFusion runs Weighted Combination with weights chosen by intent.
// An unrecognized intent uses the unknown pair (0.30, 0.70).
func AdaptiveFusion(intent article.Intent, bm25, vector []IndexResult) []article.CandidateResult {
	weights, ok := adaptiveWeights[intent]
	if !ok {
		weights = adaptiveWeights[article.IntentUnknown]
	}
	return WeightedFusion(bm25, vector, weights[0], weights[1])
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func rankOf(results []IndexResult) map[article.ID]int {
	m := make(map[article.ID]int, len(results))
	for i, r := range results {
		m[r.ID] = i + 1
	}
	return m
}

func scoreOf(results []IndexResult) map[article.ID]float64 {
	m := make(map[article.ID]float64, len(results))
	for _, r := range results {
		m[r.ID] = r.Score
	}
	return m
}

func unionIDs(a, b []IndexResult) map[article.ID]struct{} {
	ids := make(map[article.ID]struct{}, len(a)+len(b))
	for _, r := range a {
		ids[r.ID] = struct{}{}
	}
	for _, r := range b {
		ids[r.ID] = struct{}{}
	}
	return ids
}

func sortByScoreDesc(results []article.CandidateResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].FusionScore != results[j].FusionScore {
			return results[i].FusionScore > results[j].FusionScore
		}
		return results[i].ArticleID < results[j].ArticleID
	})
}
