package coordinator

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/saagar210/AssistSupport/pkg/article"
)

// LatencyPercentiles summarizes a set of response times, in milliseconds.
type LatencyPercentiles struct {
	Avg float64
	P50 float64
	P95 float64
	P99 float64
}

// Stats is the aggregated view the /stats endpoint serves: counters and
// latency percentiles over a trailing window, plus the intent and
// feedback-rating distributions observed in it.
type Stats struct {
	QueriesTotal      int
	QueriesInWindow   int
	Window            time.Duration
	Latency           LatencyPercentiles
	IntentCounts      map[article.Intent]int
	FusionStrategyMix map[article.FusionStrategy]int
	FeedbackCounts    map[article.Rating]int
}

// Stats computes aggregate counters over the trailing window. QueriesTotal
// counts every query ever logged, independent of window.
func (c *Coordinator) Stats(ctx context.Context, window time.Duration) (*Stats, error) {
	all, err := c.store.ListQueryLog(ctx, time.Time{})
	if err != nil {
		return nil, err
	}

	since := time.Now().Add(-window)
	windowed, err := c.store.ListQueryLog(ctx, since)
	if err != nil {
		return nil, err
	}

	feedback, err := c.store.ListFeedback(ctx, since)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		QueriesTotal:      len(all),
		QueriesInWindow:   len(windowed),
		Window:            window,
		IntentCounts:      make(map[article.Intent]int),
		FusionStrategyMix: make(map[article.FusionStrategy]int),
		FeedbackCounts:    make(map[article.Rating]int),
	}

	latencies := make([]float64, 0, len(windowed))
	for _, q := range windowed {
		latencies = append(latencies, q.ResponseTimeMS)
		stats.IntentCounts[q.Intent]++
		stats.FusionStrategyMix[q.FusionStrategy]++
	}
	stats.Latency = computePercentiles(latencies)

	for _, f := range feedback {
		stats.FeedbackCounts[f.Rating]++
	}

	return stats, nil
}

// computePercentiles sorts values and returns avg/p50/p95/p99 using
// nearest-rank selection. An empty input returns the zero value rather
// than NaN, since "no queries in the window" is a normal state for a
// quiet deployment, not an error.
func computePercentiles(values []float64) LatencyPercentiles {
	n := len(values)
	if n == 0 {
		return LatencyPercentiles{}
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	return LatencyPercentiles{
		Avg: sum / float64(n),
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
		P99: percentile(sorted, 0.99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	idx := int(math.Ceil(p*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}
