package embed

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder returns a distinct vector per text and counts how
// many texts actually reached it.
type countingEmbedder struct {
	calls atomic.Int64
	fail  bool
}

func (m *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.fail {
		return nil, errors.New("model unavailable")
	}
	return []float32{float32(len(text)), 1}, nil
}

func (m *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *countingEmbedder) Dimensions() int { return 2 }
func (m *countingEmbedder) Model() string   { return "counting-test" }

func TestCachedEmbedderServesRepeatsFromCache(t *testing.T) {
	base := &countingEmbedder{}
	cached := NewCachedEmbedder(base, 100)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "how do I reset my password")
	require.NoError(t, err)

	second, err := cached.Embed(ctx, "how do I reset my password")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), base.calls.Load(), "second call should not reach the model")

	stats := cached.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestCachedEmbedderBatchSendsOnlyMisses(t *testing.T) {
	base := &countingEmbedder{}
	cached := NewCachedEmbedder(base, 100)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "vpn setup")
	require.NoError(t, err)
	require.Equal(t, int64(1), base.calls.Load())

	vecs, err := cached.EmbedBatch(ctx, []string{"vpn setup", "mfa enrollment", "vpn setup"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	// Only "mfa enrollment" was new. The duplicate third element reuses
	// the entry cached before the batch started.
	assert.Equal(t, int64(2), base.calls.Load())
	assert.Equal(t, vecs[0], vecs[2])
	assert.Equal(t, []float32{float32(len("mfa enrollment")), 1}, vecs[1])
}

func TestCachedEmbedderDoesNotCacheErrors(t *testing.T) {
	base := &countingEmbedder{fail: true}
	cached := NewCachedEmbedder(base, 100)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "printer offline")
	require.Error(t, err)

	base.fail = false
	v, err := cached.Embed(ctx, "printer offline")
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.Equal(t, int64(2), base.calls.Load(), "failed attempt must not leave a cache entry")
}

func TestCachedEmbedderEvictsLeastRecentlyUsed(t *testing.T) {
	base := &countingEmbedder{}
	cached := NewCachedEmbedder(base, 2)
	ctx := context.Background()

	for _, q := range []string{"first", "second", "third"} {
		_, err := cached.Embed(ctx, q)
		require.NoError(t, err)
	}
	require.Equal(t, int64(3), base.calls.Load())

	// "first" was evicted when "third" arrived; re-embedding it must
	// reach the model again, while "third" is still cached.
	_, err := cached.Embed(ctx, "third")
	require.NoError(t, err)
	assert.Equal(t, int64(3), base.calls.Load())

	_, err = cached.Embed(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, int64(4), base.calls.Load())
}

func TestCachedEmbedderClear(t *testing.T) {
	base := &countingEmbedder{}
	cached := NewCachedEmbedder(base, 100)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "password policy")
	require.NoError(t, err)
	cached.Clear()
	assert.Equal(t, 0, cached.Stats().Size)

	_, err = cached.Embed(ctx, "password policy")
	require.NoError(t, err)
	assert.Equal(t, int64(2), base.calls.Load())
}

func TestCachedEmbedderPassesThroughIdentity(t *testing.T) {
	base := &countingEmbedder{}
	cached := NewCachedEmbedder(base, 0) // default size

	assert.Equal(t, 2, cached.Dimensions())
	assert.Equal(t, "counting-test", cached.Model())
}

func TestCachedEmbedderConcurrentSameKey(t *testing.T) {
	base := &countingEmbedder{}
	cached := NewCachedEmbedder(base, 100)
	ctx := context.Background()

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := cached.Embed(ctx, "shared query")
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}

	// Concurrent misses may race to the model, but the cache must end up
	// consistent: a later call is a pure hit.
	before := base.calls.Load()
	_, err := cached.Embed(ctx, "shared query")
	require.NoError(t, err)
	assert.Equal(t, before, base.calls.Load())
}

func ExampleNewCachedEmbedder() {
	base := &countingEmbedder{}
	cached := NewCachedEmbedder(base, 1000)

	_, _ = cached.Embed(context.Background(), "how do I reset my password")
	_, _ = cached.Embed(context.Background(), "how do I reset my password")

	fmt.Println(cached.Stats().Hits)
	// Output: 1
}
