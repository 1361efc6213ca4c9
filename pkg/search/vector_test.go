package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorIndexSearchRanksByCosineSimilarity(t *testing.T) {
	idx := NewVectorIndex(3)
	require.NoError(t, idx.Add("close", []float32{1, 0, 0}))
	require.NoError(t, idx.Add("far", []float32{0, 1, 0}))

	results, err := idx.Search(context.Background(), []float32{1, 0, 0.01}, 10, -1.0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "close", string(results[0].ID))
}

func TestVectorIndexDimensionMismatch(t *testing.T) {
	idx := NewVectorIndex(3)
	err := idx.Add("a", []float32{1, 0})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = idx.Search(context.Background(), []float32{1, 0}, 10, -1.0)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestVectorIndexRemove(t *testing.T) {
	idx := NewVectorIndex(2)
	require.NoError(t, idx.Add("a", []float32{1, 1}))
	require.Equal(t, 1, idx.Count())

	idx.Remove("a")
	assert.Equal(t, 0, idx.Count())
	assert.False(t, idx.HasVector("a"))
}

func TestVectorIndexRespectsMinSimilarity(t *testing.T) {
	idx := NewVectorIndex(2)
	require.NoError(t, idx.Add("orthogonal", []float32{0, 1}))

	results, err := idx.Search(context.Background(), []float32{1, 0}, 10, 0.5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorIndexSearchCancelledContext(t *testing.T) {
	idx := NewVectorIndex(2)
	require.NoError(t, idx.Add("a", []float32{1, 0}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.Search(ctx, []float32{1, 0}, 10, -1.0)
	assert.ErrorIs(t, err, context.Canceled)
}
