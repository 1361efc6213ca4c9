package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWIndexSearchFindsNearestNeighbor(t *testing.T) {
	idx := NewHNSWIndex(3, DefaultHNSWConfig())
	require.NoError(t, idx.Add("close", []float32{1, 0, 0}))
	require.NoError(t, idx.Add("mid", []float32{0.7, 0.7, 0}))
	require.NoError(t, idx.Add("far", []float32{0, 1, 0}))

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 1, -1.0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "close", string(results[0].ID))
}

func TestHNSWIndexSetEfSearchDoesNotRebuild(t *testing.T) {
	idx := NewHNSWIndex(2, DefaultHNSWConfig())
	require.NoError(t, idx.Add("a", []float32{1, 0}))

	idx.SetEfSearch(10)
	assert.Equal(t, 10, idx.config.EfSearch)

	idx.SetEfSearch(0) // ignored, must stay positive
	assert.Equal(t, 10, idx.config.EfSearch)

	results, err := idx.Search(context.Background(), []float32{1, 0}, 1, -1.0)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestHNSWIndexRemove(t *testing.T) {
	idx := NewHNSWIndex(2, DefaultHNSWConfig())
	require.NoError(t, idx.Add("a", []float32{1, 0}))
	require.Equal(t, 1, idx.Size())

	idx.Remove("a")
	assert.Equal(t, 0, idx.Size())
}

func TestHNSWIndexDimensionMismatch(t *testing.T) {
	idx := NewHNSWIndex(3, DefaultHNSWConfig())
	err := idx.Add("a", []float32{1, 0})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
