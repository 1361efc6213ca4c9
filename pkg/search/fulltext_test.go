package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFulltextIndexSearchRanksExactMatchAbovePrefix(t *testing.T) {
	idx := NewFulltextIndex()
	idx.Index("exact", "reset your password using the self-service portal")
	idx.Index("prefix", "passwordless authentication is the future")

	results := idx.Search("password", 10)
	require.NotEmpty(t, results)
	assert.Equal(t, "exact", string(results[0].ID))
}

func TestFulltextIndexRemove(t *testing.T) {
	idx := NewFulltextIndex()
	idx.Index("a", "vpn connection troubleshooting guide")
	require.Equal(t, 1, idx.Count())

	idx.Remove("a")
	assert.Equal(t, 0, idx.Count())
	assert.Empty(t, idx.Search("vpn", 10))
}

func TestFulltextIndexEmptyQueryReturnsNoResults(t *testing.T) {
	idx := NewFulltextIndex()
	idx.Index("a", "some content here")
	assert.Empty(t, idx.Search("the and of", 10))
}
