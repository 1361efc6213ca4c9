package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreConfig(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { Configure(PoolConfig{Enabled: true, MaxSize: 1000}) })
}

func TestGetReturnsEmptySlice(t *testing.T) {
	restoreConfig(t)

	s := GetCandidateSlice()
	assert.Empty(t, s)
	assert.GreaterOrEqual(t, cap(s), 1)
	PutCandidateSlice(s)
}

func TestPutClearsEntries(t *testing.T) {
	restoreConfig(t)

	s := GetCandidateSlice()
	s = append(s, &PooledCandidate{ArticleID: "kb-100", FusionScore: 0.8})
	PutCandidateSlice(s)

	// Whatever slice comes back next must be empty, whether or not it is
	// the same backing array.
	next := GetCandidateSlice()
	require.Empty(t, next)
	PutCandidateSlice(next)
}

func TestOversizedSlicesAreDiscarded(t *testing.T) {
	restoreConfig(t)
	Configure(PoolConfig{Enabled: true, MaxSize: 8})

	big := make([]*PooledCandidate, 0, 64)
	PutCandidateSlice(big) // silently dropped, must not panic
}

func TestDisabledPoolStillServes(t *testing.T) {
	restoreConfig(t)
	Configure(PoolConfig{Enabled: false, MaxSize: 1000})

	assert.False(t, IsEnabled())
	s := GetCandidateSlice()
	require.NotNil(t, s)
	assert.Empty(t, s)
	PutCandidateSlice(s)
}

func TestConcurrentGetPut(t *testing.T) {
	restoreConfig(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s := GetCandidateSlice()
				s = append(s, &PooledCandidate{ArticleID: "kb-1"})
				PutCandidateSlice(s)
			}
		}()
	}
	wg.Wait()
}

func BenchmarkCandidateSlice(b *testing.B) {
	b.Run("pooled", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			s := GetCandidateSlice()
			s = append(s, &PooledCandidate{ArticleID: "kb-1"})
			PutCandidateSlice(s)
		}
	})

	b.Run("fresh allocation", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			s := make([]*PooledCandidate, 0, 64)
			s = append(s, &PooledCandidate{ArticleID: "kb-1"})
			_ = s
		}
	})
}
