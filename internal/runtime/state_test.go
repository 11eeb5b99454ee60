package runtime

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pergolab/pergola/pkg/domain"
)

func TestStore_OverwriteLastWriterWins(t *testing.T) {
	s := NewStore(nil)

	require.NoError(t, s.Merge("k", 1))
	require.NoError(t, s.Merge("k", 2))

	v, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestStore_GetMissingKey(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Get("nope")
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	assert.False(t, s.Has("nope"))
}

func TestStore_OrderedAppendSortsByIndex(t *testing.T) {
	s := NewStore(map[string]domain.MergePolicy{"results": domain.MergeOrderedAppend})

	// Arrival order is deliberately scrambled.
	for _, i := range []int{3, 0, 4, 1, 2} {
		require.NoError(t, s.Merge("results", domain.Indexed{Index: i, Value: i * 10}))
	}

	v, err := s.Get("results")
	require.NoError(t, err)
	assert.Equal(t, []any{0, 10, 20, 30, 40}, v)
}

func TestStore_OrderedAppendRejectsPlainValues(t *testing.T) {
	s := NewStore(map[string]domain.MergePolicy{"results": domain.MergeOrderedAppend})
	err := s.Merge("results", "not indexed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indexed contribution")
}

func TestStore_OrderedAppendRejectsDuplicateIndex(t *testing.T) {
	s := NewStore(map[string]domain.MergePolicy{"results": domain.MergeOrderedAppend})

	require.NoError(t, s.Merge("results", domain.Indexed{Index: 1, Value: "a"}))
	err := s.Merge("results", domain.Indexed{Index: 1, Value: "b"})
	assert.ErrorIs(t, err, domain.ErrDuplicateIndex)
}

func TestStore_ConcurrentMergesAreOrdered(t *testing.T) {
	s := NewStore(map[string]domain.MergePolicy{"results": domain.MergeOrderedAppend})

	const n = 128
	indexes := rand.Perm(n)

	var wg sync.WaitGroup
	for _, i := range indexes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Merge("results", domain.Indexed{Index: i, Value: i})
		}(i)
	}
	wg.Wait()

	v, err := s.Get("results")
	require.NoError(t, err)
	seq := v.([]any)
	require.Len(t, seq, n)
	for i, entry := range seq {
		assert.Equal(t, i, entry, "position %d", i)
	}
}
