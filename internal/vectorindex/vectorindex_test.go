package vectorindex

import (
	"testing"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/vecmath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(v []float32) []float32 {
	return vecmath.L2Normalize(append([]float32{}, v...))
}

func TestLoadAllAndTopK(t *testing.T) {
	idx := New()
	idx.LoadAll([]Row{
		{ID: 1, Bytes: vecmath.ToBytes(unit([]float32{1, 0, 0}))},
		{ID: 2, Bytes: vecmath.ToBytes(unit([]float32{0.9, 0.1, 0}))},
		{ID: 3, Bytes: vecmath.ToBytes(unit([]float32{0, 1, 0}))},
	})
	require.Equal(t, 3, idx.Len())

	hits := idx.TopK(unit([]float32{1, 0, 0}), 2, 0)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].ID)
	assert.Equal(t, int64(2), hits[1].ID)
}

func TestUpsertOverwritesExisting(t *testing.T) {
	idx := New()
	idx.Upsert(1, unit([]float32{1, 0}))
	idx.Upsert(1, unit([]float32{0, 1}))
	require.Equal(t, 1, idx.Len())

	hits := idx.TopK(unit([]float32{0, 1}), 1, 0)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestRemoveDeletesEntry(t *testing.T) {
	idx := New()
	idx.Upsert(1, unit([]float32{1, 0}))
	idx.Upsert(2, unit([]float32{0, 1}))
	idx.Remove(1)
	require.Equal(t, 1, idx.Len())

	hits := idx.TopK(unit([]float32{1, 0}), 5, 0)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(2), hits[0].ID)
}

func TestRemoveMissingIsNoop(t *testing.T) {
	idx := New()
	idx.Upsert(1, unit([]float32{1, 0}))
	idx.Remove(999)
	assert.Equal(t, 1, idx.Len())
}

func TestTopKOffsetPaginates(t *testing.T) {
	idx := New()
	idx.Upsert(1, unit([]float32{1, 0}))
	idx.Upsert(2, unit([]float32{1, 0}))
	idx.Upsert(3, unit([]float32{1, 0}))

	first := idx.TopK(unit([]float32{1, 0}), 2, 0)
	second := idx.TopK(unit([]float32{1, 0}), 2, 2)
	require.Len(t, first, 2)
	require.Len(t, second, 1)
	assert.Equal(t, []int64{1, 2}, []int64{first[0].ID, first[1].ID})
	assert.Equal(t, int64(3), second[0].ID)
}

// TestTopKTiesSurviveRegardlessOfInsertionOrder ensures the admission test
// used while scanning candidates agrees with the final ascending-id
// tie-break: inserting tied-score ids in descending order must still keep
// the smallest ids in the truncated top-k set, not just order them last.
func TestTopKTiesSurviveRegardlessOfInsertionOrder(t *testing.T) {
	idx := New()
	idx.Upsert(5, unit([]float32{1, 0}))
	idx.Upsert(4, unit([]float32{1, 0}))
	idx.Upsert(3, unit([]float32{1, 0}))
	idx.Upsert(2, unit([]float32{1, 0}))
	idx.Upsert(1, unit([]float32{1, 0}))

	hits := idx.TopK(unit([]float32{1, 0}), 2, 0)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].ID)
	assert.Equal(t, int64(2), hits[1].ID)
}

func TestTopKEmptyIndex(t *testing.T) {
	idx := New()
	assert.Nil(t, idx.TopK(unit([]float32{1, 0}), 5, 0))
}

func TestTopKOffsetBeyondLen(t *testing.T) {
	idx := New()
	idx.Upsert(1, unit([]float32{1, 0}))
	assert.Nil(t, idx.TopK(unit([]float32{1, 0}), 5, 10))
}
