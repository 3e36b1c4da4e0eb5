package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexScan_PointLookups(t *testing.T) {
	ctx := newExecContext(t, 64)
	heap, tree := newIndexedUsers(t, ctx, 30)

	got := drainAll(t, NewIndexScan(ctx, tree, heap, []int64{3, 17, 99, 5}))
	require.Len(t, got, 3)

	// ключи пробуются в заданном порядке, отсутствующие пропускаются
	assert.Equal(t, []int64{3, 17, 5}, firstColumn(got))
}

func TestIndexScan_RangeWalksKeyOrder(t *testing.T) {
	ctx := newExecContext(t, 64)
	heap, tree := newIndexedUsers(t, ctx, 40)

	got := drainAll(t, NewIndexScan(ctx, tree, heap, nil))
	require.Len(t, got, 40)

	for i, row := range got {
		assert.Equal(t, int64(i), row.Value(0).AsInt())
	}
}

func TestIndexScan_SkipsVanishedHeapRecords(t *testing.T) {
	ctx := newExecContext(t, 64)
	heap, tree := newIndexedUsers(t, ctx, 10)

	// запись удалена из таблицы, но осталась в индексе
	rid, err := tree.Get(4)
	require.NoError(t, err)
	ok, err := heap.Delete(rid.Unwrap())
	require.NoError(t, err)
	require.True(t, ok)

	got := drainAll(t, NewIndexScan(ctx, tree, heap, nil))
	require.Len(t, got, 9)
	for _, row := range got {
		assert.NotEqual(t, int64(4), row.Value(0).AsInt())
	}

	point := drainAll(t, NewIndexScan(ctx, tree, heap, []int64{4}))
	assert.Empty(t, point)
}
