package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

func TestCollectColumnStats_CountsRows(t *testing.T) {
	ctx := newExecContext(t, 32)

	heap, err := table.NewHeap(ctx.Pool(), usersSchema())
	require.NoError(t, err)

	for i := int64(0); i < 100; i++ {
		_, err := heap.Insert(table.NewTuple(usersRow(i%10, "stat")))
		require.NoError(t, err)
	}

	stats, err := CollectColumnStats(heap, 0)
	require.NoError(t, err)

	assert.Equal(t, int64(100), stats.Rows())

	// оценка никогда не занижает истинную частоту
	for v := int64(0); v < 10; v++ {
		assert.GreaterOrEqual(t, stats.EstimateCount(table.NewInteger(v)), uint64(10))
	}

	assert.Zero(t, stats.EstimateCount(table.NewNull(table.TypeInteger)))
}

func TestCollectColumnStats_SkipsNulls(t *testing.T) {
	ctx := newExecContext(t, 32)

	heap, err := table.NewHeap(ctx.Pool(), usersSchema())
	require.NoError(t, err)

	_, err = heap.Insert(table.NewTuple([]table.Value{
		table.NewNull(table.TypeInteger), table.NewVarchar("null-key"),
	}))
	require.NoError(t, err)
	_, err = heap.Insert(table.NewTuple(usersRow(1, "present")))
	require.NoError(t, err)

	stats, err := CollectColumnStats(heap, 0)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.Rows())
	assert.GreaterOrEqual(t, stats.EstimateCount(table.NewInteger(1)), uint64(1))
}
