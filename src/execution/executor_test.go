package execution

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/RelDB/src/bufferpool"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/disk"
	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

func newExecPool(t *testing.T, frames uint64) *bufferpool.Manager {
	t.Helper()

	dm, err := disk.NewManager(afero.NewMemMapFs(), "exec.db", zap.NewNop())
	require.NoError(t, err)

	scheduler := disk.NewScheduler(dm, disk.DefaultWorkers, zap.NewNop())

	pool, err := bufferpool.NewManager(
		frames, bufferpool.NewArcReplacer(frames), scheduler, zap.NewNop(),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pool.FlushAllPages())
		require.NoError(t, pool.Close())
		scheduler.Shutdown()
		_ = dm.Shutdown()
	})

	return pool
}

func newExecContext(t *testing.T, frames uint64) *Context {
	t.Helper()
	return NewContext(newExecPool(t, frames), zap.NewNop())
}

func usersSchema() *table.Schema {
	return table.NewSchema([]table.Column{
		{Name: "id", Type: table.TypeInteger},
		{Name: "name", Type: table.TypeVarchar},
	})
}

func usersRow(id int64, name string) []table.Value {
	return []table.Value{table.NewInteger(id), table.NewVarchar(name)}
}

// newUsersHeap создаёт таблицу с n строками (i, "user-i")
func newUsersHeap(t *testing.T, pool *bufferpool.Manager, n int64) *table.Heap {
	t.Helper()

	heap, err := table.NewHeap(pool, usersSchema())
	require.NoError(t, err)

	for i := int64(0); i < n; i++ {
		_, err := heap.Insert(table.NewTuple(usersRow(i, fmt.Sprintf("user-%04d", i))))
		require.NoError(t, err)
	}

	return heap
}

func drainAll(t *testing.T, e Executor) []*table.Tuple {
	t.Helper()

	require.NoError(t, e.Init())

	var out []*table.Tuple
	for {
		var (
			tuples []*table.Tuple
			rids   []common.RecordID
		)
		if !e.Next(&tuples, &rids, common.BatchSize) {
			return out
		}

		require.Equal(t, len(tuples), len(rids))
		out = append(out, tuples...)
	}
}

func intColumn(name string) *table.Schema {
	return table.NewSchema([]table.Column{{Name: name, Type: table.TypeInteger}})
}

func intRows(nums ...int64) [][]table.Value {
	rows := make([][]table.Value, len(nums))
	for i, n := range nums {
		rows[i] = []table.Value{table.NewInteger(n)}
	}

	return rows
}

func firstColumn(tuples []*table.Tuple) []int64 {
	out := make([]int64, 0, len(tuples))
	for _, t := range tuples {
		out = append(out, t.Value(0).AsInt())
	}

	return out
}
