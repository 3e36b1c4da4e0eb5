package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/RelDB/src/storage/index"
	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

func emptyIndexedUsers(t *testing.T, ctx *Context) (*table.Heap, []IndexInfo) {
	t.Helper()

	heap, err := table.NewHeap(ctx.Pool(), usersSchema())
	require.NoError(t, err)

	tree, err := index.NewBPlusTree(ctx.Pool(), 8, 8, zap.NewNop())
	require.NoError(t, err)

	return heap, []IndexInfo{{Tree: tree, KeyCol: 0}}
}

func TestInsert_PopulatesHeapAndIndex(t *testing.T) {
	ctx := newExecContext(t, 64)
	heap, indexes := emptyIndexedUsers(t, ctx)

	rows := [][]table.Value{
		usersRow(1, "alice"),
		usersRow(2, "bob"),
		usersRow(3, "carol"),
	}

	got := drainAll(t, NewInsert(ctx, NewValues(rows, usersSchema()), heap, indexes))
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].Value(0).AsInt())

	scanned := drainAll(t, NewSeqScan(ctx, heap, nil))
	assert.Len(t, scanned, 3)

	for key := int64(1); key <= 3; key++ {
		rid, err := indexes[0].Tree.Get(key)
		require.NoError(t, err)
		require.True(t, rid.IsSome(), "key %d", key)

		row, err := heap.Get(rid.Unwrap())
		require.NoError(t, err)
		assert.Equal(t, key, row.Unwrap().Value(0).AsInt())
	}
}

func TestInsert_NullKeySkipsIndex(t *testing.T) {
	ctx := newExecContext(t, 64)
	heap, indexes := emptyIndexedUsers(t, ctx)

	rows := [][]table.Value{
		{table.NewNull(table.TypeInteger), table.NewVarchar("ghost")},
	}

	got := drainAll(t, NewInsert(ctx, NewValues(rows, usersSchema()), heap, indexes))
	assert.Equal(t, int64(1), got[0].Value(0).AsInt())

	// строка в таблице, но не в индексе
	scanned := drainAll(t, NewSeqScan(ctx, heap, nil))
	assert.Len(t, scanned, 1)
}

func TestDelete_RemovesMatchingRows(t *testing.T) {
	ctx := newExecContext(t, 64)
	heap, indexes := emptyIndexedUsers(t, ctx)

	var rows [][]table.Value
	for i := int64(0); i < 10; i++ {
		rows = append(rows, usersRow(i, "victim"))
	}
	drainAll(t, NewInsert(ctx, NewValues(rows, usersSchema()), heap, indexes))

	pred := NewComparison(CmpLess, NewColumnRef(0), NewConstant(table.NewInteger(4)))

	got := drainAll(t, NewDelete(ctx, NewSeqScan(ctx, heap, pred), heap, indexes))
	require.Len(t, got, 1)
	assert.Equal(t, int64(4), got[0].Value(0).AsInt())

	remaining := drainAll(t, NewSeqScan(ctx, heap, nil))
	assert.Len(t, remaining, 6)

	for key := int64(0); key < 10; key++ {
		rid, err := indexes[0].Tree.Get(key)
		require.NoError(t, err)
		assert.Equal(t, key >= 4, rid.IsSome(), "key %d", key)
	}
}

func TestUpdate_InPlace(t *testing.T) {
	ctx := newExecContext(t, 64)
	heap, indexes := emptyIndexedUsers(t, ctx)

	rows := [][]table.Value{usersRow(1, "original name")}
	drainAll(t, NewInsert(ctx, NewValues(rows, usersSchema()), heap, indexes))

	setExprs := []Expression{
		NewColumnRef(0),
		NewConstant(table.NewVarchar("short")),
	}

	got := drainAll(t, NewUpdate(ctx, NewSeqScan(ctx, heap, nil), heap, indexes, setExprs))
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].Value(0).AsInt())

	scanned := drainAll(t, NewSeqScan(ctx, heap, nil))
	require.Len(t, scanned, 1)
	assert.Equal(t, "short", scanned[0].Value(1).AsString())
}

func TestUpdate_RelocationKeepsIndexConsistent(t *testing.T) {
	ctx := newExecContext(t, 64)
	heap, indexes := emptyIndexedUsers(t, ctx)

	rows := [][]table.Value{usersRow(7, "x")}
	drainAll(t, NewInsert(ctx, NewValues(rows, usersSchema()), heap, indexes))

	// новая строка заметно длиннее: обновление переезжает под новый rid
	longName := make([]byte, 256)
	for i := range longName {
		longName[i] = 'n'
	}
	setExprs := []Expression{
		NewColumnRef(0),
		NewConstant(table.NewVarchar(string(longName))),
	}

	got := drainAll(t, NewUpdate(ctx, NewSeqScan(ctx, heap, nil), heap, indexes, setExprs))
	assert.Equal(t, int64(1), got[0].Value(0).AsInt())

	rid, err := indexes[0].Tree.Get(7)
	require.NoError(t, err)
	require.True(t, rid.IsSome())

	row, err := heap.Get(rid.Unwrap())
	require.NoError(t, err)
	require.True(t, row.IsSome())
	assert.Equal(t, string(longName), row.Unwrap().Value(1).AsString())
}

func TestUpdate_KeyChangeMovesIndexEntry(t *testing.T) {
	ctx := newExecContext(t, 64)
	heap, indexes := emptyIndexedUsers(t, ctx)

	rows := [][]table.Value{usersRow(5, "movable")}
	drainAll(t, NewInsert(ctx, NewValues(rows, usersSchema()), heap, indexes))

	setExprs := []Expression{
		NewConstant(table.NewInteger(500)),
		NewColumnRef(1),
	}

	drainAll(t, NewUpdate(ctx, NewSeqScan(ctx, heap, nil), heap, indexes, setExprs))

	old, err := indexes[0].Tree.Get(5)
	require.NoError(t, err)
	assert.True(t, old.IsNone())

	moved, err := indexes[0].Tree.Get(500)
	require.NoError(t, err)
	require.True(t, moved.IsSome())

	row, err := heap.Get(moved.Unwrap())
	require.NoError(t, err)
	assert.Equal(t, "movable", row.Unwrap().Value(1).AsString())
}
