package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

func TestOptimizer_FilterPushdown(t *testing.T) {
	ctx := newExecContext(t, 16)
	heap := newUsersHeap(t, ctx.Pool(), 10)

	pred := NewComparison(CmpLess, NewColumnRef(0), NewConstant(table.NewInteger(5)))
	plan := &FilterPlan{
		Child:     &SeqScanPlan{Heap: heap},
		Predicate: pred,
	}

	opt := NewOptimizer(zap.NewNop())
	out := opt.Optimize(plan)

	scan, ok := out.(*SeqScanPlan)
	require.True(t, ok, "got %T", out)
	assert.Same(t, heap, scan.Heap)
	assert.NotNil(t, scan.Predicate)
}

func TestOptimizer_FilterPushdownCombinesPredicates(t *testing.T) {
	ctx := newExecContext(t, 16)
	heap := newUsersHeap(t, ctx.Pool(), 10)

	scanPred := NewComparison(CmpGreater, NewColumnRef(0), NewConstant(table.NewInteger(2)))
	filterPred := NewComparison(CmpLess, NewColumnRef(0), NewConstant(table.NewInteger(7)))

	plan := &FilterPlan{
		Child:     &SeqScanPlan{Heap: heap, Predicate: scanPred},
		Predicate: filterPred,
	}

	out := NewOptimizer(zap.NewNop()).Optimize(plan)

	scan, ok := out.(*SeqScanPlan)
	require.True(t, ok, "got %T", out)

	logic, ok := scan.Predicate.(*Logic)
	require.True(t, ok)
	assert.Equal(t, LogicAnd, logic.Op())

	// объединённый предикат отфильтровывает строки как два исходных
	got := drainAll(t, Build(NewContext(ctx.Pool(), zap.NewNop()), out))
	assert.Equal(t, []int64{3, 4, 5, 6}, firstColumn(got))
}

func TestOptimizer_SeqScanToIndexScan(t *testing.T) {
	ctx := newExecContext(t, 64)
	heap, tree := newIndexedUsers(t, ctx, 20)

	opt := NewOptimizer(zap.NewNop())
	opt.RegisterIndex(heap, IndexInfo{Tree: tree, KeyCol: 0})

	pred := NewComparison(CmpEq, NewColumnRef(0), NewConstant(table.NewInteger(7)))
	out := opt.Optimize(&SeqScanPlan{Heap: heap, Predicate: pred})

	idx, ok := out.(*IndexScanPlan)
	require.True(t, ok, "got %T", out)
	assert.Equal(t, []int64{7}, idx.Keys)

	got := drainAll(t, Build(ctx, out))
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].Value(0).AsInt())
}

func TestOptimizer_SeqScanToIndexScanReversedOperands(t *testing.T) {
	ctx := newExecContext(t, 64)
	heap, tree := newIndexedUsers(t, ctx, 20)

	opt := NewOptimizer(zap.NewNop())
	opt.RegisterIndex(heap, IndexInfo{Tree: tree, KeyCol: 0})

	pred := NewComparison(CmpEq, NewConstant(table.NewInteger(3)), NewColumnRef(0))
	out := opt.Optimize(&SeqScanPlan{Heap: heap, Predicate: pred})

	idx, ok := out.(*IndexScanPlan)
	require.True(t, ok, "got %T", out)
	assert.Equal(t, []int64{3}, idx.Keys)
}

func TestOptimizer_NoIndexLeavesSeqScan(t *testing.T) {
	ctx := newExecContext(t, 16)
	heap := newUsersHeap(t, ctx.Pool(), 10)

	pred := NewComparison(CmpEq, NewColumnRef(0), NewConstant(table.NewInteger(1)))
	out := NewOptimizer(zap.NewNop()).Optimize(&SeqScanPlan{Heap: heap, Predicate: pred})

	_, ok := out.(*SeqScanPlan)
	assert.True(t, ok, "got %T", out)
}

func TestOptimizer_EquiNLJBecomesHashJoin(t *testing.T) {
	ctx := newExecContext(t, 16)
	left := newUsersHeap(t, ctx.Pool(), 5)
	right := newUsersHeap(t, ctx.Pool(), 5)

	pred := NewComparison(CmpEq,
		NewJoinColumnRef(LeftSide, 0), NewJoinColumnRef(RightSide, 0))

	plan := &NestedLoopJoinPlan{
		Left:      &SeqScanPlan{Heap: left},
		Right:     &SeqScanPlan{Heap: right},
		Predicate: pred,
		JoinType:  InnerJoin,
	}

	out := NewOptimizer(zap.NewNop()).Optimize(plan)

	hj, ok := out.(*HashJoinPlan)
	require.True(t, ok, "got %T", out)
	assert.Len(t, hj.LeftKeys, 1)
	assert.Len(t, hj.RightKeys, 1)
}

func TestOptimizer_ConjunctionOfEqualities(t *testing.T) {
	ctx := newExecContext(t, 16)
	left := newUsersHeap(t, ctx.Pool(), 5)
	right := newUsersHeap(t, ctx.Pool(), 5)

	pred := NewLogic(LogicAnd,
		NewComparison(CmpEq,
			NewJoinColumnRef(LeftSide, 0), NewJoinColumnRef(RightSide, 0)),
		NewComparison(CmpEq,
			NewJoinColumnRef(RightSide, 1), NewJoinColumnRef(LeftSide, 1)))

	plan := &NestedLoopJoinPlan{
		Left:      &SeqScanPlan{Heap: left},
		Right:     &SeqScanPlan{Heap: right},
		Predicate: pred,
		JoinType:  InnerJoin,
	}

	out := NewOptimizer(zap.NewNop()).Optimize(plan)

	hj, ok := out.(*HashJoinPlan)
	require.True(t, ok, "got %T", out)
	require.Len(t, hj.LeftKeys, 2)

	// перевёрнутое равенство нормализуется по сторонам
	assert.Equal(t, 1, hj.LeftKeys[1].(*ColumnRef).ColIdx())
	assert.Equal(t, 1, hj.RightKeys[1].(*ColumnRef).ColIdx())
}

func TestOptimizer_NonEquiNLJStays(t *testing.T) {
	ctx := newExecContext(t, 16)
	left := newUsersHeap(t, ctx.Pool(), 5)
	right := newUsersHeap(t, ctx.Pool(), 5)

	pred := NewComparison(CmpLess,
		NewJoinColumnRef(LeftSide, 0), NewJoinColumnRef(RightSide, 0))

	plan := &NestedLoopJoinPlan{
		Left:      &SeqScanPlan{Heap: left},
		Right:     &SeqScanPlan{Heap: right},
		Predicate: pred,
		JoinType:  InnerJoin,
	}

	out := NewOptimizer(zap.NewNop()).Optimize(plan)

	_, ok := out.(*NestedLoopJoinPlan)
	assert.True(t, ok, "got %T", out)
}

func TestOptimizer_JoinSideSwapByStats(t *testing.T) {
	ctx := newExecContext(t, 32)

	small := newUsersHeap(t, ctx.Pool(), 5)
	big := newUsersHeap(t, ctx.Pool(), 200)

	smallStats, err := CollectColumnStats(small, 0)
	require.NoError(t, err)
	bigStats, err := CollectColumnStats(big, 0)
	require.NoError(t, err)

	opt := NewOptimizer(zap.NewNop())
	opt.RegisterStats(small, 0, smallStats)
	opt.RegisterStats(big, 0, bigStats)

	plan := &HashJoinPlan{
		Left:      &SeqScanPlan{Heap: small},
		Right:     &SeqScanPlan{Heap: big},
		LeftKeys:  []Expression{NewColumnRef(0)},
		RightKeys: []Expression{NewColumnRef(0)},
		JoinType:  InnerJoin,
	}

	out := opt.Optimize(plan)

	hj, ok := out.(*HashJoinPlan)
	require.True(t, ok)

	// меньший вход становится строящей стороной
	assert.Same(t, big, hj.Left.(*SeqScanPlan).Heap)
	assert.Same(t, small, hj.Right.(*SeqScanPlan).Heap)
}

func TestOptimizer_NoSwapWithoutStats(t *testing.T) {
	ctx := newExecContext(t, 32)

	left := newUsersHeap(t, ctx.Pool(), 5)
	right := newUsersHeap(t, ctx.Pool(), 200)

	plan := &HashJoinPlan{
		Left:      &SeqScanPlan{Heap: left},
		Right:     &SeqScanPlan{Heap: right},
		LeftKeys:  []Expression{NewColumnRef(0)},
		RightKeys: []Expression{NewColumnRef(0)},
		JoinType:  InnerJoin,
	}

	out := NewOptimizer(zap.NewNop()).Optimize(plan)

	hj, ok := out.(*HashJoinPlan)
	require.True(t, ok)
	assert.Same(t, left, hj.Left.(*SeqScanPlan).Heap)
}

func TestOptimizer_LeftJoinNeverSwapped(t *testing.T) {
	ctx := newExecContext(t, 32)

	small := newUsersHeap(t, ctx.Pool(), 5)
	big := newUsersHeap(t, ctx.Pool(), 100)

	smallStats, err := CollectColumnStats(small, 0)
	require.NoError(t, err)
	bigStats, err := CollectColumnStats(big, 0)
	require.NoError(t, err)

	opt := NewOptimizer(zap.NewNop())
	opt.RegisterStats(small, 0, smallStats)
	opt.RegisterStats(big, 0, bigStats)

	plan := &HashJoinPlan{
		Left:      &SeqScanPlan{Heap: small},
		Right:     &SeqScanPlan{Heap: big},
		LeftKeys:  []Expression{NewColumnRef(0)},
		RightKeys: []Expression{NewColumnRef(0)},
		JoinType:  LeftJoin,
	}

	out := opt.Optimize(plan)

	hj, ok := out.(*HashJoinPlan)
	require.True(t, ok)
	assert.Same(t, small, hj.Left.(*SeqScanPlan).Heap)
}
