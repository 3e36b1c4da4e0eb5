package execution

import (
	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/storage/index"
	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

// Plan is a logical operator tree node. The optimizer rewrites plans; Build
// lowers the final tree into executors.
type Plan interface {
	Children() []Plan
	Schema() *table.Schema
}

type SeqScanPlan struct {
	Heap      *table.Heap
	Predicate Expression
}

func (p *SeqScanPlan) Children() []Plan        { return nil }
func (p *SeqScanPlan) Schema() *table.Schema   { return p.Heap.Schema() }

type IndexScanPlan struct {
	Tree *index.BPlusTree
	Heap *table.Heap
	Keys []int64
}

func (p *IndexScanPlan) Children() []Plan      { return nil }
func (p *IndexScanPlan) Schema() *table.Schema { return p.Heap.Schema() }

type FilterPlan struct {
	Child     Plan
	Predicate Expression
}

func (p *FilterPlan) Children() []Plan        { return []Plan{p.Child} }
func (p *FilterPlan) Schema() *table.Schema   { return p.Child.Schema() }

type NestedLoopJoinPlan struct {
	Left, Right Plan
	Predicate   Expression
	JoinType    JoinType
}

func (p *NestedLoopJoinPlan) Children() []Plan { return []Plan{p.Left, p.Right} }

func (p *NestedLoopJoinPlan) Schema() *table.Schema {
	return table.MergeSchemas(p.Left.Schema(), p.Right.Schema())
}

type HashJoinPlan struct {
	Left, Right Plan
	LeftKeys    []Expression
	RightKeys   []Expression
	JoinType    JoinType
}

func (p *HashJoinPlan) Children() []Plan { return []Plan{p.Left, p.Right} }

func (p *HashJoinPlan) Schema() *table.Schema {
	return table.MergeSchemas(p.Left.Schema(), p.Right.Schema())
}

// Build lowers a plan tree into its executor tree.
func Build(ctx *Context, plan Plan) Executor {
	switch p := plan.(type) {
	case *SeqScanPlan:
		return NewSeqScan(ctx, p.Heap, p.Predicate)
	case *IndexScanPlan:
		return NewIndexScan(ctx, p.Tree, p.Heap, p.Keys)
	case *FilterPlan:
		return NewFilter(Build(ctx, p.Child), p.Predicate)
	case *NestedLoopJoinPlan:
		return NewNestedLoopJoin(ctx, Build(ctx, p.Left), Build(ctx, p.Right), p.Predicate, p.JoinType)
	case *HashJoinPlan:
		return NewHashJoin(ctx, Build(ctx, p.Left), Build(ctx, p.Right), p.LeftKeys, p.RightKeys, p.JoinType)
	default:
		assert.Assert(false, "unknown plan node %T", plan)
		return nil
	}
}
