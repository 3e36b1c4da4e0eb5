package execution

import (
	"go.uber.org/zap"

	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

// Optimizer rewrites logical plan trees before Build lowers them. Rewrites
// are heuristic: push filters into scans, turn equi nested-loop joins into
// hash joins, and turn point-predicate scans into index scans.
type Optimizer struct {
	logger  *zap.Logger
	indexes map[*table.Heap][]IndexInfo
	stats   map[*table.Heap]map[int]*ColumnStats
}

func NewOptimizer(logger *zap.Logger) *Optimizer {
	return &Optimizer{
		logger:  logger,
		indexes: make(map[*table.Heap][]IndexInfo),
		stats:   make(map[*table.Heap]map[int]*ColumnStats),
	}
}

// RegisterIndex makes an index available for scan and join rewrites.
func (o *Optimizer) RegisterIndex(heap *table.Heap, info IndexInfo) {
	o.indexes[heap] = append(o.indexes[heap], info)
}

// RegisterStats attaches column statistics used for join side selection.
func (o *Optimizer) RegisterStats(heap *table.Heap, col int, stats *ColumnStats) {
	if o.stats[heap] == nil {
		o.stats[heap] = make(map[int]*ColumnStats)
	}

	o.stats[heap][col] = stats
}

// Optimize rewrites the tree bottom-up and returns the result. The input
// plan is not modified.
func (o *Optimizer) Optimize(plan Plan) Plan {
	switch p := plan.(type) {
	case *FilterPlan:
		child := o.Optimize(p.Child)
		if scan, ok := child.(*SeqScanPlan); ok {
			return o.mergeFilterScan(p, scan)
		}

		return &FilterPlan{Child: child, Predicate: p.Predicate}
	case *NestedLoopJoinPlan:
		left := o.Optimize(p.Left)
		right := o.Optimize(p.Right)

		if leftKeys, rightKeys, ok := extractEquiKeys(p.Predicate); ok {
			o.logger.Debug("rewrote nested loop join to hash join",
				zap.Int("keys", len(leftKeys)))

			return o.orderJoinSides(&HashJoinPlan{
				Left:      left,
				Right:     right,
				LeftKeys:  leftKeys,
				RightKeys: rightKeys,
				JoinType:  p.JoinType,
			})
		}

		return &NestedLoopJoinPlan{
			Left:      left,
			Right:     right,
			Predicate: p.Predicate,
			JoinType:  p.JoinType,
		}
	case *HashJoinPlan:
		return o.orderJoinSides(&HashJoinPlan{
			Left:      o.Optimize(p.Left),
			Right:     o.Optimize(p.Right),
			LeftKeys:  p.LeftKeys,
			RightKeys: p.RightKeys,
			JoinType:  p.JoinType,
		})
	case *SeqScanPlan:
		return o.seqScanToIndexScan(p)
	default:
		return plan
	}
}

// mergeFilterScan pushes a filter into the scan beneath it, AND-combining
// with any predicate the scan already carries, then retries the index
// rewrite on the result.
func (o *Optimizer) mergeFilterScan(filter *FilterPlan, scan *SeqScanPlan) Plan {
	predicate := filter.Predicate
	if scan.Predicate != nil {
		predicate = NewLogic(LogicAnd, scan.Predicate, predicate)
	}

	o.logger.Debug("pushed filter into sequential scan")

	return o.seqScanToIndexScan(&SeqScanPlan{Heap: scan.Heap, Predicate: predicate})
}

// seqScanToIndexScan turns a scan with a col = const predicate on an
// indexed column into a point index scan.
func (o *Optimizer) seqScanToIndexScan(scan *SeqScanPlan) Plan {
	col, key, ok := extractPointLookup(scan.Predicate)
	if !ok {
		return scan
	}

	for _, info := range o.indexes[scan.Heap] {
		if info.KeyCol != col {
			continue
		}

		o.logger.Debug("rewrote sequential scan to index scan",
			zap.Int("column", col), zap.Int64("key", key))

		return &IndexScanPlan{Tree: info.Tree, Heap: scan.Heap, Keys: []int64{key}}
	}

	return scan
}

// orderJoinSides swaps an inner hash join so the estimated-smaller input
// becomes the build side. Without statistics the plan is left alone.
func (o *Optimizer) orderJoinSides(join *HashJoinPlan) Plan {
	if join.JoinType != InnerJoin {
		return join
	}

	leftRows, lok := o.estimateRows(join.Left)
	rightRows, rok := o.estimateRows(join.Right)
	if !lok || !rok || rightRows <= leftRows {
		return join
	}

	o.logger.Debug("swapped hash join sides",
		zap.Int64("left_rows", leftRows), zap.Int64("right_rows", rightRows))

	return &HashJoinPlan{
		Left:      join.Right,
		Right:     join.Left,
		LeftKeys:  join.RightKeys,
		RightKeys: join.LeftKeys,
		JoinType:  join.JoinType,
	}
}

func (o *Optimizer) estimateRows(plan Plan) (int64, bool) {
	switch p := plan.(type) {
	case *SeqScanPlan:
		return o.heapRows(p.Heap, p.Predicate)
	case *IndexScanPlan:
		return int64(len(p.Keys)), true
	case *FilterPlan:
		return o.estimateRows(p.Child)
	default:
		return 0, false
	}
}

func (o *Optimizer) heapRows(heap *table.Heap, predicate Expression) (int64, bool) {
	cols := o.stats[heap]
	if len(cols) == 0 {
		return 0, false
	}

	if col, key, ok := extractPointLookup(predicate); ok {
		if stats, found := cols[col]; found {
			return int64(stats.EstimateCount(table.NewInteger(key))), true
		}
	}

	for _, stats := range cols {
		return stats.Rows(), true
	}

	return 0, false
}

// extractEquiKeys decomposes a predicate into per-side join key lists. It
// accepts a conjunction of column-to-column equality comparisons where the
// sides refer to different inputs; anything else rejects the rewrite.
func extractEquiKeys(predicate Expression) ([]Expression, []Expression, bool) {
	if predicate == nil {
		return nil, nil, false
	}

	var leftKeys, rightKeys []Expression
	if !collectEquiKeys(predicate, &leftKeys, &rightKeys) {
		return nil, nil, false
	}

	return leftKeys, rightKeys, true
}

func collectEquiKeys(expr Expression, leftKeys, rightKeys *[]Expression) bool {
	switch e := expr.(type) {
	case *Logic:
		if e.Op() != LogicAnd {
			return false
		}

		return collectEquiKeys(e.Left(), leftKeys, rightKeys) &&
			collectEquiKeys(e.Right(), leftKeys, rightKeys)
	case *Comparison:
		if e.Op() != CmpEq {
			return false
		}

		l, lok := e.Left().(*ColumnRef)
		r, rok := e.Right().(*ColumnRef)
		if !lok || !rok {
			return false
		}

		switch {
		case l.Side() == LeftSide && r.Side() == RightSide:
			*leftKeys = append(*leftKeys, NewColumnRef(l.ColIdx()))
			*rightKeys = append(*rightKeys, NewColumnRef(r.ColIdx()))
		case l.Side() == RightSide && r.Side() == LeftSide:
			*leftKeys = append(*leftKeys, NewColumnRef(r.ColIdx()))
			*rightKeys = append(*rightKeys, NewColumnRef(l.ColIdx()))
		default:
			return false
		}

		return true
	default:
		return false
	}
}

// extractPointLookup recognises col = integer-const predicates in either
// operand order.
func extractPointLookup(predicate Expression) (int, int64, bool) {
	cmp, ok := predicate.(*Comparison)
	if !ok || cmp.Op() != CmpEq {
		return 0, 0, false
	}

	if col, cok := cmp.Left().(*ColumnRef); cok {
		if key, kok := constInteger(cmp.Right()); kok && col.Side() == LeftSide {
			return col.ColIdx(), key, true
		}
	}

	if col, cok := cmp.Right().(*ColumnRef); cok {
		if key, kok := constInteger(cmp.Left()); kok && col.Side() == LeftSide {
			return col.ColIdx(), key, true
		}
	}

	return 0, 0, false
}

func constInteger(expr Expression) (int64, bool) {
	c, ok := expr.(*Constant)
	if !ok {
		return 0, false
	}

	v := c.Value()
	if v.IsNull() || v.Type() != table.TypeInteger {
		return 0, false
	}

	return v.AsInt(), true
}
