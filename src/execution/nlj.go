package execution

import (
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/index"
	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

// NestedLoopJoin re-scans the whole right input for every left row. The
// right side is materialised once during Init; predicates run under
// EvaluateJoin with the left row on the left.
type NestedLoopJoin struct {
	ctx         *Context
	left, right Executor
	predicate   Expression
	joinType    JoinType
	schema      *table.Schema

	rightRows []*table.Tuple
	curLeft   *table.Tuple
	rightPos  int
	matched   bool
	leftDone  bool
}

func NewNestedLoopJoin(
	ctx *Context,
	left, right Executor,
	predicate Expression,
	joinType JoinType,
) *NestedLoopJoin {
	return &NestedLoopJoin{
		ctx:       ctx,
		left:      left,
		right:     right,
		predicate: predicate,
		joinType:  joinType,
		schema:    table.MergeSchemas(left.OutputSchema(), right.OutputSchema()),
	}
}

func (e *NestedLoopJoin) Init() error {
	e.rightRows = nil
	e.curLeft = nil
	e.rightPos = 0
	e.matched = false
	e.leftDone = false

	if err := e.left.Init(); err != nil {
		return errors.Wrap(err, "init left input")
	}
	if err := e.right.Init(); err != nil {
		return errors.Wrap(err, "init right input")
	}

	var (
		tuples []*table.Tuple
		rids   []common.RecordID
	)
	for {
		tuples = tuples[:0]
		rids = rids[:0]
		if !e.right.Next(&tuples, &rids, common.BatchSize) {
			break
		}
		e.rightRows = append(e.rightRows, tuples...)
	}

	return nil
}

func (e *NestedLoopJoin) Next(tuples *[]*table.Tuple, rids *[]common.RecordID, batchSize int) bool {
	produced := 0
	for produced < batchSize && !e.leftDone {
		if e.curLeft == nil {
			if !e.advanceLeft() {
				break
			}
		}

		for e.rightPos < len(e.rightRows) {
			rt := e.rightRows[e.rightPos]
			e.rightPos++

			if e.predicate != nil && !truthy(e.predicate.EvaluateJoin(e.curLeft, rt)) {
				continue
			}

			*tuples = append(*tuples, mergeTuples(e.curLeft, rt))
			*rids = append(*rids, common.RecordID{})
			e.matched = true
			produced++

			if produced == batchSize {
				return true
			}
		}

		if !e.matched && e.joinType == LeftJoin {
			*tuples = append(*tuples, e.padRight(e.curLeft))
			*rids = append(*rids, common.RecordID{})
			produced++
		}

		e.curLeft = nil
	}

	return produced > 0
}

func (e *NestedLoopJoin) advanceLeft() bool {
	var (
		tuples []*table.Tuple
		rids   []common.RecordID
	)
	if !e.left.Next(&tuples, &rids, 1) {
		e.leftDone = true
		return false
	}

	e.curLeft = tuples[0]
	e.rightPos = 0
	e.matched = false

	return true
}

func (e *NestedLoopJoin) padRight(lt *table.Tuple) *table.Tuple {
	rightSchema := e.right.OutputSchema()

	values := make([]table.Value, 0, e.schema.ColumnCount())
	values = append(values, lt.Values()...)
	for _, col := range rightSchema.Columns() {
		values = append(values, table.NewNull(col.Type))
	}

	return table.NewTuple(values)
}

func (e *NestedLoopJoin) OutputSchema() *table.Schema {
	return e.schema
}

// NestedIndexJoin probes the right table's B+tree once per left row instead
// of scanning it. The key expression evaluates on the left row; the probed
// record is fetched from the right heap.
type NestedIndexJoin struct {
	ctx     *Context
	left    Executor
	keyExpr Expression
	tree    *index.BPlusTree
	heap    *table.Heap

	joinType JoinType
	schema   *table.Schema
}

func NewNestedIndexJoin(
	ctx *Context,
	left Executor,
	keyExpr Expression,
	tree *index.BPlusTree,
	heap *table.Heap,
	joinType JoinType,
) *NestedIndexJoin {
	return &NestedIndexJoin{
		ctx:      ctx,
		left:     left,
		keyExpr:  keyExpr,
		tree:     tree,
		heap:     heap,
		joinType: joinType,
		schema:   table.MergeSchemas(left.OutputSchema(), heap.Schema()),
	}
}

func (e *NestedIndexJoin) Init() error {
	if err := e.left.Init(); err != nil {
		return errors.Wrap(err, "init left input")
	}

	return nil
}

func (e *NestedIndexJoin) Next(tuples *[]*table.Tuple, rids *[]common.RecordID, batchSize int) bool {
	produced := 0
	for produced < batchSize {
		var (
			in     []*table.Tuple
			inRids []common.RecordID
		)
		if !e.left.Next(&in, &inRids, 1) {
			break
		}

		lt := in[0]
		rt, ok := e.probe(lt)
		if !ok {
			if e.joinType != LeftJoin {
				continue
			}
			rt = nil
		}

		if rt != nil {
			*tuples = append(*tuples, mergeTuples(lt, rt))
		} else {
			*tuples = append(*tuples, e.padRight(lt))
		}
		*rids = append(*rids, common.RecordID{})
		produced++
	}

	return produced > 0
}

func (e *NestedIndexJoin) probe(lt *table.Tuple) (*table.Tuple, bool) {
	key := e.keyExpr.Evaluate(lt)
	if key.IsNull() {
		return nil, false
	}

	rid, err := e.tree.Get(key.AsInt())
	if err != nil {
		e.ctx.Logger().Error("index probe failed", zap.Error(err))
		return nil, false
	}
	if rid.IsNone() {
		return nil, false
	}

	t, err := e.heap.Get(rid.Unwrap())
	if err != nil {
		e.ctx.Logger().Error("heap lookup failed", zap.Error(err))
		return nil, false
	}
	if t.IsNone() {
		return nil, false
	}

	return t.Unwrap(), true
}

func (e *NestedIndexJoin) padRight(lt *table.Tuple) *table.Tuple {
	values := make([]table.Value, 0, e.schema.ColumnCount())
	values = append(values, lt.Values()...)
	for _, col := range e.heap.Schema().Columns() {
		values = append(values, table.NewNull(col.Type))
	}

	return table.NewTuple(values)
}

func (e *NestedIndexJoin) OutputSchema() *table.Schema {
	return e.schema
}
