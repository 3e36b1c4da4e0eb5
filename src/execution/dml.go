package execution

import (
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/index"
	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

// IndexInfo binds a B+tree to the table column it indexes.
type IndexInfo struct {
	Tree   *index.BPlusTree
	KeyCol int
}

func countSchema() *table.Schema {
	return table.NewSchema([]table.Column{{Name: "count", Type: table.TypeInteger}})
}

// Insert appends every child row to the heap and registers it in each
// index, then emits a single row with the number of inserted tuples.
type Insert struct {
	ctx     *Context
	child   Executor
	heap    *table.Heap
	indexes []IndexInfo

	done bool
}

func NewInsert(ctx *Context, child Executor, heap *table.Heap, indexes []IndexInfo) *Insert {
	return &Insert{ctx: ctx, child: child, heap: heap, indexes: indexes}
}

func (e *Insert) Init() error {
	e.done = false
	if err := e.child.Init(); err != nil {
		return errors.Wrap(err, "init insert input")
	}

	return nil
}

func (e *Insert) Next(tuples *[]*table.Tuple, rids *[]common.RecordID, batchSize int) bool {
	if e.done {
		return false
	}
	e.done = true

	count := int64(0)

	var (
		in     []*table.Tuple
		inRids []common.RecordID
	)
	for {
		in = in[:0]
		inRids = inRids[:0]
		if !e.child.Next(&in, &inRids, common.BatchSize) {
			break
		}

		for _, t := range in {
			rid, err := e.heap.Insert(t)
			if err != nil {
				e.ctx.Logger().Error("insert failed", zap.Error(err))
				e.emitCount(tuples, rids, count)

				return true
			}

			e.updateIndexes(t, rid)
			count++
		}
	}

	e.emitCount(tuples, rids, count)

	return true
}

func (e *Insert) updateIndexes(t *table.Tuple, rid common.RecordID) {
	for _, idx := range e.indexes {
		key := t.Value(idx.KeyCol)
		if key.IsNull() {
			continue
		}

		if _, err := idx.Tree.Insert(key.AsInt(), rid); err != nil {
			e.ctx.Logger().Error("index insert failed",
				zap.Int64("key", key.AsInt()), zap.Error(err))
		}
	}
}

func (e *Insert) emitCount(tuples *[]*table.Tuple, rids *[]common.RecordID, count int64) {
	*tuples = append(*tuples, table.NewTuple([]table.Value{table.NewInteger(count)}))
	*rids = append(*rids, common.RecordID{})
}

func (e *Insert) OutputSchema() *table.Schema {
	return countSchema()
}

// Delete tombstones every child row in the heap and unregisters its keys
// from each index, then emits the affected-row count.
type Delete struct {
	ctx     *Context
	child   Executor
	heap    *table.Heap
	indexes []IndexInfo

	done bool
}

func NewDelete(ctx *Context, child Executor, heap *table.Heap, indexes []IndexInfo) *Delete {
	return &Delete{ctx: ctx, child: child, heap: heap, indexes: indexes}
}

func (e *Delete) Init() error {
	e.done = false
	if err := e.child.Init(); err != nil {
		return errors.Wrap(err, "init delete input")
	}

	return nil
}

func (e *Delete) Next(tuples *[]*table.Tuple, rids *[]common.RecordID, batchSize int) bool {
	if e.done {
		return false
	}
	e.done = true

	count := int64(0)

	var (
		in     []*table.Tuple
		inRids []common.RecordID
	)
	for {
		in = in[:0]
		inRids = inRids[:0]
		if !e.child.Next(&in, &inRids, common.BatchSize) {
			break
		}

		for i, t := range in {
			ok, err := e.heap.Delete(inRids[i])
			if err != nil {
				e.ctx.Logger().Error("delete failed", zap.Error(err))
				continue
			}
			if !ok {
				continue
			}

			e.dropFromIndexes(t)
			count++
		}
	}

	*tuples = append(*tuples, table.NewTuple([]table.Value{table.NewInteger(count)}))
	*rids = append(*rids, common.RecordID{})

	return true
}

func (e *Delete) dropFromIndexes(t *table.Tuple) {
	for _, idx := range e.indexes {
		key := t.Value(idx.KeyCol)
		if key.IsNull() {
			continue
		}

		if _, err := idx.Tree.Delete(key.AsInt()); err != nil {
			e.ctx.Logger().Error("index delete failed",
				zap.Int64("key", key.AsInt()), zap.Error(err))
		}
	}
}

func (e *Delete) OutputSchema() *table.Schema {
	return countSchema()
}

// Update rewrites every child row through the set expressions. A row that no
// longer fits in place is reinserted under a fresh record id; indexes track
// both the key change and the id change.
type Update struct {
	ctx      *Context
	child    Executor
	heap     *table.Heap
	indexes  []IndexInfo
	setExprs []Expression

	done bool
}

func NewUpdate(
	ctx *Context,
	child Executor,
	heap *table.Heap,
	indexes []IndexInfo,
	setExprs []Expression,
) *Update {
	return &Update{ctx: ctx, child: child, heap: heap, indexes: indexes, setExprs: setExprs}
}

func (e *Update) Init() error {
	e.done = false
	return errors.Wrap(e.child.Init(), "init update input")
}

func (e *Update) Next(tuples *[]*table.Tuple, rids *[]common.RecordID, batchSize int) bool {
	if e.done {
		return false
	}
	e.done = true

	count := int64(0)

	var (
		in     []*table.Tuple
		inRids []common.RecordID
	)
	for {
		in = in[:0]
		inRids = inRids[:0]
		if !e.child.Next(&in, &inRids, common.BatchSize) {
			break
		}

		for i, old := range in {
			if e.updateOne(old, inRids[i]) {
				count++
			}
		}
	}

	*tuples = append(*tuples, table.NewTuple([]table.Value{table.NewInteger(count)}))
	*rids = append(*rids, common.RecordID{})

	return true
}

func (e *Update) updateOne(old *table.Tuple, rid common.RecordID) bool {
	values := make([]table.Value, len(e.setExprs))
	for i, expr := range e.setExprs {
		values[i] = expr.Evaluate(old)
	}
	updated := table.NewTuple(values)

	newRID := rid

	inPlace, err := e.heap.Update(rid, updated)
	if err != nil {
		e.ctx.Logger().Error("update failed", zap.Error(err))
		return false
	}

	if !inPlace {
		if _, err := e.heap.Delete(rid); err != nil {
			e.ctx.Logger().Error("update relocation failed", zap.Error(err))
			return false
		}

		newRID, err = e.heap.Insert(updated)
		if err != nil {
			e.ctx.Logger().Error("update relocation failed", zap.Error(err))
			return false
		}
	}

	for _, idx := range e.indexes {
		oldKey := old.Value(idx.KeyCol)
		newKey := updated.Value(idx.KeyCol)

		if !oldKey.IsNull() {
			if _, err := idx.Tree.Delete(oldKey.AsInt()); err != nil {
				e.ctx.Logger().Error("index delete failed", zap.Error(err))
			}
		}
		if !newKey.IsNull() {
			if _, err := idx.Tree.Insert(newKey.AsInt(), newRID); err != nil {
				e.ctx.Logger().Error("index insert failed", zap.Error(err))
			}
		}
	}

	return true
}

func (e *Update) OutputSchema() *table.Schema {
	return countSchema()
}
