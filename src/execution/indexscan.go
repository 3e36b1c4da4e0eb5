package execution

import (
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/index"
	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

// IndexScan reads a table through its B+tree index. Point mode probes an
// ordered list of keys; range mode walks the whole tree in key order. Keys
// whose record vanished from the heap are skipped.
type IndexScan struct {
	ctx  *Context
	tree *index.BPlusTree
	heap *table.Heap

	// keys enables point mode; nil means range mode.
	keys []int64

	pos int
	it  *index.Iterator
}

func NewIndexScan(ctx *Context, tree *index.BPlusTree, heap *table.Heap, keys []int64) *IndexScan {
	return &IndexScan{ctx: ctx, tree: tree, heap: heap, keys: keys}
}

func (e *IndexScan) Init() error {
	e.pos = 0
	e.it = nil

	if e.keys == nil {
		it, err := e.tree.Begin()
		if err != nil {
			return errors.Wrap(err, "open index iterator")
		}
		e.it = it
	}

	return nil
}

func (e *IndexScan) Next(tuples *[]*table.Tuple, rids *[]common.RecordID, batchSize int) bool {
	if e.keys != nil {
		return e.nextPoint(tuples, rids, batchSize)
	}

	return e.nextRange(tuples, rids, batchSize)
}

func (e *IndexScan) nextPoint(tuples *[]*table.Tuple, rids *[]common.RecordID, batchSize int) bool {
	produced := 0
	for produced < batchSize && e.pos < len(e.keys) {
		key := e.keys[e.pos]
		e.pos++

		rid, err := e.tree.Get(key)
		if err != nil {
			e.ctx.Logger().Error("index probe failed", zap.Error(err))
			return produced > 0
		}
		if rid.IsNone() {
			continue
		}

		if e.emit(tuples, rids, rid.Unwrap()) {
			produced++
		}
	}

	return produced > 0
}

func (e *IndexScan) nextRange(tuples *[]*table.Tuple, rids *[]common.RecordID, batchSize int) bool {
	produced := 0
	for produced < batchSize {
		_, rid, ok := e.it.Next()
		if !ok {
			break
		}

		if e.emit(tuples, rids, rid) {
			produced++
		}
	}

	return produced > 0
}

func (e *IndexScan) emit(tuples *[]*table.Tuple, rids *[]common.RecordID, rid common.RecordID) bool {
	t, err := e.heap.Get(rid)
	if err != nil {
		e.ctx.Logger().Error("heap lookup failed", zap.Error(err))
		return false
	}
	if t.IsNone() {
		return false
	}

	*tuples = append(*tuples, t.Unwrap())
	*rids = append(*rids, rid)

	return true
}

func (e *IndexScan) OutputSchema() *table.Schema {
	return e.heap.Schema()
}
