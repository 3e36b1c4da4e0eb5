package execution

import (
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

// SeqScan walks a table heap in insertion order. Deleted records are skipped
// by the heap iterator; an optional predicate filters rows inline.
type SeqScan struct {
	ctx       *Context
	heap      *table.Heap
	predicate Expression

	iter *table.Iterator
}

func NewSeqScan(ctx *Context, heap *table.Heap, predicate Expression) *SeqScan {
	return &SeqScan{ctx: ctx, heap: heap, predicate: predicate}
}

func (e *SeqScan) Init() error {
	e.iter = e.heap.Iterator()
	return nil
}

func (e *SeqScan) Next(tuples *[]*table.Tuple, rids *[]common.RecordID, batchSize int) bool {
	produced := 0
	for produced < batchSize {
		t, ok := e.iter.Next()
		if !ok {
			break
		}

		if e.predicate != nil && !truthy(e.predicate.Evaluate(t)) {
			continue
		}

		*tuples = append(*tuples, t)
		*rids = append(*rids, t.RID())
		produced++
	}

	return produced > 0
}

func (e *SeqScan) OutputSchema() *table.Schema {
	return e.heap.Schema()
}
