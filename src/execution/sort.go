package execution

import (
	"sort"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

// sortBufBytesPerFrame scales the in-memory build buffer to the pool's
// spare capacity: one frame is left for the run pages themselves.
const sortBufBytesPerFrame = 1024

// Sort is a two-way external merge sort. The build phase accumulates rows
// into a bounded in-memory buffer, sorting and spilling it as a run each
// time it fills; the merge phase pairwise-merges runs until one remains.
type Sort struct {
	ctx     *Context
	child   Executor
	orderBy []OrderBy

	capBytes int
	buf      []*table.Tuple
	bufBytes int

	runs []run
	out  *runReader
}

func NewSort(ctx *Context, child Executor, orderBy []OrderBy) *Sort {
	return &Sort{ctx: ctx, child: child, orderBy: orderBy}
}

func (e *Sort) Init() error {
	e.releaseRuns()
	e.buf = nil
	e.bufBytes = 0

	free := e.ctx.Pool().FreeFrames()
	e.capBytes = (free - 1) * sortBufBytesPerFrame
	if e.capBytes < sortBufBytesPerFrame {
		e.capBytes = sortBufBytesPerFrame
	}

	if err := e.child.Init(); err != nil {
		return errors.Wrap(err, "init sort input")
	}

	if err := e.buildRuns(); err != nil {
		e.releaseRuns()
		return err
	}

	if err := e.mergeRuns(); err != nil {
		e.releaseRuns()
		return err
	}

	if len(e.runs) == 1 {
		e.out = newRunReader(e.ctx.Pool(), e.runs[0])
	}

	return nil
}

// buildRuns drains the child into sorted spilled runs.
func (e *Sort) buildRuns() error {
	var (
		tuples []*table.Tuple
		rids   []common.RecordID
	)
	for {
		tuples = tuples[:0]
		rids = rids[:0]
		if !e.child.Next(&tuples, &rids, common.BatchSize) {
			break
		}

		for _, t := range tuples {
			size := t.SerializedSize()
			if e.bufBytes+size > e.capBytes && len(e.buf) > 0 {
				if err := e.spillBuffer(); err != nil {
					return err
				}
			}

			e.buf = append(e.buf, t)
			e.bufBytes += size
		}
	}

	if len(e.buf) > 0 {
		return e.spillBuffer()
	}

	return nil
}

func (e *Sort) spillBuffer() error {
	sort.SliceStable(e.buf, func(i, j int) bool {
		return compareTuples(e.buf[i], e.buf[j], e.orderBy) < 0
	})

	w := newRunWriter(e.ctx.Pool())
	for _, t := range e.buf {
		if err := w.Append(t); err != nil {
			w.Finish().release(e.ctx.Pool())
			return errors.Wrap(err, "spill sort run")
		}
	}

	e.runs = append(e.runs, w.Finish())
	e.buf = e.buf[:0]
	e.bufBytes = 0

	return nil
}

// mergeRuns repeatedly merges the two front runs until one remains.
func (e *Sort) mergeRuns() error {
	for len(e.runs) > 1 {
		merged, err := e.mergePair(e.runs[0], e.runs[1])
		if err != nil {
			return err
		}

		e.runs[0].release(e.ctx.Pool())
		e.runs[1].release(e.ctx.Pool())
		e.runs = append(e.runs[2:], merged)
	}

	return nil
}

func (e *Sort) mergePair(a, b run) (run, error) {
	ra := newRunReader(e.ctx.Pool(), a)
	rb := newRunReader(e.ctx.Pool(), b)
	defer ra.Close()
	defer rb.Close()

	w := newRunWriter(e.ctx.Pool())
	fail := func(err error) (run, error) {
		w.Finish().release(e.ctx.Pool())
		return run{}, err
	}

	ta, okA, err := ra.Next()
	if err != nil {
		return fail(err)
	}
	tb, okB, err := rb.Next()
	if err != nil {
		return fail(err)
	}

	for okA && okB {
		// <= keeps the earlier run's tuple first on ties: merge stays stable.
		if compareTuples(ta, tb, e.orderBy) <= 0 {
			if err := w.Append(ta); err != nil {
				return fail(err)
			}
			ta, okA, err = ra.Next()
		} else {
			if err := w.Append(tb); err != nil {
				return fail(err)
			}
			tb, okB, err = rb.Next()
		}
		if err != nil {
			return fail(err)
		}
	}

	for okA {
		if err := w.Append(ta); err != nil {
			return fail(err)
		}
		ta, okA, err = ra.Next()
		if err != nil {
			return fail(err)
		}
	}
	for okB {
		if err := w.Append(tb); err != nil {
			return fail(err)
		}
		tb, okB, err = rb.Next()
		if err != nil {
			return fail(err)
		}
	}

	return w.Finish(), nil
}

func (e *Sort) Next(tuples *[]*table.Tuple, rids *[]common.RecordID, batchSize int) bool {
	if e.out == nil {
		return false
	}

	produced := 0
	for produced < batchSize {
		t, ok, err := e.out.Next()
		if err != nil {
			e.ctx.Logger().Error("sorted run read failed", zap.Error(err))
			break
		}
		if !ok {
			e.out.Close()
			break
		}

		*tuples = append(*tuples, t)
		*rids = append(*rids, common.RecordID{})
		produced++
	}

	return produced > 0
}

func (e *Sort) OutputSchema() *table.Schema {
	return e.child.OutputSchema()
}

func (e *Sort) releaseRuns() {
	if e.out != nil {
		e.out.Close()
		e.out = nil
	}

	for _, r := range e.runs {
		r.release(e.ctx.Pool())
	}
	e.runs = nil
}
