package execution

import (
	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/RelDB/src/bufferpool"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/page"
	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

var (
	ErrNoFreePages   = errors.New("buffer pool could not allocate a page")
	ErrTupleTooLarge = errors.New("tuple does not fit into a result page")
)

// run is a sequence of intermediate result pages holding serialized tuples
// in write order. Spill-to-disk operators produce and consume runs.
type run struct {
	pages []common.PageID
}

func (r run) empty() bool {
	return len(r.pages) == 0
}

// release returns the run's pages to the pool. Failures are ignored: a page
// that cannot be reclaimed right now leaks until the pool is closed.
func (r run) release(pool *bufferpool.Manager) {
	for _, pid := range r.pages {
		pool.DeletePage(pid)
	}
}

// runWriter appends tuples to a growing run, keeping the tail page pinned
// between appends.
type runWriter struct {
	pool  *bufferpool.Manager
	pages []common.PageID
	cur   *bufferpool.WriteGuard
}

func newRunWriter(pool *bufferpool.Manager) *runWriter {
	return &runWriter{pool: pool}
}

func (w *runWriter) Append(t *table.Tuple) error {
	data, err := t.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "serialize tuple")
	}

	if w.cur == nil {
		if err := w.grow(); err != nil {
			return err
		}
	}

	if bufferpool.AsMut[page.IntermediateResultPage](w.cur).WriteTuple(data) {
		return nil
	}

	if err := w.grow(); err != nil {
		return err
	}
	if !bufferpool.AsMut[page.IntermediateResultPage](w.cur).WriteTuple(data) {
		return errors.Wrapf(ErrTupleTooLarge, "%d bytes", len(data))
	}

	return nil
}

func (w *runWriter) grow() error {
	if w.cur != nil {
		w.cur.Drop()
		w.cur = nil
	}

	pid := w.pool.NewPage()
	if !pid.IsValid() {
		return errors.Wrap(ErrNoFreePages, "grow spill run")
	}

	guard := w.pool.CheckedWritePage(pid)
	if guard.IsNone() {
		return errors.Wrapf(ErrNoFreePages, "pin spill page %d", pid)
	}

	w.cur = guard.Unwrap()
	bufferpool.AsMut[page.IntermediateResultPage](w.cur).Init()
	w.pages = append(w.pages, pid)

	return nil
}

// Finish unpins the tail and hands over the accumulated run.
func (w *runWriter) Finish() run {
	if w.cur != nil {
		w.cur.Drop()
		w.cur = nil
	}

	return run{pages: w.pages}
}

// runReader iterates a run's tuples in write order, holding one read guard
// on the current page.
type runReader struct {
	pool *bufferpool.Manager
	run  run

	pageIdx  int
	tupleIdx int
	guard    *bufferpool.ReadGuard
}

func newRunReader(pool *bufferpool.Manager, r run) *runReader {
	return &runReader{pool: pool, run: r}
}

// Next returns the next tuple, or ok=false at the end of the run.
func (r *runReader) Next() (*table.Tuple, bool, error) {
	for r.pageIdx < len(r.run.pages) {
		if r.guard == nil {
			guard := r.pool.CheckedReadPage(r.run.pages[r.pageIdx])
			if guard.IsNone() {
				return nil, false, errors.Wrapf(ErrNoFreePages,
					"pin spill page %d", r.run.pages[r.pageIdx])
			}
			r.guard = guard.Unwrap()
		}

		data, ok := bufferpool.As[page.IntermediateResultPage](r.guard).ReadTuple(r.tupleIdx)
		if ok {
			r.tupleIdx++

			t := new(table.Tuple)
			if err := t.UnmarshalBinary(data); err != nil {
				return nil, false, errors.Wrap(err, "decode spilled tuple")
			}

			return t, true, nil
		}

		r.guard.Drop()
		r.guard = nil
		r.pageIdx++
		r.tupleIdx = 0
	}

	return nil, false, nil
}

// Close drops the held guard. The run's pages stay allocated.
func (r *runReader) Close() {
	if r.guard != nil {
		r.guard.Drop()
		r.guard = nil
	}
}
