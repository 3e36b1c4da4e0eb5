package table

import (
	"sync"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/RelDB/src/bufferpool"
	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/pkg/optional"
	"github.com/Blackdeer1524/RelDB/src/storage/page"
)

var (
	ErrNoFreePages     = errors.New("buffer pool could not allocate a page")
	ErrTupleTooLarge   = errors.New("tuple does not fit into a single page")
	ErrRecordNotFound  = errors.New("no live record under this id")
	ErrRecordTombstone = errors.New("record is deleted")
)

// Heap is an unordered collection of tuples stored as a singly-linked chain
// of slotted pages. Inserts go to the tail page; record ids stay stable for
// the record's lifetime.
type Heap struct {
	pool   *bufferpool.Manager
	schema *Schema

	mu    sync.Mutex
	first common.PageID
	last  common.PageID
}

func NewHeap(pool *bufferpool.Manager, schema *Schema) (*Heap, error) {
	pid := pool.NewPage()
	if !pid.IsValid() {
		return nil, errors.Wrap(ErrNoFreePages, "create heap")
	}

	g := pool.WritePage(pid)
	bufferpool.AsMut[page.SlottedPage](g).Init()
	g.Drop()

	return &Heap{
		pool:   pool,
		schema: schema,
		first:  pid,
		last:   pid,
	}, nil
}

// OpenHeap attaches to an existing page chain starting at first.
func OpenHeap(
	pool *bufferpool.Manager,
	schema *Schema,
	first common.PageID,
) *Heap {
	assert.Assert(first.IsValid(), "invalid first heap page")

	last := first
	for {
		g := pool.ReadPage(last)
		next := bufferpool.As[page.SlottedPage](g).Next()
		g.Drop()

		if !next.IsValid() {
			break
		}
		last = next
	}

	return &Heap{pool: pool, schema: schema, first: first, last: last}
}

func (h *Heap) Schema() *Schema {
	return h.schema
}

func (h *Heap) FirstPage() common.PageID {
	return h.first
}

// Insert appends the tuple, growing the chain when the tail page is full.
func (h *Heap) Insert(t *Tuple) (common.RecordID, error) {
	data, err := t.MarshalBinary()
	if err != nil {
		return common.RecordID{}, errors.Wrap(err, "serialize tuple")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	guard := h.pool.CheckedWritePage(h.last)
	if guard.IsNone() {
		return common.RecordID{}, errors.Wrapf(ErrNoFreePages, "pin heap tail %d", h.last)
	}

	g := guard.Unwrap()
	sp := bufferpool.AsMut[page.SlottedPage](g)

	if slot := sp.Insert(data); slot.IsSome() {
		rid := common.RecordID{PageID: h.last, SlotNum: slot.Unwrap()}
		g.Drop()

		return rid, nil
	}

	if sp.NumSlots() == 0 {
		g.Drop()
		return common.RecordID{}, errors.Wrapf(ErrTupleTooLarge, "%d bytes", len(data))
	}

	newPid := h.pool.NewPage()
	if !newPid.IsValid() {
		g.Drop()
		return common.RecordID{}, errors.Wrap(ErrNoFreePages, "grow heap")
	}

	newGuard := h.pool.CheckedWritePage(newPid)
	if newGuard.IsNone() {
		g.Drop()
		return common.RecordID{}, errors.Wrapf(ErrNoFreePages, "pin heap page %d", newPid)
	}

	ng := newGuard.Unwrap()
	np := bufferpool.AsMut[page.SlottedPage](ng)
	np.Init()

	slot := np.Insert(data)
	if slot.IsNone() {
		ng.Drop()
		g.Drop()

		return common.RecordID{}, errors.Wrapf(ErrTupleTooLarge, "%d bytes", len(data))
	}

	sp.SetNext(newPid)
	h.last = newPid

	rid := common.RecordID{PageID: newPid, SlotNum: slot.Unwrap()}
	ng.Drop()
	g.Drop()

	return rid, nil
}

// Get materialises the live record under rid, None when the slot is missing
// or tombstoned.
func (h *Heap) Get(rid common.RecordID) (optional.Optional[*Tuple], error) {
	guard := h.pool.CheckedReadPage(rid.PageID)
	if guard.IsNone() {
		return optional.None[*Tuple](), errors.Wrapf(ErrNoFreePages, "pin page %d", rid.PageID)
	}

	g := guard.Unwrap()
	defer g.Drop()

	sp := bufferpool.As[page.SlottedPage](g)
	if rid.SlotNum >= sp.NumSlots() || sp.Status(rid.SlotNum) != page.SlotInserted {
		return optional.None[*Tuple](), nil
	}

	t := new(Tuple)
	if err := t.UnmarshalBinary(sp.Read(rid.SlotNum)); err != nil {
		return optional.None[*Tuple](), errors.Wrapf(err, "record %v", rid)
	}
	t.SetRID(rid)

	return optional.Some(t), nil
}

// Delete tombstones rid. Deleting a missing or already deleted record
// reports false.
func (h *Heap) Delete(rid common.RecordID) (bool, error) {
	guard := h.pool.CheckedWritePage(rid.PageID)
	if guard.IsNone() {
		return false, errors.Wrapf(ErrNoFreePages, "pin page %d", rid.PageID)
	}

	g := guard.Unwrap()
	defer g.Drop()

	sp := bufferpool.AsMut[page.SlottedPage](g)
	if rid.SlotNum >= sp.NumSlots() || sp.Status(rid.SlotNum) != page.SlotInserted {
		return false, nil
	}

	sp.Delete(rid.SlotNum)

	return true, nil
}

// Update rewrites the record in place. Returns false without touching the
// record when the new payload needs more space than the old one; the caller
// then falls back to delete plus insert.
func (h *Heap) Update(rid common.RecordID, t *Tuple) (bool, error) {
	data, err := t.MarshalBinary()
	if err != nil {
		return false, errors.Wrap(err, "serialize tuple")
	}

	guard := h.pool.CheckedWritePage(rid.PageID)
	if guard.IsNone() {
		return false, errors.Wrapf(ErrNoFreePages, "pin page %d", rid.PageID)
	}

	g := guard.Unwrap()
	defer g.Drop()

	sp := bufferpool.AsMut[page.SlottedPage](g)
	if rid.SlotNum >= sp.NumSlots() || sp.Status(rid.SlotNum) != page.SlotInserted {
		return false, errors.Wrapf(ErrRecordNotFound, "%v", rid)
	}

	return sp.Update(rid.SlotNum, data), nil
}

// Iterator walks the page chain in insertion order, skipping tombstones.
// Concurrent inserts past the iterator's position may or may not be seen.
type Iterator struct {
	heap   *Heap
	pageID common.PageID
	slot   uint16
}

func (h *Heap) Iterator() *Iterator {
	return &Iterator{heap: h, pageID: h.first}
}

// Next returns the next live tuple, or false at the end of the heap.
func (it *Iterator) Next() (*Tuple, bool) {
	for it.pageID.IsValid() {
		guard := it.heap.pool.CheckedReadPage(it.pageID)
		if guard.IsNone() {
			return nil, false
		}

		g := guard.Unwrap()
		sp := bufferpool.As[page.SlottedPage](g)

		for ; it.slot < sp.NumSlots(); it.slot++ {
			if sp.Status(it.slot) != page.SlotInserted {
				continue
			}

			t := new(Tuple)
			err := t.UnmarshalBinary(sp.Read(it.slot))
			assert.NoError(err)
			t.SetRID(common.RecordID{PageID: it.pageID, SlotNum: it.slot})

			it.slot++
			g.Drop()

			return t, true
		}

		next := sp.Next()
		g.Drop()

		it.pageID = next
		it.slot = 0
	}

	return nil, false
}
