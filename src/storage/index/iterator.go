package index

import (
	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/RelDB/src/bufferpool"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/page"
)

// Iterator walks leaf entries in key order following sibling links. It holds
// no latch between Next calls: each call re-pins the current leaf, so
// entries inserted or removed concurrently may or may not be observed.
type Iterator struct {
	tree *BPlusTree

	pid  common.PageID
	slot int
}

// Begin positions an iterator at the smallest key.
func (t *BPlusTree) Begin() (*Iterator, error) {
	headerGuard := t.pool.CheckedReadPage(t.headerPID)
	if headerGuard.IsNone() {
		return nil, errors.Wrap(ErrNoFreePages, "pin index header")
	}

	parent := headerGuard.Unwrap()
	cur := bufferpool.As[page.IndexHeaderPage](parent).Root()
	if !cur.IsValid() {
		parent.Drop()
		return &Iterator{tree: t, pid: common.InvalidPageID}, nil
	}

	for {
		childGuard := t.pool.CheckedReadPage(cur)
		if childGuard.IsNone() {
			parent.Drop()
			return nil, errors.Wrapf(ErrNoFreePages, "pin index page %d", cur)
		}

		g := childGuard.Unwrap()
		parent.Drop()

		if bufferpool.As[page.LeafPage](g).IsLeaf() {
			g.Drop()
			return &Iterator{tree: t, pid: cur}, nil
		}

		cur = bufferpool.As[page.InternalPage](g).ChildAt(0)
		parent = g
	}
}

// BeginAt positions an iterator at the first entry with key >= key.
func (t *BPlusTree) BeginAt(key int64) (*Iterator, error) {
	leafGuard, err := t.findLeaf(key)
	if err != nil {
		return nil, err
	}
	if leafGuard == nil {
		return &Iterator{tree: t, pid: common.InvalidPageID}, nil
	}

	leaf := bufferpool.As[page.LeafPage](leafGuard)
	pid := leafGuard.PageID()
	slot := leaf.FindFirstGE(key)
	leafGuard.Drop()

	return &Iterator{tree: t, pid: pid, slot: slot}, nil
}

// Next returns the next entry in key order, ok=false at the end of the tree.
func (it *Iterator) Next() (int64, common.RecordID, bool) {
	for it.pid.IsValid() {
		guard := it.tree.pool.CheckedReadPage(it.pid)
		if guard.IsNone() {
			return 0, common.RecordID{}, false
		}

		g := guard.Unwrap()
		leaf := bufferpool.As[page.LeafPage](g)

		if it.slot < leaf.Size() {
			key := leaf.KeyAt(it.slot)
			rid := leaf.ValueAt(it.slot)
			it.slot++
			g.Drop()

			return key, rid, true
		}

		next := leaf.Next()
		g.Drop()

		it.pid = next
		it.slot = 0
	}

	return 0, common.RecordID{}, false
}
