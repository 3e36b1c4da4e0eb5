package index

import (
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/RelDB/src/bufferpool"
	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/page"
)

// Delete removes key from the tree. Returns false when the key is absent.
func (t *BPlusTree) Delete(key int64) (bool, error) {
	deleted, done, err := t.deleteOptimistic(key)
	if err != nil || done {
		return deleted, err
	}

	return t.deletePessimistic(key)
}

// deleteOptimistic descends with shared latches and write-latches only the
// leaf. Reports done=false when removing the key would underflow the leaf,
// in which case the caller restarts pessimistically.
func (t *BPlusTree) deleteOptimistic(key int64) (deleted bool, done bool, err error) {
	headerGuard := t.pool.CheckedReadPage(t.headerPID)
	if headerGuard.IsNone() {
		return false, false, errors.Wrap(ErrNoFreePages, "pin index header")
	}

	parent := headerGuard.Unwrap()
	cur := bufferpool.As[page.IndexHeaderPage](parent).Root()
	if !cur.IsValid() {
		parent.Drop()
		return false, true, nil
	}

	isRoot := true
	for {
		childGuard := t.pool.CheckedReadPage(cur)
		if childGuard.IsNone() {
			parent.Drop()
			return false, false, errors.Wrapf(ErrNoFreePages, "pin index page %d", cur)
		}

		g := childGuard.Unwrap()
		if bufferpool.As[page.LeafPage](g).IsLeaf() {
			// Re-take the leaf exclusively. The parent's shared latch is
			// still held, so the leaf cannot be merged or freed in between.
			g.Drop()

			leafGuard := t.pool.CheckedWritePage(cur)
			parent.Drop()
			if leafGuard.IsNone() {
				return false, false, errors.Wrapf(ErrNoFreePages, "pin leaf %d", cur)
			}

			wg := leafGuard.Unwrap()
			leaf := bufferpool.AsRO[page.LeafPage](wg)

			pos := leaf.FindFirstGE(key)
			if pos >= leaf.Size() || leaf.KeyAt(pos) != key {
				wg.Drop()
				return false, true, nil
			}

			safe := leaf.Size()-1 >= leaf.MinSize()
			if isRoot {
				safe = leaf.Size() > 1
			}
			if !safe {
				wg.Drop()
				return false, false, nil
			}

			bufferpool.AsMut[page.LeafPage](wg).RemoveAt(pos)
			wg.Drop()

			return true, true, nil
		}

		parent.Drop()
		cur = bufferpool.As[page.InternalPage](g).FindChild(key)
		parent = g
		isRoot = false
	}
}

// deletePessimistic write-latches the whole path, releasing safe ancestors
// as it crabs down. Handles redistribution, merges and root collapse.
func (t *BPlusTree) deletePessimistic(key int64) (bool, error) {
	headerOpt := t.pool.CheckedWritePage(t.headerPID)
	if headerOpt.IsNone() {
		return false, errors.Wrap(ErrNoFreePages, "pin index header")
	}

	headerGuard := headerOpt.Unwrap()
	path := newGuardStack(headerGuard)
	defer path.DropAll()

	hdr := bufferpool.AsRO[page.IndexHeaderPage](headerGuard)
	if hdr.IsEmpty() {
		return false, nil
	}

	cur := hdr.Root()
	isRoot := true

	var leafGuard *bufferpool.WriteGuard
	for {
		childOpt := t.pool.CheckedWritePage(cur)
		if childOpt.IsNone() {
			return false, errors.Wrapf(ErrNoFreePages, "pin index page %d", cur)
		}

		g := childOpt.Unwrap()
		meta := bufferpool.AsRO[page.LeafPage](g)

		// A root leaf only has to keep one entry. Every internal node, the
		// root included, counts as safe only when it can lose a child and
		// keep MinSize, so a merge below it never needs to reach further up.
		safe := meta.Size()-1 >= meta.MinSize()
		if isRoot && meta.IsLeaf() {
			safe = meta.Size() > 1
		}
		if safe {
			path.DropAncestors()
		}

		if meta.IsLeaf() {
			leafGuard = g
			path.Push(g)

			break
		}

		path.Push(g)
		cur = bufferpool.AsRO[page.InternalPage](g).FindChild(key)
		isRoot = false
	}

	leaf := bufferpool.AsRO[page.LeafPage](leafGuard)
	pos := leaf.FindFirstGE(key)
	if pos >= leaf.Size() || leaf.KeyAt(pos) != key {
		return false, nil
	}

	bufferpool.AsMut[page.LeafPage](leafGuard).RemoveAt(pos)

	// Only an underflowed leaf needs repair. An unsafe node keeps its parent
	// latched, so every node a repair can reach is still on the path.
	if remaining := leaf.Size(); remaining > 0 && (isRoot || remaining >= leaf.MinSize()) {
		return true, nil
	}

	var freed []common.PageID
	if err := t.fixUnderflow(path, &freed); err != nil {
		return false, err
	}

	path.DropAll()
	for _, pid := range freed {
		if !t.pool.DeletePage(pid) {
			t.logger.Warn("index page not reclaimed", zap.Int64("page_id", int64(pid)))
		}
	}

	return true, nil
}

// fixUnderflow repairs the deepest retained node and walks upward while
// merges keep shrinking ancestors. Freed page ids are collected for the
// caller to reclaim after every latch is released.
func (t *BPlusTree) fixUnderflow(path *guardStack, freed *[]common.PageID) error {
	for {
		node := path.Pop()

		if path.NodeCount() == 0 {
			t.collapseRoot(path, node, freed)
			node.Drop()

			return nil
		}

		parentGuard := path.TopNode()
		idx := bufferpool.AsRO[page.InternalPage](parentGuard).ChildIndex(node.PageID())
		assert.Assert(idx >= 0, "page %d not found in parent %d",
			node.PageID(), parentGuard.PageID())

		var (
			merged bool
			err    error
		)
		if bufferpool.AsRO[page.LeafPage](node).IsLeaf() {
			merged, err = t.fixLeafNode(parentGuard, node, idx, freed)
		} else {
			merged, err = t.fixInternalNode(parentGuard, node, idx, freed)
		}
		node.Drop()

		if err != nil {
			return err
		}
		if !merged {
			return nil
		}

		parent := bufferpool.AsRO[page.InternalPage](parentGuard)
		if path.NodeCount() == 1 && path.HasHeader() {
			if parent.Size() == 1 {
				continue
			}

			return nil
		}
		if parent.Size() >= parent.MinSize() {
			return nil
		}
	}
}

// collapseRoot shrinks the tree when the root itself ran empty: an internal
// root with a single child hands that child the root role, an empty root
// leaf leaves the tree empty.
func (t *BPlusTree) collapseRoot(
	path *guardStack,
	root *bufferpool.WriteGuard,
	freed *[]common.PageID,
) {
	assert.Assert(path.HasHeader(), "root collapse without the header latch")

	hdr := bufferpool.AsMut[page.IndexHeaderPage](path.Header())

	if bufferpool.AsRO[page.LeafPage](root).IsLeaf() {
		if bufferpool.AsRO[page.LeafPage](root).Size() == 0 {
			hdr.SetRoot(common.InvalidPageID)
			*freed = append(*freed, root.PageID())
		}

		return
	}

	node := bufferpool.AsRO[page.InternalPage](root)
	if node.Size() == 1 {
		hdr.SetRoot(node.ChildAt(0))
		*freed = append(*freed, root.PageID())
	}
}

// fixLeafNode repairs an underflowed leaf against a sibling. The left
// sibling is used when one exists; a borrowed entry fixes the node in place,
// otherwise the two leaves merge and the parent loses a separator.
func (t *BPlusTree) fixLeafNode(
	parentGuard *bufferpool.WriteGuard,
	nodeGuard *bufferpool.WriteGuard,
	idx int,
	freed *[]common.PageID,
) (merged bool, err error) {
	parent := bufferpool.AsMut[page.InternalPage](parentGuard)
	node := bufferpool.AsMut[page.LeafPage](nodeGuard)

	if idx > 0 {
		leftOpt := t.pool.CheckedWritePage(parent.ChildAt(idx - 1))
		if leftOpt.IsNone() {
			return false, errors.Wrapf(ErrNoFreePages, "pin leaf %d", parent.ChildAt(idx-1))
		}

		lg := leftOpt.Unwrap()
		defer lg.Drop()

		left := bufferpool.AsMut[page.LeafPage](lg)
		if left.Size() > left.MinSize() {
			last := left.Size() - 1
			k, r := left.KeyAt(last), left.ValueAt(last)
			left.RemoveAt(last)
			node.InsertAt(0, k, r)
			parent.SetKeyAt(idx, k)

			return false, nil
		}

		for i := range node.Size() {
			left.InsertAt(left.Size(), node.KeyAt(i), node.ValueAt(i))
		}
		left.SetNext(node.Next())
		parent.RemoveAt(idx)
		*freed = append(*freed, nodeGuard.PageID())

		return true, nil
	}

	assert.Assert(parent.Size() > 1, "leaf %d has no siblings", nodeGuard.PageID())

	rightOpt := t.pool.CheckedWritePage(parent.ChildAt(1))
	if rightOpt.IsNone() {
		return false, errors.Wrapf(ErrNoFreePages, "pin leaf %d", parent.ChildAt(1))
	}

	rg := rightOpt.Unwrap()
	defer rg.Drop()

	right := bufferpool.AsMut[page.LeafPage](rg)
	if right.Size() > right.MinSize() {
		k, r := right.KeyAt(0), right.ValueAt(0)
		right.RemoveAt(0)
		node.InsertAt(node.Size(), k, r)
		parent.SetKeyAt(1, right.KeyAt(0))

		return false, nil
	}

	for i := range right.Size() {
		node.InsertAt(node.Size(), right.KeyAt(i), right.ValueAt(i))
	}
	node.SetNext(right.Next())
	parent.RemoveAt(1)
	*freed = append(*freed, rg.PageID())

	return true, nil
}

// fixInternalNode repairs an underflowed internal node. Borrowing rotates a
// child through the parent separator; merging pulls the separator down
// between the two halves.
func (t *BPlusTree) fixInternalNode(
	parentGuard *bufferpool.WriteGuard,
	nodeGuard *bufferpool.WriteGuard,
	idx int,
	freed *[]common.PageID,
) (merged bool, err error) {
	parent := bufferpool.AsMut[page.InternalPage](parentGuard)
	node := bufferpool.AsMut[page.InternalPage](nodeGuard)

	if idx > 0 {
		leftOpt := t.pool.CheckedWritePage(parent.ChildAt(idx - 1))
		if leftOpt.IsNone() {
			return false, errors.Wrapf(ErrNoFreePages, "pin node %d", parent.ChildAt(idx-1))
		}

		lg := leftOpt.Unwrap()
		defer lg.Drop()

		left := bufferpool.AsMut[page.InternalPage](lg)
		if left.Size() > left.MinSize() {
			last := left.Size() - 1
			upKey := left.KeyAt(last)
			child := left.ChildAt(last)
			left.RemoveAt(last)
			node.InsertAtHead(parent.KeyAt(idx), child)
			parent.SetKeyAt(idx, upKey)

			return false, nil
		}

		left.InsertAt(left.Size(), parent.KeyAt(idx), node.ChildAt(0))
		for i := 1; i < node.Size(); i++ {
			left.InsertAt(left.Size(), node.KeyAt(i), node.ChildAt(i))
		}
		parent.RemoveAt(idx)
		*freed = append(*freed, nodeGuard.PageID())

		return true, nil
	}

	assert.Assert(parent.Size() > 1, "node %d has no siblings", nodeGuard.PageID())

	rightOpt := t.pool.CheckedWritePage(parent.ChildAt(1))
	if rightOpt.IsNone() {
		return false, errors.Wrapf(ErrNoFreePages, "pin node %d", parent.ChildAt(1))
	}

	rg := rightOpt.Unwrap()
	defer rg.Drop()

	right := bufferpool.AsMut[page.InternalPage](rg)
	if right.Size() > right.MinSize() {
		sepDown := parent.KeyAt(1)
		child := right.ChildAt(0)
		upKey := right.KeyAt(1)
		right.RemoveAtHead()
		node.InsertAt(node.Size(), sepDown, child)
		parent.SetKeyAt(1, upKey)

		return false, nil
	}

	node.InsertAt(node.Size(), parent.KeyAt(1), right.ChildAt(0))
	for i := 1; i < right.Size(); i++ {
		node.InsertAt(node.Size(), right.KeyAt(i), right.ChildAt(i))
	}
	parent.RemoveAt(1)
	*freed = append(*freed, rg.PageID())

	return true, nil
}
