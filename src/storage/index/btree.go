package index

import (
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/RelDB/src/bufferpool"
	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/pkg/optional"
	"github.com/Blackdeer1524/RelDB/src/storage/page"
)

var ErrNoFreePages = errors.New("buffer pool could not allocate a page")

// BPlusTree is a disk-backed, unique-key B+tree over int64 keys and record
// id values. All page access goes through buffer pool guards; concurrency
// follows latch crabbing with a restart-from-root pessimistic phase for
// structural changes.
type BPlusTree struct {
	pool *bufferpool.Manager

	headerPID common.PageID

	leafMaxSize     int
	internalMaxSize int

	logger *zap.Logger
}

// NewBPlusTree creates an empty tree with its own header page. Max sizes are
// accepted explicitly so tests can force small fan-outs.
func NewBPlusTree(
	pool *bufferpool.Manager,
	leafMaxSize int,
	internalMaxSize int,
	logger *zap.Logger,
) (*BPlusTree, error) {
	assert.Assert(leafMaxSize > 1 && leafMaxSize <= page.LeafSlotCount,
		"leaf max size %d out of range", leafMaxSize)
	assert.Assert(internalMaxSize > 2 && internalMaxSize <= page.InternalSlotCount,
		"internal max size %d out of range", internalMaxSize)
	assert.Assert(logger != nil, "nil logger")

	headerPID := pool.NewPage()
	if !headerPID.IsValid() {
		return nil, errors.Wrap(ErrNoFreePages, "allocate index header")
	}

	g := pool.WritePage(headerPID)
	bufferpool.AsMut[page.IndexHeaderPage](g).Init()
	g.Drop()

	return &BPlusTree{
		pool:            pool,
		headerPID:       headerPID,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		logger:          logger,
	}, nil
}

// OpenBPlusTree attaches to an existing header page.
func OpenBPlusTree(
	pool *bufferpool.Manager,
	headerPID common.PageID,
	leafMaxSize int,
	internalMaxSize int,
	logger *zap.Logger,
) *BPlusTree {
	assert.Assert(headerPID.IsValid(), "invalid index header page")

	return &BPlusTree{
		pool:            pool,
		headerPID:       headerPID,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		logger:          logger,
	}
}

func (t *BPlusTree) HeaderPage() common.PageID {
	return t.headerPID
}

// Get finds the record id stored under key. The descent is read-latched;
// each parent is released right after its child is latched.
func (t *BPlusTree) Get(key int64) (optional.Optional[common.RecordID], error) {
	none := optional.None[common.RecordID]()

	leafGuard, err := t.findLeaf(key)
	if err != nil {
		return none, err
	}
	if leafGuard == nil {
		return none, nil
	}
	defer leafGuard.Drop()

	leaf := bufferpool.As[page.LeafPage](leafGuard)
	pos := leaf.FindFirstGE(key)
	if pos < leaf.Size() && leaf.KeyAt(pos) == key {
		return optional.Some(leaf.ValueAt(pos)), nil
	}

	return none, nil
}

// findLeaf descends to the leaf covering key with shared latches. Returns
// nil without error on an empty tree; the caller drops the returned guard.
func (t *BPlusTree) findLeaf(key int64) (*bufferpool.ReadGuard, error) {
	headerGuard := t.pool.CheckedReadPage(t.headerPID)
	if headerGuard.IsNone() {
		return nil, errors.Wrap(ErrNoFreePages, "pin index header")
	}

	parent := headerGuard.Unwrap()
	cur := bufferpool.As[page.IndexHeaderPage](parent).Root()
	if !cur.IsValid() {
		parent.Drop()
		return nil, nil
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
			return g, nil
		}

		cur = bufferpool.As[page.InternalPage](g).FindChild(key)
		parent = g
	}
}

// Insert stores (key, rid). Returns false when the key is already present.
func (t *BPlusTree) Insert(key int64, rid common.RecordID) (bool, error) {
	inserted, done, err := t.insertOptimistic(key, rid)
	if err != nil || done {
		return inserted, err
	}

	return t.insertPessimistic(key, rid)
}

// insertOptimistic descends with shared latches and write-latches only the
// leaf. Reports done=false when the tree is empty or the leaf is full, in
// which case the caller restarts pessimistically.
func (t *BPlusTree) insertOptimistic(
	key int64,
	rid common.RecordID,
) (inserted bool, done bool, err error) {
	headerGuard := t.pool.CheckedReadPage(t.headerPID)
	if headerGuard.IsNone() {
		return false, false, errors.Wrap(ErrNoFreePages, "pin index header")
	}

	parent := headerGuard.Unwrap()
	cur := bufferpool.As[page.IndexHeaderPage](parent).Root()
	if !cur.IsValid() {
		parent.Drop()
		return false, false, nil
	}

	for {
		childGuard := t.pool.CheckedReadPage(cur)
		if childGuard.IsNone() {
			parent.Drop()
			return false, false, errors.Wrapf(ErrNoFreePages, "pin index page %d", cur)
		}

		g := childGuard.Unwrap()
		if bufferpool.As[page.LeafPage](g).IsLeaf() {
			// Re-take the leaf exclusively. The parent's shared latch is
			// still held, so the leaf cannot be split or freed in between.
			g.Drop()

			leafGuard := t.pool.CheckedWritePage(cur)
			parent.Drop()
			if leafGuard.IsNone() {
				return false, false, errors.Wrapf(ErrNoFreePages, "pin leaf %d", cur)
			}

			wg := leafGuard.Unwrap()
			leaf := bufferpool.AsRO[page.LeafPage](wg)
			if leaf.Size() >= leaf.MaxSize() {
				wg.Drop()
				return false, false, nil
			}

			ok := bufferpool.AsMut[page.LeafPage](wg).Insert(key, rid)
			wg.Drop()

			return ok, true, nil
		}

		parent.Drop()
		cur = bufferpool.As[page.InternalPage](g).FindChild(key)
		parent = g
	}
}

// insertPessimistic write-latches the whole path, releasing safe ancestors
// as it crabs down. Handles root creation and splits.
func (t *BPlusTree) insertPessimistic(key int64, rid common.RecordID) (bool, error) {
	headerOpt := t.pool.CheckedWritePage(t.headerPID)
	if headerOpt.IsNone() {
		return false, errors.Wrap(ErrNoFreePages, "pin index header")
	}

	headerGuard := headerOpt.Unwrap()
	path := newGuardStack(headerGuard)
	defer path.DropAll()

	hdr := bufferpool.AsRO[page.IndexHeaderPage](headerGuard)
	if hdr.IsEmpty() {
		rootPID := t.pool.NewPage()
		if !rootPID.IsValid() {
			return false, errors.Wrap(ErrNoFreePages, "allocate root leaf")
		}

		rootOpt := t.pool.CheckedWritePage(rootPID)
		if rootOpt.IsNone() {
			return false, errors.Wrapf(ErrNoFreePages, "pin root leaf %d", rootPID)
		}

		rg := rootOpt.Unwrap()
		root := bufferpool.AsMut[page.LeafPage](rg)
		root.Init(t.leafMaxSize)
		root.Insert(key, rid)
		rg.Drop()

		bufferpool.AsMut[page.IndexHeaderPage](headerGuard).SetRoot(rootPID)

		return true, nil
	}

	cur := hdr.Root()

	var leafGuard *bufferpool.WriteGuard
	for {
		childOpt := t.pool.CheckedWritePage(cur)
		if childOpt.IsNone() {
			return false, errors.Wrapf(ErrNoFreePages, "pin index page %d", cur)
		}

		g := childOpt.Unwrap()
		meta := bufferpool.AsRO[page.LeafPage](g)
		if meta.Size()+1 <= meta.MaxSize() {
			path.DropAncestors()
		}

		if meta.IsLeaf() {
			leafGuard = g
			path.Push(g)

			break
		}

		path.Push(g)
		cur = bufferpool.AsRO[page.InternalPage](g).FindChild(key)
	}

	leaf := bufferpool.AsRO[page.LeafPage](leafGuard)

	pos := leaf.FindFirstGE(key)
	if pos < leaf.Size() && leaf.KeyAt(pos) == key {
		return false, nil
	}

	if leaf.Size() < leaf.MaxSize() {
		bufferpool.AsMut[page.LeafPage](leafGuard).InsertAt(pos, key, rid)
		return true, nil
	}

	return t.splitLeaf(path, leafGuard, pos, key, rid)
}

// splitLeaf distributes the overflowing leaf's entries plus the new one
// across the old leaf and a fresh right sibling, then propagates the new
// separator upwards.
func (t *BPlusTree) splitLeaf(
	path *guardStack,
	leafGuard *bufferpool.WriteGuard,
	pos int,
	key int64,
	rid common.RecordID,
) (bool, error) {
	leaf := bufferpool.AsMut[page.LeafPage](leafGuard)
	n := leaf.Size()

	keys := make([]int64, 0, n+1)
	rids := make([]common.RecordID, 0, n+1)
	for i := range n {
		if i == pos {
			keys = append(keys, key)
			rids = append(rids, rid)
		}
		keys = append(keys, leaf.KeyAt(i))
		rids = append(rids, leaf.ValueAt(i))
	}
	if pos == n {
		keys = append(keys, key)
		rids = append(rids, rid)
	}

	splitAt := (n + 2) / 2 // ceil((n+1)/2)

	newPID := t.pool.NewPage()
	if !newPID.IsValid() {
		return false, errors.Wrap(ErrNoFreePages, "allocate leaf")
	}

	newOpt := t.pool.CheckedWritePage(newPID)
	if newOpt.IsNone() {
		return false, errors.Wrapf(ErrNoFreePages, "pin leaf %d", newPID)
	}

	ng := newOpt.Unwrap()
	newLeaf := bufferpool.AsMut[page.LeafPage](ng)
	newLeaf.Init(t.leafMaxSize)
	newLeaf.SetEntries(keys, rids, splitAt, n+1)
	newLeaf.SetNext(leaf.Next())

	leaf.SetEntries(keys, rids, 0, splitAt)
	leaf.SetNext(newPID)

	separator := keys[splitAt]
	leftPID := leafGuard.PageID()

	ng.Drop()
	path.Pop().Drop() // the leaf itself

	return true, t.insertIntoParent(path, leftPID, separator, newPID)
}

// insertIntoParent walks the retained ancestor guards upward, splitting
// internal nodes as needed. An empty stack above means the root itself
// split, which installs a new root through the still-held header guard.
func (t *BPlusTree) insertIntoParent(
	path *guardStack,
	left common.PageID,
	key int64,
	right common.PageID,
) error {
	for {
		if path.OnlyHeader() {
			rootPID := t.pool.NewPage()
			if !rootPID.IsValid() {
				return errors.Wrap(ErrNoFreePages, "allocate root")
			}

			rootOpt := t.pool.CheckedWritePage(rootPID)
			if rootOpt.IsNone() {
				return errors.Wrapf(ErrNoFreePages, "pin root %d", rootPID)
			}

			rg := rootOpt.Unwrap()
			root := bufferpool.AsMut[page.InternalPage](rg)
			root.Init(t.internalMaxSize)
			root.PopulateNewRoot(left, key, right)
			rg.Drop()

			bufferpool.AsMut[page.IndexHeaderPage](path.Header()).SetRoot(rootPID)

			return nil
		}

		parentGuard := path.Pop()
		parent := bufferpool.AsRO[page.InternalPage](parentGuard)

		childPos := parent.ChildIndex(left)
		assert.Assert(childPos >= 0, "split child %d not found in parent %d",
			left, parentGuard.PageID())

		if parent.Size() < parent.MaxSize() {
			bufferpool.AsMut[page.InternalPage](parentGuard).InsertAt(childPos+1, key, right)
			parentGuard.Drop()

			return nil
		}

		// Split the internal node. The middle separator is promoted; it
		// lands in the right half's unused slot 0.
		n := parent.Size()
		keys := make([]int64, 0, n+1)
		children := make([]common.PageID, 0, n+1)
		for i := range n {
			if i > 0 {
				keys = append(keys, parent.KeyAt(i))
			} else {
				keys = append(keys, 0)
			}
			children = append(children, parent.ChildAt(i))

			if i == childPos {
				keys = append(keys, key)
				children = append(children, right)
			}
		}

		splitAt := (n + 2) / 2

		newPID := t.pool.NewPage()
		if !newPID.IsValid() {
			parentGuard.Drop()
			return errors.Wrap(ErrNoFreePages, "allocate internal node")
		}

		newOpt := t.pool.CheckedWritePage(newPID)
		if newOpt.IsNone() {
			parentGuard.Drop()
			return errors.Wrapf(ErrNoFreePages, "pin internal node %d", newPID)
		}

		ng := newOpt.Unwrap()
		newNode := bufferpool.AsMut[page.InternalPage](ng)
		newNode.Init(t.internalMaxSize)
		newNode.SetEntries(keys, children, splitAt, n+1)

		promoted := keys[splitAt]
		bufferpool.AsMut[page.InternalPage](parentGuard).SetEntries(keys, children, 0, splitAt)

		left = parentGuard.PageID()
		key = promoted
		right = newPID

		ng.Drop()
		parentGuard.Drop()
	}
}
