package page

import (
	"unsafe"

	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
)

const (
	internalHeaderBytes = 16

	internalEntryBytes = int(unsafe.Sizeof(int64(0)) + unsafe.Sizeof(common.PageID(0)))

	// InternalSlotCount is the physical capacity of an internal node.
	InternalSlotCount = (common.PageSize - internalHeaderBytes) / internalEntryBytes
)

// InternalPage stores n separator keys and n child page ids. keys[0] is
// unused by convention: child i covers keys[i] <= K < keys[i+1]. Size counts
// children, so the number of meaningful keys is Size()-1.
type InternalPage struct {
	meta indexMeta

	keys     [InternalSlotCount]int64
	children [InternalSlotCount]common.PageID
}

var _ [common.PageSize - unsafe.Sizeof(InternalPage{})]byte

func (p *InternalPage) Init(maxSize int) {
	assert.Assert(
		maxSize > 2 && maxSize <= InternalSlotCount,
		"internal capacity %d out of range (2, %d]", maxSize, InternalSlotCount,
	)

	p.meta = indexMeta{kind: IndexPageInternal, maxSize: int32(maxSize)}
}

func (p *InternalPage) IsLeaf() bool       { return p.meta.IsLeaf() }
func (p *InternalPage) Size() int          { return p.meta.Size() }
func (p *InternalPage) MaxSize() int       { return p.meta.MaxSize() }
func (p *InternalPage) MinSize() int       { return p.meta.MinSize() }
func (p *InternalPage) SetSize(size int)   { p.meta.SetSize(size) }
func (p *InternalPage) ChangeSizeBy(n int) { p.meta.ChangeSizeBy(n) }

func (p *InternalPage) KeyAt(index int) int64 {
	assert.Assert(index > 0 && index < p.Size(), "internal key index %d out of range", index)
	return p.keys[index]
}

func (p *InternalPage) SetKeyAt(index int, key int64) {
	assert.Assert(index > 0 && index < p.Size(), "internal key index %d out of range", index)
	p.keys[index] = key
}

func (p *InternalPage) ChildAt(index int) common.PageID {
	assert.Assert(index >= 0 && index < p.Size(), "child index %d out of range", index)
	return p.children[index]
}

func (p *InternalPage) SetChildAt(index int, pid common.PageID) {
	assert.Assert(index >= 0 && index < p.Size(), "child index %d out of range", index)
	p.children[index] = pid
}

// ChildIndex finds the position of pid among the children, -1 when absent.
func (p *InternalPage) ChildIndex(pid common.PageID) int {
	for i := range p.Size() {
		if p.children[i] == pid {
			return i
		}
	}

	return -1
}

// FindChild picks the child covering key: the last child whose separator is
// <= key, keys[0] being an implicit negative infinity.
func (p *InternalPage) FindChild(key int64) common.PageID {
	return p.children[p.FindChildIndex(key)]
}

func (p *InternalPage) FindChildIndex(key int64) int {
	lo, hi := 1, p.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if p.keys[mid] <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	return lo - 1
}

// InsertAt places separator key and child pid at position pos, shifting the
// tail right. The caller guarantees the node is not full.
func (p *InternalPage) InsertAt(pos int, key int64, child common.PageID) {
	n := p.Size()
	assert.Assert(n < p.MaxSize(), "insert into a full internal node")
	assert.Assert(pos > 0 && pos <= n, "internal insert position %d out of range", pos)

	copy(p.keys[pos+1:n+1], p.keys[pos:n])
	copy(p.children[pos+1:n+1], p.children[pos:n])
	p.keys[pos] = key
	p.children[pos] = child
	p.ChangeSizeBy(1)
}

// InsertAtHead prepends a child, shifting keys so the old head key becomes a
// real separator. Used by redistribution from a left sibling.
func (p *InternalPage) InsertAtHead(key int64, child common.PageID) {
	n := p.Size()
	assert.Assert(n < p.MaxSize(), "insert into a full internal node")

	copy(p.keys[1:n+1], p.keys[:n])
	copy(p.children[1:n+1], p.children[:n])
	p.keys[1] = key
	p.children[0] = child
	p.ChangeSizeBy(1)
}

func (p *InternalPage) RemoveAt(index int) {
	n := p.Size()
	assert.Assert(index > 0 && index < n, "internal remove index %d out of range", index)

	copy(p.keys[index:n-1], p.keys[index+1:n])
	copy(p.children[index:n-1], p.children[index+1:n])
	p.ChangeSizeBy(-1)
}

// RemoveAtHead drops child 0; child 1 takes its place and its separator key
// becomes the unused keys[0].
func (p *InternalPage) RemoveAtHead() {
	n := p.Size()
	assert.Assert(n > 0, "remove from an empty internal node")

	copy(p.keys[:n-1], p.keys[1:n])
	copy(p.children[:n-1], p.children[1:n])
	p.ChangeSizeBy(-1)
}

// PopulateNewRoot makes this node a fresh root with two children separated
// by key.
func (p *InternalPage) PopulateNewRoot(left common.PageID, key int64, right common.PageID) {
	p.children[0] = left
	p.keys[1] = key
	p.children[1] = right
	p.SetSize(2)
}

// SetEntries replaces the node contents with entries[from:to). Entry 0's key
// is kept but ignored by lookups.
func (p *InternalPage) SetEntries(keys []int64, children []common.PageID, from, to int) {
	assert.Assert(len(keys) == len(children), "mismatched entry slices")
	assert.Assert(to-from <= p.MaxSize(), "too many entries for an internal node")

	n := copy(p.keys[:], keys[from:to])
	copy(p.children[:], children[from:to])
	p.SetSize(n)
}
