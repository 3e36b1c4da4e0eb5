package page

import (
	"unsafe"

	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
)

const (
	// LeafTombstoneSlots bounds the per-leaf tombstone buffer. The slots are
	// reserved for versioned deletes and stay zero for now.
	LeafTombstoneSlots = 8

	leafHeaderBytes = 32 + 8*LeafTombstoneSlots

	leafEntryBytes = int(unsafe.Sizeof(int64(0)) + unsafe.Sizeof(common.RecordID{}))

	// LeafSlotCount is the physical capacity of a leaf.
	LeafSlotCount = (common.PageSize - leafHeaderBytes) / leafEntryBytes
)

// LeafPage holds an ordered run of (key, record id) pairs plus a pointer to
// the right sibling. Keys are unique. The struct is a layout template for
// guarded page bytes, never allocated directly.
type LeafPage struct {
	meta indexMeta

	next          common.PageID
	numTombstones uint64
	tombstones    [LeafTombstoneSlots]uint64

	keys [LeafSlotCount]int64
	rids [LeafSlotCount]common.RecordID
}

var _ [common.PageSize - unsafe.Sizeof(LeafPage{})]byte

func (p *LeafPage) Init(maxSize int) {
	assert.Assert(
		maxSize > 1 && maxSize <= LeafSlotCount,
		"leaf capacity %d out of range (1, %d]", maxSize, LeafSlotCount,
	)

	p.meta = indexMeta{kind: IndexPageLeaf, maxSize: int32(maxSize)}
	p.next = common.InvalidPageID
	p.numTombstones = 0
	p.tombstones = [LeafTombstoneSlots]uint64{}
}

func (p *LeafPage) IsLeaf() bool      { return p.meta.IsLeaf() }
func (p *LeafPage) Size() int         { return p.meta.Size() }
func (p *LeafPage) MaxSize() int      { return p.meta.MaxSize() }
func (p *LeafPage) MinSize() int      { return p.meta.MinSize() }
func (p *LeafPage) SetSize(size int)  { p.meta.SetSize(size) }
func (p *LeafPage) ChangeSizeBy(n int) { p.meta.ChangeSizeBy(n) }

func (p *LeafPage) Next() common.PageID {
	return p.next
}

func (p *LeafPage) SetNext(pid common.PageID) {
	p.next = pid
}

func (p *LeafPage) KeyAt(index int) int64 {
	assert.Assert(index >= 0 && index < p.Size(), "leaf key index %d out of range", index)
	return p.keys[index]
}

func (p *LeafPage) ValueAt(index int) common.RecordID {
	assert.Assert(index >= 0 && index < p.Size(), "leaf value index %d out of range", index)
	return p.rids[index]
}

// Tombstones reports the keys of tombstoned entries.
func (p *LeafPage) Tombstones() []int64 {
	res := make([]int64, 0, p.numTombstones)
	for _, slot := range p.tombstones[:p.numTombstones] {
		res = append(res, p.keys[slot])
	}

	return res
}

// FindFirstGE locates the first slot whose key is >= key, or Size() when
// every key is smaller.
func (p *LeafPage) FindFirstGE(key int64) int {
	lo, hi := 0, p.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if p.keys[mid] < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	return lo
}

// Insert places (key, rid) at its sorted position. Duplicate keys are
// rejected. The caller guarantees the leaf is not full.
func (p *LeafPage) Insert(key int64, rid common.RecordID) bool {
	assert.Assert(p.Size() < p.MaxSize(), "insert into a full leaf")

	pos := p.FindFirstGE(key)
	if pos < p.Size() && p.keys[pos] == key {
		return false
	}

	p.InsertAt(pos, key, rid)

	return true
}

func (p *LeafPage) InsertAt(pos int, key int64, rid common.RecordID) {
	n := p.Size()
	assert.Assert(pos >= 0 && pos <= n, "leaf insert position %d out of range", pos)

	copy(p.keys[pos+1:n+1], p.keys[pos:n])
	copy(p.rids[pos+1:n+1], p.rids[pos:n])
	p.keys[pos] = key
	p.rids[pos] = rid
	p.ChangeSizeBy(1)
}

func (p *LeafPage) RemoveAt(index int) {
	n := p.Size()
	assert.Assert(index >= 0 && index < n, "leaf remove index %d out of range", index)

	copy(p.keys[index:n-1], p.keys[index+1:n])
	copy(p.rids[index:n-1], p.rids[index+1:n])
	p.ChangeSizeBy(-1)
}

// SetEntries replaces the leaf contents with entries[from:to).
func (p *LeafPage) SetEntries(keys []int64, rids []common.RecordID, from, to int) {
	assert.Assert(len(keys) == len(rids), "mismatched entry slices")
	assert.Assert(to-from <= p.MaxSize(), "too many entries for a leaf")

	n := copy(p.keys[:], keys[from:to])
	copy(p.rids[:], rids[from:to])
	p.SetSize(n)
}
