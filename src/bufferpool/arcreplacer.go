package bufferpool

import (
	"sync"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/pkg/optional"
)

var ErrNotEvictable = errors.New("frame is not evictable")

type arcListKind uint8

const (
	arcMRU arcListKind = iota
	arcMFU
	arcMRUGhost
	arcMFUGhost
)

const arcNil = -1

// arcNode lives in the replacer's arena. Resident nodes (MRU/MFU) carry a
// frame id and the evictability bit; ghost nodes carry only the page id.
type arcNode struct {
	frameID   common.FrameID
	pageID    common.PageID
	list      arcListKind
	evictable bool

	prev, next int
}

// arcList is an intrusive doubly-linked list over the arena. Front holds the
// newest entry, back the oldest.
type arcList struct {
	front, back int
	size        int
}

func newArcList() arcList {
	return arcList{front: arcNil, back: arcNil}
}

// ArcReplacer implements Adaptive Replacement Cache over buffer pool frames.
// Two resident lists (MRU: seen once, MFU: seen twice or more) hold frame
// ids; two ghost lists remember page ids recently evicted from each resident
// list. target is the desired MRU share of the pool. Pinned frames are
// skipped during eviction, never evicted.
type ArcReplacer struct {
	mu sync.Mutex

	capacity uint64
	target   uint64
	curSize  uint64

	nodes    []arcNode
	freeList []int

	mru      arcList
	mfu      arcList
	mruGhost arcList
	mfuGhost arcList

	frameToNode map[common.FrameID]int
	pageToGhost map[common.PageID]int
}

func NewArcReplacer(capacity uint64) *ArcReplacer {
	assert.Assert(capacity > 0, "capacity must be greater than zero")

	return &ArcReplacer{
		capacity:    capacity,
		mru:         newArcList(),
		mfu:         newArcList(),
		mruGhost:    newArcList(),
		mfuGhost:    newArcList(),
		frameToNode: make(map[common.FrameID]int),
		pageToGhost: make(map[common.PageID]int),
	}
}

func (r *ArcReplacer) allocNode() int {
	if n := len(r.freeList); n > 0 {
		idx := r.freeList[n-1]
		r.freeList = r.freeList[:n-1]

		return idx
	}

	r.nodes = append(r.nodes, arcNode{})

	return len(r.nodes) - 1
}

func (r *ArcReplacer) freeNode(idx int) {
	r.nodes[idx] = arcNode{}
	r.freeList = append(r.freeList, idx)
}

func (r *ArcReplacer) listOf(kind arcListKind) *arcList {
	switch kind {
	case arcMRU:
		return &r.mru
	case arcMFU:
		return &r.mfu
	case arcMRUGhost:
		return &r.mruGhost
	default:
		return &r.mfuGhost
	}
}

func (r *ArcReplacer) pushFront(kind arcListKind, idx int) {
	l := r.listOf(kind)
	node := &r.nodes[idx]
	node.list = kind
	node.prev = arcNil
	node.next = l.front

	if l.front != arcNil {
		r.nodes[l.front].prev = idx
	} else {
		l.back = idx
	}
	l.front = idx
	l.size++
}

func (r *ArcReplacer) unlink(idx int) {
	node := &r.nodes[idx]
	l := r.listOf(node.list)

	if node.prev != arcNil {
		r.nodes[node.prev].next = node.next
	} else {
		l.front = node.next
	}
	if node.next != arcNil {
		r.nodes[node.next].prev = node.prev
	} else {
		l.back = node.prev
	}

	node.prev = arcNil
	node.next = arcNil
	l.size--
}

// RecordAccess registers that pageID is being installed into (or re-touched
// in) frameID. Resident hits promote to MFU; ghost hits additionally adapt
// target before installing into MFU; cold pages enter MRU after the ghost
// lists are trimmed to their bounds.
func (r *ArcReplacer) RecordAccess(frameID common.FrameID, pageID common.PageID) {
	assert.Assert(
		uint64(frameID) < r.capacity,
		"frame id %d out of range [0, %d)", frameID, r.capacity,
	)

	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.frameToNode[frameID]; ok {
		node := &r.nodes[idx]
		assert.Assert(node.pageID == pageID,
			"frame %d rebound from page %d to %d without eviction",
			frameID, node.pageID, pageID,
		)

		r.unlink(idx)
		r.pushFront(arcMFU, idx)

		return
	}

	if idx, ok := r.pageToGhost[pageID]; ok {
		ghostKind := r.nodes[idx].list
		r.unlink(idx)
		r.freeNode(idx)
		delete(r.pageToGhost, pageID)

		// Ghost sizes are measured after the hit entry is removed.
		if ghostKind == arcMRUGhost {
			delta := uint64(1)
			if r.mruGhost.size < r.mfuGhost.size {
				delta = uint64(r.mfuGhost.size) / max(uint64(r.mruGhost.size), 1)
			}
			r.target = min(r.capacity, r.target+delta)
		} else {
			delta := uint64(1)
			if r.mfuGhost.size < r.mruGhost.size {
				delta = uint64(r.mruGhost.size) / max(uint64(r.mfuGhost.size), 1)
			}
			if delta > r.target {
				r.target = 0
			} else {
				r.target -= delta
			}
		}

		r.insertResident(arcMFU, frameID, pageID)

		return
	}

	if r.mru.size+r.mruGhost.size == int(r.capacity) {
		r.dropOldestGhost(arcMRUGhost)
	} else if r.totalSize() >= 2*int(r.capacity) {
		r.dropOldestGhost(arcMFUGhost)
	}

	r.insertResident(arcMRU, frameID, pageID)
}

func (r *ArcReplacer) insertResident(
	kind arcListKind,
	frameID common.FrameID,
	pageID common.PageID,
) {
	idx := r.allocNode()
	r.nodes[idx] = arcNode{
		frameID: frameID,
		pageID:  pageID,
		prev:    arcNil,
		next:    arcNil,
	}
	r.pushFront(kind, idx)
	r.frameToNode[frameID] = idx
}

func (r *ArcReplacer) dropOldestGhost(kind arcListKind) {
	l := r.listOf(kind)
	if l.size == 0 {
		return
	}

	idx := l.back
	delete(r.pageToGhost, r.nodes[idx].pageID)
	r.unlink(idx)
	r.freeNode(idx)
}

func (r *ArcReplacer) totalSize() int {
	return r.mru.size + r.mfu.size + r.mruGhost.size + r.mfuGhost.size
}

// SetEvictable flips the evictability bit of a resident frame and keeps the
// evictable-frame count in sync.
func (r *ArcReplacer) SetEvictable(frameID common.FrameID, evictable bool) {
	assert.Assert(
		uint64(frameID) < r.capacity,
		"frame id %d out of range [0, %d)", frameID, r.capacity,
	)

	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.frameToNode[frameID]
	if !ok {
		return
	}

	node := &r.nodes[idx]
	if node.evictable == evictable {
		return
	}

	node.evictable = evictable
	if evictable {
		r.curSize++
	} else {
		assert.Assert(r.curSize > 0, "evictable count underflow")
		r.curSize--
	}
}

// Evict picks a victim frame, moves its page id to the matching ghost list
// and returns the frame id. Scan order follows target: when MRU holds at
// least target frames it is scanned first (oldest to newest), otherwise MFU.
// Pinned entries are skipped; None is returned when every frame is pinned.
func (r *ArcReplacer) Evict() optional.Optional[common.FrameID] {
	r.mu.Lock()
	defer r.mu.Unlock()

	first, second := arcMFU, arcMRU
	if uint64(r.mru.size) >= r.target {
		first, second = arcMRU, arcMFU
	}

	if idx := r.findVictim(first); idx != arcNil {
		return optional.Some(r.evictAt(idx))
	}
	if idx := r.findVictim(second); idx != arcNil {
		return optional.Some(r.evictAt(idx))
	}

	return optional.None[common.FrameID]()
}

func (r *ArcReplacer) findVictim(kind arcListKind) int {
	for idx := r.listOf(kind).back; idx != arcNil; idx = r.nodes[idx].prev {
		if r.nodes[idx].evictable {
			return idx
		}
	}

	return arcNil
}

func (r *ArcReplacer) evictAt(idx int) common.FrameID {
	node := r.nodes[idx]

	ghost := arcMRUGhost
	if node.list == arcMFU {
		ghost = arcMFUGhost
	}

	r.unlink(idx)
	delete(r.frameToNode, node.frameID)
	assert.Assert(r.curSize > 0, "evictable count underflow")
	r.curSize--

	r.nodes[idx] = arcNode{pageID: node.pageID, prev: arcNil, next: arcNil}
	r.pushFront(ghost, idx)
	r.pageToGhost[node.pageID] = idx

	return node.frameID
}

// Remove forcibly detaches an evictable resident frame, recording its page
// in the matching ghost list. Fails on a pinned frame.
func (r *ArcReplacer) Remove(frameID common.FrameID) error {
	assert.Assert(
		uint64(frameID) < r.capacity,
		"frame id %d out of range [0, %d)", frameID, r.capacity,
	)

	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.frameToNode[frameID]
	if !ok {
		return nil
	}

	if !r.nodes[idx].evictable {
		return errors.Wrapf(ErrNotEvictable, "frame %d", frameID)
	}

	r.evictAt(idx)

	return nil
}

// Size reports the number of evictable frames.
func (r *ArcReplacer) Size() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.curSize
}
