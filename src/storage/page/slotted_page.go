package page

import (
	"unsafe"

	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/pkg/optional"
)

const (
	slotOffsetBits        = 12
	slotOffsetMask uint16 = common.PageSize - 1

	slotPtrSize    = uint16(unsafe.Sizeof(slotPointer(0)))
	recordLenSize  = uint16(unsafe.Sizeof(uint16(0)))
	heapHeaderSize = uint16(unsafe.Sizeof(heapHeader{}))
)

// slotPointer packs a record status into the top bits and the record offset
// into the low 12 bits.
type slotPointer uint16

type SlotStatus byte

const (
	SlotFree SlotStatus = iota
	SlotInserted
	SlotDeleted
)

func newSlotPtr(status SlotStatus, recordOffset uint16) slotPointer {
	assert.Assert(recordOffset <= slotOffsetMask, "record offset %d is too big", recordOffset)
	return slotPointer((uint16(status) << slotOffsetBits) | recordOffset)
}

func (s slotPointer) RecordOffset() uint16 {
	return uint16(s) & slotOffsetMask
}

func (s slotPointer) Status() SlotStatus {
	return SlotStatus((uint16(s) & (^slotOffsetMask)) >> slotOffsetBits)
}

// heapHeader sits at the start of the page bytes. The slot directory grows
// forward right after it, record payloads grow backward from the page end.
type heapHeader struct {
	next common.PageID

	freeStart  uint16
	freeEnd    uint16
	slotsCount uint16

	slots slotPointer
}

func (h *heapHeader) getSlots() []slotPointer {
	return unsafe.Slice(&h.slots, h.slotsCount)
}

// SlottedPage stores variable-length records addressed by stable slot
// numbers. It is a layout template for guarded page bytes; deleted slots
// keep their number so record ids stay valid.
type SlottedPage struct {
	data [common.PageSize]byte
}

var _ [common.PageSize - unsafe.Sizeof(SlottedPage{})]byte

func (p *SlottedPage) getHeader() *heapHeader {
	return (*heapHeader)(unsafe.Pointer(&p.data[0]))
}

func (p *SlottedPage) Init() {
	head := p.getHeader()
	head.next = common.InvalidPageID
	// the slots field itself is directory space, not header space
	head.freeStart = heapHeaderSize - slotPtrSize
	head.freeEnd = common.PageSize
	head.slotsCount = 0
}

func (p *SlottedPage) Next() common.PageID {
	return p.getHeader().next
}

func (p *SlottedPage) SetNext(pid common.PageID) {
	p.getHeader().next = pid
}

func (p *SlottedPage) NumSlots() uint16 {
	return p.getHeader().slotsCount
}

// Insert stores data in a fresh slot and returns its number, None when the
// page has no room for the record plus its slot pointer.
func (p *SlottedPage) Insert(data []byte) optional.Optional[uint16] {
	header := p.getHeader()

	requiredLength := int(recordLenSize) + len(data)
	if int(header.freeEnd) < requiredLength {
		return optional.None[uint16]()
	}

	pos := header.freeEnd - uint16(requiredLength)
	if pos < header.freeStart+slotPtrSize {
		return optional.None[uint16]()
	}

	header.freeStart += slotPtrSize
	header.freeEnd = pos

	ptrToLen := (*uint16)(unsafe.Pointer(&p.data[pos]))
	*ptrToLen = uint16(len(data))

	ptr := newSlotPtr(SlotInserted, pos)
	n := copy(p.getBytesUnsafe(ptr), data)
	assert.Assert(n == len(data), "copied only %d of %d record bytes", n, len(data))

	curSlot := header.slotsCount
	header.slotsCount++
	header.getSlots()[curSlot] = ptr

	return optional.Some(curSlot)
}

func (p *SlottedPage) getBytesUnsafe(ptr slotPointer) []byte {
	offset := ptr.RecordOffset()
	sliceLen := *(*uint16)(unsafe.Pointer(&p.data[offset]))

	return unsafe.Slice(&p.data[offset+recordLenSize], sliceLen)
}

func (p *SlottedPage) assertSlotInserted(slotID uint16) slotPointer {
	header := p.getHeader()
	assert.Assert(slotID < header.slotsCount, "slot %d is out of range", slotID)

	ptr := header.getSlots()[slotID]
	assert.Assert(
		ptr.Status() == SlotInserted,
		"tried to read from a slot with status %d", ptr.Status(),
	)

	return ptr
}

func (p *SlottedPage) Status(slotID uint16) SlotStatus {
	header := p.getHeader()
	assert.Assert(slotID < header.slotsCount, "slot %d is out of range", slotID)

	return header.getSlots()[slotID].Status()
}

// Read returns the record bytes of a live slot. The slice aliases the page;
// callers must copy it out before dropping the guard.
func (p *SlottedPage) Read(slotID uint16) []byte {
	return p.getBytesUnsafe(p.assertSlotInserted(slotID))
}

// UnsafeRead is Read without the liveness check.
func (p *SlottedPage) UnsafeRead(slotID uint16) []byte {
	header := p.getHeader()
	assert.Assert(slotID < header.slotsCount, "slot %d is out of range", slotID)

	return p.getBytesUnsafe(header.getSlots()[slotID])
}

// Delete tombstones a live slot. The record bytes stay in place.
func (p *SlottedPage) Delete(slotID uint16) {
	ptr := p.assertSlotInserted(slotID)
	p.getHeader().getSlots()[slotID] = newSlotPtr(SlotDeleted, ptr.RecordOffset())
}

// UndoDelete resurrects a tombstoned slot.
func (p *SlottedPage) UndoDelete(slotID uint16) {
	header := p.getHeader()
	assert.Assert(slotID < header.slotsCount, "slot %d is out of range", slotID)

	ptr := header.getSlots()[slotID]
	assert.Assert(
		ptr.Status() == SlotDeleted,
		"tried to undelete a slot with status %d", ptr.Status(),
	)

	header.getSlots()[slotID] = newSlotPtr(SlotInserted, ptr.RecordOffset())
}

// Update overwrites a live record in place. Returns false when the new
// payload does not fit into the old record's space.
func (p *SlottedPage) Update(slotID uint16, newData []byte) bool {
	data := p.Read(slotID)
	if len(data) < len(newData) {
		return false
	}

	clear(data)
	copy(data, newData)

	return true
}
