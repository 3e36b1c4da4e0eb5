package page

import (
	"encoding/binary"
	"unsafe"

	"github.com/Blackdeer1524/RelDB/src/pkg/common"
)

const (
	resultMetaBytes   = 24
	tuplePrefixBytes  = 4
	resultPayloadSize = common.PageSize - resultMetaBytes
)

// IntermediateResultPage is an append-only spill page for operators that
// stage tuples on disk (hash join partitions, sort runs). Tuples are packed
// as a 4-byte little-endian length prefix followed by the serialised payload,
// starting right after the metadata block.
type IntermediateResultPage struct {
	tupleCount uint64
	pageSize   uint64
	nextOffset uint64

	payload [resultPayloadSize]byte
}

var _ [common.PageSize - unsafe.Sizeof(IntermediateResultPage{})]byte

func (p *IntermediateResultPage) Init() {
	p.tupleCount = 0
	p.pageSize = common.PageSize
	p.nextOffset = resultMetaBytes
}

// Reset forgets the stored tuples, keeping the page size.
func (p *IntermediateResultPage) Reset() {
	p.tupleCount = 0
	p.nextOffset = resultMetaBytes
}

func (p *IntermediateResultPage) TupleCount() int {
	return int(p.tupleCount)
}

// WriteTuple appends one serialised tuple. Returns false when the payload
// would not fit or the page was never initialised.
func (p *IntermediateResultPage) WriteTuple(data []byte) bool {
	if p.pageSize == 0 || p.nextOffset < resultMetaBytes {
		return false
	}

	required := uint64(len(data) + tuplePrefixBytes)
	if p.nextOffset+required > p.pageSize {
		return false
	}

	at := p.nextOffset - resultMetaBytes
	binary.LittleEndian.PutUint32(p.payload[at:], uint32(len(data)))
	copy(p.payload[at+tuplePrefixBytes:], data)

	p.nextOffset += required
	p.tupleCount++

	return true
}

// ReadTuple returns a copy of tuple index's payload. False on out-of-range
// indexes or corrupted length prefixes.
func (p *IntermediateResultPage) ReadTuple(index int) ([]byte, bool) {
	if index < 0 || uint64(index) >= p.tupleCount || p.pageSize == 0 {
		return nil, false
	}

	offset := uint64(0)
	for range index {
		size := uint64(binary.LittleEndian.Uint32(p.payload[offset:]))
		offset += tuplePrefixBytes + size

		if offset+resultMetaBytes >= p.nextOffset || offset >= uint64(len(p.payload)) {
			return nil, false
		}
	}

	size := uint64(binary.LittleEndian.Uint32(p.payload[offset:]))
	start := offset + tuplePrefixBytes
	if start+size > uint64(len(p.payload)) {
		return nil, false
	}

	out := make([]byte, size)
	copy(out, p.payload[start:start+size])

	return out, true
}
