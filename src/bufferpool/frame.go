package bufferpool

import (
	"sync"
	"sync/atomic"

	"github.com/Blackdeer1524/RelDB/src/pkg/common"
)

// frame is one in-memory page slot. The slice of frames is allocated once
// and never moves; guards address frames by pointer into it.
//
// Field protection: pinCount is atomic; dirty is mutated under the frame
// latch or the pool lock; the page binding lives in the pool's tables.
type frame struct {
	id common.FrameID

	latch    sync.RWMutex
	pinCount atomic.Int64
	dirty    bool

	data [common.PageSize]byte
}

func (f *frame) reset() {
	f.data = [common.PageSize]byte{}
	f.pinCount.Store(0)
	f.dirty = false
}
