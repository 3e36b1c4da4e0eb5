package bufferpool

import (
	"unsafe"

	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
)

// ReadGuard grants shared read access to one resident page. While it lives,
// the frame stays pinned and non-evictable. Guards are created only by the
// buffer pool and must be dropped exactly once; Drop is idempotent.
type ReadGuard struct {
	pageID common.PageID
	frame  *frame
	mgr    *Manager
	valid  bool
}

// WriteGuard grants exclusive access to one resident page. Taking mutable
// data marks the frame dirty.
type WriteGuard struct {
	pageID common.PageID
	frame  *frame
	mgr    *Manager
	valid  bool
}

func (m *Manager) newReadGuard(pid common.PageID, f *frame) *ReadGuard {
	f.pinCount.Add(1)
	f.latch.RLock()

	m.mu.Lock()
	m.replacer.SetEvictable(f.id, false)
	m.mu.Unlock()

	return &ReadGuard{pageID: pid, frame: f, mgr: m, valid: true}
}

func (m *Manager) newWriteGuard(pid common.PageID, f *frame) *WriteGuard {
	f.pinCount.Add(1)
	f.latch.Lock()

	m.mu.Lock()
	m.replacer.SetEvictable(f.id, false)
	m.mu.Unlock()

	return &WriteGuard{pageID: pid, frame: f, mgr: m, valid: true}
}

func (g *ReadGuard) PageID() common.PageID {
	assert.Assert(g.valid, "use of a dropped read guard")
	return g.pageID
}

func (g *ReadGuard) Data() []byte {
	assert.Assert(g.valid, "use of a dropped read guard")
	return g.frame.data[:]
}

func (g *ReadGuard) IsDirty() bool {
	assert.Assert(g.valid, "use of a dropped read guard")
	return g.frame.dirty
}

// Flush writes the page out through the disk scheduler and clears the dirty
// flag on success.
func (g *ReadGuard) Flush() error {
	assert.Assert(g.valid, "use of a dropped read guard")
	return g.mgr.flushGuarded(g.pageID, g.frame)
}

// Drop releases the latch and the pin. When the last pin goes away the frame
// becomes evictable again.
func (g *ReadGuard) Drop() {
	if !g.valid {
		return
	}
	g.valid = false

	g.frame.latch.RUnlock()
	g.mgr.unpin(g.frame)
}

func (g *WriteGuard) PageID() common.PageID {
	assert.Assert(g.valid, "use of a dropped write guard")
	return g.pageID
}

func (g *WriteGuard) Data() []byte {
	assert.Assert(g.valid, "use of a dropped write guard")
	return g.frame.data[:]
}

// DataMut exposes the page bytes for mutation and marks the frame dirty.
func (g *WriteGuard) DataMut() []byte {
	assert.Assert(g.valid, "use of a dropped write guard")
	g.frame.dirty = true

	return g.frame.data[:]
}

func (g *WriteGuard) IsDirty() bool {
	assert.Assert(g.valid, "use of a dropped write guard")
	return g.frame.dirty
}

func (g *WriteGuard) Flush() error {
	assert.Assert(g.valid, "use of a dropped write guard")
	return g.mgr.flushGuarded(g.pageID, g.frame)
}

func (g *WriteGuard) Drop() {
	if !g.valid {
		return
	}
	g.valid = false

	g.frame.latch.Unlock()
	g.mgr.unpin(g.frame)
}

func (m *Manager) unpin(f *frame) {
	pins := f.pinCount.Add(-1)
	assert.Assert(pins >= 0, "pin count underflow on frame %d", f.id)

	if pins == 0 {
		m.mu.Lock()
		m.replacer.SetEvictable(f.id, true)
		m.mu.Unlock()
	}
}

// flushGuarded is the guard-side flush: the caller already holds the frame
// latch, so only the pool lock is taken around scheduling.
func (m *Manager) flushGuarded(pid common.PageID, f *frame) error {
	m.mu.Lock()
	done := m.scheduler.ScheduleWrite(pid, f.data[:])
	m.mu.Unlock()

	if err := <-done; err != nil {
		return err
	}

	f.dirty = false
	m.metrics.flushed()

	return nil
}

// As overlays a fixed-size page structure on the guarded bytes.
// T must be a plain value type no larger than a page.
func As[T any](g *ReadGuard) *T {
	data := g.Data()
	assert.Assert(
		unsafe.Sizeof(*new(T)) <= uintptr(len(data)),
		"page overlay does not fit into a page",
	)

	return (*T)(unsafe.Pointer(&data[0]))
}

// AsRO is As for a write guard without marking the frame dirty.
func AsRO[T any](g *WriteGuard) *T {
	data := g.Data()
	assert.Assert(
		unsafe.Sizeof(*new(T)) <= uintptr(len(data)),
		"page overlay does not fit into a page",
	)

	return (*T)(unsafe.Pointer(&data[0]))
}

// AsMut overlays a mutable page structure on the guarded bytes and marks the
// frame dirty.
func AsMut[T any](g *WriteGuard) *T {
	data := g.DataMut()
	assert.Assert(
		unsafe.Sizeof(*new(T)) <= uintptr(len(data)),
		"page overlay does not fit into a page",
	)

	return (*T)(unsafe.Pointer(&data[0]))
}
