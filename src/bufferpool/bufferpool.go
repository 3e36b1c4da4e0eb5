package bufferpool

import (
	"sync"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/panjf2000/ants"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/pkg/optional"
)

const defaultFlushWorkers = 4

var ErrFlushFailed = errors.New("page flush failed")

// Replacer decides which resident frame to sacrifice when the pool is full.
type Replacer interface {
	RecordAccess(frameID common.FrameID, pageID common.PageID)
	SetEvictable(frameID common.FrameID, evictable bool)
	Evict() optional.Optional[common.FrameID]
	Remove(frameID common.FrameID) error
	Size() uint64
}

// IOScheduler is the slice of the disk scheduler the pool drives.
type IOScheduler interface {
	ScheduleRead(pid common.PageID, data []byte) chan error
	ScheduleWrite(pid common.PageID, data []byte) chan error
	Deallocate(pid common.PageID)
}

// Manager is the buffer pool: a fixed set of frames, a page table binding
// page ids to frames, and a replacer picking eviction victims.
//
// Lock hierarchy: a frame latch is always taken before the pool lock, never
// after. Disk completions are awaited outside the pool lock except for
// victim flushes, which stay under it so the frame cannot be handed out
// twice, and the flush that precedes a page delete.
type Manager struct {
	poolSize uint64
	frames   []frame

	mu          sync.Mutex
	pageToFrame map[common.PageID]common.FrameID
	frameToPage map[common.FrameID]common.PageID
	freeFrames  []common.FrameID

	replacer  Replacer
	scheduler IOScheduler

	nextPageID atomic.Int64

	flushPool *ants.Pool
	metrics   *poolMetrics
	logger    *zap.Logger
}

func NewManager(
	poolSize uint64,
	replacer Replacer,
	scheduler IOScheduler,
	logger *zap.Logger,
) (*Manager, error) {
	assert.Assert(poolSize > 0, "pool size must be greater than zero")
	assert.Assert(logger != nil, "nil logger")

	flushPool, err := ants.NewPool(defaultFlushWorkers)
	if err != nil {
		return nil, errors.Wrap(err, "create flush pool")
	}

	m := &Manager{
		poolSize:    poolSize,
		frames:      make([]frame, poolSize),
		pageToFrame: make(map[common.PageID]common.FrameID, poolSize),
		frameToPage: make(map[common.FrameID]common.PageID, poolSize),
		freeFrames:  make([]common.FrameID, 0, poolSize),
		replacer:    replacer,
		scheduler:   scheduler,
		flushPool:   flushPool,
		metrics:     newPoolMetrics(),
		logger:      logger,
	}

	for i := range m.frames {
		m.frames[i].id = common.FrameID(i)
		m.freeFrames = append(m.freeFrames, common.FrameID(i))
	}

	return m, nil
}

// NewPage allocates a fresh page id, binds it to a frame and persists the
// zero-filled page. Returns InvalidPageID when every frame is pinned or the
// initial write fails.
func (m *Manager) NewPage() common.PageID {
	pid := common.PageID(m.nextPageID.Add(1) - 1)

	m.mu.Lock()

	frameID := m.acquireFrameLocked()
	if frameID.IsNone() {
		m.mu.Unlock()
		return common.InvalidPageID
	}

	fid := frameID.Unwrap()
	f := &m.frames[fid]
	f.reset()

	m.pageToFrame[pid] = fid
	m.frameToPage[fid] = pid

	done := m.scheduler.ScheduleWrite(pid, f.data[:])
	m.mu.Unlock()

	if err := <-done; err != nil {
		m.logger.Warn("failed to persist a new page",
			zap.Int64("page_id", int64(pid)),
			zap.Error(err),
		)

		m.mu.Lock()
		delete(m.pageToFrame, pid)
		delete(m.frameToPage, fid)
		m.freeFrames = append(m.freeFrames, fid)
		m.mu.Unlock()

		return common.InvalidPageID
	}

	m.mu.Lock()
	m.replacer.RecordAccess(fid, pid)
	m.replacer.SetEvictable(fid, true)
	m.mu.Unlock()

	return pid
}

// acquireFrameLocked hands out a free frame, falling back to eviction. A
// dirty victim is flushed under the pool lock; if the flush fails the victim
// is reinstated in the replacer and no frame is handed out.
func (m *Manager) acquireFrameLocked() optional.Optional[common.FrameID] {
	if n := len(m.freeFrames); n > 0 {
		fid := m.freeFrames[n-1]
		m.freeFrames = m.freeFrames[:n-1]

		return optional.Some(fid)
	}

	victim := m.replacer.Evict()
	if victim.IsNone() {
		return optional.None[common.FrameID]()
	}

	fid := victim.Unwrap()
	f := &m.frames[fid]

	oldPid, ok := m.frameToPage[fid]
	assert.Assert(ok, "victim frame %d is not bound to a page", fid)

	if f.dirty {
		if err := <-m.scheduler.ScheduleWrite(oldPid, f.data[:]); err != nil {
			m.logger.Warn("victim flush failed",
				zap.Int64("page_id", int64(oldPid)),
				zap.Error(err),
			)

			m.replacer.RecordAccess(fid, oldPid)
			m.replacer.SetEvictable(fid, true)

			return optional.None[common.FrameID]()
		}
		f.dirty = false
		m.metrics.flushed()
	}

	delete(m.pageToFrame, oldPid)
	delete(m.frameToPage, fid)
	m.metrics.evicted()

	return optional.Some(fid)
}

// CheckedReadPage pins pid's page for shared reading, loading it from disk
// on a miss. None is returned when no frame can be acquired or the read
// fails.
func (m *Manager) CheckedReadPage(pid common.PageID) optional.Optional[*ReadGuard] {
	assert.Assert(pid.IsValid(), "invalid page id: %d", pid)

	f := m.pinPage(pid)
	if f == nil {
		return optional.None[*ReadGuard]()
	}

	return optional.Some(m.newReadGuard(pid, f))
}

// CheckedWritePage is CheckedReadPage with exclusive access.
func (m *Manager) CheckedWritePage(pid common.PageID) optional.Optional[*WriteGuard] {
	assert.Assert(pid.IsValid(), "invalid page id: %d", pid)

	f := m.pinPage(pid)
	if f == nil {
		return optional.None[*WriteGuard]()
	}

	return optional.Some(m.newWriteGuard(pid, f))
}

// ReadPage is CheckedReadPage for pages that must be loadable.
func (m *Manager) ReadPage(pid common.PageID) *ReadGuard {
	g := m.CheckedReadPage(pid)
	assert.Assert(g.IsSome(), "failed to load page %d for reading", pid)

	return g.Unwrap()
}

// WritePage is CheckedWritePage for pages that must be loadable.
func (m *Manager) WritePage(pid common.PageID) *WriteGuard {
	g := m.CheckedWritePage(pid)
	assert.Assert(g.IsSome(), "failed to load page %d for writing", pid)

	return g.Unwrap()
}

// pinPage resolves pid to a resident frame, reading the page in on a miss.
// The returned frame is not yet latched; guard construction pins it.
func (m *Manager) pinPage(pid common.PageID) *frame {
	m.mu.Lock()

	if fid, ok := m.pageToFrame[pid]; ok {
		f := &m.frames[fid]
		m.replacer.RecordAccess(fid, pid)
		m.mu.Unlock()
		m.metrics.hit()

		return f
	}

	frameID := m.acquireFrameLocked()
	if frameID.IsNone() {
		m.mu.Unlock()
		return nil
	}

	fid := frameID.Unwrap()
	f := &m.frames[fid]
	f.reset()

	done := m.scheduler.ScheduleRead(pid, f.data[:])
	m.mu.Unlock()
	m.metrics.miss()

	if err := <-done; err != nil {
		m.logger.Warn("failed to read a page in",
			zap.Int64("page_id", int64(pid)),
			zap.Error(err),
		)

		m.mu.Lock()
		m.freeFrames = append(m.freeFrames, fid)
		m.mu.Unlock()

		return nil
	}

	m.mu.Lock()
	m.pageToFrame[pid] = fid
	m.frameToPage[fid] = pid
	m.replacer.RecordAccess(fid, pid)
	m.mu.Unlock()

	return f
}

// DeletePage drops pid from the pool and releases its disk slot. Returns
// false when the page is pinned or its dirty contents cannot be flushed.
func (m *Manager) DeletePage(pid common.PageID) bool {
	assert.Assert(pid.IsValid(), "invalid page id: %d", pid)

	m.mu.Lock()

	fid, ok := m.pageToFrame[pid]
	if !ok {
		m.mu.Unlock()
		m.scheduler.Deallocate(pid)

		return true
	}

	f := &m.frames[fid]
	if f.pinCount.Load() > 0 {
		m.mu.Unlock()
		return false
	}

	if f.dirty {
		if err := <-m.scheduler.ScheduleWrite(pid, f.data[:]); err != nil {
			m.logger.Warn("flush before delete failed",
				zap.Int64("page_id", int64(pid)),
				zap.Error(err),
			)
			m.mu.Unlock()

			return false
		}
		f.dirty = false
		m.metrics.flushed()
	}

	if err := m.replacer.Remove(fid); err != nil {
		m.mu.Unlock()
		return false
	}

	delete(m.pageToFrame, pid)
	delete(m.frameToPage, fid)
	f.reset()
	m.freeFrames = append(m.freeFrames, fid)
	m.mu.Unlock()

	m.scheduler.Deallocate(pid)

	return true
}

// FlushPage writes pid's resident page out under the frame latch and clears
// the dirty flag. Returns false when the page is not resident or the write
// fails.
func (m *Manager) FlushPage(pid common.PageID) bool {
	assert.Assert(pid.IsValid(), "invalid page id: %d", pid)

	m.mu.Lock()
	fid, ok := m.pageToFrame[pid]
	if !ok {
		m.mu.Unlock()
		return false
	}
	f := &m.frames[fid]
	m.mu.Unlock()

	f.latch.Lock()
	defer f.latch.Unlock()

	m.mu.Lock()
	if cur, ok := m.pageToFrame[pid]; !ok || cur != fid {
		m.mu.Unlock()
		return false
	}
	done := m.scheduler.ScheduleWrite(pid, f.data[:])
	m.mu.Unlock()

	if err := <-done; err != nil {
		m.logger.Warn("page flush failed",
			zap.Int64("page_id", int64(pid)),
			zap.Error(err),
		)

		return false
	}

	f.dirty = false
	m.metrics.flushed()

	return true
}

// FlushPageUnsafe is FlushPage without taking the frame latch. The caller
// must guarantee nobody mutates the page during the flush.
func (m *Manager) FlushPageUnsafe(pid common.PageID) bool {
	assert.Assert(pid.IsValid(), "invalid page id: %d", pid)

	m.mu.Lock()
	fid, ok := m.pageToFrame[pid]
	if !ok {
		m.mu.Unlock()
		return false
	}

	f := &m.frames[fid]
	done := m.scheduler.ScheduleWrite(pid, f.data[:])
	m.mu.Unlock()

	if err := <-done; err != nil {
		m.logger.Warn("page flush failed",
			zap.Int64("page_id", int64(pid)),
			zap.Error(err),
		)

		return false
	}

	f.dirty = false
	m.metrics.flushed()

	return true
}

// FlushAllPages flushes every resident page through the worker pool. Pages
// evicted while the flush is in flight are skipped; a page that is still
// resident and fails to flush makes the whole call fail.
func (m *Manager) FlushAllPages() error {
	m.mu.Lock()
	pids := make([]common.PageID, 0, len(m.pageToFrame))
	for pid := range m.pageToFrame {
		pids = append(pids, pid)
	}
	m.mu.Unlock()

	var (
		wg       sync.WaitGroup
		failedMu sync.Mutex
		failed   []common.PageID
	)

	for _, pid := range pids {
		pid := pid
		wg.Add(1)

		err := m.flushPool.Submit(func() {
			defer wg.Done()

			if m.FlushPage(pid) {
				return
			}

			m.mu.Lock()
			_, resident := m.pageToFrame[pid]
			m.mu.Unlock()

			if resident {
				failedMu.Lock()
				failed = append(failed, pid)
				failedMu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			wg.Wait()

			return errors.Wrap(err, "submit flush task")
		}
	}

	wg.Wait()

	if len(failed) > 0 {
		return errors.Wrapf(ErrFlushFailed, "pages %v", failed)
	}

	return nil
}

// GetPinCount reports the pin count of a resident page, None otherwise.
func (m *Manager) GetPinCount(pid common.PageID) optional.Optional[int64] {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageToFrame[pid]
	if !ok {
		return optional.None[int64]()
	}

	return optional.Some(m.frames[fid].pinCount.Load())
}

// Size reports the number of evictable frames.
func (m *Manager) Size() uint64 {
	return m.replacer.Size()
}

// FreeFrames reports how many frames hold no page at all. Spill buffers use
// this to size themselves against the memory actually left in the pool.
func (m *Manager) FreeFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.freeFrames)
}

// Close releases the flush worker pool. Resident pages are not flushed;
// call FlushAllPages first when durability matters.
func (m *Manager) Close() error {
	m.flushPool.Release()
	return nil
}
