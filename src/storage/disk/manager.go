package disk

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
)

const PageSize = common.PageSize

// DefaultPageCapacity is the initial number of page slots reserved in a
// fresh database file. The file grows by doubling once the slots run out.
const DefaultPageCapacity = 16

const openRWCreate = os.O_RDWR | os.O_CREATE

var (
	ErrClosed      = errors.New("disk manager is closed")
	ErrOutOfBounds = errors.New("read past the end of file")
)

// Manager persists fixed-size pages in a single database file and keeps an
// append-only log file next to it. Offset 0 of the database file is reserved;
// the k-th allocated slot lives at (k+1)*PageSize. Deleted page offsets are
// recycled through a free-slot list, page ids are not reused.
type Manager struct {
	fs afero.Fs

	dbPath  string
	logPath string

	mu           sync.Mutex
	db           afero.File
	pages        map[common.PageID]int64
	freeSlots    []int64
	nextSlot     int64
	pageCapacity int64

	logMu sync.Mutex
	log   afero.File

	numWrites  int
	numFlushes int
	numDeletes int

	logger *zap.Logger
}

func NewManager(fs afero.Fs, dbPath string, logger *zap.Logger) (*Manager, error) {
	assert.Assert(logger != nil, "nil logger")

	ext := filepath.Ext(dbPath)
	logPath := strings.TrimSuffix(dbPath, ext) + ".log"

	db, err := fs.OpenFile(dbPath, openRWCreate, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "open database file")
	}

	logFile, err := fs.OpenFile(logPath, openRWCreate, 0o600)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "open log file")
	}

	m := &Manager{
		fs:           fs,
		dbPath:       dbPath,
		logPath:      logPath,
		db:           db,
		pages:        make(map[common.PageID]int64),
		pageCapacity: DefaultPageCapacity,
		log:          logFile,
		logger:       logger,
	}

	if err := db.Truncate((m.pageCapacity + 1) * PageSize); err != nil {
		_ = db.Close()
		_ = logFile.Close()
		return nil, errors.Wrap(err, "reserve database file")
	}

	return m, nil
}

// ReadPage copies PageSize bytes bound to pid into dst. A read that crosses
// the end of file zero-fills the remainder and succeeds.
func (m *Manager) ReadPage(pid common.PageID, dst []byte) error {
	assert.Assert(pid.IsValid(), "invalid page id: %d", pid)
	assert.Assert(len(dst) == PageSize, "short destination buffer: %d", len(dst))

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return ErrClosed
	}

	offset, ok := m.pages[pid]
	if !ok {
		offset = m.allocateSlot()
		m.pages[pid] = offset
	}

	size, err := m.fileSize(m.dbPath)
	if err != nil {
		return errors.Wrap(err, "stat database file")
	}
	if offset > size {
		return errors.Wrapf(ErrOutOfBounds, "page %d at offset %d", pid, offset)
	}

	n, err := m.db.ReadAt(dst, offset)
	if err != nil && n == 0 {
		return errors.Wrapf(err, "read page %d", pid)
	}
	if n < PageSize {
		m.logger.Debug("short page read, zero-filling",
			zap.Int64("page_id", int64(pid)),
			zap.Int("read", n),
		)
		clear(dst[n:])
	}

	return nil
}

// WritePage writes PageSize bytes for pid at its bound offset, allocating a
// slot if pid was never seen, and syncs the file.
func (m *Manager) WritePage(pid common.PageID, src []byte) error {
	assert.Assert(pid.IsValid(), "invalid page id: %d", pid)
	assert.Assert(len(src) == PageSize, "short source buffer: %d", len(src))

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return ErrClosed
	}

	offset, ok := m.pages[pid]
	if !ok {
		offset = m.allocateSlot()
	}

	if _, err := m.db.WriteAt(src, offset); err != nil {
		return errors.Wrapf(err, "write page %d", pid)
	}

	m.numWrites++
	m.pages[pid] = offset

	if err := m.db.Sync(); err != nil {
		return errors.Wrapf(err, "sync page %d", pid)
	}

	return nil
}

// DeletePage releases pid's slot for reuse. Unknown pids are ignored.
func (m *Manager) DeletePage(pid common.PageID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	offset, ok := m.pages[pid]
	if !ok {
		return
	}

	m.freeSlots = append(m.freeSlots, offset)
	delete(m.pages, pid)
	m.numDeletes++
}

// allocateSlot picks a recycled slot if one exists, otherwise appends at the
// tail, doubling the reserved file size when the slots run out.
func (m *Manager) allocateSlot() int64 {
	if n := len(m.freeSlots); n > 0 {
		offset := m.freeSlots[n-1]
		m.freeSlots = m.freeSlots[:n-1]
		return offset
	}

	if m.nextSlot+1 >= m.pageCapacity {
		m.pageCapacity *= 2
		if err := m.db.Truncate((m.pageCapacity + 1) * PageSize); err != nil {
			m.logger.Warn("failed to grow database file", zap.Error(err))
		}
	}

	offset := (m.nextSlot + 1) * PageSize
	m.nextSlot++

	return offset
}

// WriteLog appends data to the log file and syncs it.
func (m *Manager) WriteLog(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	m.logMu.Lock()
	defer m.logMu.Unlock()

	if m.log == nil {
		return ErrClosed
	}

	if _, err := m.log.Write(data); err != nil {
		return errors.Wrap(err, "append log")
	}

	m.numFlushes++

	if err := m.log.Sync(); err != nil {
		return errors.Wrap(err, "sync log")
	}

	return nil
}

// ReadLog reads len(dst) bytes at offset, zero-filling a short read.
// Reads entirely past the end of file fail with ErrOutOfBounds.
func (m *Manager) ReadLog(dst []byte, offset int64) error {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	if m.log == nil {
		return ErrClosed
	}

	size, err := m.fileSize(m.logPath)
	if err != nil {
		return errors.Wrap(err, "stat log file")
	}
	if offset >= size {
		return errors.Wrapf(ErrOutOfBounds, "log offset %d", offset)
	}

	n, err := m.log.ReadAt(dst, offset)
	if err != nil && n == 0 {
		return errors.Wrap(err, "read log")
	}
	if n < len(dst) {
		clear(dst[n:])
	}

	return nil
}

// Shutdown closes both files. The manager is unusable afterwards.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logMu.Lock()
	defer m.logMu.Unlock()

	if m.db == nil {
		return nil
	}

	dbErr := m.db.Close()
	logErr := m.log.Close()
	m.db = nil
	m.log = nil

	if dbErr != nil {
		return errors.Wrap(dbErr, "close database file")
	}

	if logErr != nil {
		return errors.Wrap(logErr, "close log file")
	}

	return nil
}

func (m *Manager) NumWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.numWrites
}

func (m *Manager) NumDeletes() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.numDeletes
}

func (m *Manager) NumFlushes() int {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	return m.numFlushes
}

func (m *Manager) fileSize(path string) (int64, error) {
	info, err := m.fs.Stat(path)
	if err != nil {
		return -1, err
	}

	return info.Size(), nil
}
