package disk

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
)

// DefaultWorkers is the fan-out of the scheduler.
const DefaultWorkers = 4

const requestQueueDepth = 64

// Accessor is the slice of the disk manager the scheduler drives.
type Accessor interface {
	ReadPage(pid common.PageID, dst []byte) error
	WritePage(pid common.PageID, src []byte) error
	DeletePage(pid common.PageID)
}

// Request is one disk operation. Done receives exactly one value: the
// operation's error, nil on success.
type Request struct {
	IsWrite bool
	Data    []byte
	PageID  common.PageID
	Done    chan error
}

// Scheduler fans requests out to a fixed set of workers, each owning its own
// queue. Requests are dispatched by pid mod workers, so all requests for one
// page are serialised behind the same worker and never reorder.
type Scheduler struct {
	disk   Accessor
	queues []chan *Request
	wg     sync.WaitGroup
	logger *zap.Logger
}

func NewScheduler(disk Accessor, workers int, logger *zap.Logger) *Scheduler {
	assert.Assert(workers > 0, "non-positive worker count: %d", workers)
	assert.Assert(logger != nil, "nil logger")

	s := &Scheduler{
		disk:   disk,
		queues: make([]chan *Request, workers),
		logger: logger,
	}

	for i := range s.queues {
		s.queues[i] = make(chan *Request, requestQueueDepth)
		s.wg.Add(1)
		go s.worker(i)
	}

	return s
}

// Schedule enqueues r. Blocks only when the target worker's queue is full.
func (s *Scheduler) Schedule(r *Request) {
	assert.Assert(r.PageID.IsValid(), "invalid page id: %d", r.PageID)
	assert.Assert(r.Done != nil, "request without a completion channel")

	s.queues[int(r.PageID)%len(s.queues)] <- r
}

// ScheduleWrite is a convenience wrapper returning the completion channel.
func (s *Scheduler) ScheduleWrite(pid common.PageID, data []byte) chan error {
	done := make(chan error, 1)
	s.Schedule(&Request{IsWrite: true, Data: data, PageID: pid, Done: done})

	return done
}

// ScheduleRead is a convenience wrapper returning the completion channel.
func (s *Scheduler) ScheduleRead(pid common.PageID, data []byte) chan error {
	done := make(chan error, 1)
	s.Schedule(&Request{IsWrite: false, Data: data, PageID: pid, Done: done})

	return done
}

// Deallocate releases the page's slot on disk. The call bypasses the worker
// queues: deallocation does not touch page data, so it cannot reorder with
// in-flight reads or writes in a harmful way.
func (s *Scheduler) Deallocate(pid common.PageID) {
	assert.Assert(pid.IsValid(), "invalid page id: %d", pid)

	s.disk.DeletePage(pid)
}

func (s *Scheduler) worker(idx int) {
	defer s.wg.Done()

	for r := range s.queues[idx] {
		var err error
		if r.IsWrite {
			err = s.disk.WritePage(r.PageID, r.Data)
		} else {
			err = s.disk.ReadPage(r.PageID, r.Data)
		}

		if err != nil {
			s.logger.Warn("disk request failed",
				zap.Int("worker", idx),
				zap.Bool("write", r.IsWrite),
				zap.Int64("page_id", int64(r.PageID)),
				zap.Error(err),
			)
		}

		r.Done <- err
	}
}

// Shutdown closes every queue and waits for the workers to drain.
// No Schedule call may race with or follow Shutdown.
func (s *Scheduler) Shutdown() {
	for _, q := range s.queues {
		close(q)
	}
	s.wg.Wait()
}
