package disk

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Blackdeer1524/RelDB/src/pkg/common"
)

func newTestScheduler(t *testing.T) (*Scheduler, *Manager) {
	t.Helper()

	m, err := NewManager(afero.NewMemMapFs(), "sched.db", zap.NewNop())
	require.NoError(t, err)

	s := NewScheduler(m, DefaultWorkers, zap.NewNop())
	t.Cleanup(func() {
		s.Shutdown()
		_ = m.Shutdown()
	})

	return s, m
}

func TestScheduler_WriteThenRead(t *testing.T) {
	s, _ := newTestScheduler(t)

	src := pageFilled(0x5A)
	require.NoError(t, <-s.ScheduleWrite(11, src))

	dst := make([]byte, PageSize)
	require.NoError(t, <-s.ScheduleRead(11, dst))
	assert.Equal(t, src, dst)
}

func TestScheduler_SamePageRequestsKeepOrder(t *testing.T) {
	s, _ := newTestScheduler(t)

	// все запросы к одной странице идут через одного воркера
	const rounds = 100

	dones := make([]chan error, 0, rounds)
	for i := 0; i < rounds; i++ {
		dones = append(dones, s.ScheduleWrite(5, pageFilled(byte(i))))
	}
	for _, done := range dones {
		require.NoError(t, <-done)
	}

	dst := make([]byte, PageSize)
	require.NoError(t, <-s.ScheduleRead(5, dst))
	assert.Equal(t, pageFilled(byte(rounds-1)), dst)
}

func TestScheduler_ConcurrentDistinctPages(t *testing.T) {
	s, _ := newTestScheduler(t)

	var eg errgroup.Group
	for pid := common.PageID(0); pid < 64; pid++ {
		eg.Go(func() error {
			if err := <-s.ScheduleWrite(pid, pageFilled(byte(pid))); err != nil {
				return err
			}

			dst := make([]byte, PageSize)
			if err := <-s.ScheduleRead(pid, dst); err != nil {
				return err
			}
			if dst[0] != byte(pid) {
				return fmt.Errorf("page %d: got %d", pid, dst[0])
			}

			return nil
		})
	}

	require.NoError(t, eg.Wait())
}

func TestScheduler_Deallocate(t *testing.T) {
	s, m := newTestScheduler(t)

	require.NoError(t, <-s.ScheduleWrite(2, pageFilled(7)))
	s.Deallocate(2)
	assert.Equal(t, 1, m.NumDeletes())
}
