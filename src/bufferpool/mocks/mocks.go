package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/pkg/optional"
)

// Мок Replacer
type Replacer struct {
	mock.Mock
}

func (m *Replacer) RecordAccess(frameID common.FrameID, pageID common.PageID) {
	m.Called(frameID, pageID)
}

func (m *Replacer) SetEvictable(frameID common.FrameID, evictable bool) {
	m.Called(frameID, evictable)
}

func (m *Replacer) Evict() optional.Optional[common.FrameID] {
	args := m.Called()
	return args.Get(0).(optional.Optional[common.FrameID])
}

func (m *Replacer) Remove(frameID common.FrameID) error {
	args := m.Called(frameID)
	return args.Error(0)
}

func (m *Replacer) Size() uint64 {
	args := m.Called()
	return args.Get(0).(uint64)
}

// Мок IOScheduler
type IOScheduler struct {
	mock.Mock
}

func (m *IOScheduler) ScheduleRead(pid common.PageID, data []byte) chan error {
	args := m.Called(pid, data)
	return args.Get(0).(chan error)
}

func (m *IOScheduler) ScheduleWrite(pid common.PageID, data []byte) chan error {
	args := m.Called(pid, data)
	return args.Get(0).(chan error)
}

func (m *IOScheduler) Deallocate(pid common.PageID) {
	m.Called(pid)
}

// Мок дискового Accessor для планировщика
type Accessor struct {
	mock.Mock
}

func (m *Accessor) ReadPage(pid common.PageID, dst []byte) error {
	args := m.Called(pid, dst)
	return args.Error(0)
}

func (m *Accessor) WritePage(pid common.PageID, src []byte) error {
	args := m.Called(pid, src)
	return args.Error(0)
}

func (m *Accessor) DeletePage(pid common.PageID) {
	m.Called(pid)
}
