package page

import (
	"unsafe"

	"github.com/Blackdeer1524/RelDB/src/pkg/common"
)

// IndexHeaderPage is the entry point of one B+tree: it stores the current
// root page id. Concurrent root installation serialises through the write
// latch of the page this struct overlays.
type IndexHeaderPage struct {
	root common.PageID
}

var _ [common.PageSize - unsafe.Sizeof(IndexHeaderPage{})]byte

func (p *IndexHeaderPage) Init() {
	p.root = common.InvalidPageID
}

func (p *IndexHeaderPage) Root() common.PageID {
	return p.root
}

func (p *IndexHeaderPage) SetRoot(pid common.PageID) {
	p.root = pid
}

func (p *IndexHeaderPage) IsEmpty() bool {
	return !p.root.IsValid()
}
