package page

// IndexPageKind tags the first word of every index page.
type IndexPageKind uint32

const (
	IndexPageInvalid IndexPageKind = iota
	IndexPageLeaf
	IndexPageInternal
)

// indexMeta is the header shared by leaf and internal pages: the kind tag,
// the current entry count and the configured capacity.
type indexMeta struct {
	kind    IndexPageKind
	size    int32
	maxSize int32
}

func (m *indexMeta) IsLeaf() bool {
	return m.kind == IndexPageLeaf
}

func (m *indexMeta) Size() int {
	return int(m.size)
}

func (m *indexMeta) SetSize(size int) {
	m.size = int32(size)
}

func (m *indexMeta) ChangeSizeBy(amount int) {
	m.size += int32(amount)
}

func (m *indexMeta) MaxSize() int {
	return int(m.maxSize)
}

// MinSize is the occupancy floor of a non-root node, (max+1)/2 with integer
// division, i.e. ceil(max/2).
func (m *indexMeta) MinSize() int {
	return (int(m.maxSize) + 1) / 2
}
