package table

import (
	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
)

type Column struct {
	Name string
	Type TypeID
}

// Schema describes the row shape an operator produces or a heap stores.
// Schemas are immutable after construction.
type Schema struct {
	columns []Column
}

func NewSchema(columns []Column) *Schema {
	for _, c := range columns {
		assert.Assert(c.Type != TypeInvalid, "column %q has no type", c.Name)
	}

	return &Schema{columns: columns}
}

func (s *Schema) ColumnCount() int {
	return len(s.columns)
}

func (s *Schema) Column(idx int) Column {
	assert.Assert(idx >= 0 && idx < len(s.columns), "column index %d out of range", idx)
	return s.columns[idx]
}

func (s *Schema) Columns() []Column {
	return s.columns
}

func (s *Schema) ColumnIndex(name string) (int, bool) {
	for i, c := range s.columns {
		if c.Name == name {
			return i, true
		}
	}

	return 0, false
}

// MergeSchemas concatenates the column lists of two schemas, as a join does.
func MergeSchemas(left, right *Schema) *Schema {
	columns := make([]Column, 0, len(left.columns)+len(right.columns))
	columns = append(columns, left.columns...)
	columns = append(columns, right.columns...)

	return &Schema{columns: columns}
}
