package execution

import (
	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/RelDB/src/storage/sketch"
	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

const (
	statsSketchWidth = 2048
	statsSketchDepth = 4
)

// ColumnStats summarises one table column: a count-min sketch over the
// column's values plus the total row count. The optimizer uses it to
// estimate match counts without touching the heap.
type ColumnStats struct {
	sketch *sketch.CountMin
	rows   int64
}

// CollectColumnStats scans the whole heap and sketches column col.
func CollectColumnStats(heap *table.Heap, col int) (*ColumnStats, error) {
	cm, err := sketch.New(statsSketchWidth, statsSketchDepth)
	if err != nil {
		return nil, errors.Wrap(err, "new sketch")
	}

	stats := &ColumnStats{sketch: cm}

	it := heap.Iterator()
	for {
		t, ok := it.Next()
		if !ok {
			break
		}

		stats.rows++

		v := t.Value(col)
		if v.IsNull() {
			continue
		}

		cm.Add(valueStatKey(v))
	}

	return stats, nil
}

func valueStatKey(v table.Value) []byte {
	var buf [8]byte
	h := v.Hash()
	for i := range buf {
		buf[i] = byte(h >> (8 * i))
	}

	return buf[:]
}

// Rows reports the total number of rows seen during collection.
func (s *ColumnStats) Rows() int64 {
	return s.rows
}

// EstimateCount estimates how many rows carry value v in the sketched
// column. Overestimates are possible, underestimates are not.
func (s *ColumnStats) EstimateCount(v table.Value) uint64 {
	if v.IsNull() {
		return 0
	}

	return s.sketch.Count(valueStatKey(v))
}
