package sketch

import (
	"github.com/OneOfOne/xxhash"
	"github.com/go-faster/errors"
)

var ErrInvalidDimensions = errors.New("sketch dimensions must be positive")
var ErrDimensionMismatch = errors.New("sketch dimensions do not match")

// rowSeedStep spreads the per-row hash seeds over the 64-bit space.
const rowSeedStep = 0x9e3779b97f4a7c15

// CountMin is a count-min sketch: depth independent hash rows of width
// counters. Count never underestimates a key's true frequency.
type CountMin struct {
	width int
	depth int

	counts [][]uint64
}

func New(width, depth int) (*CountMin, error) {
	if width <= 0 || depth <= 0 {
		return nil, errors.Wrapf(ErrInvalidDimensions, "%dx%d", width, depth)
	}

	counts := make([][]uint64, depth)
	for i := range counts {
		counts[i] = make([]uint64, width)
	}

	return &CountMin{width: width, depth: depth, counts: counts}, nil
}

func (s *CountMin) Width() int {
	return s.width
}

func (s *CountMin) Depth() int {
	return s.depth
}

func (s *CountMin) slot(row int, key []byte) int {
	h := xxhash.Checksum64S(key, uint64(row+1)*rowSeedStep)
	return int(h % uint64(s.width))
}

// Add counts one occurrence of key.
func (s *CountMin) Add(key []byte) {
	for row := range s.counts {
		s.counts[row][s.slot(row, key)]++
	}
}

// Count estimates how many times key was added. The estimate is exact or an
// overcount, never an undercount.
func (s *CountMin) Count(key []byte) uint64 {
	min := uint64(0)
	for row := range s.counts {
		c := s.counts[row][s.slot(row, key)]
		if row == 0 || c < min {
			min = c
		}
	}

	return min
}

// Merge folds other into this sketch. Both must share dimensions.
func (s *CountMin) Merge(other *CountMin) error {
	if s.width != other.width || s.depth != other.depth {
		return errors.Wrapf(ErrDimensionMismatch, "%dx%d vs %dx%d",
			s.width, s.depth, other.width, other.depth)
	}

	for row := range s.counts {
		for col := range s.counts[row] {
			s.counts[row][col] += other.counts[row][col]
		}
	}

	return nil
}

// Reset zeroes every counter.
func (s *CountMin) Reset() {
	for row := range s.counts {
		clear(s.counts[row])
	}
}
