package sketch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountMin_NewValidatesDimensions(t *testing.T) {
	_, err := New(0, 4)
	assert.ErrorIs(t, err, ErrInvalidDimensions)

	_, err = New(128, -1)
	assert.ErrorIs(t, err, ErrInvalidDimensions)

	s, err := New(128, 4)
	require.NoError(t, err)
	assert.Equal(t, 128, s.Width())
	assert.Equal(t, 4, s.Depth())
}

func TestCountMin_NeverUndercounts(t *testing.T) {
	s, err := New(64, 4)
	require.NoError(t, err)

	truth := map[string]uint64{}
	for i := range 500 {
		key := fmt.Sprintf("key-%d", i%37)
		s.Add([]byte(key))
		truth[key]++
	}

	for key, want := range truth {
		assert.GreaterOrEqual(t, s.Count([]byte(key)), want, "key %s", key)
	}

	assert.Equal(t, uint64(0), mustSketch(t, 64, 4).Count([]byte("absent")))
}

func mustSketch(t *testing.T, w, d int) *CountMin {
	t.Helper()

	s, err := New(w, d)
	require.NoError(t, err)
	return s
}

func TestCountMin_ExactWhenSparse(t *testing.T) {
	s := mustSketch(t, 2048, 4)

	for range 3 {
		s.Add([]byte("alpha"))
	}
	s.Add([]byte("beta"))

	// при ширине много больше числа ключей коллизий нет
	assert.Equal(t, uint64(3), s.Count([]byte("alpha")))
	assert.Equal(t, uint64(1), s.Count([]byte("beta")))
	assert.Equal(t, uint64(0), s.Count([]byte("gamma")))
}

func TestCountMin_MergeAddsCounts(t *testing.T) {
	a := mustSketch(t, 256, 4)
	b := mustSketch(t, 256, 4)

	a.Add([]byte("x"))
	a.Add([]byte("x"))
	b.Add([]byte("x"))
	b.Add([]byte("y"))

	require.NoError(t, a.Merge(b))

	assert.GreaterOrEqual(t, a.Count([]byte("x")), uint64(3))
	assert.GreaterOrEqual(t, a.Count([]byte("y")), uint64(1))
}

func TestCountMin_MergeDimensionMismatch(t *testing.T) {
	a := mustSketch(t, 256, 4)
	b := mustSketch(t, 128, 4)
	c := mustSketch(t, 256, 2)

	assert.ErrorIs(t, a.Merge(b), ErrDimensionMismatch)
	assert.ErrorIs(t, a.Merge(c), ErrDimensionMismatch)
}

func TestCountMin_Reset(t *testing.T) {
	s := mustSketch(t, 128, 4)

	s.Add([]byte("data"))
	require.NotZero(t, s.Count([]byte("data")))

	s.Reset()
	assert.Zero(t, s.Count([]byte("data")))
}
