package index

import (
	"math/rand"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Blackdeer1524/RelDB/src/bufferpool"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/disk"
	"github.com/Blackdeer1524/RelDB/src/storage/page"
)

// checkSizeInvariants обходит дерево и проверяет границы заполнения узлов
func checkSizeInvariants(t *testing.T, tree *BPlusTree) {
	t.Helper()

	headerOpt := tree.pool.CheckedReadPage(tree.headerPID)
	require.True(t, headerOpt.IsSome())

	hg := headerOpt.Unwrap()
	root := bufferpool.As[page.IndexHeaderPage](hg).Root()
	hg.Drop()

	if !root.IsValid() {
		return
	}

	var walk func(pid common.PageID, isRoot bool)
	walk = func(pid common.PageID, isRoot bool) {
		opt := tree.pool.CheckedReadPage(pid)
		require.True(t, opt.IsSome(), "page %d", pid)

		g := opt.Unwrap()
		defer g.Drop()

		node := bufferpool.As[page.LeafPage](g)
		require.LessOrEqual(t, node.Size(), node.MaxSize(), "page %d", pid)
		if !isRoot {
			require.GreaterOrEqual(t, node.Size(), node.MinSize(), "page %d", pid)
		}

		if node.IsLeaf() {
			return
		}

		internal := bufferpool.As[page.InternalPage](g)
		for i := 0; i < internal.Size(); i++ {
			walk(internal.ChildAt(i), false)
		}
	}

	walk(root, true)
}

func newIndexPool(t *testing.T, frames uint64) *bufferpool.Manager {
	t.Helper()

	dm, err := disk.NewManager(afero.NewMemMapFs(), "index.db", zap.NewNop())
	require.NoError(t, err)

	scheduler := disk.NewScheduler(dm, disk.DefaultWorkers, zap.NewNop())

	pool, err := bufferpool.NewManager(
		frames, bufferpool.NewArcReplacer(frames), scheduler, zap.NewNop(),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pool.FlushAllPages())
		require.NoError(t, pool.Close())
		scheduler.Shutdown()
		_ = dm.Shutdown()
	})

	return pool
}

func keyRID(key int64) common.RecordID {
	return common.RecordID{PageID: common.PageID(key), SlotNum: uint16(key % 7)}
}

func TestBPlusTree_EmptyTree(t *testing.T) {
	pool := newIndexPool(t, 8)

	tree, err := NewBPlusTree(pool, 4, 4, zap.NewNop())
	require.NoError(t, err)

	got, err := tree.Get(42)
	require.NoError(t, err)
	assert.True(t, got.IsNone())

	deleted, err := tree.Delete(42)
	require.NoError(t, err)
	assert.False(t, deleted)

	it, err := tree.Begin()
	require.NoError(t, err)
	_, _, ok := it.Next()
	assert.False(t, ok)
}

func TestBPlusTree_InsertGet(t *testing.T) {
	pool := newIndexPool(t, 16)

	tree, err := NewBPlusTree(pool, 4, 4, zap.NewNop())
	require.NoError(t, err)

	for _, key := range []int64{5, 1, 9, 3, 7} {
		ok, err := tree.Insert(key, keyRID(key))
		require.NoError(t, err)
		require.True(t, ok)
	}

	for _, key := range []int64{5, 1, 9, 3, 7} {
		got, err := tree.Get(key)
		require.NoError(t, err)
		require.True(t, got.IsSome(), "key %d", key)
		assert.Equal(t, keyRID(key), got.Unwrap())
	}

	got, err := tree.Get(4)
	require.NoError(t, err)
	assert.True(t, got.IsNone())
}

func TestBPlusTree_DuplicateInsert(t *testing.T) {
	pool := newIndexPool(t, 8)

	tree, err := NewBPlusTree(pool, 4, 4, zap.NewNop())
	require.NoError(t, err)

	ok, err := tree.Insert(10, keyRID(10))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Insert(10, common.RecordID{PageID: 99, SlotNum: 1})
	require.NoError(t, err)
	assert.False(t, ok)

	// значение осталось прежним
	got, err := tree.Get(10)
	require.NoError(t, err)
	assert.Equal(t, keyRID(10), got.Unwrap())
}

func TestBPlusTree_SplitsWithSmallFanout(t *testing.T) {
	pool := newIndexPool(t, 64)

	// маленькие узлы вынуждают расщепления на нескольких уровнях
	tree, err := NewBPlusTree(pool, 2, 3, zap.NewNop())
	require.NoError(t, err)

	const keys = 200

	order := rand.New(rand.NewSource(1)).Perm(keys)
	for _, k := range order {
		ok, err := tree.Insert(int64(k), keyRID(int64(k)))
		require.NoError(t, err)
		require.True(t, ok, "key %d", k)
	}

	for k := int64(0); k < keys; k++ {
		got, err := tree.Get(k)
		require.NoError(t, err)
		require.True(t, got.IsSome(), "key %d", k)
		assert.Equal(t, keyRID(k), got.Unwrap())
	}
}

func TestBPlusTree_IteratorOrderedWalk(t *testing.T) {
	pool := newIndexPool(t, 64)

	tree, err := NewBPlusTree(pool, 3, 4, zap.NewNop())
	require.NoError(t, err)

	const keys = 100

	order := rand.New(rand.NewSource(2)).Perm(keys)
	for _, k := range order {
		ok, err := tree.Insert(int64(k), keyRID(int64(k)))
		require.NoError(t, err)
		require.True(t, ok)
	}

	it, err := tree.Begin()
	require.NoError(t, err)

	want := int64(0)
	for {
		key, rid, ok := it.Next()
		if !ok {
			break
		}

		assert.Equal(t, want, key)
		assert.Equal(t, keyRID(want), rid)
		want++
	}

	assert.Equal(t, int64(keys), want)
}

func TestBPlusTree_BeginAt(t *testing.T) {
	pool := newIndexPool(t, 32)

	tree, err := NewBPlusTree(pool, 3, 4, zap.NewNop())
	require.NoError(t, err)

	for _, key := range []int64{10, 20, 30, 40, 50} {
		ok, err := tree.Insert(key, keyRID(key))
		require.NoError(t, err)
		require.True(t, ok)
	}

	it, err := tree.BeginAt(25)
	require.NoError(t, err)

	var got []int64
	for {
		key, _, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, key)
	}

	assert.Equal(t, []int64{30, 40, 50}, got)

	// позиция за последним ключом даёт пустой проход
	it, err = tree.BeginAt(100)
	require.NoError(t, err)
	_, _, ok := it.Next()
	assert.False(t, ok)
}

func TestBPlusTree_DeleteWithUnderflow(t *testing.T) {
	pool := newIndexPool(t, 64)

	tree, err := NewBPlusTree(pool, 2, 3, zap.NewNop())
	require.NoError(t, err)

	const keys = 64

	for k := int64(0); k < keys; k++ {
		ok, err := tree.Insert(k, keyRID(k))
		require.NoError(t, err)
		require.True(t, ok)
	}

	// удаление половины ключей задевает заимствования и слияния
	for k := int64(0); k < keys; k += 2 {
		deleted, err := tree.Delete(k)
		require.NoError(t, err)
		require.True(t, deleted, "key %d", k)
	}

	checkSizeInvariants(t, tree)

	for k := int64(0); k < keys; k++ {
		got, err := tree.Get(k)
		require.NoError(t, err)
		if k%2 == 0 {
			assert.True(t, got.IsNone(), "key %d", k)
		} else {
			require.True(t, got.IsSome(), "key %d", k)
			assert.Equal(t, keyRID(k), got.Unwrap())
		}
	}

	it, err := tree.Begin()
	require.NoError(t, err)

	want := int64(1)
	for {
		key, _, ok := it.Next()
		if !ok {
			break
		}
		assert.Equal(t, want, key)
		want += 2
	}
	assert.Equal(t, int64(keys+1), want)
}

func TestBPlusTree_SizeInvariantsOddFanout(t *testing.T) {
	pool := newIndexPool(t, 64)

	// нечётная вместимость: floor и ceil минимума расходятся
	tree, err := NewBPlusTree(pool, 3, 3, zap.NewNop())
	require.NoError(t, err)

	const keys = 100

	rng := rand.New(rand.NewSource(3))
	for _, k := range rng.Perm(keys) {
		ok, err := tree.Insert(int64(k), keyRID(int64(k)))
		require.NoError(t, err)
		require.True(t, ok)
	}

	checkSizeInvariants(t, tree)

	for _, k := range rng.Perm(keys) {
		if k%3 == 0 {
			continue
		}

		deleted, err := tree.Delete(int64(k))
		require.NoError(t, err)
		require.True(t, deleted, "key %d", k)

		checkSizeInvariants(t, tree)
	}

	for k := int64(0); k < keys; k++ {
		got, err := tree.Get(k)
		require.NoError(t, err)
		if k%3 == 0 {
			require.True(t, got.IsSome(), "key %d", k)
			assert.Equal(t, keyRID(k), got.Unwrap())
		} else {
			assert.True(t, got.IsNone(), "key %d", k)
		}
	}
}

func TestBPlusTree_DeleteUntilEmptyThenReinsert(t *testing.T) {
	pool := newIndexPool(t, 64)

	tree, err := NewBPlusTree(pool, 2, 3, zap.NewNop())
	require.NoError(t, err)

	const keys = 32

	for k := int64(0); k < keys; k++ {
		_, err := tree.Insert(k, keyRID(k))
		require.NoError(t, err)
	}

	for k := int64(keys) - 1; k >= 0; k-- {
		deleted, err := tree.Delete(k)
		require.NoError(t, err)
		require.True(t, deleted, "key %d", k)
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	_, _, ok := it.Next()
	require.False(t, ok)

	// дерево остаётся рабочим после полного опустошения
	okIns, err := tree.Insert(7, keyRID(7))
	require.NoError(t, err)
	require.True(t, okIns)

	got, err := tree.Get(7)
	require.NoError(t, err)
	assert.Equal(t, keyRID(7), got.Unwrap())
}

func TestBPlusTree_DeleteAbsentKey(t *testing.T) {
	pool := newIndexPool(t, 16)

	tree, err := NewBPlusTree(pool, 4, 4, zap.NewNop())
	require.NoError(t, err)

	for _, key := range []int64{1, 2, 3} {
		_, err := tree.Insert(key, keyRID(key))
		require.NoError(t, err)
	}

	deleted, err := tree.Delete(99)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, int64(3), countEntries(t, tree))
}

func TestBPlusTree_OpenAttachesToHeader(t *testing.T) {
	pool := newIndexPool(t, 32)

	tree, err := NewBPlusTree(pool, 3, 4, zap.NewNop())
	require.NoError(t, err)

	for k := int64(0); k < 20; k++ {
		_, err := tree.Insert(k, keyRID(k))
		require.NoError(t, err)
	}

	reopened := OpenBPlusTree(pool, tree.HeaderPage(), 3, 4, zap.NewNop())

	got, err := reopened.Get(11)
	require.NoError(t, err)
	assert.Equal(t, keyRID(11), got.Unwrap())

	ok, err := reopened.Insert(100, keyRID(100))
	require.NoError(t, err)
	require.True(t, ok)

	got, err = tree.Get(100)
	require.NoError(t, err)
	assert.True(t, got.IsSome())
}

func TestBPlusTree_ConcurrentInserts(t *testing.T) {
	pool := newIndexPool(t, 128)

	tree, err := NewBPlusTree(pool, 4, 5, zap.NewNop())
	require.NoError(t, err)

	const (
		workers       = 8
		keysPerWorker = 50
	)

	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			for i := range keysPerWorker {
				key := int64(w*keysPerWorker + i)
				if _, err := tree.Insert(key, keyRID(key)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for k := int64(0); k < workers*keysPerWorker; k++ {
		got, err := tree.Get(k)
		require.NoError(t, err)
		require.True(t, got.IsSome(), "key %d", k)
	}

	assert.Equal(t, int64(workers*keysPerWorker), countEntries(t, tree))
}

func TestBPlusTree_ConcurrentInsertDelete(t *testing.T) {
	pool := newIndexPool(t, 128)

	tree, err := NewBPlusTree(pool, 4, 5, zap.NewNop())
	require.NoError(t, err)

	const keys = 200

	for k := int64(0); k < keys; k++ {
		_, err := tree.Insert(k, keyRID(k))
		require.NoError(t, err)
	}

	var g errgroup.Group
	g.Go(func() error {
		for k := int64(0); k < keys; k += 2 {
			if _, err := tree.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for k := int64(keys); k < keys+100; k++ {
			if _, err := tree.Insert(k, keyRID(k)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	for k := int64(0); k < keys; k += 2 {
		got, err := tree.Get(k)
		require.NoError(t, err)
		assert.True(t, got.IsNone(), "key %d", k)
	}
	for k := int64(1); k < keys; k += 2 {
		got, err := tree.Get(k)
		require.NoError(t, err)
		assert.True(t, got.IsSome(), "key %d", k)
	}
	for k := int64(keys); k < keys+100; k++ {
		got, err := tree.Get(k)
		require.NoError(t, err)
		assert.True(t, got.IsSome(), "key %d", k)
	}
}

func countEntries(t *testing.T, tree *BPlusTree) int64 {
	t.Helper()

	it, err := tree.Begin()
	require.NoError(t, err)

	var n int64
	prev := int64(-1 << 62)
	for {
		key, _, ok := it.Next()
		if !ok {
			return n
		}

		require.Greater(t, key, prev)
		prev = key
		n++
	}
}
