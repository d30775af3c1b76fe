package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaixuqing/bustub/buffer"
	"github.com/chaixuqing/bustub/common"
	"github.com/chaixuqing/bustub/disk"
	"github.com/chaixuqing/bustub/storage/page"
	"github.com/chaixuqing/bustub/wal"
)

func tempTree(t *testing.T, leafMaxSize, internalMaxSize int) *Tree[Int64Key] {
	t.Helper()
	dm, err := disk.NewManager(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	logManager := wal.NewSimpleLogManager(nil)
	bpm := buffer.NewBufferPool(64, dm, logManager)
	return NewTree("test", bpm, logManager, Int64Comparator, leafMaxSize, internalMaxSize)
}

func collect(t *testing.T, tree *Tree[Int64Key]) []int64 {
	t.Helper()
	it, err := tree.Begin()
	require.NoError(t, err)
	defer it.Close()

	var got []int64
	for it.Valid() {
		got = append(got, it.Key().V)
		it.Next()
	}
	return got
}

func Test_Insert_DuplicateKeyRejected(t *testing.T) {
	tree := tempTree(t, 4, 4)
	ok, err := tree.Insert(Int64Key{V: 1}, common.RID{PageID: 1})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tree.Insert(Int64Key{V: 1}, common.RID{PageID: 2})
	require.NoError(t, err)
	assert.False(t, ok)
}

func Test_GetValue_RoundTrips(t *testing.T) {
	tree := tempTree(t, 4, 4)
	for i := int64(1); i <= 20; i++ {
		_, err := tree.Insert(Int64Key{V: i}, common.RID{PageID: i, SlotNum: uint32(i)})
		require.NoError(t, err)
	}

	for i := int64(1); i <= 20; i++ {
		rids, ok, err := tree.GetValue(Int64Key{V: i})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, common.RID{PageID: i, SlotNum: uint32(i)}, rids[0])
	}

	_, ok, err := tree.GetValue(Int64Key{V: 21})
	require.NoError(t, err)
	assert.False(t, ok)
}

func Test_Insert_ForwardScanStaysSorted(t *testing.T) {
	tree := tempTree(t, 4, 4)
	order := []int64{50, 10, 40, 20, 30, 5, 45, 25, 35, 15}
	for _, k := range order {
		_, err := tree.Insert(Int64Key{V: k}, common.RID{PageID: k})
		require.NoError(t, err)
	}

	got := collect(t, tree)
	want := []int64{5, 10, 15, 20, 25, 30, 35, 40, 45, 50}
	assert.Equal(t, want, got)
}

func Test_BeginAt_SkipsToFirstKeyGreaterOrEqual(t *testing.T) {
	tree := tempTree(t, 4, 4)
	for _, k := range []int64{10, 20, 30, 40, 50} {
		_, err := tree.Insert(Int64Key{V: k}, common.RID{PageID: k})
		require.NoError(t, err)
	}

	it, err := tree.BeginAt(Int64Key{V: 25})
	require.NoError(t, err)
	defer it.Close()

	var got []int64
	for it.Valid() {
		got = append(got, it.Key().V)
		it.Next()
	}
	assert.Equal(t, []int64{30, 40, 50}, got)
}

func Test_Remove_BulkDescendingPreservesOrderAndInvariants(t *testing.T) {
	tree := tempTree(t, 4, 4)
	n := int64(50)
	for i := int64(0); i < n; i++ {
		_, err := tree.Insert(Int64Key{V: i}, common.RID{PageID: i})
		require.NoError(t, err)
	}

	for i := n - 1; i >= n/2; i-- {
		require.NoError(t, tree.Remove(Int64Key{V: i}))
	}

	got := collect(t, tree)
	require.Len(t, got, int(n/2))
	for i, v := range got {
		assert.Equal(t, int64(i), v)
	}

	for i := int64(0); i < n/2; i++ {
		_, ok, err := tree.GetValue(Int64Key{V: i})
		require.NoError(t, err)
		assert.True(t, ok)
	}
	for i := n / 2; i < n; i++ {
		_, ok, err := tree.GetValue(Int64Key{V: i})
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func Test_Remove_EveryKeyEmptiesTree(t *testing.T) {
	tree := tempTree(t, 4, 4)
	keys := []int64{5, 15, 25, 35, 45, 55, 65, 75, 1, 2, 3, 4}
	for _, k := range keys {
		_, err := tree.Insert(Int64Key{V: k}, common.RID{PageID: k})
		require.NoError(t, err)
	}

	for _, k := range keys {
		require.NoError(t, tree.Remove(Int64Key{V: k}))
	}

	assert.True(t, tree.IsEmpty())
	assert.Empty(t, collect(t, tree))
}

func Test_Remove_AbsentKeyIsNoop(t *testing.T) {
	tree := tempTree(t, 4, 4)
	_, err := tree.Insert(Int64Key{V: 1}, common.RID{PageID: 1})
	require.NoError(t, err)

	require.NoError(t, tree.Remove(Int64Key{V: 999}))
	assert.False(t, tree.IsEmpty())
}

func Test_InsertRemoveChurn_LeavesNoDanglingPages(t *testing.T) {
	tree := tempTree(t, 4, 4)
	key := Int64Key{V: 42}

	for round := 0; round < 100; round++ {
		ok, err := tree.Insert(key, common.RID{PageID: 1})
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, tree.Remove(key))
	}

	assert.True(t, tree.IsEmpty())
	assert.Empty(t, collect(t, tree))
	assert.Equal(t, tree.bpm.Capacity(), tree.bpm.FreeFrames(),
		"every frame the pool handed out during the churn must have come back to the free list")
}

func Test_SplitShape_OneToFiveInsertsWithLeafMaxFour(t *testing.T) {
	for n := int64(1); n <= 5; n++ {
		t.Run("", func(t *testing.T) {
			tree := tempTree(t, 4, 4)
			for i := int64(1); i <= n; i++ {
				_, err := tree.Insert(Int64Key{V: i}, common.RID{PageID: i})
				require.NoError(t, err)
			}
			got := collect(t, tree)
			require.Len(t, got, int(n))
			for i := int64(1); i <= n; i++ {
				assert.Equal(t, i, got[i-1])
			}

			rootFrame, err := tree.bpm.FetchPage(tree.rootPageID)
			require.NoError(t, err)
			defer tree.bpm.UnpinPage(rootFrame.PageID(), false)

			if n < 5 {
				// No overflow yet: the root is still a single leaf holding
				// every inserted key.
				require.Equal(t, page.Leaf, page.PeekType(rootFrame.Data()))
				lp := page.CastLeaf[Int64Key](rootFrame.Data())
				require.Equal(t, int(n), lp.Size())
				for i := 0; i < lp.Size(); i++ {
					assert.Equal(t, Int64Key{V: int64(i) + 1}, lp.KeyAt(i))
				}
				return
			}

			// The 5th insert overflows the leafMaxSize=4 root: it splits
			// into a left leaf {1,2} and a right leaf {3,4,5}, with a new
			// internal root separating them on the right leaf's first key.
			require.Equal(t, page.Internal, page.PeekType(rootFrame.Data()))
			ip := page.CastInternal[Int64Key](rootFrame.Data())
			require.Equal(t, 2, ip.Size())
			assert.Equal(t, Int64Key{V: 3}, ip.KeyAt(1))

			leftFrame, err := tree.bpm.FetchPage(ip.ValueAt(0))
			require.NoError(t, err)
			leftLeaf := page.CastLeaf[Int64Key](leftFrame.Data())
			require.Equal(t, 2, leftLeaf.Size())
			assert.Equal(t, Int64Key{V: 1}, leftLeaf.KeyAt(0))
			assert.Equal(t, Int64Key{V: 2}, leftLeaf.KeyAt(1))
			tree.bpm.UnpinPage(leftFrame.PageID(), false)

			rightFrame, err := tree.bpm.FetchPage(ip.ValueAt(1))
			require.NoError(t, err)
			rightLeaf := page.CastLeaf[Int64Key](rightFrame.Data())
			require.Equal(t, 3, rightLeaf.Size())
			assert.Equal(t, Int64Key{V: 3}, rightLeaf.KeyAt(0))
			assert.Equal(t, Int64Key{V: 4}, rightLeaf.KeyAt(1))
			assert.Equal(t, Int64Key{V: 5}, rightLeaf.KeyAt(2))
			tree.bpm.UnpinPage(rightFrame.PageID(), false)
		})
	}
}
