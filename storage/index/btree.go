// Package index implements a disk-backed B+tree keyed by a generic,
// fixed-width key type, storing RIDs as its leaf values. Every node is a
// page fetched through a buffer pool; the tree itself holds no page bytes,
// only the root page-id and the parameters it was built with.
package index

import (
	"errors"
	"sync"

	"github.com/chaixuqing/bustub/buffer"
	"github.com/chaixuqing/bustub/common"
	"github.com/chaixuqing/bustub/storage/page"
	"github.com/chaixuqing/bustub/wal"
)

// ErrPoolExhausted is returned when every buffer pool frame is pinned and a
// tree operation cannot make progress without one more free frame.
var ErrPoolExhausted = errors.New("index: buffer pool exhausted")

// Tree is a B+tree over keys of type K, backed by a buffer pool. The zero
// value is not usable; build one with NewTree.
type Tree[K any] struct {
	mu sync.Mutex

	name            string
	bpm             *buffer.BufferPool
	logManager      wal.LogManager
	cmp             Comparator[K]
	leafMaxSize     int
	internalMaxSize int
	rootPageID      int64
}

// NewTree builds an empty tree. name is descriptive only: the tree stores
// it and nothing else reads it; it has no effect on storage. logManager
// may be nil, in which case it defaults to wal.Discard — the tree then logs
// nothing and every frame it touches keeps an LSN the buffer pool's
// flush-before-evict check never has cause to act on. Pass the same
// wal.LogManager the tree's buffer pool was built with to make that check
// real: every dirty unpin appends a record and stamps the frame with the
// LSN it was assigned.
func NewTree[K any](name string, bpm *buffer.BufferPool, logManager wal.LogManager, cmp Comparator[K], leafMaxSize, internalMaxSize int) *Tree[K] {
	if logManager == nil {
		logManager = wal.Discard
	}
	return &Tree[K]{
		name:            name,
		bpm:             bpm,
		logManager:      logManager,
		cmp:             cmp,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootPageID:      common.InvalidPageID,
	}
}

// unpinDirty logs the mutation just made to frame, stamps the frame with
// the LSN the log manager assigned it, and unpins it dirty. Every write
// path that would otherwise call t.bpm.UnpinPage(id, true) goes through
// here instead, so the buffer pool's flush-before-evict comparison in
// flushFrameLocked has a real LSN to compare against FlushedLSN.
func (t *Tree[K]) unpinDirty(frame *buffer.Frame) {
	lsn := t.logManager.AppendLogRecord(nil)
	frame.SetLSN(lsn)
	t.bpm.UnpinPage(frame.PageID(), true)
}

// IsEmpty reports whether the tree holds no entries at all.
func (t *Tree[K]) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rootPageID == common.InvalidPageID
}

// minSize is the non-root occupancy floor for a node whose array can hold
// up to maxSize entries: ceil(maxSize / 2).
func minSize(maxSize int) int {
	return (maxSize + 1) / 2
}

// internalLookup returns the child page-id to descend into for key, per the
// routing rule: the largest slot i with KeyAt(i) <= key (slot 0 never
// participates in comparison — its child covers everything below KeyAt(1)).
func (t *Tree[K]) internalLookup(ip *page.InternalPage[K], key K) int64 {
	size := ip.Size()
	if size == 1 || t.cmp(key, ip.KeyAt(1)) < 0 {
		return ip.ValueAt(0)
	}
	left, right := 1, size-1
	for left < right {
		mid := left + (right-left+1)/2
		if t.cmp(ip.KeyAt(mid), key) <= 0 {
			left = mid
		} else {
			right = mid - 1
		}
	}
	return ip.ValueAt(left)
}

// leafKeyIndex returns the first slot i with KeyAt(i) >= key (the slot key
// would occupy if present, or would be inserted at if absent).
func (t *Tree[K]) leafKeyIndex(lp *page.LeafPage[K], key K) int {
	lo, hi := 0, lp.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cmp(lp.KeyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// findLeafFrame descends from the root to the leaf that key belongs in,
// pinning only the frames on the current path from root to leaf: each
// child is fetched (pinned) before its parent is unpinned. Returns the
// pinned leaf frame, or (nil, nil) if the tree is empty.
func (t *Tree[K]) findLeafFrame(key K) (*buffer.Frame, error) {
	if t.rootPageID == common.InvalidPageID {
		return nil, nil
	}
	frame, err := t.bpm.FetchPage(t.rootPageID)
	if err != nil {
		return nil, err
	}
	if frame == nil {
		return nil, ErrPoolExhausted
	}
	for page.PeekType(frame.Data()) == page.Internal {
		ip := page.CastInternal[K](frame.Data())
		childID := t.internalLookup(ip, key)
		child, err := t.bpm.FetchPage(childID)
		if err != nil {
			t.bpm.UnpinPage(frame.PageID(), false)
			return nil, err
		}
		if child == nil {
			t.bpm.UnpinPage(frame.PageID(), false)
			return nil, ErrPoolExhausted
		}
		t.bpm.UnpinPage(frame.PageID(), false)
		frame = child
	}
	return frame, nil
}

// GetValue returns the RID stored under key, and whether key is present.
func (t *Tree[K]) GetValue(key K) ([]common.RID, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	frame, err := t.findLeafFrame(key)
	if err != nil {
		return nil, false, err
	}
	if frame == nil {
		return nil, false, nil
	}
	lp := page.CastLeaf[K](frame.Data())
	idx := t.leafKeyIndex(lp, key)
	defer t.bpm.UnpinPage(frame.PageID(), false)
	if idx >= lp.Size() || t.cmp(lp.KeyAt(idx), key) != 0 {
		return nil, false, nil
	}
	return []common.RID{lp.ValueAt(idx)}, true, nil
}

// setParent fetches childPageID, rewrites its parent pointer, and unpins
// it dirty. Works for either page kind since the parent pointer lives in
// the header prefix both share.
func (t *Tree[K]) setParent(childPageID, parentPageID int64) error {
	frame, err := t.bpm.FetchPage(childPageID)
	if err != nil {
		return err
	}
	if frame == nil {
		return ErrPoolExhausted
	}
	page.SetParentPageID(frame.Data(), parentPageID)
	t.unpinDirty(frame)
	return nil
}

// adoptChildren re-parents every child currently listed in ip to ip itself.
// Used after a split or merge moves entries into ip from elsewhere.
func (t *Tree[K]) adoptChildren(ip *page.InternalPage[K]) error {
	for i := 0; i < ip.Size(); i++ {
		if err := t.setParent(ip.ValueAt(i), ip.PageID()); err != nil {
			return err
		}
	}
	return nil
}

// Insert adds (key, rid) to the tree. Returns false without modifying
// anything if key is already present — keys are unique.
func (t *Tree[K]) Insert(key K, rid common.RID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rootPageID == common.InvalidPageID {
		frame, err := t.bpm.NewPage()
		if err != nil {
			return false, err
		}
		if frame == nil {
			return false, ErrPoolExhausted
		}
		lp := page.CastLeaf[K](frame.Data())
		lp.Init(frame.PageID(), common.InvalidPageID, t.leafMaxSize)
		lp.InsertAt(0, key, rid)
		t.rootPageID = frame.PageID()
		t.unpinDirty(frame)
		return true, nil
	}

	frame, err := t.findLeafFrame(key)
	if err != nil {
		return false, err
	}
	if frame == nil {
		return false, ErrPoolExhausted
	}
	lp := page.CastLeaf[K](frame.Data())
	idx := t.leafKeyIndex(lp, key)
	if idx < lp.Size() && t.cmp(lp.KeyAt(idx), key) == 0 {
		t.bpm.UnpinPage(frame.PageID(), false)
		return false, nil
	}
	lp.InsertAt(idx, key, rid)

	if lp.Size() <= lp.MaxSize() {
		t.unpinDirty(frame)
		return true, nil
	}

	newFrame, err := t.bpm.NewPage()
	if err != nil {
		t.unpinDirty(frame)
		return false, err
	}
	if newFrame == nil {
		t.unpinDirty(frame)
		return false, ErrPoolExhausted
	}
	newLeaf := page.CastLeaf[K](newFrame.Data())
	newLeaf.Init(newFrame.PageID(), lp.ParentPageID(), t.leafMaxSize)
	lp.MoveHalfTo(newLeaf)
	sepKey := newLeaf.KeyAt(0)

	leftPageID := frame.PageID()
	leftParentID := lp.ParentPageID()
	rightPageID := newFrame.PageID()
	t.unpinDirty(frame)
	t.unpinDirty(newFrame)

	if err := t.insertIntoParent(leftPageID, leftParentID, sepKey, rightPageID); err != nil {
		return false, err
	}
	return true, nil
}

// insertIntoParent wires (sepKey, rightPageID) into leftPageID's parent,
// splitting that parent (and recursing upward) if it overflows. leftPageID
// is already known to be the parent's existing child at some slot i; the
// new entry goes at slot i+1.
func (t *Tree[K]) insertIntoParent(leftPageID, leftParentID int64, sepKey K, rightPageID int64) error {
	if leftPageID == t.rootPageID {
		frame, err := t.bpm.NewPage()
		if err != nil {
			return err
		}
		if frame == nil {
			return ErrPoolExhausted
		}
		newRoot := page.CastInternal[K](frame.Data())
		newRoot.Init(frame.PageID(), common.InvalidPageID, t.internalMaxSize)
		newRoot.PopulateNewRoot(leftPageID, sepKey, rightPageID)
		t.rootPageID = frame.PageID()
		t.unpinDirty(frame)

		if err := t.setParent(leftPageID, frame.PageID()); err != nil {
			return err
		}
		return t.setParent(rightPageID, frame.PageID())
	}

	pf, err := t.bpm.FetchPage(leftParentID)
	if err != nil {
		return err
	}
	if pf == nil {
		return ErrPoolExhausted
	}
	parent := page.CastInternal[K](pf.Data())
	idx := parent.ValueIndex(leftPageID)
	parent.InsertAt(idx+1, sepKey, rightPageID)
	if err := t.setParent(rightPageID, leftParentID); err != nil {
		t.unpinDirty(pf)
		return err
	}

	if parent.Size() <= parent.MaxSize() {
		t.unpinDirty(pf)
		return nil
	}

	grandParentID := parent.ParentPageID()
	newFrame, err := t.bpm.NewPage()
	if err != nil {
		t.unpinDirty(pf)
		return err
	}
	if newFrame == nil {
		t.unpinDirty(pf)
		return ErrPoolExhausted
	}
	newInternal := page.CastInternal[K](newFrame.Data())
	newInternal.Init(newFrame.PageID(), grandParentID, t.internalMaxSize)
	parent.MoveHalfTo(newInternal)
	middleKey := newInternal.KeyAt(0)

	if err := t.adoptChildren(newInternal); err != nil {
		t.unpinDirty(pf)
		t.unpinDirty(newFrame)
		return err
	}

	newPageID := newFrame.PageID()
	t.unpinDirty(pf)
	t.unpinDirty(newFrame)

	return t.insertIntoParent(leftParentID, grandParentID, middleKey, newPageID)
}

// Remove deletes key from the tree, if present. Removing an absent key is
// a silent no-op.
func (t *Tree[K]) Remove(key K) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rootPageID == common.InvalidPageID {
		return nil
	}

	frame, err := t.findLeafFrame(key)
	if err != nil {
		return err
	}
	if frame == nil {
		return ErrPoolExhausted
	}
	lp := page.CastLeaf[K](frame.Data())
	idx := t.leafKeyIndex(lp, key)
	if idx >= lp.Size() || t.cmp(lp.KeyAt(idx), key) != 0 {
		t.bpm.UnpinPage(frame.PageID(), false)
		return nil
	}
	lp.RemoveAt(idx)
	pageID := frame.PageID()
	t.unpinDirty(frame)

	return t.rebalance(pageID)
}

// rebalance fetches pageID and restores the B+tree's occupancy invariant
// for it: a root may hold anywhere from zero entries up, but any other
// node must hold at least minSize(maxSize) entries, coalescing with or
// redistributing from a sibling otherwise. It recurses toward the root
// when a merge shrinks the parent below its own floor.
func (t *Tree[K]) rebalance(pageID int64) error {
	frame, err := t.bpm.FetchPage(pageID)
	if err != nil {
		return err
	}
	if frame == nil {
		return ErrPoolExhausted
	}

	isLeaf := page.PeekType(frame.Data()) == page.Leaf
	var size, maxSize int
	var parentID int64
	if isLeaf {
		lp := page.CastLeaf[K](frame.Data())
		size, maxSize, parentID = lp.Size(), lp.MaxSize(), lp.ParentPageID()
	} else {
		ip := page.CastInternal[K](frame.Data())
		size, maxSize, parentID = ip.Size(), ip.MaxSize(), ip.ParentPageID()
	}

	if pageID == t.rootPageID {
		if isLeaf {
			if size == 0 {
				t.unpinDirty(frame)
				t.rootPageID = common.InvalidPageID
				_, err := t.bpm.DeletePage(pageID)
				return err
			}
			t.unpinDirty(frame)
			return nil
		}
		if size == 1 {
			ip := page.CastInternal[K](frame.Data())
			onlyChild := ip.ValueAt(0)
			t.unpinDirty(frame)
			if err := t.setParent(onlyChild, common.InvalidPageID); err != nil {
				return err
			}
			t.rootPageID = onlyChild
			_, err := t.bpm.DeletePage(pageID)
			return err
		}
		t.unpinDirty(frame)
		return nil
	}

	if size >= minSize(maxSize) {
		t.unpinDirty(frame)
		return nil
	}
	t.unpinDirty(frame)
	return t.coalesceOrRedistribute(pageID, isLeaf, parentID)
}

// coalesceOrRedistribute fixes an underflowed node by borrowing one entry
// from a sibling, or merging with one, preferring the left sibling when
// one exists. It then checks whether the parent itself now underflows.
func (t *Tree[K]) coalesceOrRedistribute(nodePageID int64, isLeaf bool, parentID int64) error {
	pf, err := t.bpm.FetchPage(parentID)
	if err != nil {
		return err
	}
	if pf == nil {
		return ErrPoolExhausted
	}
	parent := page.CastInternal[K](pf.Data())
	idx := parent.ValueIndex(nodePageID)

	leftID, rightID := common.InvalidPageID, common.InvalidPageID
	if idx > 0 {
		leftID = parent.ValueAt(idx - 1)
	}
	if idx < parent.Size()-1 {
		rightID = parent.ValueAt(idx + 1)
	}
	useLeft := leftID != common.InvalidPageID

	var rerr error
	if isLeaf {
		rerr = t.balanceLeaf(parent, idx, nodePageID, leftID, rightID, useLeft)
	} else {
		rerr = t.balanceInternal(parent, idx, nodePageID, leftID, rightID, useLeft)
	}
	t.unpinDirty(pf)
	if rerr != nil {
		return rerr
	}
	return t.rebalance(parentID)
}

// balanceLeaf merges nodeID with its chosen sibling if their combined size
// is below the leaf max size, else borrows a single entry from the sibling.
func (t *Tree[K]) balanceLeaf(parent *page.InternalPage[K], idx int, nodeID, leftID, rightID int64, useLeft bool) error {
	siblingID := rightID
	if useLeft {
		siblingID = leftID
	}

	nf, err := t.bpm.FetchPage(nodeID)
	if err != nil {
		return err
	}
	if nf == nil {
		return ErrPoolExhausted
	}
	node := page.CastLeaf[K](nf.Data())

	sf, err := t.bpm.FetchPage(siblingID)
	if err != nil {
		t.bpm.UnpinPage(nodeID, false)
		return err
	}
	if sf == nil {
		t.bpm.UnpinPage(nodeID, false)
		return ErrPoolExhausted
	}
	sibling := page.CastLeaf[K](sf.Data())

	if useLeft {
		if sibling.Size()+node.Size() < node.MaxSize() {
			node.MoveAllTo(sibling)
			parent.RemoveAt(idx)
			t.unpinDirty(nf)
			t.unpinDirty(sf)
			_, derr := t.bpm.DeletePage(nodeID)
			return derr
		}
		sibling.MoveLastToFrontOf(node)
		parent.SetKeyAt(idx, node.KeyAt(0))
		t.unpinDirty(nf)
		t.unpinDirty(sf)
		return nil
	}

	if node.Size()+sibling.Size() < node.MaxSize() {
		sibling.MoveAllTo(node)
		parent.RemoveAt(idx + 1)
		t.unpinDirty(nf)
		t.unpinDirty(sf)
		_, derr := t.bpm.DeletePage(siblingID)
		return derr
	}
	sibling.MoveFirstToEndOf(node)
	parent.SetKeyAt(idx+1, sibling.KeyAt(0))
	t.unpinDirty(nf)
	t.unpinDirty(sf)
	return nil
}

// balanceInternal is balanceLeaf's counterpart for internal nodes. Merging
// pulls the parent's separator key down into the merged node (internal
// slot 0's key is otherwise meaningless, so the merge boundary needs a
// real one); redistributing likewise threads the old separator through to
// the moved child's new neighbor before replacing it in the parent.
func (t *Tree[K]) balanceInternal(parent *page.InternalPage[K], idx int, nodeID, leftID, rightID int64, useLeft bool) error {
	siblingID := rightID
	if useLeft {
		siblingID = leftID
	}

	nf, err := t.bpm.FetchPage(nodeID)
	if err != nil {
		return err
	}
	if nf == nil {
		return ErrPoolExhausted
	}
	node := page.CastInternal[K](nf.Data())

	sf, err := t.bpm.FetchPage(siblingID)
	if err != nil {
		t.bpm.UnpinPage(nodeID, false)
		return err
	}
	if sf == nil {
		t.bpm.UnpinPage(nodeID, false)
		return ErrPoolExhausted
	}
	sibling := page.CastInternal[K](sf.Data())

	if useLeft {
		if sibling.Size()+node.Size() <= node.MaxSize() {
			sepKey := parent.KeyAt(idx)
			node.SetKeyAt(0, sepKey)
			node.MoveAllTo(sibling)
			if err := t.adoptChildren(sibling); err != nil {
				t.unpinDirty(nf)
				t.unpinDirty(sf)
				return err
			}
			parent.RemoveAt(idx)
			t.unpinDirty(nf)
			t.unpinDirty(sf)
			_, derr := t.bpm.DeletePage(nodeID)
			return derr
		}
		oldSep := parent.KeyAt(idx)
		newSep := sibling.KeyAt(sibling.Size() - 1)
		movedChild := sibling.ValueAt(sibling.Size() - 1)
		sibling.RemoveAt(sibling.Size() - 1)
		node.CopyFirstFrom(oldSep, movedChild)
		if err := t.setParent(movedChild, node.PageID()); err != nil {
			t.unpinDirty(nf)
			t.unpinDirty(sf)
			return err
		}
		parent.SetKeyAt(idx, newSep)
		t.unpinDirty(nf)
		t.unpinDirty(sf)
		return nil
	}

	if node.Size()+sibling.Size() <= node.MaxSize() {
		sepKey := parent.KeyAt(idx + 1)
		sibling.SetKeyAt(0, sepKey)
		sibling.MoveAllTo(node)
		if err := t.adoptChildren(node); err != nil {
			t.unpinDirty(nf)
			t.unpinDirty(sf)
			return err
		}
		parent.RemoveAt(idx + 1)
		t.unpinDirty(nf)
		t.unpinDirty(sf)
		_, derr := t.bpm.DeletePage(siblingID)
		return derr
	}
	oldSep := parent.KeyAt(idx + 1)
	movedChild := sibling.ValueAt(0)
	sibling.RemoveAt(0)
	newSep := sibling.KeyAt(0)
	node.CopyLastFrom(oldSep, movedChild)
	if err := t.setParent(movedChild, node.PageID()); err != nil {
		t.unpinDirty(nf)
		t.unpinDirty(sf)
		return err
	}
	parent.SetKeyAt(idx+1, newSep)
	t.unpinDirty(nf)
	t.unpinDirty(sf)
	return nil
}
