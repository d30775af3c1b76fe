package index

import (
	"github.com/chaixuqing/bustub/common"
	"github.com/chaixuqing/bustub/storage/page"
)

// Iterator walks a tree's leaves in ascending key order, following the
// sibling chain rather than re-descending from the root. It pins at most
// one leaf frame at a time; Close (or exhausting the iterator) releases it.
type Iterator[K any] struct {
	tree  *Tree[K]
	frame *pinnedFrame[K]
	slot  int
	done  bool
}

// pinnedFrame names the one leaf the iterator currently holds pinned, so
// advancing past it and closing early both go through the same unpin path.
type pinnedFrame[K any] struct {
	pageID int64
	lp     *page.LeafPage[K]
}

// Begin returns an iterator positioned at the smallest key in the tree.
func (t *Tree[K]) Begin() (*Iterator[K], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.beginLocked(nil)
}

// BeginAt returns an iterator positioned at the first key >= key.
func (t *Tree[K]) BeginAt(key K) (*Iterator[K], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.beginLocked(&key)
}

func (t *Tree[K]) beginLocked(key *K) (*Iterator[K], error) {
	if t.rootPageID == common.InvalidPageID {
		return &Iterator[K]{tree: t, done: true}, nil
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
		var childID int64
		if key != nil {
			childID = t.internalLookup(ip, *key)
		} else {
			childID = ip.ValueAt(0)
		}
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

	lp := page.CastLeaf[K](frame.Data())
	slot := 0
	if key != nil {
		slot = t.leafKeyIndex(lp, *key)
	}
	it := &Iterator[K]{
		tree:  t,
		frame: &pinnedFrame[K]{pageID: frame.PageID(), lp: lp},
		slot:  slot,
	}
	it.skipToValid()
	return it, nil
}

// skipToValid advances across exhausted leaves until it sits on a real
// entry or the chain runs out. Must be called with tree.mu held.
func (it *Iterator[K]) skipToValid() {
	for !it.done && it.frame != nil && it.slot >= it.frame.lp.Size() {
		next := it.frame.lp.NextPageID()
		it.tree.bpm.UnpinPage(it.frame.pageID, false)
		if next == common.InvalidPageID {
			it.frame = nil
			it.done = true
			return
		}
		nf, err := it.tree.bpm.FetchPage(next)
		if err != nil || nf == nil {
			it.frame = nil
			it.done = true
			return
		}
		it.frame = &pinnedFrame[K]{pageID: nf.PageID(), lp: page.CastLeaf[K](nf.Data())}
		it.slot = 0
	}
}

// Valid reports whether Key/Value may be called.
func (it *Iterator[K]) Valid() bool {
	it.tree.mu.Lock()
	defer it.tree.mu.Unlock()
	return !it.done
}

// Key returns the current entry's key. Valid must report true first.
func (it *Iterator[K]) Key() K {
	it.tree.mu.Lock()
	defer it.tree.mu.Unlock()
	return it.frame.lp.KeyAt(it.slot)
}

// Value returns the current entry's RID. Valid must report true first.
func (it *Iterator[K]) Value() common.RID {
	it.tree.mu.Lock()
	defer it.tree.mu.Unlock()
	return it.frame.lp.ValueAt(it.slot)
}

// Next advances to the following entry, unpinning the current leaf and
// pinning the next one if the current leaf is exhausted.
func (it *Iterator[K]) Next() {
	it.tree.mu.Lock()
	defer it.tree.mu.Unlock()
	if it.done {
		return
	}
	it.slot++
	it.skipToValid()
}

// Close releases the leaf frame the iterator currently holds pinned, if
// any. Safe to call on an exhausted or already-closed iterator.
func (it *Iterator[K]) Close() {
	it.tree.mu.Lock()
	defer it.tree.mu.Unlock()
	if it.frame != nil {
		it.tree.bpm.UnpinPage(it.frame.pageID, false)
		it.frame = nil
	}
	it.done = true
}
