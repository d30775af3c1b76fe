// Package page presents the two on-frame B+tree layouts — internal and
// leaf — as typed views directly over a buffer-pool frame's byte buffer.
// Neither layout ever allocates a separate copy of its data: KeyAt,
// InsertAt, and friends all read and write through the same bytes the
// buffer pool will eventually flush.
package page

import (
	"unsafe"

	"github.com/chaixuqing/bustub/common"
)

// Type distinguishes the two page layouts. It occupies the first four
// bytes of every B+tree page, so a caller can tell which typed view to
// cast a frame's bytes into before knowing anything else about the page.
type Type int32

const (
	Invalid Type = iota
	Leaf
	Internal
)

// commonHeader is the fixed layout shared by both page kinds, always at
// offset 0 of the frame's data buffer.
type commonHeader struct {
	PageType     int32
	Size         int32
	MaxSize      int32
	_            int32 // pad to align the int64 fields below
	ParentPageID int64
	PageID       int64
}

// leafHeader extends commonHeader with the sibling pointer that makes
// range scans possible without visiting the parent.
type leafHeader struct {
	commonHeader
	NextPageID int64
}

var commonHeaderSize = int(unsafe.Sizeof(commonHeader{}))
var leafHeaderSize = int(unsafe.Sizeof(leafHeader{}))

func castCommonHeader(buf []byte) *commonHeader {
	return (*commonHeader)(unsafe.Pointer(&buf[0]))
}

func castLeafHeader(buf []byte) *leafHeader {
	return (*leafHeader)(unsafe.Pointer(&buf[0]))
}

// PeekType reads just enough of buf to report which layout it holds,
// without committing to either typed view.
func PeekType(buf []byte) Type {
	return Type(castCommonHeader(buf).PageType)
}

// PageIDOf and ParentPageIDOf read the shared header fields without the
// caller needing to know or care whether buf holds a leaf or internal page.
func PageIDOf(buf []byte) int64 { return castCommonHeader(buf).PageID }

func ParentPageIDOf(buf []byte) int64 { return castCommonHeader(buf).ParentPageID }

// SetParentPageID writes the shared parent pointer, valid for either page
// kind since it lives in the common header prefix both share. The B+tree
// uses this to re-parent a child after it moves between nodes without
// needing to know the child's own key type.
func SetParentPageID(buf []byte, parentID int64) {
	castCommonHeader(buf).ParentPageID = parentID
}

// internalEntry is one (key, child page-id) slot of an internal page.
type internalEntry[K any] struct {
	Key   K
	Value int64
}

// leafEntry is one (key, RID) slot of a leaf page.
type leafEntry[K any] struct {
	Key   K
	Value common.RID
}

// InternalPage is a typed view of an internal B+tree page: an array of
// (key, child page-id) pairs of length Size(). Slot 0's key is unused;
// slot 0's value is the leftmost child pointer. For i>=1, every key in the
// subtree at slot i is >= KeyAt(i) and < KeyAt(i+1) (the last slot's
// upper bound is +infinity).
type InternalPage[K any] struct {
	buf []byte
}

// CastInternal wraps buf (a frame's Data()) as an internal page view.
func CastInternal[K any](buf []byte) *InternalPage[K] {
	return &InternalPage[K]{buf: buf}
}

func (p *InternalPage[K]) header() *commonHeader { return castCommonHeader(p.buf) }

// Init resets the page as an empty internal node.
func (p *InternalPage[K]) Init(pageID, parentID int64, maxSize int) {
	h := p.header()
	h.PageType = int32(Internal)
	h.Size = 0
	h.MaxSize = int32(maxSize)
	h.ParentPageID = parentID
	h.PageID = pageID
}

func (p *InternalPage[K]) entries() []internalEntry[K] {
	var e internalEntry[K]
	n := (len(p.buf) - commonHeaderSize) / int(unsafe.Sizeof(e))
	return unsafe.Slice((*internalEntry[K])(unsafe.Pointer(&p.buf[commonHeaderSize])), n)
}

func (p *InternalPage[K]) Size() int        { return int(p.header().Size) }
func (p *InternalPage[K]) SetSize(n int)    { p.header().Size = int32(n) }
func (p *InternalPage[K]) MaxSize() int     { return int(p.header().MaxSize) }
func (p *InternalPage[K]) ParentPageID() int64 { return p.header().ParentPageID }
func (p *InternalPage[K]) SetParentPageID(id int64) { p.header().ParentPageID = id }
func (p *InternalPage[K]) PageID() int64    { return p.header().PageID }

func (p *InternalPage[K]) KeyAt(i int) K            { return p.entries()[i].Key }
func (p *InternalPage[K]) SetKeyAt(i int, k K)       { p.entries()[i].Key = k }
func (p *InternalPage[K]) ValueAt(i int) int64       { return p.entries()[i].Value }
func (p *InternalPage[K]) SetValueAt(i int, v int64) { p.entries()[i].Value = v }

// ValueIndex returns the slot whose value equals childPageID, or -1.
func (p *InternalPage[K]) ValueIndex(childPageID int64) int {
	entries := p.entries()
	for i := 0; i < p.Size(); i++ {
		if entries[i].Value == childPageID {
			return i
		}
	}
	return -1
}

// InsertAt shifts entries [index, Size()) right by one slot and writes
// (key, value) into index.
func (p *InternalPage[K]) InsertAt(index int, key K, value int64) {
	entries := p.entries()
	size := p.Size()
	for i := size; i > index; i-- {
		entries[i] = entries[i-1]
	}
	entries[index] = internalEntry[K]{Key: key, Value: value}
	p.SetSize(size + 1)
}

// RemoveAt deletes the entry at index, shifting later entries left.
func (p *InternalPage[K]) RemoveAt(index int) {
	entries := p.entries()
	size := p.Size()
	for i := index; i < size-1; i++ {
		entries[i] = entries[i+1]
	}
	p.SetSize(size - 1)
}

// PopulateNewRoot sets this (freshly allocated) internal page up as a
// brand-new root with two children: leftValue at slot 0, and (key,
// rightValue) at slot 1.
func (p *InternalPage[K]) PopulateNewRoot(leftValue int64, key K, rightValue int64) {
	p.SetSize(2)
	p.entries()[0] = internalEntry[K]{Value: leftValue}
	p.entries()[1] = internalEntry[K]{Key: key, Value: rightValue}
}

// MoveHalfTo moves this page's upper half of entries to recipient,
// shrinking this page by that amount. Used by split.
func (p *InternalPage[K]) MoveHalfTo(recipient *InternalPage[K]) {
	size := p.Size()
	half := size / 2
	src := p.entries()
	dst := recipient.entries()
	copy(dst[:half], src[size-half:size])
	recipient.SetSize(half)
	p.SetSize(size - half)
}

// MoveAllTo appends all of this page's entries to the end of recipient and
// empties this page. Used by merge.
func (p *InternalPage[K]) MoveAllTo(recipient *InternalPage[K]) {
	size := p.Size()
	rsize := recipient.Size()
	copy(recipient.entries()[rsize:rsize+size], p.entries()[:size])
	recipient.SetSize(rsize + size)
	p.SetSize(0)
}

// CopyFirstFrom inserts (childValue) as this page's new slot 0, with key
// ignored there (slot 0's key is never read), then writes sep — the
// caller's separator, typically pulled from the parent — into slot 1,
// since slot 1's child is whatever used to occupy slot 0 and sep is the
// true boundary between it and childValue.
func (p *InternalPage[K]) CopyFirstFrom(sep K, childValue int64) {
	var zero K
	p.InsertAt(0, zero, childValue)
	if p.Size() > 1 {
		p.SetKeyAt(1, sep)
	}
}

// CopyLastFrom appends (sep, childValue) as this page's new last entry;
// unlike CopyFirstFrom, the appended slot's key is read normally by
// lookups, so sep lands directly where it belongs.
func (p *InternalPage[K]) CopyLastFrom(sep K, childValue int64) {
	p.InsertAt(p.Size(), sep, childValue)
}

// LeafPage is a typed view of a leaf B+tree page: an array of (key, RID)
// pairs sorted strictly ascending by key, plus the next-leaf pointer that
// makes a forward range scan possible.
type LeafPage[K any] struct {
	buf []byte
}

// CastLeaf wraps buf (a frame's Data()) as a leaf page view.
func CastLeaf[K any](buf []byte) *LeafPage[K] {
	return &LeafPage[K]{buf: buf}
}

func (p *LeafPage[K]) header() *leafHeader { return castLeafHeader(p.buf) }

// Init resets the page as an empty leaf node.
func (p *LeafPage[K]) Init(pageID, parentID int64, maxSize int) {
	h := p.header()
	h.PageType = int32(Leaf)
	h.Size = 0
	h.MaxSize = int32(maxSize)
	h.ParentPageID = parentID
	h.PageID = pageID
	h.NextPageID = common.InvalidPageID
}

func (p *LeafPage[K]) entries() []leafEntry[K] {
	var e leafEntry[K]
	n := (len(p.buf) - leafHeaderSize) / int(unsafe.Sizeof(e))
	return unsafe.Slice((*leafEntry[K])(unsafe.Pointer(&p.buf[leafHeaderSize])), n)
}

func (p *LeafPage[K]) Size() int            { return int(p.header().Size) }
func (p *LeafPage[K]) SetSize(n int)        { p.header().Size = int32(n) }
func (p *LeafPage[K]) MaxSize() int         { return int(p.header().MaxSize) }
func (p *LeafPage[K]) ParentPageID() int64  { return p.header().ParentPageID }
func (p *LeafPage[K]) SetParentPageID(id int64) { p.header().ParentPageID = id }
func (p *LeafPage[K]) PageID() int64        { return p.header().PageID }
func (p *LeafPage[K]) NextPageID() int64    { return p.header().NextPageID }
func (p *LeafPage[K]) SetNextPageID(id int64) { p.header().NextPageID = id }

func (p *LeafPage[K]) KeyAt(i int) K           { return p.entries()[i].Key }
func (p *LeafPage[K]) ValueAt(i int) common.RID { return p.entries()[i].Value }

// InsertAt shifts entries [index, Size()) right by one slot and writes
// (key, value) into index.
func (p *LeafPage[K]) InsertAt(index int, key K, value common.RID) {
	entries := p.entries()
	size := p.Size()
	for i := size; i > index; i-- {
		entries[i] = entries[i-1]
	}
	entries[index] = leafEntry[K]{Key: key, Value: value}
	p.SetSize(size + 1)
}

// RemoveAt deletes the entry at index, shifting later entries left.
func (p *LeafPage[K]) RemoveAt(index int) {
	entries := p.entries()
	size := p.Size()
	for i := index; i < size-1; i++ {
		entries[i] = entries[i+1]
	}
	p.SetSize(size - 1)
}

// MoveHalfTo moves this page's upper half of entries to recipient,
// shrinking this page by that amount, and relinks the sibling chain so
// recipient sits between this page and whatever it used to point to.
func (p *LeafPage[K]) MoveHalfTo(recipient *LeafPage[K]) {
	size := p.Size()
	half := (size + 1) / 2
	src := p.entries()
	dst := recipient.entries()
	copy(dst[:half], src[size-half:size])
	recipient.SetSize(half)
	p.SetSize(size - half)

	recipient.header().NextPageID = p.header().NextPageID
	p.header().NextPageID = recipient.PageID()
}

// MoveAllTo appends all of this page's entries to the end of recipient,
// carries over the next-leaf pointer, and empties this page.
func (p *LeafPage[K]) MoveAllTo(recipient *LeafPage[K]) {
	size := p.Size()
	rsize := recipient.Size()
	copy(recipient.entries()[rsize:rsize+size], p.entries()[:size])
	recipient.SetSize(rsize + size)
	recipient.header().NextPageID = p.header().NextPageID
	p.SetSize(0)
	p.header().NextPageID = common.InvalidPageID
}

// MoveFirstToEndOf moves this page's first entry to the end of recipient.
func (p *LeafPage[K]) MoveFirstToEndOf(recipient *LeafPage[K]) {
	first := p.entries()[0]
	recipient.InsertAt(recipient.Size(), first.Key, first.Value)
	p.RemoveAt(0)
}

// MoveLastToFrontOf moves this page's last entry to the front of recipient.
func (p *LeafPage[K]) MoveLastToFrontOf(recipient *LeafPage[K]) {
	last := p.entries()[p.Size()-1]
	recipient.InsertAt(0, last.Key, last.Value)
	p.RemoveAt(p.Size() - 1)
}
