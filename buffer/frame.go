package buffer

import (
	"sync"

	"github.com/chaixuqing/bustub/common"
)

// Frame is one in-memory slot of the buffer pool: a fixed-size byte buffer
// plus the metadata the pool needs to decide whether it can be reused.
// Every B+tree page layout is a typed view over a Frame's Data — never a
// separately allocated copy — so that writes through the view land in the
// bytes this frame eventually flushes.
type Frame struct {
	mu sync.RWMutex

	frameID  int
	pageID   int64
	pinCount int
	isDirty  bool
	lsn      int64
	data     []byte
}

func newFrame(frameID int) *Frame {
	return &Frame{
		frameID: frameID,
		pageID:  common.InvalidPageID,
		data:    make([]byte, common.PageSize),
	}
}

// Data returns the frame's backing buffer. Mutating it directly is how
// every page layout in storage/page writes its changes.
func (f *Frame) Data() []byte { return f.data }

func (f *Frame) PageID() int64 { return f.pageID }

func (f *Frame) PinCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.pinCount
}

func (f *Frame) IsDirty() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.isDirty
}

func (f *Frame) LSN() int64 { return f.lsn }

func (f *Frame) SetLSN(lsn int64) { f.lsn = lsn }

func (f *Frame) reset(pageID int64) {
	f.pageID = pageID
	f.pinCount = 0
	f.isDirty = false
	f.lsn = common.InvalidLSN
	for i := range f.data {
		f.data[i] = 0
	}
}
