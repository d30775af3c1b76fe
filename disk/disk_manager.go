// Package disk is the external collaborator the rest of this module treats
// as a black box: fixed-size page read/write against a single backing
// file, plus page-id allocation. The buffer pool is the only caller.
package disk

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/chaixuqing/bustub/common"
)

// Manager is a file-backed implementation of the disk manager contract.
// It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	f        *os.File
	nextPage int64
}

// NewManager opens (creating if necessary) filename as the page file and
// resumes page-id allocation after whatever pages are already in it.
func NewManager(filename string) (*Manager, error) {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("disk: open %s: %w", filename, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("disk: stat %s: %w", filename, err)
	}
	return &Manager{
		f:        f,
		nextPage: info.Size() / common.PageSize,
	}, nil
}

// WritePage writes buf (which must be exactly common.PageSize bytes) to
// the slot for pageID.
func (m *Manager) WritePage(pageID int64, buf []byte) error {
	if len(buf) != common.PageSize {
		return fmt.Errorf("disk: write page %d: buffer has size %d, want %d", pageID, len(buf), common.PageSize)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.f.WriteAt(buf, pageID*common.PageSize); err != nil {
		return fmt.Errorf("disk: write page %d: %w", pageID, err)
	}
	return m.f.Sync()
}

// ReadPage fills buf (which must be exactly common.PageSize bytes) with the
// on-disk contents of pageID. Reading a page beyond the current end of
// file returns a page of zero bytes, matching a page that was allocated
// but never written.
func (m *Manager) ReadPage(pageID int64, buf []byte) error {
	if len(buf) != common.PageSize {
		return fmt.Errorf("disk: read page %d: buffer has size %d, want %d", pageID, len(buf), common.PageSize)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.f.ReadAt(buf, pageID*common.PageSize)
	if n == common.PageSize {
		return nil
	}
	if err != nil && n == 0 {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("disk: read page %d: %w", pageID, err)
	}
	return fmt.Errorf("disk: read page %d: short read of %d bytes", pageID, n)
}

// AllocatePage hands out the next page-id, monotonically increasing from 0.
func (m *Manager) AllocatePage() int64 {
	return atomic.AddInt64(&m.nextPage, 1) - 1
}

// DeallocatePage does nothing: this module never reuses a page-id once
// handed out, so there is no free-space map to update.
func (m *Manager) DeallocatePage(pageID int64) {}

// Close releases the backing file.
func (m *Manager) Close() error {
	return m.f.Close()
}
