// Package wal is the write-ahead log hook the buffer pool and B+tree call
// through. This module does not implement redo/undo recovery — the log
// manager's only job here is to hand out LSNs and know how far it has
// flushed, so the buffer pool can honor "don't evict a dirty page whose
// last write isn't durably logged yet".
package wal

import (
	"sync"

	"github.com/chaixuqing/bustub/common"
)

// LogManager is the interface the buffer pool and B+tree depend on. It is
// a named interface per the out-of-scope collaborator contract — recovery,
// replay, and on-disk log format are not part of this module.
type LogManager interface {
	// AppendLogRecord stamps data with a new LSN and buffers it, returning
	// the assigned LSN.
	AppendLogRecord(data []byte) (lsn int64)

	// FlushedLSN returns the highest LSN durably flushed so far.
	FlushedLSN() int64

	// Flush forces every buffered record up to the latest AppendLogRecord
	// call to become durable.
	Flush() error
}

// SimpleLogManager is an in-memory append-only log: records accumulate in
// a buffer and Flush copies them out to sink, advancing FlushedLSN to the
// last appended LSN. It exists so the buffer pool has something real to
// call; this module never reads records back.
type SimpleLogManager struct {
	mu         sync.Mutex
	sink       func([]byte) error
	nextLSN    int64
	flushedLSN int64
	buffered   [][]byte
}

// NewSimpleLogManager returns a log manager that hands buffered records to
// sink on Flush. sink may be nil, in which case flushed records are
// discarded after bookkeeping.
func NewSimpleLogManager(sink func([]byte) error) *SimpleLogManager {
	return &SimpleLogManager{
		sink:       sink,
		flushedLSN: common.InvalidLSN,
	}
}

func (l *SimpleLogManager) AppendLogRecord(data []byte) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	lsn := l.nextLSN
	l.nextLSN++
	rec := make([]byte, len(data))
	copy(rec, data)
	l.buffered = append(l.buffered, rec)
	return lsn
}

func (l *SimpleLogManager) FlushedLSN() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushedLSN
}

func (l *SimpleLogManager) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buffered) == 0 {
		return nil
	}
	for _, rec := range l.buffered {
		if l.sink != nil {
			if err := l.sink(rec); err != nil {
				return err
			}
		}
	}
	l.flushedLSN = l.nextLSN - 1
	l.buffered = l.buffered[:0]
	return nil
}

// Discard is a LogManager that never blocks eviction on anything — every
// record is considered flushed the instant it is appended. Callers that
// have no interest in WAL (such as most buffer pool tests) use this.
var Discard LogManager = discardLogManager{}

type discardLogManager struct{}

func (discardLogManager) AppendLogRecord(data []byte) int64 { return 0 }
func (discardLogManager) FlushedLSN() int64                 { return 1<<63 - 1 }
func (discardLogManager) Flush() error                      { return nil }
