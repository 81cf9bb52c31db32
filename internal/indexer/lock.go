package indexer

import "sync/atomic"

// IndexLock marks a document as being processed. Acquisition never blocks:
// a second upload, reindex or delete of the same document fails fast instead.
type IndexLock struct {
	state atomic.Int32 // 0 = idle, 1 = processing
}

// TryAcquire returns true if the caller now owns the document
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release hands the document back. Only the owner may call it.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// Held reports whether the document is being processed
func (l *IndexLock) Held() bool {
	return l.state.Load() == 1
}
