package ingest

import "sync/atomic"

// runLock provides non-blocking run exclusion using atomic operations.
// One lock guards one source; a run holds it from dispatch until the
// parent job is finalized.
type runLock struct {
	state atomic.Int32 // 0 = idle, 1 = running
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise.
func (l *runLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the holder that successfully acquired it.
func (l *runLock) Release() {
	l.state.Store(0)
}
