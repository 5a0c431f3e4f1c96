package util

import (
	"context"

	xsync "golang.org/x/sync/semaphore"
)

// Semaphore bounds the number of concurrent callers, used by the executor
// (to bound worker slots).
type Semaphore struct {
	sem *xsync.Weighted
}

// NewSemaphore creates a semaphore with the given number of slots. A
// concurrency of 0 or less means unlimited (every Acquire succeeds
// immediately).
func NewSemaphore(concurrency int) *Semaphore {
	if concurrency <= 0 {
		return &Semaphore{}
	}
	return &Semaphore{sem: xsync.NewWeighted(int64(concurrency))}
}

// Acquire blocks until a slot is available.
func (s *Semaphore) Acquire() {
	if s.sem == nil {
		return
	}
	_ = s.sem.Acquire(context.Background(), 1)
}

// Release frees a slot.
func (s *Semaphore) Release() {
	if s.sem == nil {
		return
	}
	s.sem.Release(1)
}
