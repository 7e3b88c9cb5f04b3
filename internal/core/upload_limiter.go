package core

// upload_limiter.go bounds the number of upload jobs running at once.
//
// A caller that finds every slot taken waits up to maxWait before getting
// ErrTooManyUploads. WaitForDrain
// lets shutdown block until the last running job has released its slot.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyUploads is returned when all upload slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyUploads = errors.New("too many concurrent uploads, please try again later")

// DefaultMaxConcurrentUploads is the default limit for parallel jobs.
const DefaultMaxConcurrentUploads = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 5 * time.Second

// UploadLimiter is a counting semaphore with drain notification. The slot
// count and the drain state change together under mu, so WaitForDrain never
// sees an idle limiter while a slot is held.
type UploadLimiter struct {
	max     int
	maxWait time.Duration

	mu      sync.Mutex
	active  int
	drained chan struct{} // closed while active == 0
	freed   chan struct{} // closed and replaced on every Release
}

// NewUploadLimiter creates a limiter that allows at most maxConcurrent jobs.
func NewUploadLimiter(maxConcurrent int, maxWait time.Duration) *UploadLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentUploads
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	drained := make(chan struct{})
	close(drained)
	return &UploadLimiter{
		max:     maxConcurrent,
		maxWait: maxWait,
		drained: drained,
		freed:   make(chan struct{}),
	}
}

// Acquire takes a slot, waiting up to maxWait.
// Returns ErrTooManyUploads on timeout, or ctx.Err() if ctx ends first.
// The caller must call Release exactly once after a nil return.
func (l *UploadLimiter) Acquire(ctx context.Context) error {
	ok, freed := l.tryAcquire()
	if ok {
		return nil
	}

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	for {
		select {
		case <-freed:
			if ok, freed = l.tryAcquire(); ok {
				return nil
			}
		case <-timer.C:
			return ErrTooManyUploads
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// TryAcquire takes a slot without blocking. Returns false when none is free.
func (l *UploadLimiter) TryAcquire() bool {
	ok, _ := l.tryAcquire()
	return ok
}

// tryAcquire takes a slot if one is free. On failure it returns the channel
// the next Release will close.
func (l *UploadLimiter) tryAcquire() (bool, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active >= l.max {
		return false, l.freed
	}
	if l.active == 0 {
		l.drained = make(chan struct{})
	}
	l.active++
	return true, nil
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *UploadLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active == 0 {
		return
	}
	l.active--
	if l.active == 0 {
		close(l.drained)
	}
	close(l.freed)
	l.freed = make(chan struct{})
}

// ActiveCount returns the number of jobs holding a slot.
func (l *UploadLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// WaitForDrain blocks until no job holds a slot or ctx is done.
func (l *UploadLimiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	drained := l.drained
	l.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UploadLimiterStatus is a point-in-time view of the limiter.
type UploadLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for health reporting.
func (l *UploadLimiter) Status() UploadLimiterStatus {
	active := l.ActiveCount()
	return UploadLimiterStatus{
		Active:        active,
		Available:     l.max - active,
		MaxConcurrent: l.max,
	}
}
