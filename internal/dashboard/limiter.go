package dashboard

// limiter.go bounds how many uploaded workbooks are parsed at once.
//
// Parsing an xlsx file holds the whole decompressed sheet in memory, so the
// validation endpoint takes a slot before reading. When every slot is busy
// a request waits up to maxWait and then fails with ErrServerBusy.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrServerBusy is returned when no parse slot frees up within the wait
// limit. Clients should retry after a short delay.
var ErrServerBusy = errors.New("server busy: too many workbooks being parsed, please try again later")

// DefaultMaxConcurrentParses is the default limit for parallel parses.
const DefaultMaxConcurrentParses = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 10 * time.Second

// ParseLimiter is a counting semaphore over workbook parsing.
type ParseLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewParseLimiter allows at most maxConcurrent parses at a time.
func NewParseLimiter(maxConcurrent int, maxWait time.Duration) *ParseLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentParses
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &ParseLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire takes a slot, waiting up to the limiter's maxWait.
// The caller must call Release when done.
func (l *ParseLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrServerBusy
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *ParseLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *ParseLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of parses in progress.
func (l *ParseLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until no parse is in progress or ctx is done.
func (l *ParseLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a snapshot of a ParseLimiter.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// Status returns the limiter's current state.
func (l *ParseLimiter) Status() LimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return LimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
