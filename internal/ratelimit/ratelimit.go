// Package ratelimit provides a per-key token bucket limiter for inbound
// requests. Keys are client IPs; limiters idle longer than the configured
// TTL are evicted by a background sweep.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter manages one rate.Limiter per key.
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a limiter allowing rps requests per second per key with the
// given burst. Keys unused for idleTTL are dropped; idleTTL <= 0 disables
// the sweep.
func New(rps float64, burst int, idleTTL time.Duration) *KeyedLimiter {
	kl := &KeyedLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(rps),
		burst:    burst,
		idleTTL:  idleTTL,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	if idleTTL > 0 {
		go kl.sweepLoop()
	}
	return kl
}

// Allow reports whether a request for key may proceed now.
func (kl *KeyedLimiter) Allow(key string) bool {
	kl.mu.Lock()
	e, ok := kl.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(kl.limit, kl.burst)}
		kl.limiters[key] = e
	}
	e.lastSeen = kl.now()
	kl.mu.Unlock()

	return e.limiter.Allow()
}

// Len returns the number of tracked keys.
func (kl *KeyedLimiter) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.limiters)
}

// Stop shuts down the sweep goroutine.
func (kl *KeyedLimiter) Stop() {
	kl.stopOnce.Do(func() {
		close(kl.done)
	})
}

func (kl *KeyedLimiter) sweepLoop() {
	ticker := time.NewTicker(kl.idleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-kl.done:
			return
		case <-ticker.C:
			kl.sweep()
		}
	}
}

// sweep drops limiters idle for longer than idleTTL.
func (kl *KeyedLimiter) sweep() int {
	cutoff := kl.now().Add(-kl.idleTTL)

	kl.mu.Lock()
	defer kl.mu.Unlock()

	removed := 0
	for key, e := range kl.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(kl.limiters, key)
			removed++
		}
	}
	return removed
}
