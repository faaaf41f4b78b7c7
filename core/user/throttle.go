package user

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// keyedLimiter rate limits events per key (ex: password reset emails per address).
type keyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	every    rate.Limit
	burst    int
	idleTTL  time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newKeyedLimiter(interval time.Duration, burst int) *keyedLimiter {
	if burst <= 0 {
		burst = 1
	}
	every := rate.Inf
	if interval > 0 {
		every = rate.Every(interval)
	}
	return &keyedLimiter{
		limiters: make(map[string]*limiterEntry),
		every:    every,
		burst:    burst,
		idleTTL:  time.Duration(burst) * interval,
	}
}

// Allow reports whether an event for key may happen now.
func (kl *keyedLimiter) Allow(key string) bool {
	now := NowFunc()

	kl.mu.Lock()
	defer kl.mu.Unlock()

	kl.evict(now)
	entry, ok := kl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(kl.every, kl.burst)}
		kl.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// evict drops limiters idle long enough to be full again.
func (kl *keyedLimiter) evict(now time.Time) {
	if kl.idleTTL <= 0 {
		return
	}
	for key, entry := range kl.limiters {
		if now.Sub(entry.lastSeen) > kl.idleTTL {
			delete(kl.limiters, key)
		}
	}
}
