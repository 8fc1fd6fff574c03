package limiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	idleTTL       = 10 * time.Minute
	cleanupEveryN = 1000
	defaultRPS    = 1.0
	defaultBurst  = 5
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-user token bucket for inbound updates. Idle buckets
// are evicted opportunistically during lookups.
type RateLimiter struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	visitors map[int64]*visitor
	lookups  int
	now      func() time.Time
}

// NewRateLimiter creates a limiter allowing rps updates per second with the
// given burst. Non-positive values fall back to 1/s and a burst of 5.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = defaultRPS
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[int64]*visitor),
		now:      time.Now,
	}
}

// Allow reports whether userID may send another update now.
func (rl *RateLimiter) Allow(userID int64) bool {
	now := rl.now()

	rl.mu.Lock()
	rl.lookups++
	if rl.lookups >= cleanupEveryN {
		rl.evictLocked(now)
		rl.lookups = 0
	}

	v, ok := rl.visitors[userID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[userID] = v
	}
	v.lastSeen = now
	lim := v.limiter
	rl.mu.Unlock()

	return lim.AllowN(now, 1)
}

// Len reports the number of tracked users.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

func (rl *RateLimiter) evictLocked(now time.Time) {
	for id, v := range rl.visitors {
		if now.Sub(v.lastSeen) >= idleTTL {
			delete(rl.visitors, id)
		}
	}
}
