package webhook

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedKeys caps the number of tracked source IPs to prevent
	// memory exhaustion from rotating addresses.
	maxTrackedKeys = 4096

	limiterRate  = rate.Limit(0.5) // sustained requests per second per IP
	limiterBurst = 30
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps a token-bucket limiter per source IP. Safe for
// concurrent use.
type ipRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
}

func newIPRateLimiter() *ipRateLimiter {
	return &ipRateLimiter{entries: make(map[string]*limiterEntry)}
}

// Allow reports whether a request from key is within limits.
func (r *ipRateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if len(r.entries) >= maxTrackedKeys {
		for k, e := range r.entries {
			if now.Sub(e.lastSeen) > time.Minute {
				delete(r.entries, k)
			}
		}
		for len(r.entries) >= maxTrackedKeys {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(limiterRate, limiterBurst)}
		r.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.Allow()
}
