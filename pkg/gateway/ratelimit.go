package gateway

import (
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Error code for a rate-limited caller.
const ErrRateLimited = "ERR_RATE_LIMITED"

// RateLimitedError reports a caller exceeding its request budget.
type RateLimitedError struct {
	CallerID string `json:"caller_id"`
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: caller %q exceeded request rate", ErrRateLimited, e.CallerID)
}

// callerLimiter applies a per-caller token bucket. Buckets are created
// lazily on first sight of a caller id.
type callerLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

func newCallerLimiter(rps float64, burst int) *callerLimiter {
	if burst < 1 {
		burst = 1
	}
	return &callerLimiter{
		buckets: make(map[string]*rate.Limiter),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

func (l *callerLimiter) allow(callerID string) bool {
	l.mu.Lock()
	bucket, ok := l.buckets[callerID]
	if !ok {
		bucket = rate.NewLimiter(l.rps, l.burst)
		l.buckets[callerID] = bucket
	}
	l.mu.Unlock()

	return bucket.Allow()
}
