package ratelimit

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultWindow is the refill window for a full bucket.
const DefaultWindow = time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-key token bucket registry: capacity tokens, refilled
// continuously at capacity per window. Build one per process and hand it
// to every admission point so each key sees a single limit.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity int
	window   time.Duration
	now      func() time.Time
}

// New creates a limiter with the given capacity per window.
func New(capacity int, window time.Duration) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		buckets:  make(map[string]*bucket),
		capacity: capacity,
		window:   window,
		now:      time.Now,
	}
}

// NewWithClock is New with an injected time source.
func NewWithClock(capacity int, window time.Duration, now func() time.Time) *Limiter {
	l := New(capacity, window)
	l.now = now
	return l
}

// Allow consumes one token for key and reports whether it was available.
// A denied call consumes nothing.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		limit := rate.Limit(float64(l.capacity) / l.window.Seconds())
		b = &bucket{limiter: rate.NewLimiter(limit, l.capacity)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Sweep drops buckets idle for at least one window. Such buckets are full
// again, so dropping them does not change any future decision.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	removed := 0
	for key, b := range l.buckets {
		if !b.lastSeen.After(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// ClientKey derives the limiter key from a forwarded-for header and the
// peer address, falling back to "local".
func ClientKey(forwardedFor, remoteIP string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if remoteIP != "" {
		return remoteIP
	}
	return "local"
}
