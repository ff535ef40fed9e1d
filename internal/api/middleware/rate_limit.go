package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/hlog"
)

const bucketIdleTTL = 10 * time.Minute

// RateLimiter is a per-key token bucket refilled continuously over one
// minute.
type RateLimiter struct {
	store sync.Map // map[string]*bucket
	limit int
	now   func() time.Time
}

type bucket struct {
	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
	lastAccess time.Time
}

// NewRateLimiter allows limit requests per minute per key. A limit of zero
// or less disables limiting.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{limit: limit, now: time.Now}
}

func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}
	now := rl.now()

	val, _ := rl.store.LoadOrStore(key, &bucket{
		tokens:     rl.limit,
		lastRefill: now,
		lastAccess: now,
	})

	b := val.(*bucket)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastAccess = now

	refill := int(now.Sub(b.lastRefill).Seconds() * float64(rl.limit) / 60.0)
	if refill > 0 {
		b.tokens = min(b.tokens+refill, rl.limit)
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Sweep drops buckets idle for longer than ten minutes.
func (rl *RateLimiter) Sweep() {
	now := rl.now()
	rl.store.Range(func(key, value interface{}) bool {
		b := value.(*bucket)
		b.mu.Lock()
		idle := now.Sub(b.lastAccess) > bucketIdleTTL
		b.mu.Unlock()
		if idle {
			rl.store.Delete(key)
		}
		return true
	})
}

// Handle limits by client address.
func (rl *RateLimiter) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			key = host
		}

		if !rl.Allow(key) {
			hlog.FromRequest(r).Warn().Str("client", key).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next(w, r)
	}
}
