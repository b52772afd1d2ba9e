package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/Suhaibinator/SPlugin/pkg/common"
	"github.com/Suhaibinator/SPlugin/pkg/headers"
)

// KeyFunc extracts the rate limit key of a request.
type KeyFunc func(*http.Request) string

// IdentityKey keys requests by caller identity: the user id when present,
// then the client type, then the client address.
func IdentityKey(hc headers.Config) KeyFunc {
	return func(r *http.Request) string {
		if userID := headers.DecodeUserID(r.Header.Get(hc.UserIDHeaderKey)); userID != nil {
			return "user:" + *userID
		}
		if clientType := headers.DecodeClientType(r.Header.Get(hc.ClientTypeHeaderKey)); clientType != nil {
			return "client:" + *clientType
		}
		return "addr:" + ClientIP(r)
	}
}

// RateLimitConfig defines configuration for rate limiting
type RateLimitConfig struct {
	// Unique identifier for this rate limit bucket.
	// Routes sharing the same BucketName share the same counters.
	BucketName string

	// Maximum number of requests allowed per key in the time window
	Limit int

	// Time window for the rate limit. Zero means one second.
	Window time.Duration

	// Key extracts the client key. Nil keys by client address.
	Key KeyFunc

	// Response to send when rate limit is exceeded.
	// If nil, a 429 error body is sent.
	ExceededHandler http.Handler
}

// RateLimiter defines the interface for rate limiting algorithms
type RateLimiter interface {
	// Allow reports whether a request for key is admitted, the number of
	// requests left in the current window and the time until it resets.
	Allow(key string, limit int, window time.Duration) (bool, int, time.Duration)
}

type windowCounter struct {
	start time.Time
	count int
}

// WindowRateLimiter is a fixed window RateLimiter keyed by string.
type WindowRateLimiter struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
	now      func() time.Time
}

// NewWindowRateLimiter creates an empty WindowRateLimiter.
func NewWindowRateLimiter() *WindowRateLimiter {
	return &WindowRateLimiter{counters: make(map[string]*windowCounter), now: time.Now}
}

// Allow implements RateLimiter.
func (l *WindowRateLimiter) Allow(key string, limit int, window time.Duration) (bool, int, time.Duration) {
	if window <= 0 {
		window = time.Second
	}
	if limit <= 0 {
		limit = 1
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok || now.Sub(c.start) >= window {
		c = &windowCounter{start: now}
		l.counters[key] = c
		l.evict(now, window)
	}
	reset := c.start.Add(window).Sub(now)

	if c.count >= limit {
		return false, 0, reset
	}
	c.count++
	return true, limit - c.count, reset
}

// evict drops counters whose window ended long ago. Called with mu held.
func (l *WindowRateLimiter) evict(now time.Time, window time.Duration) {
	if len(l.counters) < 1024 {
		return
	}
	for k, c := range l.counters {
		if now.Sub(c.start) >= 2*window {
			delete(l.counters, k)
		}
	}
}

// RateLimit creates a middleware that enforces rate limits
func RateLimit(config *RateLimitConfig, limiter RateLimiter, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if config == nil {
			return next
		}
		keyFunc := config.Key
		if keyFunc == nil {
			keyFunc = func(r *http.Request) string { return "addr:" + ClientIP(r) }
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			bucketKey := config.BucketName + ":" + key

			allowed, remaining, reset := limiter.Allow(bucketKey, config.Limit, config.Window)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(reset).Unix(), 10))

			if !allowed {
				retry := int64(reset / time.Second)
				if reset%time.Second > 0 {
					retry++
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))

				logger.Warn("Rate limit exceeded",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("key", key),
					zap.Int("limit", config.Limit),
					zap.String("request_id", GetRequestID(r)),
				)

				if config.ExceededHandler != nil {
					config.ExceededHandler.ServeHTTP(w, r)
				} else {
					common.WriteError(w, http.StatusTooManyRequests, "Too Many Requests")
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Throttle paces requests so that each key is served at most rps times per
// second. Requests above the rate wait instead of being rejected. A request
// whose context ends while waiting is answered with a 429.
// It uses Uber's leaky bucket limiter, one per key.
func Throttle(rps int, key KeyFunc) Middleware {
	return func(next http.Handler) http.Handler {
		if rps <= 0 {
			return next
		}
		if key == nil {
			key = func(*http.Request) string { return "" }
		}
		t := newThrottler(rps)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := t.wait(r.Context(), key(r)); err != nil {
				common.WriteError(w, http.StatusTooManyRequests, "Too Many Requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// throttleIdle is how long a key's limiter is kept after its last request.
const throttleIdle = time.Minute

type throttleEntry struct {
	limiter  ratelimit.Limiter
	lastSeen time.Time
}

type throttler struct {
	rps     int
	mu      sync.Mutex
	entries map[string]*throttleEntry
	now     func() time.Time
}

func newThrottler(rps int) *throttler {
	return &throttler{rps: rps, entries: make(map[string]*throttleEntry), now: time.Now}
}

func (t *throttler) limiter(key string) ratelimit.Limiter {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		t.evict(now)
		e = &throttleEntry{limiter: ratelimit.New(t.rps)}
		t.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// evict drops limiters idle for longer than throttleIdle. Called with mu held.
func (t *throttler) evict(now time.Time) {
	if len(t.entries) < 1024 {
		return
	}
	for k, e := range t.entries {
		if now.Sub(e.lastSeen) >= throttleIdle {
			delete(t.entries, k)
		}
	}
}

// wait blocks until key may proceed or ctx is done. An abandoned wait still
// holds its slot until the limiter releases it.
func (t *throttler) wait(ctx context.Context, key string) error {
	l := t.limiter(key)
	if err := ctx.Err(); err != nil {
		return err
	}
	ready := make(chan struct{})
	go func() {
		l.Take()
		close(ready)
	}()
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
