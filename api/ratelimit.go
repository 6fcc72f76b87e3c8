/*
ratelimit.go - Fixed-window request rate limiting

PURPOSE:
  Caps requests per client IP per window. Two counters are provided:
  MemoryLimiter for a single instance and RedisLimiter when several
  instances sit behind one load balancer.

BEHAVIOR:
  - Over the limit: 429 with Retry-After (seconds, rounded up).
  - Every response carries X-RateLimit-Limit and X-RateLimit-Remaining.
  - A failing counter (Redis down) lets the request through and logs a
    warning.

SEE ALSO:
  - server.go: Mounts the middleware
  - config/config.go: RateLimitConfig
*/
package api

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Decision is the limiter's answer for one request.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// decide turns a post-increment count into a decision.
func decide(count int64, limit int, windowEnd, now time.Time) Decision {
	d := Decision{Limit: limit, Allowed: count <= int64(limit)}
	if rem := int64(limit) - count; rem > 0 {
		d.Remaining = int(rem)
	}
	if !d.Allowed {
		d.RetryAfter = windowEnd.Sub(now)
	}
	return d
}

// =============================================================================
// MEMORY LIMITER
// =============================================================================

type memoryWindow struct {
	start time.Time
	count int64
}

// MemoryLimiter keeps counters in process.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*memoryWindow
}

// maxTrackedClients triggers a sweep of expired windows.
const maxTrackedClients = 10000

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: make(map[string]*memoryWindow),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()
	start := now.Truncate(l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.windows) >= maxTrackedClients {
		for k, w := range l.windows {
			if w.start.Before(start) {
				delete(l.windows, k)
			}
		}
	}

	w, ok := l.windows[key]
	if !ok || w.start.Before(start) {
		w = &memoryWindow{start: start}
		l.windows[key] = w
	}
	w.count++
	return decide(w.count, l.limit, start.Add(l.window), now), nil
}

// =============================================================================
// REDIS LIMITER
// =============================================================================

// RedisLimiter shares counters through Redis. Keys embed the window start
// so each window is its own counter and expires with it.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "crew-roster:ratelimit:",
		now:    time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	start := now.Truncate(l.window)
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, key, start.Unix())

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.PExpire(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit counter: %w", err)
	}
	return decide(incr.Val(), l.limit, start.Add(l.window), now), nil
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// RateLimit rejects clients over the limiter's quota.
func RateLimit(l Limiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Allow(r.Context(), clientKey(r))
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
					Error: "Too many requests",
					Code:  "RATE_LIMITED",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey is the remote IP; chi's RealIP runs first so proxies are honored.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
