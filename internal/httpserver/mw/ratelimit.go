package mw

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MrSnakeDoc/derefd/internal/metrics"
	"github.com/MrSnakeDoc/derefd/internal/utils"
)

// RateLimitConfig sizes the per-client token buckets.
type RateLimitConfig struct {
	Burst      int           // bucket capacity
	PerMinute  int           // tokens refilled per minute
	MaxClients int           // buckets kept before idle ones are swept early (0 = unbounded)
	IdleTTL    time.Duration // buckets untouched this long are dropped
	TrustProxy bool

	// Scope narrows the bucket key, e.g. to one engine. Optional.
	Scope   func(*http.Request) string
	Metrics *metrics.Metrics
}

type tokenBucket struct {
	tokens  float64
	updated time.Time
}

type rateLimiter struct {
	cfg    RateLimitConfig
	perSec float64
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*tokenBucket
	swept   time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	cfg.Burst = max(cfg.Burst, 1)
	cfg.PerMinute = max(cfg.PerMinute, 1)
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 15 * time.Minute
	}
	return &rateLimiter{
		cfg:     cfg,
		perSec:  float64(cfg.PerMinute) / 60,
		now:     time.Now,
		clients: make(map[string]*tokenBucket),
		swept:   time.Now(),
	}
}

// take consumes one token of key. When none is left it returns how long the
// caller has to wait for the next one.
func (l *rateLimiter) take(key string) (ok bool, remaining int, wait time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	full := l.cfg.MaxClients > 0 && len(l.clients) >= l.cfg.MaxClients
	if full || now.Sub(l.swept) >= l.cfg.IdleTTL {
		l.sweepLocked(now)
	}

	b, found := l.clients[key]
	if !found {
		b = &tokenBucket{tokens: float64(l.cfg.Burst), updated: now}
		l.clients[key] = b
	}
	b.tokens = math.Min(float64(l.cfg.Burst), b.tokens+now.Sub(b.updated).Seconds()*l.perSec)
	b.updated = now

	if b.tokens < 1 {
		return false, 0, time.Duration((1 - b.tokens) / l.perSec * float64(time.Second))
	}
	b.tokens--
	return true, int(b.tokens), 0
}

func (l *rateLimiter) sweepLocked(now time.Time) {
	for key, b := range l.clients {
		if now.Sub(b.updated) > l.cfg.IdleTTL {
			delete(l.clients, key)
		}
	}
	l.swept = now
}

// RateLimit throttles each client to cfg.PerMinute requests with bursts of
// cfg.Burst. Throttled requests get 429 with a Retry-After header.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	l := newRateLimiter(cfg)
	limit := strconv.Itoa(l.cfg.Burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := utils.ClientIP(r, l.cfg.TrustProxy)
			if l.cfg.Scope != nil {
				key += "|" + l.cfg.Scope(r)
			}

			ok, remaining, wait := l.take(key)
			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				retry := max(int(math.Ceil(wait.Seconds())), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				l.cfg.Metrics.HTTPRejected("rate")
				reject(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
