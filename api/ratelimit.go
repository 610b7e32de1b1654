package api

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// CleanupInterval is the interval for cleaning up stale limiters
	CleanupInterval = 5 * time.Minute
	// LimiterTTL is the time-to-live for inactive limiters
	LimiterTTL = 10 * time.Minute
)

// RateLimiter is a token bucket per client IP.
type RateLimiter struct {
	limiters  map[string]*limiterEntry
	mu        sync.Mutex
	perMinute int
	rateLimit rate.Limit
	burstSize int
	logger    zerolog.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter starts a limiter allowing requestsPerMinute per client
// with bursts of burstSize. Call Stop to end its cleanup goroutine.
func NewRateLimiter(requestsPerMinute, burstSize int, logger zerolog.Logger) *RateLimiter {
	rl := &RateLimiter{
		limiters:  make(map[string]*limiterEntry),
		perMinute: requestsPerMinute,
		rateLimit: rate.Limit(float64(requestsPerMinute) / 60.0),
		burstSize: burstSize,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow reports whether the client may make a request now.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[client]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rateLimit, rl.burstSize)}
		rl.limiters[client] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for client, entry := range rl.limiters {
				if now.Sub(entry.lastSeen) > LimiterTTL {
					delete(rl.limiters, client)
					rl.logger.Debug().Str("client", client).Msg("cleaned up stale rate limiter")
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop ends the cleanup goroutine. Safe to call twice.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware rejects over-limit clients with 429. Place it after
// middleware.RealIP so RemoteAddr is the client.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.perMinute))
		if !rl.Allow(client) {
			retryAfter := int((time.Second * 60) / time.Duration(rl.perMinute) / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			rl.logger.Warn().Str("client", client).Int("retry_after", retryAfter).Msg("rate limit exceeded")
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded",
				fmt.Errorf("too many requests, retry after %d seconds", retryAfter))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
