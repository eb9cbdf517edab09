// Package ratelimit throttles booking attempts per client.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const cleanupInterval = 5 * time.Minute

// Config holds rate limit configuration.
type Config struct {
	// MaxAttempts allowed per key within Window (default: 30)
	MaxAttempts int
	Window      time.Duration // default: 1m
	// TrustProxy reads the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool

	// Clock for testing (nil uses real time)
	Clock clockwork.Clock
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 30,
		Window:      time.Minute,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// window counts attempts since firstAt.
type window struct {
	count   int
	firstAt time.Time
}

// Limiter is a fixed window counter keyed by scope and client.
type Limiter struct {
	config *Config
	clock  clockwork.Clock
	mu     sync.Mutex
	// Keyed by scope plus a hash of the client key
	windows map[string]*window

	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

// New creates a new rate limiter with the given config.
func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	defaults := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        cfg,
		clock:         clock,
		windows:       make(map[string]*window),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine and releases resources.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// Allow records one attempt for key within scope and reports whether it
// fits the window. Rejected attempts are not counted.
func (l *Limiter) Allow(scope, key string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	k := hashKey(scope, key)

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[k]
	if w == nil || now.Sub(w.firstAt) >= l.config.Window {
		l.windows[k] = &window{count: 1, firstAt: now}
		return LimitResult{Allowed: true, Remaining: l.config.MaxAttempts - 1}
	}
	if w.count >= l.config.MaxAttempts {
		return LimitResult{
			Allowed:    false,
			RetryAfter: l.config.Window - now.Sub(w.firstAt),
		}
	}
	w.count++
	return LimitResult{Allowed: true, Remaining: l.config.MaxAttempts - w.count}
}

// Middleware rejects requests over the limit with 429 and Retry-After.
func (l *Limiter) Middleware(scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := GetClientIP(r, l.config.TrustProxy)
		result := l.Allow(scope, ip)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.config.MaxAttempts))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			LogRateLimitExceeded(r.Context(), scope, ip, result.RetryAfter)
			http.Error(w, fmt.Sprintf("Too many booking attempts, retry in %ds", retryAfter), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func hashKey(scope, value string) string {
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(value))))
	return scope + ":" + hex.EncodeToString(hash[:8])
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := l.clock.NewTicker(cleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.Chan():
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, w := range l.windows {
		if now.Sub(w.firstAt) >= l.config.Window {
			delete(l.windows, k)
		}
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// LogRateLimitExceeded logs a rate limit event.
func LogRateLimitExceeded(ctx context.Context, scope, ip string, retryAfter time.Duration) {
	log.Ctx(ctx).Warn().
		Str("event", "rate_limit_exceeded").
		Str("scope", scope).
		Str("ip", ip).
		Dur("retry_after", retryAfter).
		Msg("Rate limit exceeded")
}
