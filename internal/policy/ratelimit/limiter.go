// Package ratelimit paces outbound upstream calls with per-host token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/trends-gateway/internal/metrics"
	"github.com/JakeFAU/trends-gateway/internal/trends"
)

// Limiter manages per-host rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration. A non-positive RPS disables pacing.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	metrics.Init()
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for the host of rawURL, respecting
// the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := metrics.SanitizeSite(rawURL)
	limiter := l.limiterFor(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("outbound pacing wait: %w", err)
	}
	// A token that was already available costs no measurable time.
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

func (l *Limiter) limiterFor(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[host] = limiter
	}
	return limiter
}

// Upstream paces every call to next against the bucket for target.
type Upstream struct {
	next    trends.Upstream
	limiter *Limiter
	target  string
}

// Wrap returns an Upstream that waits on l before each call to next.
func Wrap(next trends.Upstream, l *Limiter, target string) *Upstream {
	return &Upstream{next: next, limiter: l, target: target}
}

// Fetch waits for a token, then delegates.
func (u *Upstream) Fetch(ctx context.Context, query trends.CanonicalQuery) (string, error) {
	if err := u.limiter.Wait(ctx, u.target); err != nil {
		return "", err
	}
	return u.next.Fetch(ctx, query)
}
