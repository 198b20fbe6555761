// Package ratelimit implements per-key token bucket limits for expensive endpoints.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const defaultMaxKeys = 10000

// Limiter manages one token bucket per key (typically a user id).
type Limiter struct {
	mu           sync.Mutex
	limiters     *lru.Cache[string, *rate.Limiter]
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration.
type Config struct {
	// PerMinute is the sustained number of requests per key. Zero or less disables limiting.
	PerMinute float64
	Burst     int
	// MaxKeys bounds the number of tracked keys; the least recently used key is evicted.
	MaxKeys int
}

// New creates a new Limiter.
func New(cfg Config) (*Limiter, error) {
	r := rate.Limit(cfg.PerMinute / 60)
	if cfg.PerMinute <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	size := cfg.MaxKeys
	if size <= 0 {
		size = defaultMaxKeys
	}
	cache, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, fmt.Errorf("rate limiter cache: %w", err)
	}
	return &Limiter{
		limiters:     cache,
		defaultRate:  r,
		defaultBurst: burst,
	}, nil
}

func (l *Limiter) get(key string) *rate.Limiter {
	if key == "" {
		key = "anonymous"
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters.Add(key, limiter)
	}
	return limiter
}

// Allow reports whether the key may proceed now, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// RetryAfter returns how long the key must wait for its next token.
func (l *Limiter) RetryAfter(key string) time.Duration {
	r := l.get(key).Reserve()
	d := r.Delay()
	r.Cancel()
	return d
}

// Wait blocks until a token is available for the key, respecting the context.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if err := l.get(key).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}
