package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TokenBucketLimiter keeps one in-process token bucket per key.
type TokenBucketLimiter struct {
	config  Config
	buckets map[string]*bucket
	mu      sync.Mutex
	now     func() time.Time
}

// NewTokenBucketLimiter creates an in-process limiter.
func NewTokenBucketLimiter(config Config) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes one token from the bucket of key.
func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.config.EventsPerSecond), l.config.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	if b.limiter.AllowN(now, 1) {
		return &Result{Allowed: true, Remaining: int(b.limiter.TokensAt(now))}, nil
	}

	res := &Result{Allowed: false}
	if l.config.EventsPerSecond > 0 {
		missing := 1 - b.limiter.TokensAt(now)
		res.RetryAfter = time.Duration(missing / l.config.EventsPerSecond * float64(time.Second))
	}
	return res, nil
}

// Prune drops buckets idle for longer than idle and returns how many were dropped.
func (l *TokenBucketLimiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	n := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// Close drops every bucket.
func (l *TokenBucketLimiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*bucket)
	return nil
}
