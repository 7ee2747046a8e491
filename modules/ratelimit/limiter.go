// Package ratelimit limits how many inbound events a user may send.
package ratelimit

import (
	"context"
	"time"
)

// Config holds rate limiting configuration.
type Config struct {
	// EventsPerSecond is the sustained rate.
	EventsPerSecond float64
	// Burst is the number of events allowed at once.
	Burst int
	// KeyPrefix namespaces Redis keys.
	KeyPrefix string
}

// DefaultConfig returns 10 events per second with a burst of 20.
func DefaultConfig() Config {
	return Config{
		EventsPerSecond: 10,
		Burst:           20,
		KeyPrefix:       "whatsup:ratelimit:",
	}
}

// Window returns the sliding window length equivalent to the token bucket:
// Burst events per Burst/EventsPerSecond seconds.
func (c Config) Window() time.Duration {
	if c.EventsPerSecond <= 0 {
		return time.Second
	}
	return time.Duration(float64(c.Burst) / c.EventsPerSecond * float64(time.Second))
}

// Result represents the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the event is allowed.
	Allowed bool
	// Remaining is the number of events left in the current window.
	Remaining int
	// RetryAfter is the duration to wait before retrying (only set when not allowed).
	RetryAfter time.Duration
}

// Limiter is the interface for rate limiting implementations.
type Limiter interface {
	// Allow checks if an event identified by key is allowed.
	Allow(ctx context.Context, key string) (*Result, error)

	// Close releases any resources held by the limiter.
	Close() error
}
