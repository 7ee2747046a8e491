package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/go-monolith/mono"
	"github.com/redis/go-redis/v9"
)

const (
	pruneInterval = time.Minute
	idleTimeout   = 10 * time.Minute
)

// RateLimitModule provides the per-user event limiter. It uses the Redis
// sliding window when Redis answers on Start and an in-process token bucket
// otherwise.
type RateLimitModule struct {
	config  Config
	client  *redis.Client
	limiter Limiter
	stop    chan struct{}
	done    chan struct{}
}

// Compile-time interface checks.
var _ mono.Module = (*RateLimitModule)(nil)
var _ mono.HealthCheckableModule = (*RateLimitModule)(nil)

// NewModule creates a rate limiting module. client may be nil.
func NewModule(config Config, client *redis.Client) *RateLimitModule {
	return &RateLimitModule{
		config: config,
		client: client,
	}
}

// Name returns the module name.
func (m *RateLimitModule) Name() string {
	return "ratelimit"
}

// Start picks the limiter implementation.
func (m *RateLimitModule) Start(ctx context.Context) error {
	if m.client != nil {
		err := m.client.Ping(ctx).Err()
		if err == nil {
			m.limiter = NewSlidingWindowLimiter(m.client, m.config)
			log.Printf("[ratelimit] Module started - Redis sliding window (%d events / %s)", m.config.Burst, m.config.Window())
			return nil
		}
		log.Printf("[ratelimit] Redis unavailable, falling back to in-process limiter: %v", err)
	}

	bucketLimiter := NewTokenBucketLimiter(m.config)
	m.limiter = bucketLimiter
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.pruneLoop(bucketLimiter)

	log.Printf("[ratelimit] Module started - token bucket (%.1f/s, burst %d)", m.config.EventsPerSecond, m.config.Burst)
	return nil
}

func (m *RateLimitModule) pruneLoop(l *TokenBucketLimiter) {
	defer close(m.done)
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if n := l.Prune(idleTimeout); n > 0 {
				log.Printf("[ratelimit] Pruned %d idle buckets", n)
			}
		}
	}
}

// Stop stops the module. The Redis client is owned by the caller.
func (m *RateLimitModule) Stop(_ context.Context) error {
	if m.stop != nil {
		close(m.stop)
		<-m.done
		m.stop = nil
	}
	if m.limiter != nil {
		if err := m.limiter.Close(); err != nil {
			log.Printf("[ratelimit] Error closing limiter: %v", err)
		}
	}
	log.Println("[ratelimit] Module stopped")
	return nil
}

// Limiter returns the active limiter. It is nil before Start.
func (m *RateLimitModule) Limiter() Limiter {
	return m.limiter
}

// Health returns the health status.
func (m *RateLimitModule) Health(ctx context.Context) mono.HealthStatus {
	if m.limiter == nil {
		return mono.HealthStatus{Healthy: false, Message: "limiter not initialized"}
	}
	backend := "memory"
	if _, ok := m.limiter.(*SlidingWindowLimiter); ok {
		backend = "redis"
		if err := m.client.Ping(ctx).Err(); err != nil {
			return mono.HealthStatus{
				Healthy: false,
				Message: "redis unreachable: " + err.Error(),
				Details: map[string]any{"backend": backend},
			}
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"backend":           backend,
			"events_per_second": m.config.EventsPerSecond,
			"burst":             m.config.Burst,
		},
	}
}
