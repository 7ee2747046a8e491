package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

const testRedisAddr = "localhost:6379"

func TestConfig_Window(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   time.Duration
	}{
		{"default", DefaultConfig(), 2 * time.Second},
		{"one per second", Config{EventsPerSecond: 1, Burst: 5}, 5 * time.Second},
		{"zero rate", Config{EventsPerSecond: 0, Burst: 5}, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.Window(); got != tt.want {
				t.Errorf("Window() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTokenBucketLimiter_Allow(t *testing.T) {
	l := NewTokenBucketLimiter(Config{EventsPerSecond: 1, Burst: 3})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "alice")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !res.Allowed {
			t.Fatalf("Allow() #%d = denied, want allowed within burst", i+1)
		}
	}

	res, _ := l.Allow(ctx, "alice")
	if res.Allowed {
		t.Error("Allow() over burst = allowed, want denied")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Second {
		t.Errorf("RetryAfter = %v, want within (0, 1s]", res.RetryAfter)
	}

	if res, _ := l.Allow(ctx, "bob"); !res.Allowed {
		t.Error("Allow() for another key = denied, buckets must be per key")
	}

	now = now.Add(time.Second)
	if res, _ := l.Allow(ctx, "alice"); !res.Allowed {
		t.Error("Allow() after refill = denied, want allowed")
	}
}

func TestTokenBucketLimiter_Prune(t *testing.T) {
	l := NewTokenBucketLimiter(DefaultConfig())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow(context.Background(), "old")
	now = now.Add(time.Hour)
	l.Allow(context.Background(), "fresh")

	if n := l.Prune(10 * time.Minute); n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if _, ok := l.buckets["fresh"]; !ok {
		t.Error("Prune() dropped an active bucket")
	}
}

func TestModule_FallsBackWithoutRedis(t *testing.T) {
	m := NewModule(DefaultConfig(), nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop(context.Background())

	if _, ok := m.Limiter().(*TokenBucketLimiter); !ok {
		t.Errorf("Limiter() = %T, want *TokenBucketLimiter", m.Limiter())
	}
	if h := m.Health(context.Background()); !h.Healthy || h.Details["backend"] != "memory" {
		t.Errorf("Health() = %+v", h)
	}
}

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSlidingWindowLimiter_Allow(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	config := Config{EventsPerSecond: 1, Burst: 3, KeyPrefix: fmt.Sprintf("test:ratelimit:%d:", time.Now().UnixNano())}
	l := NewSlidingWindowLimiter(client, config)

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "alice")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !res.Allowed || res.Remaining != 2-i {
			t.Fatalf("Allow() #%d = %+v", i+1, res)
		}
	}

	res, err := l.Allow(ctx, "alice")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if res.Allowed {
		t.Error("Allow() over limit = allowed, want denied")
	}
	if res.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", res.RetryAfter)
	}

	m := NewModule(config, client)
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop(ctx)
	if _, ok := m.Limiter().(*SlidingWindowLimiter); !ok {
		t.Errorf("Limiter() = %T, want *SlidingWindowLimiter", m.Limiter())
	}
}
