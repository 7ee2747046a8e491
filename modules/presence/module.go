package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/Noah-Sfez/whatsup/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
)

// StoreProvider hands out the opened store once the storage module has started.
type StoreProvider interface {
	Store() chat.Store
}

// PresenceModule owns the presence tracker.
type PresenceModule struct {
	provider StoreProvider
	policy   Policy
	timeout  time.Duration
	redis    *redis.Client
	logger   types.Logger
	eventBus mono.EventBus
	tracker  *Tracker
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*PresenceModule)(nil)
	_ mono.EventBusAwareModule   = (*PresenceModule)(nil)
	_ mono.EventEmitterModule    = (*PresenceModule)(nil)
	_ mono.HealthCheckableModule = (*PresenceModule)(nil)
)

// NewModule creates a presence module. redisClient is optional.
func NewModule(provider StoreProvider, policy Policy, storeTimeout time.Duration, redisClient *redis.Client, logger types.Logger) *PresenceModule {
	return &PresenceModule{
		provider: provider,
		policy:   policy,
		timeout:  storeTimeout,
		redis:    redisClient,
		logger:   logger,
	}
}

// Name returns the module name.
func (m *PresenceModule) Name() string {
	return "presence"
}

// Tracker returns the tracker. It is nil before Start.
func (m *PresenceModule) Tracker() *Tracker {
	return m.tracker
}

// SetEventBus receives the EventBus from the framework.
func (m *PresenceModule) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
	if m.tracker != nil {
		m.tracker.SetEventBus(bus)
	}
}

// EmitEvents declares the events this module can emit.
func (m *PresenceModule) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.PresenceChangedV1.ToBase(),
	}
}

// Start creates the tracker. No connection outlives the process, so the online
// flags and the Redis mirror left by a previous run are cleared first.
func (m *PresenceModule) Start(ctx context.Context) error {
	if m.provider == nil || m.provider.Store() == nil {
		return fmt.Errorf("presence: store not available")
	}
	store := m.provider.Store()
	if err := m.reset(ctx, store); err != nil {
		return fmt.Errorf("presence: %w", err)
	}
	m.tracker = NewTracker(store, m.policy, m.timeout, m.logger)
	if m.eventBus != nil {
		m.tracker.SetEventBus(m.eventBus)
	}
	if m.redis != nil {
		if err := m.redis.Del(ctx, OnlineSetKey).Err(); err != nil {
			m.logger.Warn("Presence mirror disabled", "error", err)
		} else {
			m.tracker.SetMirror(m.redis)
		}
	}
	m.logger.Info("Presence module started", "policy", string(m.tracker.Policy()), "mirror", m.tracker.mirror != nil)
	return nil
}

// Stop marks every user offline. Sessions released during shutdown may not
// reach the store before it closes.
func (m *PresenceModule) Stop(ctx context.Context) error {
	if m.tracker != nil && m.provider != nil && m.provider.Store() != nil {
		if err := m.reset(ctx, m.provider.Store()); err != nil {
			m.logger.Warn("Failed to reset presence on shutdown", "error", err)
		}
	}
	m.logger.Info("Presence module stopped")
	return nil
}

func (m *PresenceModule) reset(ctx context.Context, users chat.UserRepository) error {
	timeout := m.timeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	storeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := users.ResetPresence(storeCtx); err != nil {
		return chat.StoreFailure("reset presence", err)
	}
	return nil
}

// Health returns the health status.
func (m *PresenceModule) Health(ctx context.Context) mono.HealthStatus {
	if m.tracker == nil {
		return mono.HealthStatus{Healthy: false, Message: "tracker not initialized"}
	}
	details := map[string]any{"policy": string(m.tracker.Policy())}
	if m.tracker.mirror != nil {
		if n, err := m.tracker.mirror.SCard(ctx, OnlineSetKey).Result(); err == nil {
			details["online_users"] = n
		}
	}
	return mono.HealthStatus{Healthy: true, Message: "operational", Details: details}
}
