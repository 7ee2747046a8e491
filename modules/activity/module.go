// Package activity consumes chat events: it keeps conversation recency up to
// date and counts what happens on the service.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/Noah-Sfez/whatsup/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

const defaultStoreTimeout = 5 * time.Second

// StoreProvider hands out the opened store once the storage module has started.
type StoreProvider interface {
	Store() chat.Store
}

// Module bumps conversations.updated_at on every stored conversation message.
type Module struct {
	provider StoreProvider
	timeout  time.Duration
	logger   types.Logger
	stats    *Stats
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new activity module.
func NewModule(provider StoreProvider, storeTimeout time.Duration, logger types.Logger) *Module {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &Module{
		provider: provider,
		timeout:  storeTimeout,
		logger:   logger,
		stats:    NewStats(),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "activity"
}

// RegisterEventConsumers subscribes to the chat and presence events.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.MessageSentV1, m.handleMessageSent, m); err != nil {
		return fmt.Errorf("failed to register MessageSent consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.ConversationCreatedV1, m.handleConversationCreated, m); err != nil {
		return fmt.Errorf("failed to register ConversationCreated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.GroupCreatedV1, m.handleGroupCreated, m); err != nil {
		return fmt.Errorf("failed to register GroupCreated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.GroupMemberJoinedV1, m.handleGroupMemberJoined, m); err != nil {
		return fmt.Errorf("failed to register GroupMemberJoined consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.PresenceChangedV1, m.handlePresenceChanged, m); err != nil {
		return fmt.Errorf("failed to register PresenceChanged consumer: %w", err)
	}

	m.logger.Info("Registered event consumers",
		"events", []string{"MessageSent.v1", "ConversationCreated.v1", "GroupCreated.v1", "GroupMemberJoined.v1", "PresenceChanged.v1"})
	return nil
}

func (m *Module) handleMessageSent(ctx context.Context, event events.MessageSentEvent, _ *mono.Msg) error {
	m.stats.recordMessage(event)
	if event.ConversationID == "" || m.provider == nil || m.provider.Store() == nil {
		return nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.provider.Store().TouchConversation(storeCtx, event.ConversationID); err != nil {
		m.stats.recordFailure()
		m.logger.Warn("Failed to touch conversation",
			"conversationID", event.ConversationID,
			"messageID", event.MessageID,
			"error", err)
		return nil // the next message touches it again
	}
	m.logger.Debug("Conversation touched", "conversationID", event.ConversationID)
	return nil
}

func (m *Module) handleConversationCreated(_ context.Context, event events.ConversationCreatedEvent, _ *mono.Msg) error {
	m.stats.recordConversation()
	m.logger.Info("Conversation created",
		"conversationID", event.ConversationID,
		"createdBy", event.CreatedBy,
		"participants", len(event.Participants))
	return nil
}

func (m *Module) handleGroupCreated(_ context.Context, event events.GroupCreatedEvent, _ *mono.Msg) error {
	m.stats.recordGroup()
	m.logger.Info("Group created", "groupID", event.GroupID, "name", event.Name)
	return nil
}

func (m *Module) handleGroupMemberJoined(_ context.Context, event events.GroupMemberJoinedEvent, _ *mono.Msg) error {
	m.stats.recordJoin()
	m.logger.Debug("Group member joined", "groupID", event.GroupID, "userID", event.UserID)
	return nil
}

func (m *Module) handlePresenceChanged(_ context.Context, event events.PresenceChangedEvent, _ *mono.Msg) error {
	m.stats.recordPresence(event.Online)
	m.logger.Debug("Presence changed", "userID", event.UserID, "online", event.Online)
	return nil
}

// Start initializes the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Activity module started")
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	s := m.stats.Snapshot()
	m.logger.Info("Activity module stopped", "messages", s.Messages, "touchFailures", s.TouchFailures)
	return nil
}

// Stats returns the activity counters.
func (m *Module) Stats() *Stats {
	return m.stats
}

// Health reports the counters.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	s := m.stats.Snapshot()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"messages":       s.Messages,
			"image_messages": s.ImageMessages,
			"conversations":  s.Conversations,
			"groups":         s.Groups,
			"online_users":   s.OnlineUsers,
			"touch_failures": s.TouchFailures,
		},
	}
}
