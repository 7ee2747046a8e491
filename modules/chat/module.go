package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/Noah-Sfez/whatsup/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
)

// StoreProvider hands out the opened store once the storage module has started.
type StoreProvider interface {
	Store() chat.Store
}

// ChatModule owns the chat service and exposes it through the service container.
type ChatModule struct {
	provider StoreProvider
	timeout  time.Duration
	redis    *redis.Client
	logger   types.Logger
	eventBus mono.EventBus
	service  *Service
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*ChatModule)(nil)
	_ mono.ServiceProviderModule = (*ChatModule)(nil)
	_ mono.EventBusAwareModule   = (*ChatModule)(nil)
	_ mono.EventEmitterModule    = (*ChatModule)(nil)
	_ mono.HealthCheckableModule = (*ChatModule)(nil)
)

// NewModule creates a chat module. redisClient is optional and backs the
// profile cache.
func NewModule(provider StoreProvider, storeTimeout time.Duration, redisClient *redis.Client, logger types.Logger) *ChatModule {
	return &ChatModule{
		provider: provider,
		timeout:  storeTimeout,
		redis:    redisClient,
		logger:   logger,
	}
}

// NewModuleWithService creates a chat module around an existing service.
func NewModuleWithService(service *Service, logger types.Logger) *ChatModule {
	return &ChatModule{service: service, logger: logger}
}

// Name returns the module name.
func (m *ChatModule) Name() string {
	return "chat"
}

// Service returns the chat service. It is nil before Start.
func (m *ChatModule) Service() *Service {
	return m.service
}

// SetEventBus receives the EventBus from the framework.
func (m *ChatModule) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
	if m.service != nil {
		m.service.SetEventBus(bus)
	}
}

// EmitEvents declares the events this module can emit.
func (m *ChatModule) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MessageSentV1.ToBase(),
		events.ConversationCreatedV1.ToBase(),
		events.GroupCreatedV1.ToBase(),
		events.GroupMemberJoinedV1.ToBase(),
	}
}

// Start builds the service on top of the opened store.
func (m *ChatModule) Start(_ context.Context) error {
	if m.service == nil {
		if m.provider == nil || m.provider.Store() == nil {
			return fmt.Errorf("chat: store not available")
		}
		store := m.provider.Store()
		m.service = NewService(store, m.timeout, m.logger)
		if m.redis != nil {
			m.service.SetProfileCache(NewProfileCache(store, m.redis, defaultProfileTTL, m.timeout, m.logger))
		}
	}
	if m.eventBus != nil {
		m.service.SetEventBus(m.eventBus)
	}
	m.logger.Info("Chat module started", "profileCache", m.redis != nil)
	return nil
}

// Stop shuts down the module.
func (m *ChatModule) Stop(_ context.Context) error {
	m.logger.Info("Chat module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *ChatModule) Health(_ context.Context) mono.HealthStatus {
	if m.service == nil {
		return mono.HealthStatus{Healthy: false, Message: "service not initialized"}
	}
	stats := m.service.Profiles().Stats()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"profile_cache_hits":   stats.Hits,
			"profile_cache_misses": stats.Misses,
		},
	}
}

func register[Req, Resp any](container mono.ServiceContainer, name string, handler func(context.Context, Req, *mono.Msg) (Resp, error)) error {
	if err := helper.RegisterTypedRequestReplyService(
		container,
		name,
		json.Unmarshal,
		json.Marshal,
		handler,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", name, err)
	}
	return nil
}

// RegisterServices registers request-reply services in the service container.
func (m *ChatModule) RegisterServices(container mono.ServiceContainer) error {
	regs := []func() error{
		func() error { return register(container, ServiceCreateConversation, m.handleCreateConversation) },
		func() error { return register(container, ServiceListConversations, m.handleListConversations) },
		func() error { return register(container, ServiceGetHistory, m.handleGetHistory) },
		func() error { return register(container, ServicePostMessage, m.handlePostMessage) },
		func() error { return register(container, ServiceCreateGroup, m.handleCreateGroup) },
		func() error { return register(container, ServiceListGroups, m.handleListGroups) },
		func() error { return register(container, ServiceJoinGroup, m.handleJoinGroup) },
		func() error { return register(container, ServiceListUsers, m.handleListUsers) },
		func() error { return register(container, ServiceFindUserByEmail, m.handleFindUserByEmail) },
		func() error { return register(container, ServiceCheckEmails, m.handleCheckEmails) },
	}
	for _, reg := range regs {
		if err := reg(); err != nil {
			return err
		}
	}

	m.logger.Info("Registered chat services", "count", len(regs))
	return nil
}

func (m *ChatModule) handleCreateConversation(ctx context.Context, req CreateConversationRequest, _ *mono.Msg) (ConversationResponse, error) {
	conv, err := m.service.CreateConversation(ctx, req.UserID, CreateConversationInput{
		Participants: req.Participants,
		Name:         req.Name,
		IsGroup:      req.IsGroup,
	})
	return ConversationResponse{Conversation: conv, Error: chat.FaultFrom(err)}, nil
}

func (m *ChatModule) handleListConversations(ctx context.Context, req ListConversationsRequest, _ *mono.Msg) (ConversationsResponse, error) {
	convs, err := m.service.ListConversations(ctx, req.UserID)
	return ConversationsResponse{Conversations: convs, Error: chat.FaultFrom(err)}, nil
}

func (m *ChatModule) handleGetHistory(ctx context.Context, req HistoryRequest, _ *mono.Msg) (HistoryResponse, error) {
	messages, err := m.service.History(ctx, req.UserID, req.Room, chat.HistoryQuery{Limit: req.Limit, BeforeID: req.BeforeID})
	return HistoryResponse{Messages: messages, Error: chat.FaultFrom(err)}, nil
}

func (m *ChatModule) handlePostMessage(ctx context.Context, req PostMessageRequest, _ *mono.Msg) (MessageResponse, error) {
	msg, err := m.service.Send(ctx, SendInput{
		SenderID: req.UserID,
		Room:     req.Room,
		Payload:  chat.TextPayload(req.Content),
	}, nil)
	return MessageResponse{Message: msg, Error: chat.FaultFrom(err)}, nil
}

func (m *ChatModule) handleCreateGroup(ctx context.Context, req CreateGroupRequest, _ *mono.Msg) (GroupResponse, error) {
	group, err := m.service.CreateGroup(ctx, req.UserID, req.Name, req.Description)
	return GroupResponse{Group: group, Error: chat.FaultFrom(err)}, nil
}

func (m *ChatModule) handleListGroups(ctx context.Context, req ListGroupsRequest, _ *mono.Msg) (GroupsResponse, error) {
	groups, err := m.service.ListGroups(ctx, req.UserID)
	return GroupsResponse{Groups: groups, Error: chat.FaultFrom(err)}, nil
}

func (m *ChatModule) handleJoinGroup(ctx context.Context, req JoinGroupRequest, _ *mono.Msg) (JoinGroupResponse, error) {
	member, err := m.service.JoinGroup(ctx, req.GroupID, req.UserID)
	return JoinGroupResponse{Member: member, Error: chat.FaultFrom(err)}, nil
}

func (m *ChatModule) handleListUsers(ctx context.Context, _ ListUsersRequest, _ *mono.Msg) (UsersResponse, error) {
	users, err := m.service.ListUsers(ctx)
	return UsersResponse{Users: users, Error: chat.FaultFrom(err)}, nil
}

func (m *ChatModule) handleFindUserByEmail(ctx context.Context, req FindUserRequest, _ *mono.Msg) (UserResponse, error) {
	user, err := m.service.FindUserByEmail(ctx, req.Email)
	return UserResponse{User: user, Error: chat.FaultFrom(err)}, nil
}

func (m *ChatModule) handleCheckEmails(ctx context.Context, req CheckEmailsRequest, _ *mono.Msg) (CheckEmailsResponse, error) {
	results, err := m.service.CheckEmails(ctx, req.Emails)
	return CheckEmailsResponse{Results: results, Error: chat.FaultFrom(err)}, nil
}
