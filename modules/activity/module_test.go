package activity

import (
	"context"
	"testing"
	"time"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/Noah-Sfez/whatsup/events"
	"github.com/Noah-Sfez/whatsup/modules/storage"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any)         {}
func (m *mockLogger) Info(_ string, _ ...any)          {}
func (m *mockLogger) Warn(_ string, _ ...any)          {}
func (m *mockLogger) Error(_ string, _ ...any)         {}
func (m *mockLogger) With(_ ...any) types.Logger       { return m }
func (m *mockLogger) WithModule(_ string) types.Logger { return m }
func (m *mockLogger) WithError(_ error) types.Logger   { return m }

type staticProvider struct{ store chat.Store }

func (p staticProvider) Store() chat.Store { return p.store }

func setupStore(t *testing.T) (*storage.GormStore, *chat.User, *chat.Conversation) {
	t.Helper()
	store, err := storage.OpenSQLite(":memory:", false)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	user := &chat.User{
		ID:           uuid.New().String(),
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "x",
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	old := time.Now().UTC().Add(-24 * time.Hour)
	conv := &chat.Conversation{
		ID:        uuid.New().String(),
		CreatedBy: user.ID,
		CreatedAt: old,
		UpdatedAt: old,
	}
	if err := store.CreateConversation(ctx, conv, []string{user.ID}); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	return store, user, conv
}

func TestModule_MessageSentTouchesConversation(t *testing.T) {
	store, user, conv := setupStore(t)
	m := NewModule(staticProvider{store}, time.Second, &mockLogger{})
	ctx := context.Background()

	err := m.handleMessageSent(ctx, events.MessageSentEvent{
		MessageID:      uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       user.ID,
		MessageType:    "text",
		Timestamp:      time.Now().UTC(),
	}, nil)
	if err != nil {
		t.Fatalf("handleMessageSent() error = %v", err)
	}

	convs, err := store.ListConversations(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("ListConversations() returned %d conversations, want 1", len(convs))
	}
	if !convs[0].UpdatedAt.After(conv.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want after %v", convs[0].UpdatedAt, conv.UpdatedAt)
	}
	if got := m.Stats().Snapshot().Messages; got != 1 {
		t.Errorf("Messages = %d, want 1", got)
	}
}

func TestModule_MessageSentUnknownConversation(t *testing.T) {
	store, user, _ := setupStore(t)
	m := NewModule(staticProvider{store}, time.Second, &mockLogger{})

	err := m.handleMessageSent(context.Background(), events.MessageSentEvent{
		MessageID:      uuid.New().String(),
		ConversationID: "missing",
		SenderID:       user.ID,
	}, nil)
	if err != nil {
		t.Fatalf("handleMessageSent() error = %v, want nil", err)
	}
	if got := m.Stats().Snapshot().TouchFailures; got != 1 {
		t.Errorf("TouchFailures = %d, want 1", got)
	}
}

func TestModule_GroupMessageDoesNotTouch(t *testing.T) {
	m := NewModule(staticProvider{}, time.Second, &mockLogger{})

	err := m.handleMessageSent(context.Background(), events.MessageSentEvent{
		MessageID:   uuid.New().String(),
		GroupID:     "g1",
		MessageType: "image",
	}, nil)
	if err != nil {
		t.Fatalf("handleMessageSent() error = %v", err)
	}
	s := m.Stats().Snapshot()
	if s.Messages != 1 || s.ImageMessages != 1 || s.TouchFailures != 0 {
		t.Errorf("Snapshot() = %+v", s)
	}
}

func TestStats_Presence(t *testing.T) {
	tests := []struct {
		name    string
		changes []bool
		want    int64
	}{
		{"online", []bool{true, true}, 2},
		{"online then offline", []bool{true, false}, 0},
		{"offline first", []bool{false, true}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStats()
			for _, online := range tt.changes {
				s.recordPresence(online)
			}
			if got := s.Snapshot().OnlineUsers; got != tt.want {
				t.Errorf("OnlineUsers = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestModule_Health(t *testing.T) {
	m := NewModule(staticProvider{}, 0, &mockLogger{})
	ctx := context.Background()
	_ = m.handleConversationCreated(ctx, events.ConversationCreatedEvent{ConversationID: "c1"}, nil)
	_ = m.handleGroupCreated(ctx, events.GroupCreatedEvent{GroupID: "g1"}, nil)
	_ = m.handleGroupMemberJoined(ctx, events.GroupMemberJoinedEvent{GroupID: "g1"}, nil)

	h := m.Health(ctx)
	if !h.Healthy {
		t.Fatalf("Health() = %+v, want healthy", h)
	}
	if h.Details["conversations"] != int64(1) || h.Details["groups"] != int64(1) {
		t.Errorf("Health().Details = %v", h.Details)
	}
	if m.timeout != defaultStoreTimeout {
		t.Errorf("timeout = %v, want default %v", m.timeout, defaultStoreTimeout)
	}
}
