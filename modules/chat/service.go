package chat

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/Noah-Sfez/whatsup/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
)

const defaultStoreTimeout = 5 * time.Second

// DeliverFunc fans a message out to live connections. It is called while the
// room is locked, so it must not block.
type DeliverFunc func(msg *chat.Message)

// SendInput describes one send request.
type SendInput struct {
	SenderID string
	Room     chat.RoomRef
	Payload  chat.Payload

	// SkipSave marks a message already persisted elsewhere: it is delivered
	// but not written.
	SkipSave bool
}

// CreateConversationInput describes a new conversation.
type CreateConversationInput struct {
	Participants []string
	Name         *string
	IsGroup      bool
}

// EmailCheck reports whether an email belongs to a registered user.
type EmailCheck struct {
	Email  string     `json:"email"`
	Exists bool       `json:"exists"`
	User   *chat.User `json:"user"`
}

// Service implements the membership gate, message dispatch and room CRUD on
// top of a chat.Store.
type Service struct {
	store    chat.Store
	timeout  time.Duration
	logger   types.Logger
	bus      mono.EventBus
	seq      *roomSequencer
	profiles *ProfileCache
}

// NewService creates a chat service. Every store call is bounded by timeout.
func NewService(store chat.Store, timeout time.Duration, logger types.Logger) *Service {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &Service{
		store:    store,
		timeout:  timeout,
		logger:   logger,
		seq:      newRoomSequencer(),
		profiles: NewProfileCache(store, nil, 0, timeout, logger),
	}
}

// SetEventBus enables domain event publishing.
func (s *Service) SetEventBus(bus mono.EventBus) {
	s.bus = bus
}

// SetProfileCache replaces the default uncached profile lookup.
func (s *Service) SetProfileCache(cache *ProfileCache) {
	s.profiles = cache
}

// Profiles returns the profile cache in use.
func (s *Service) Profiles() *ProfileCache {
	return s.profiles
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// IsMember reports whether userID belongs to room. Membership is read from the
// store on every call.
func (s *Service) IsMember(ctx context.Context, room chat.RoomRef, userID string) (bool, error) {
	if err := room.Validate(); err != nil {
		return false, err
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	ok, err := s.store.IsMember(ctx, room, userID)
	if err != nil {
		return false, chat.StoreFailure("check membership", err)
	}
	return ok, nil
}

// Authorize returns an authorization error unless userID belongs to room.
func (s *Service) Authorize(ctx context.Context, room chat.RoomRef, userID string) error {
	ok, err := s.IsMember(ctx, room, userID)
	if err != nil {
		return err
	}
	if !ok {
		return chat.Forbidden("Not a member of this " + string(room.Kind))
	}
	return nil
}

// Send validates, authorizes, persists and delivers a message. Delivery happens
// under the room lock so live connections observe the same order as the store.
// On failure nothing is delivered.
func (s *Service) Send(ctx context.Context, in SendInput, deliver DeliverFunc) (*chat.Message, error) {
	if err := in.Room.Validate(); err != nil {
		return nil, err
	}
	payload, err := in.Payload.Normalize()
	if err != nil {
		return nil, err
	}
	if err := s.Authorize(ctx, in.Room, in.SenderID); err != nil {
		return nil, err
	}

	var sender *chat.Sender
	if in.SkipSave {
		if sender, err = s.profiles.Get(ctx, in.SenderID); err != nil {
			return nil, err
		}
	}

	slot := s.seq.lock(in.Room.Key())
	defer slot.unlock()

	msg := &chat.Message{
		ID:        uuid.New().String(),
		SenderID:  in.SenderID,
		CreatedAt: s.seq.stamp(slot),
	}
	id := in.Room.ID
	if in.Room.Kind == chat.RoomConversation {
		msg.ConversationID = &id
	} else {
		msg.GroupID = &id
	}
	payload.Apply(msg)

	if in.SkipSave {
		msg.Sender = sender
	} else {
		storeCtx, cancel := s.storeCtx(ctx)
		err := s.store.AppendMessage(storeCtx, msg)
		cancel()
		if err != nil {
			return nil, chat.StoreFailure("append message", err)
		}
		slot.commit(msg.CreatedAt)
	}

	if deliver != nil {
		deliver(msg)
	}

	if !in.SkipSave {
		s.publishMessageSent(msg)
	}
	return msg, nil
}

func (s *Service) publishMessageSent(msg *chat.Message) {
	if s.bus == nil {
		return
	}
	ev := events.MessageSentEvent{
		MessageID:   msg.ID,
		SenderID:    msg.SenderID,
		MessageType: string(msg.MessageType),
		Timestamp:   msg.CreatedAt,
	}
	if msg.ConversationID != nil {
		ev.ConversationID = *msg.ConversationID
	}
	if msg.GroupID != nil {
		ev.GroupID = *msg.GroupID
	}
	if err := events.MessageSentV1.Publish(s.bus, ev, nil); err != nil {
		s.logger.Warn("Failed to publish MessageSent event", "messageID", msg.ID, "error", err)
	}
}

// History returns a page of room history after checking membership.
func (s *Service) History(ctx context.Context, userID string, room chat.RoomRef, q chat.HistoryQuery) ([]chat.Message, error) {
	if q.Limit < 0 {
		return nil, chat.Validationf("limit must not be negative")
	}
	if err := s.Authorize(ctx, room, userID); err != nil {
		return nil, err
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	messages, err := s.store.History(ctx, room, q)
	if err != nil {
		return nil, chat.StoreFailure("read history", err)
	}
	return messages, nil
}

// CreateConversation creates a conversation between the creator and the given
// participants. Duplicate ids collapse; the creator is always a participant.
func (s *Service) CreateConversation(ctx context.Context, creatorID string, in CreateConversationInput) (*chat.Conversation, error) {
	ids := make([]string, 0, len(in.Participants)+1)
	seen := map[string]bool{}
	for _, id := range in.Participants {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, chat.Validationf("participants are required")
	}
	if !seen[creatorID] {
		ids = append(ids, creatorID)
	}

	var name *string
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		if trimmed != "" {
			if err := chat.ValidateRoomName(trimmed); err != nil {
				return nil, err
			}
			name = &trimmed
		}
	}

	if err := s.requireUsers(ctx, ids); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	conv := &chat.Conversation{
		ID:        uuid.New().String(),
		Name:      name,
		IsGroup:   in.IsGroup,
		CreatedBy: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.CreateConversation(storeCtx, conv, ids); err != nil {
		return nil, chat.StoreFailure("create conversation", err)
	}

	if s.bus != nil {
		ev := events.ConversationCreatedEvent{
			ConversationID: conv.ID,
			CreatedBy:      creatorID,
			Participants:   ids,
			Timestamp:      now,
		}
		if err := events.ConversationCreatedV1.Publish(s.bus, ev, nil); err != nil {
			s.logger.Warn("Failed to publish ConversationCreated event", "conversationID", conv.ID, "error", err)
		}
	}

	s.logger.Info("Conversation created", "conversationID", conv.ID, "participants", len(ids))
	return conv, nil
}

func (s *Service) requireUsers(ctx context.Context, ids []string) error {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	users, err := s.store.FindUsersByIDs(storeCtx, ids)
	if err != nil {
		return chat.StoreFailure("find users", err)
	}
	found := make(map[string]bool, len(users))
	for _, u := range users {
		found[u.ID] = true
	}
	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return chat.Validationf("unknown participants: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ListConversations returns the conversations userID participates in, most
// recently active first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, chat.StoreFailure("list conversations", err)
	}
	return convs, nil
}

// CreateGroup creates a group with creatorID as admin.
func (s *Service) CreateGroup(ctx context.Context, creatorID, name, description string) (*chat.Group, error) {
	name = strings.TrimSpace(name)
	if err := chat.ValidateRoomName(name); err != nil {
		return nil, err
	}
	description = strings.TrimSpace(description)
	if len([]rune(description)) > chat.MaxMessageLength {
		return nil, chat.Validationf("description exceeds %d characters", chat.MaxMessageLength)
	}

	group := &chat.Group{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		CreatedBy:   creatorID,
		CreatedAt:   time.Now().UTC(),
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.CreateGroup(storeCtx, group); err != nil {
		return nil, chat.StoreFailure("create group", err)
	}

	if s.bus != nil {
		ev := events.GroupCreatedEvent{
			GroupID:   group.ID,
			Name:      group.Name,
			CreatedBy: creatorID,
			Timestamp: group.CreatedAt,
		}
		if err := events.GroupCreatedV1.Publish(s.bus, ev, nil); err != nil {
			s.logger.Warn("Failed to publish GroupCreated event", "groupID", group.ID, "error", err)
		}
	}

	s.logger.Info("Group created", "groupID", group.ID, "name", group.Name)
	return group, nil
}

// ListGroups returns the groups userID belongs to.
func (s *Service) ListGroups(ctx context.Context, userID string) ([]chat.Group, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	groups, err := s.store.ListGroups(ctx, userID)
	if err != nil {
		return nil, chat.StoreFailure("list groups", err)
	}
	return groups, nil
}

// JoinGroup adds userID to a group as a member.
func (s *Service) JoinGroup(ctx context.Context, groupID, userID string) (*chat.GroupMember, error) {
	if groupID == "" {
		return nil, chat.Validationf("group id is required")
	}

	findCtx, cancel := s.storeCtx(ctx)
	_, err := s.store.FindGroup(findCtx, groupID)
	cancel()
	if err != nil {
		return nil, chat.StoreFailure("find group", err)
	}

	member := &chat.GroupMember{
		GroupID:  groupID,
		UserID:   userID,
		JoinedAt: time.Now().UTC(),
		Role:     chat.RoleMember,
	}
	addCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.AddGroupMember(addCtx, member); err != nil {
		return nil, chat.StoreFailure("join group", err)
	}

	if s.bus != nil {
		ev := events.GroupMemberJoinedEvent{
			GroupID:   groupID,
			UserID:    userID,
			Role:      member.Role,
			Timestamp: member.JoinedAt,
		}
		if err := events.GroupMemberJoinedV1.Publish(s.bus, ev, nil); err != nil {
			s.logger.Warn("Failed to publish GroupMemberJoined event", "groupID", groupID, "error", err)
		}
	}
	return member, nil
}

// ListUsers returns every user ordered by username.
func (s *Service) ListUsers(ctx context.Context) ([]chat.User, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, chat.StoreFailure("list users", err)
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// FindUserByEmail looks a user up by email.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (*chat.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, chat.Validationf("email is required")
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, chat.StoreFailure("find user", err)
	}
	return user, nil
}

// CheckEmails reports, for each email in order, whether a user owns it.
func (s *Service) CheckEmails(ctx context.Context, emails []string) ([]EmailCheck, error) {
	if len(emails) == 0 {
		return nil, chat.Validationf("emails are required")
	}
	normalized := make([]string, len(emails))
	for i, e := range emails {
		normalized[i] = normalizeEmail(e)
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	users, err := s.store.FindUsersByEmails(storeCtx, normalized)
	if err != nil {
		return nil, chat.StoreFailure("find users", err)
	}
	byEmail := make(map[string]*chat.User, len(users))
	for i := range users {
		byEmail[users[i].Email] = &users[i]
	}

	results := make([]EmailCheck, len(normalized))
	for i, email := range normalized {
		user := byEmail[email]
		results[i] = EmailCheck{Email: email, Exists: user != nil, User: user}
	}
	return results, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
