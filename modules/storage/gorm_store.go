package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormStore implements chat.Store on GORM + SQLite.
type GormStore struct {
	db *gorm.DB
}

var _ chat.Store = (*GormStore)(nil)

// OpenSQLite opens (or creates) the SQLite database at path and migrates the schema.
func OpenSQLite(path string, debug bool) (*GormStore, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:" databases shared.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(chat.Models()...); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &GormStore{db: db}, nil
}

// NewGormStore wraps an already migrated database.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Ping checks the database connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// CreateUser inserts a user. A duplicate email is a conflict.
func (s *GormStore) CreateUser(ctx context.Context, user *chat.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return chat.Conflict("User already exists")
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByID retrieves a user by ID.
func (s *GormStore) FindUserByID(ctx context.Context, id string) (*chat.User, error) {
	var user chat.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, chat.NotFound("User not found")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// FindUserByEmail retrieves a user by email.
func (s *GormStore) FindUserByEmail(ctx context.Context, email string) (*chat.User, error) {
	var user chat.User
	if err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, chat.NotFound("User not found")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// FindUsersByEmails retrieves the users whose email is in emails.
func (s *GormStore) FindUsersByEmails(ctx context.Context, emails []string) ([]chat.User, error) {
	users := []chat.User{}
	if len(emails) == 0 {
		return users, nil
	}
	if err := s.db.WithContext(ctx).Where("email IN ?", emails).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	return users, nil
}

// FindUsersByIDs retrieves the users whose id is in ids.
func (s *GormStore) FindUsersByIDs(ctx context.Context, ids []string) ([]chat.User, error) {
	users := []chat.User{}
	if len(ids) == 0 {
		return users, nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	return users, nil
}

// ListUsers returns every user ordered by username.
func (s *GormStore) ListUsers(ctx context.Context) ([]chat.User, error) {
	users := []chat.User{}
	if err := s.db.WithContext(ctx).Order("username ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// SetOnline writes the online flag of a user.
func (s *GormStore) SetOnline(ctx context.Context, userID string, online bool) error {
	result := s.db.WithContext(ctx).Model(&chat.User{}).Where("id = ?", userID).Update("is_online", online)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}
	if result.RowsAffected == 0 {
		return chat.NotFound("User not found")
	}
	return nil
}

// ResetPresence marks every user offline.
func (s *GormStore) ResetPresence(ctx context.Context) error {
	err := s.db.WithContext(ctx).Model(&chat.User{}).Where("is_online = ?", true).Update("is_online", false).Error
	if err != nil {
		return fmt.Errorf("failed to reset presence: %w", err)
	}
	return nil
}

// CreateConversation inserts a conversation and its participants in one transaction.
func (s *GormStore) CreateConversation(ctx context.Context, conv *chat.Conversation, participantIDs []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
		participants := make([]chat.ConversationParticipant, 0, len(participantIDs))
		for _, id := range participantIDs {
			participants = append(participants, chat.ConversationParticipant{
				ConversationID: conv.ID,
				UserID:         id,
				JoinedAt:       conv.CreatedAt,
			})
		}
		if len(participants) == 0 {
			return nil
		}
		if err := tx.Create(&participants).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return chat.Conflict("Duplicate conversation participant")
			}
			return fmt.Errorf("failed to add participants: %w", err)
		}
		return nil
	})
}

// ListConversations returns the conversations userID participates in, most recently active first.
func (s *GormStore) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	convs := []chat.Conversation{}
	err := s.db.WithContext(ctx).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ?", userID).
		Order("conversations.updated_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

// TouchConversation bumps updated_at.
func (s *GormStore) TouchConversation(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Model(&chat.Conversation{}).Where("id = ?", id).Update("updated_at", time.Now().UTC())
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if result.RowsAffected == 0 {
		return chat.NotFound("Conversation not found")
	}
	return nil
}

// CreateGroup inserts a group and its creator as admin in one transaction.
func (s *GormStore) CreateGroup(ctx context.Context, group *chat.Group) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(group).Error; err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}
		admin := chat.GroupMember{
			GroupID:  group.ID,
			UserID:   group.CreatedBy,
			JoinedAt: group.CreatedAt,
			Role:     chat.RoleAdmin,
		}
		if err := tx.Create(&admin).Error; err != nil {
			return fmt.Errorf("failed to add group admin: %w", err)
		}
		return nil
	})
}

// FindGroup retrieves a group by ID.
func (s *GormStore) FindGroup(ctx context.Context, id string) (*chat.Group, error) {
	var group chat.Group
	if err := s.db.WithContext(ctx).First(&group, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, chat.NotFound("Group not found")
		}
		return nil, fmt.Errorf("failed to find group: %w", err)
	}
	return &group, nil
}

// ListGroups returns the groups userID belongs to, newest first.
func (s *GormStore) ListGroups(ctx context.Context, userID string) ([]chat.Group, error) {
	groups := []chat.Group{}
	err := s.db.WithContext(ctx).
		Joins("JOIN group_members gm ON gm.group_id = groups.id").
		Where("gm.user_id = ?", userID).
		Order("groups.created_at DESC").
		Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

// AddGroupMember inserts a membership row. An existing row is a conflict.
func (s *GormStore) AddGroupMember(ctx context.Context, member *chat.GroupMember) error {
	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return chat.Conflict("Already a member of this group")
		}
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

// IsMember reports whether a participant or member row (room, userID) exists.
func (s *GormStore) IsMember(ctx context.Context, room chat.RoomRef, userID string) (bool, error) {
	var count int64
	q := s.db.WithContext(ctx)
	switch room.Kind {
	case chat.RoomConversation:
		q = q.Model(&chat.ConversationParticipant{}).Where("conversation_id = ? AND user_id = ?", room.ID, userID)
	case chat.RoomGroup:
		q = q.Model(&chat.GroupMember{}).Where("group_id = ? AND user_id = ?", room.ID, userID)
	default:
		return false, chat.Validationf("unknown room kind %q", room.Kind)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return count > 0, nil
}

// AppendMessage inserts msg and attaches the sender's display info.
func (s *GormStore) AppendMessage(ctx context.Context, msg *chat.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sender chat.User
		if err := tx.First(&sender, "id = ?", msg.SenderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return chat.NotFound("Sender not found")
			}
			return fmt.Errorf("failed to find sender: %w", err)
		}
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}
		msg.Sender = &chat.Sender{ID: sender.ID, Username: sender.Username, Email: sender.Email}
		return nil
	})
}

// History returns the messages of a room in (created_at, rowid) order.
func (s *GormStore) History(ctx context.Context, room chat.RoomRef, q chat.HistoryQuery) ([]chat.Message, error) {
	column, err := roomColumn(room)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	query := db.Model(&chat.Message{}).Where(column+" = ?", room.ID)

	if q.BeforeID != "" {
		var cursor struct {
			CreatedAt time.Time
			Rowid     int64
		}
		res := db.Model(&chat.Message{}).
			Select("created_at, rowid").
			Where("id = ? AND "+column+" = ?", q.BeforeID, room.ID).
			Limit(1).
			Scan(&cursor)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to resolve cursor: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, chat.Validationf("unknown message cursor %q", q.BeforeID)
		}
		query = query.Where("(created_at < ? OR (created_at = ? AND rowid < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.Rowid)
	}

	messages := []chat.Message{}
	if q.Limit > 0 {
		if err := query.Order("created_at DESC, rowid DESC").Limit(q.Limit).Find(&messages).Error; err != nil {
			return nil, fmt.Errorf("failed to read history: %w", err)
		}
		reverse(messages)
	} else {
		if err := query.Order("created_at ASC, rowid ASC").Find(&messages).Error; err != nil {
			return nil, fmt.Errorf("failed to read history: %w", err)
		}
	}

	if err := attachSenders(ctx, s, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func roomColumn(room chat.RoomRef) (string, error) {
	switch room.Kind {
	case chat.RoomConversation:
		return "conversation_id", nil
	case chat.RoomGroup:
		return "group_id", nil
	default:
		return "", chat.Validationf("unknown room kind %q", room.Kind)
	}
}

func reverse(messages []chat.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

// attachSenders fills Message.Sender with one lookup for the whole page.
func attachSenders(ctx context.Context, users chat.UserRepository, messages []chat.Message) error {
	if len(messages) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(messages))
	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			ids = append(ids, m.SenderID)
		}
	}
	found, err := users.FindUsersByIDs(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[string]*chat.Sender, len(found))
	for _, u := range found {
		byID[u.ID] = &chat.Sender{ID: u.ID, Username: u.Username, Email: u.Email}
	}
	for i := range messages {
		messages[i].Sender = byID[messages[i].SenderID]
	}
	return nil
}
