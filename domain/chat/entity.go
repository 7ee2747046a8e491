package chat

import (
	"time"
)

// MessageType is the content kind of a message.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
)

// Group member roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// User is a registered account. IsOnline is only written by the presence tracker.
type User struct {
	ID           string    `gorm:"primaryKey;type:text" json:"id"`
	Username     string    `gorm:"not null;type:text;index" json:"username"`
	Email        string    `gorm:"uniqueIndex;not null;type:text" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;not null;type:text" json:"-"`
	IsOnline     bool      `gorm:"not null;default:false" json:"is_online"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// Sender is the display information attached to a message at write time.
type Sender struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Conversation is a direct or ad-hoc group chat between participants.
type Conversation struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	Name      *string   `gorm:"type:text" json:"name"`
	IsGroup   bool      `gorm:"not null;default:false" json:"is_group"`
	CreatedBy string    `gorm:"not null;type:text" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for Conversation.
func (Conversation) TableName() string {
	return "conversations"
}

// ConversationParticipant links a user to a conversation. The composite key keeps
// each (conversation, user) pair unique.
type ConversationParticipant struct {
	ConversationID string    `gorm:"primaryKey;type:text" json:"conversation_id"`
	UserID         string    `gorm:"primaryKey;type:text;index" json:"user_id"`
	JoinedAt       time.Time `gorm:"not null" json:"joined_at"`
}

// TableName returns the table name for ConversationParticipant.
func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}

// Group is a named, joinable community.
type Group struct {
	ID          string    `gorm:"primaryKey;type:text" json:"id"`
	Name        string    `gorm:"not null;type:text" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedBy   string    `gorm:"not null;type:text" json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the table name for Group.
func (Group) TableName() string {
	return "groups"
}

// GroupMember links a user to a group with a role.
type GroupMember struct {
	GroupID  string    `gorm:"primaryKey;type:text" json:"group_id"`
	UserID   string    `gorm:"primaryKey;type:text;index" json:"user_id"`
	JoinedAt time.Time `gorm:"not null" json:"joined_at"`
	Role     string    `gorm:"not null;type:text;default:member" json:"role"`
}

// TableName returns the table name for GroupMember.
func (GroupMember) TableName() string {
	return "group_members"
}

// Message is a stored chat message. Exactly one of ConversationID and GroupID is set.
type Message struct {
	ID             string      `gorm:"primaryKey;type:text" json:"id"`
	ConversationID *string     `gorm:"type:text;index:idx_messages_conversation,priority:1" json:"conversation_id"`
	GroupID        *string     `gorm:"type:text;index:idx_messages_group,priority:1" json:"group_id"`
	SenderID       string      `gorm:"column:sender_id;not null;type:text" json:"sender_id"`
	MessageType    MessageType `gorm:"not null;type:text;default:text" json:"message_type"`
	Content        string      `gorm:"type:text" json:"content"`
	ImageURL       *string     `gorm:"type:text" json:"image_url,omitempty"`
	ImageName      *string     `gorm:"type:text" json:"image_name,omitempty"`
	ImageSize      *int64      `json:"image_size,omitempty"`
	CreatedAt      time.Time   `gorm:"index:idx_messages_conversation,priority:2;index:idx_messages_group,priority:2" json:"created_at"`
	Sender         *Sender     `gorm:"-" json:"sender,omitempty"`
}

// TableName returns the table name for Message.
func (Message) TableName() string {
	return "messages"
}

// Room returns the room the message belongs to.
func (m *Message) Room() RoomRef {
	if m.ConversationID != nil {
		return RoomRef{Kind: RoomConversation, ID: *m.ConversationID}
	}
	if m.GroupID != nil {
		return RoomRef{Kind: RoomGroup, ID: *m.GroupID}
	}
	return RoomRef{}
}

// Models lists every persisted entity, in migration order.
func Models() []any {
	return []any{
		&User{},
		&Conversation{},
		&ConversationParticipant{},
		&Group{},
		&GroupMember{},
		&Message{},
	}
}
