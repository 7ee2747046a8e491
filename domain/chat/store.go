package chat

import (
	"context"
)

// HistoryQuery selects a page of room history. A zero Limit returns the whole
// history. BeforeID restricts the page to messages older than that message.
type HistoryQuery struct {
	Limit    int
	BeforeID string
}

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUsersByEmails(ctx context.Context, emails []string) ([]User, error)
	FindUsersByIDs(ctx context.Context, ids []string) ([]User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SetOnline(ctx context.Context, userID string, online bool) error

	// ResetPresence marks every user offline.
	ResetPresence(ctx context.Context) error
}

// RoomRepository persists conversations, groups and their membership.
type RoomRepository interface {
	CreateConversation(ctx context.Context, conv *Conversation, participantIDs []string) error
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	TouchConversation(ctx context.Context, id string) error
	CreateGroup(ctx context.Context, group *Group) error
	FindGroup(ctx context.Context, id string) (*Group, error)
	ListGroups(ctx context.Context, userID string) ([]Group, error)
	AddGroupMember(ctx context.Context, member *GroupMember) error

	// IsMember reads the participant/member relation directly; it is never cached.
	IsMember(ctx context.Context, room RoomRef, userID string) (bool, error)
}

// MessageRepository persists messages.
type MessageRepository interface {
	// AppendMessage stores msg and fills msg.Sender from the users table.
	AppendMessage(ctx context.Context, msg *Message) error

	// History returns messages of a room ordered by created_at, then insertion order.
	History(ctx context.Context, room RoomRef, q HistoryQuery) ([]Message, error)
}

// Store is the full persistence contract of the chat service.
type Store interface {
	UserRepository
	RoomRepository
	MessageRepository
	Ping(ctx context.Context) error
	Close() error
}
