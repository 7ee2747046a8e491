package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// MessageSentEvent is emitted after a message has been persisted.
type MessageSentEvent struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	GroupID        string    `json:"group_id,omitempty"`
	SenderID       string    `json:"sender_id"`
	MessageType    string    `json:"message_type"`
	Timestamp      time.Time `json:"timestamp"`
}

// ConversationCreatedEvent is emitted when a conversation is created.
type ConversationCreatedEvent struct {
	ConversationID string    `json:"conversation_id"`
	CreatedBy      string    `json:"created_by"`
	Participants   []string  `json:"participants"`
	Timestamp      time.Time `json:"timestamp"`
}

// GroupCreatedEvent is emitted when a group is created.
type GroupCreatedEvent struct {
	GroupID   string    `json:"group_id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	Timestamp time.Time `json:"timestamp"`
}

// GroupMemberJoinedEvent is emitted when a user joins a group.
type GroupMemberJoinedEvent struct {
	GroupID   string    `json:"group_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// PresenceChangedEvent is emitted when a user's online flag flips.
type PresenceChangedEvent struct {
	UserID    string    `json:"user_id"`
	Online    bool      `json:"online"`
	Timestamp time.Time `json:"timestamp"`
}

// Event definitions for the chat domain.
var (
	MessageSentV1 = helper.EventDefinition[MessageSentEvent](
		"chat",
		"MessageSent",
		"v1",
	)

	ConversationCreatedV1 = helper.EventDefinition[ConversationCreatedEvent](
		"chat",
		"ConversationCreated",
		"v1",
	)

	GroupCreatedV1 = helper.EventDefinition[GroupCreatedEvent](
		"chat",
		"GroupCreated",
		"v1",
	)

	GroupMemberJoinedV1 = helper.EventDefinition[GroupMemberJoinedEvent](
		"chat",
		"GroupMemberJoined",
		"v1",
	)

	PresenceChangedV1 = helper.EventDefinition[PresenceChangedEvent](
		"presence",
		"PresenceChanged",
		"v1",
	)
)
