package chat

import (
	"github.com/Noah-Sfez/whatsup/domain/chat"
)

// Service names registered in the service container.
const (
	ServiceCreateConversation = "create-conversation"
	ServiceListConversations  = "list-conversations"
	ServiceGetHistory         = "get-history"
	ServicePostMessage        = "post-message"
	ServiceCreateGroup        = "create-group"
	ServiceListGroups         = "list-groups"
	ServiceJoinGroup          = "join-group"
	ServiceListUsers          = "list-users"
	ServiceFindUserByEmail    = "find-user-by-email"
	ServiceCheckEmails        = "check-emails"
)

// Requests and responses. Domain failures travel in the Error field.

type CreateConversationRequest struct {
	UserID       string   `json:"user_id"`
	Participants []string `json:"participants"`
	Name         *string  `json:"name,omitempty"`
	IsGroup      bool     `json:"is_group"`
}

type ConversationResponse struct {
	Conversation *chat.Conversation `json:"conversation,omitempty"`
	Error        *chat.Fault        `json:"error,omitempty"`
}

type ListConversationsRequest struct {
	UserID string `json:"user_id"`
}

type ConversationsResponse struct {
	Conversations []chat.Conversation `json:"conversations"`
	Error         *chat.Fault         `json:"error,omitempty"`
}

type HistoryRequest struct {
	UserID   string       `json:"user_id"`
	Room     chat.RoomRef `json:"room"`
	Limit    int          `json:"limit"`
	BeforeID string       `json:"before_id,omitempty"`
}

type HistoryResponse struct {
	Messages []chat.Message `json:"messages"`
	Error    *chat.Fault    `json:"error,omitempty"`
}

type PostMessageRequest struct {
	UserID  string       `json:"user_id"`
	Room    chat.RoomRef `json:"room"`
	Content string       `json:"content"`
}

type MessageResponse struct {
	Message *chat.Message `json:"message,omitempty"`
	Error   *chat.Fault   `json:"error,omitempty"`
}

type CreateGroupRequest struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type GroupResponse struct {
	Group *chat.Group `json:"group,omitempty"`
	Error *chat.Fault `json:"error,omitempty"`
}

type ListGroupsRequest struct {
	UserID string `json:"user_id"`
}

type GroupsResponse struct {
	Groups []chat.Group `json:"groups"`
	Error  *chat.Fault  `json:"error,omitempty"`
}

type JoinGroupRequest struct {
	UserID  string `json:"user_id"`
	GroupID string `json:"group_id"`
}

type JoinGroupResponse struct {
	Member *chat.GroupMember `json:"member,omitempty"`
	Error  *chat.Fault       `json:"error,omitempty"`
}

type ListUsersRequest struct{}

type UsersResponse struct {
	Users []chat.User `json:"users"`
	Error *chat.Fault `json:"error,omitempty"`
}

type FindUserRequest struct {
	Email string `json:"email"`
}

type UserResponse struct {
	User  *chat.User  `json:"user,omitempty"`
	Error *chat.Fault `json:"error,omitempty"`
}

type CheckEmailsRequest struct {
	Emails []string `json:"emails"`
}

type CheckEmailsResponse struct {
	Results []EmailCheck `json:"results"`
	Error   *chat.Fault  `json:"error,omitempty"`
}
