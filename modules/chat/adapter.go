package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// ChatPort defines the chat operations available to driving adapters.
type ChatPort interface {
	CreateConversation(ctx context.Context, req CreateConversationRequest) (*chat.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error)
	History(ctx context.Context, req HistoryRequest) ([]chat.Message, error)
	PostMessage(ctx context.Context, req PostMessageRequest) (*chat.Message, error)
	CreateGroup(ctx context.Context, req CreateGroupRequest) (*chat.Group, error)
	ListGroups(ctx context.Context, userID string) ([]chat.Group, error)
	JoinGroup(ctx context.Context, groupID, userID string) (*chat.GroupMember, error)
	ListUsers(ctx context.Context) ([]chat.User, error)
	FindUserByEmail(ctx context.Context, email string) (*chat.User, error)
	CheckEmails(ctx context.Context, emails []string) ([]EmailCheck, error)
}

// ChatAdapter implements ChatPort using the service container.
type ChatAdapter struct {
	container mono.ServiceContainer
}

var _ ChatPort = (*ChatAdapter)(nil)

// NewChatAdapter creates a new ChatAdapter.
func NewChatAdapter(container mono.ServiceContainer) *ChatAdapter {
	return &ChatAdapter{container: container}
}

func call[Req, Resp any](ctx context.Context, container mono.ServiceContainer, service string, req *Req, resp *Resp) error {
	if err := helper.CallRequestReplyService(
		ctx,
		container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	); err != nil {
		return fmt.Errorf("%s request failed: %w", service, err)
	}
	return nil
}

// CreateConversation creates a conversation.
func (a *ChatAdapter) CreateConversation(ctx context.Context, req CreateConversationRequest) (*chat.Conversation, error) {
	var resp ConversationResponse
	if err := call(ctx, a.container, ServiceCreateConversation, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.Conversation, nil
}

// ListConversations lists the caller's conversations.
func (a *ChatAdapter) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	req := ListConversationsRequest{UserID: userID}
	var resp ConversationsResponse
	if err := call(ctx, a.container, ServiceListConversations, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.Conversations, nil
}

// History reads a page of room history.
func (a *ChatAdapter) History(ctx context.Context, req HistoryRequest) ([]chat.Message, error) {
	var resp HistoryResponse
	if err := call(ctx, a.container, ServiceGetHistory, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.Messages, nil
}

// PostMessage stores a text message without live delivery.
func (a *ChatAdapter) PostMessage(ctx context.Context, req PostMessageRequest) (*chat.Message, error) {
	var resp MessageResponse
	if err := call(ctx, a.container, ServicePostMessage, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.Message, nil
}

// CreateGroup creates a group.
func (a *ChatAdapter) CreateGroup(ctx context.Context, req CreateGroupRequest) (*chat.Group, error) {
	var resp GroupResponse
	if err := call(ctx, a.container, ServiceCreateGroup, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.Group, nil
}

// ListGroups lists the caller's groups.
func (a *ChatAdapter) ListGroups(ctx context.Context, userID string) ([]chat.Group, error) {
	req := ListGroupsRequest{UserID: userID}
	var resp GroupsResponse
	if err := call(ctx, a.container, ServiceListGroups, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.Groups, nil
}

// JoinGroup joins a group as a member.
func (a *ChatAdapter) JoinGroup(ctx context.Context, groupID, userID string) (*chat.GroupMember, error) {
	req := JoinGroupRequest{GroupID: groupID, UserID: userID}
	var resp JoinGroupResponse
	if err := call(ctx, a.container, ServiceJoinGroup, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.Member, nil
}

// ListUsers lists every user.
func (a *ChatAdapter) ListUsers(ctx context.Context) ([]chat.User, error) {
	req := ListUsersRequest{}
	var resp UsersResponse
	if err := call(ctx, a.container, ServiceListUsers, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.Users, nil
}

// FindUserByEmail looks a user up by email.
func (a *ChatAdapter) FindUserByEmail(ctx context.Context, email string) (*chat.User, error) {
	req := FindUserRequest{Email: email}
	var resp UserResponse
	if err := call(ctx, a.container, ServiceFindUserByEmail, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.User, nil
}

// CheckEmails reports which emails are registered.
func (a *ChatAdapter) CheckEmails(ctx context.Context, emails []string) ([]EmailCheck, error) {
	req := CheckEmailsRequest{Emails: emails}
	var resp CheckEmailsResponse
	if err := call(ctx, a.container, ServiceCheckEmails, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.Results, nil
}
