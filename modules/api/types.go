package api

import (
	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/Noah-Sfez/whatsup/modules/auth"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SessionResponse is returned by register, login and refresh.
type SessionResponse struct {
	Token        string         `json:"token"`
	RefreshToken string         `json:"refresh_token"`
	ExpiresIn    int64          `json:"expires_in"`
	TokenType    string         `json:"token_type"`
	User         *auth.UserView `json:"user"`
}

// CheckEmailsRequest is the body of POST /users/check.
type CheckEmailsRequest struct {
	Emails []string `json:"emails"`
}

// CreateConversationRequest is the body of POST /conversations.
type CreateConversationRequest struct {
	Participants []string `json:"participants"`
	Name         *string  `json:"name"`
	IsGroup      bool     `json:"is_group"`
}

// CreateGroupRequest is the body of POST /groups.
type CreateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PostMessageRequest is the body of POST /conversations/:id/messages and
// POST /groups/:id/messages.
type PostMessageRequest struct {
	Content string `json:"content"`
}

// HistoryResponse is a page of room history, oldest first. NextBefore is set
// when older messages exist.
type HistoryResponse struct {
	Messages   []chat.Message `json:"messages"`
	NextBefore string         `json:"next_before,omitempty"`
}

// UploadResponse is returned by POST /upload/image.
type UploadResponse struct {
	Success      bool   `json:"success"`
	ImageURL     string `json:"imageUrl"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
}

// HealthResponse aggregates module health.
type HealthResponse struct {
	Status  string                  `json:"status"`
	Modules map[string]ModuleHealth `json:"modules"`
}

// ModuleHealth is the health of one module.
type ModuleHealth struct {
	Healthy bool           `json:"healthy"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}
