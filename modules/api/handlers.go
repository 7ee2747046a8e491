package api

import (
	"context"
	"io"
	"strconv"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/Noah-Sfez/whatsup/modules/auth"
	chatmod "github.com/Noah-Sfez/whatsup/modules/chat"
	"github.com/Noah-Sfez/whatsup/modules/uploads"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Uploader stores and serves chat images.
type Uploader interface {
	Upload(ctx context.Context, userID, originalName string, data []byte) (*uploads.Image, error)
	Get(ctx context.Context, name string) ([]byte, string, error)
	MaxBytes() int64
}

// Handlers contains the REST handlers.
type Handlers struct {
	auth    auth.AuthPort
	chat    chatmod.ChatPort
	uploads Uploader
}

// NewHandlers creates a new Handlers instance. uploader may be nil, in which
// case image endpoints answer 503.
func NewHandlers(authPort auth.AuthPort, chatPort chatmod.ChatPort, uploader Uploader) *Handlers {
	return &Handlers{
		auth:    authPort,
		chat:    chatPort,
		uploads: uploader,
	}
}

func newSessionResponse(s *auth.SessionResponse) SessionResponse {
	resp := SessionResponse{User: s.User}
	if s.Tokens != nil {
		resp.Token = s.Tokens.AccessToken
		resp.RefreshToken = s.Tokens.RefreshToken
		resp.ExpiresIn = s.Tokens.ExpiresIn
		resp.TokenType = s.Tokens.TokenType
	}
	return resp
}

// Register handles user registration.
func (h *Handlers) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	session, err := h.auth.Register(c.UserContext(), auth.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(newSessionResponse(session))
}

// Login handles user login.
func (h *Handlers) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "Email and password are required")
	}

	session, err := h.auth.Login(c.UserContext(), auth.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newSessionResponse(session))
}

// Refresh handles token refresh.
func (h *Handlers) Refresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.RefreshToken == "" {
		return badRequest(c, "Refresh token is required")
	}

	session, err := h.auth.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(newSessionResponse(session))
}

// ListUsers handles GET /users.
func (h *Handlers) ListUsers(c *fiber.Ctx) error {
	users, err := h.chat.ListUsers(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(users)
}

// SearchUser handles GET /users/search?email=.
func (h *Handlers) SearchUser(c *fiber.Ctx) error {
	email := c.Query("email")
	if email == "" {
		return badRequest(c, "email query parameter is required")
	}
	user, err := h.chat.FindUserByEmail(c.UserContext(), email)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// CheckEmails handles POST /users/check.
func (h *Handlers) CheckEmails(c *fiber.Ctx) error {
	var req CheckEmailsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	results, err := h.chat.CheckEmails(c.UserContext(), req.Emails)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(results)
}

// CreateConversation handles POST /conversations.
func (h *Handlers) CreateConversation(c *fiber.Ctx) error {
	caller, ok := identityFrom(c)
	if !ok {
		return respondError(c, chat.Unauthenticated("User not authenticated"))
	}
	var req CreateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	conv, err := h.chat.CreateConversation(c.UserContext(), chatmod.CreateConversationRequest{
		UserID:       caller.UserID,
		Participants: req.Participants,
		Name:         req.Name,
		IsGroup:      req.IsGroup,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

// ListConversations handles GET /conversations.
func (h *Handlers) ListConversations(c *fiber.Ctx) error {
	caller, ok := identityFrom(c)
	if !ok {
		return respondError(c, chat.Unauthenticated("User not authenticated"))
	}
	convs, err := h.chat.ListConversations(c.UserContext(), caller.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(convs)
}

// CreateGroup handles POST /groups.
func (h *Handlers) CreateGroup(c *fiber.Ctx) error {
	caller, ok := identityFrom(c)
	if !ok {
		return respondError(c, chat.Unauthenticated("User not authenticated"))
	}
	var req CreateGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	group, err := h.chat.CreateGroup(c.UserContext(), chatmod.CreateGroupRequest{
		UserID:      caller.UserID,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(group)
}

// ListGroups handles GET /groups.
func (h *Handlers) ListGroups(c *fiber.Ctx) error {
	caller, ok := identityFrom(c)
	if !ok {
		return respondError(c, chat.Unauthenticated("User not authenticated"))
	}
	groups, err := h.chat.ListGroups(c.UserContext(), caller.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(groups)
}

// JoinGroup handles POST /groups/:id/join.
func (h *Handlers) JoinGroup(c *fiber.Ctx) error {
	caller, ok := identityFrom(c)
	if !ok {
		return respondError(c, chat.Unauthenticated("User not authenticated"))
	}
	member, err := h.chat.JoinGroup(c.UserContext(), c.Params("id"), caller.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(member)
}

// ConversationHistory handles GET /conversations/:id/messages.
func (h *Handlers) ConversationHistory(c *fiber.Ctx) error {
	return h.history(c, chat.ConversationRoom(c.Params("id")))
}

// GroupHistory handles GET /groups/:id/messages.
func (h *Handlers) GroupHistory(c *fiber.Ctx) error {
	return h.history(c, chat.GroupRoom(c.Params("id")))
}

// PostConversationMessage handles POST /conversations/:id/messages.
func (h *Handlers) PostConversationMessage(c *fiber.Ctx) error {
	return h.postMessage(c, chat.ConversationRoom(c.Params("id")))
}

// PostGroupMessage handles POST /groups/:id/messages.
func (h *Handlers) PostGroupMessage(c *fiber.Ctx) error {
	return h.postMessage(c, chat.GroupRoom(c.Params("id")))
}

// parseLimit reads the limit query parameter, clamped to maxHistoryLimit.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, chat.Validationf("limit must be a positive integer")
	}
	return min(limit, maxHistoryLimit), nil
}

func (h *Handlers) history(c *fiber.Ctx, room chat.RoomRef) error {
	caller, ok := identityFrom(c)
	if !ok {
		return respondError(c, chat.Unauthenticated("User not authenticated"))
	}
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		return respondError(c, err)
	}

	// One extra message tells whether an older page exists.
	messages, err := h.chat.History(c.UserContext(), chatmod.HistoryRequest{
		UserID:   caller.UserID,
		Room:     room,
		Limit:    limit + 1,
		BeforeID: c.Query("before"),
	})
	if err != nil {
		return respondError(c, err)
	}

	resp := HistoryResponse{Messages: messages}
	if len(messages) > limit {
		resp.Messages = messages[len(messages)-limit:]
		resp.NextBefore = resp.Messages[0].ID
	}
	if resp.Messages == nil {
		resp.Messages = []chat.Message{}
	}
	return c.JSON(resp)
}

func (h *Handlers) postMessage(c *fiber.Ctx, room chat.RoomRef) error {
	caller, ok := identityFrom(c)
	if !ok {
		return respondError(c, chat.Unauthenticated("User not authenticated"))
	}
	var req PostMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	msg, err := h.chat.PostMessage(c.UserContext(), chatmod.PostMessageRequest{
		UserID:  caller.UserID,
		Room:    room,
		Content: req.Content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// UploadImage handles POST /upload/image.
func (h *Handlers) UploadImage(c *fiber.Ctx) error {
	if h.uploads == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Image uploads are not configured")
	}
	caller, ok := identityFrom(c)
	if !ok {
		return respondError(c, chat.Unauthenticated("User not authenticated"))
	}

	header, err := c.FormFile("image")
	if err != nil {
		return badRequest(c, "No image file provided")
	}
	if header.Size > h.uploads.MaxBytes() {
		return respondError(c, chat.Validationf("image exceeds %d bytes", h.uploads.MaxBytes()))
	}

	file, err := header.Open()
	if err != nil {
		return badRequest(c, "Failed to read image")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.uploads.MaxBytes()+1))
	if err != nil {
		return badRequest(c, "Failed to read image")
	}

	img, err := h.uploads.Upload(c.UserContext(), caller.UserID, header.Filename, data)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(UploadResponse{
		Success:      true,
		ImageURL:     img.URL,
		OriginalName: img.OriginalName,
		Size:         img.Size,
	})
}

// GetImage handles GET /uploads/images/:name.
func (h *Handlers) GetImage(c *fiber.Ctx) error {
	if h.uploads == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Image uploads are not configured")
	}
	data, contentType, err := h.uploads.Get(c.UserContext(), c.Params("name"))
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
	return c.Send(data)
}
