package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// AuthPort defines the interface for authentication operations.
// This is the port that other modules use to access auth functionality.
type AuthPort interface {
	Register(ctx context.Context, req RegisterRequest) (*SessionResponse, error)
	Login(ctx context.Context, req LoginRequest) (*SessionResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*SessionResponse, error)
	VerifyToken(ctx context.Context, token string) (*Identity, error)
	GetUser(ctx context.Context, userID string) (*UserView, error)
}

// AuthAdapter implements AuthPort using the service container.
type AuthAdapter struct {
	container mono.ServiceContainer
}

var _ AuthPort = (*AuthAdapter)(nil)

// NewAuthAdapter creates a new AuthAdapter.
func NewAuthAdapter(container mono.ServiceContainer) *AuthAdapter {
	return &AuthAdapter{
		container: container,
	}
}

// Register creates an account.
func (a *AuthAdapter) Register(ctx context.Context, req RegisterRequest) (*SessionResponse, error) {
	return callSession(ctx, a.container, ServiceRegister, &req)
}

// Login exchanges credentials for tokens.
func (a *AuthAdapter) Login(ctx context.Context, req LoginRequest) (*SessionResponse, error) {
	return callSession(ctx, a.container, ServiceLogin, &req)
}

// Refresh exchanges a refresh token for a new pair.
func (a *AuthAdapter) Refresh(ctx context.Context, refreshToken string) (*SessionResponse, error) {
	return callSession(ctx, a.container, ServiceRefreshToken, &RefreshRequest{RefreshToken: refreshToken})
}

func callSession[Req any](ctx context.Context, container mono.ServiceContainer, service string, req *Req) (*SessionResponse, error) {
	var resp SessionResponse
	if err := helper.CallRequestReplyService(
		ctx,
		container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("%s request failed: %w", service, err)
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return &resp, nil
}

// VerifyToken validates an access token and returns the caller identity.
func (a *AuthAdapter) VerifyToken(ctx context.Context, token string) (*Identity, error) {
	req := ValidateTokenRequest{Token: token}
	var resp ValidateTokenResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceValidateToken,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("validate-token request failed: %w", err)
	}

	if !resp.Valid || resp.Identity == nil {
		if resp.Error != nil {
			return nil, resp.Error.Err()
		}
		return nil, ErrInvalidToken
	}

	return resp.Identity, nil
}

// GetUser retrieves a user by ID.
func (a *AuthAdapter) GetUser(ctx context.Context, userID string) (*UserView, error) {
	req := GetUserRequest{UserID: userID}
	var resp GetUserResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetUser,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("get-user request failed: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}

	return resp.User, nil
}
