package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// StoreProvider hands out the opened store once the storage module has started.
type StoreProvider interface {
	Store() chat.Store
}

// AuthModule provides the credential verifier and account services.
type AuthModule struct {
	provider StoreProvider
	config   JWTConfig
	timeout  time.Duration
	service  *AuthService
}

// Compile-time interface checks.
var _ mono.Module = (*AuthModule)(nil)
var _ mono.ServiceProviderModule = (*AuthModule)(nil)
var _ mono.HealthCheckableModule = (*AuthModule)(nil)

// NewModule creates a new AuthModule. The store is resolved from provider on Start.
func NewModule(provider StoreProvider, config JWTConfig, storeTimeout time.Duration) *AuthModule {
	return &AuthModule{
		provider: provider,
		config:   config,
		timeout:  storeTimeout,
	}
}

// NewModuleWithService creates an AuthModule around an existing service.
// This constructor enables dependency injection for testing.
func NewModuleWithService(service *AuthService) *AuthModule {
	return &AuthModule{service: service}
}

// Name returns the module name.
func (m *AuthModule) Name() string {
	return "auth"
}

// Service returns the auth service. It is nil before Start.
func (m *AuthModule) Service() *AuthService {
	return m.service
}

// Start initializes the auth module.
func (m *AuthModule) Start(_ context.Context) error {
	if m.service != nil {
		log.Println("[auth] Module started with injected service")
		return nil
	}
	if m.provider == nil || m.provider.Store() == nil {
		return fmt.Errorf("auth: store not available")
	}

	m.service = NewAuthService(m.provider.Store(), NewPasswordHasher(), NewJWTManager(m.config), m.timeout)

	log.Printf("[auth] Module started (issuer: %s)", m.config.Issuer)
	return nil
}

// Stop shuts down the module.
func (m *AuthModule) Stop(_ context.Context) error {
	log.Println("[auth] Module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *AuthModule) Health(_ context.Context) mono.HealthStatus {
	if m.service == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "service not initialized",
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"issuer": m.config.Issuer,
		},
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *AuthModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceRegister,
		json.Unmarshal,
		json.Marshal,
		m.handleRegister,
	); err != nil {
		return fmt.Errorf("failed to register register service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceLogin,
		json.Unmarshal,
		json.Marshal,
		m.handleLogin,
	); err != nil {
		return fmt.Errorf("failed to register login service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceRefreshToken,
		json.Unmarshal,
		json.Marshal,
		m.handleRefresh,
	); err != nil {
		return fmt.Errorf("failed to register refresh-token service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceValidateToken,
		json.Unmarshal,
		json.Marshal,
		m.handleValidateToken,
	); err != nil {
		return fmt.Errorf("failed to register validate-token service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceGetUser,
		json.Unmarshal,
		json.Marshal,
		m.handleGetUser,
	); err != nil {
		return fmt.Errorf("failed to register get-user service: %w", err)
	}

	log.Printf("[auth] Registered services: register, login, refresh-token, validate-token, get-user")
	return nil
}

// Domain failures travel in the response body so callers can map them; the
// returned error is reserved for transport problems.

func (m *AuthModule) handleRegister(ctx context.Context, req RegisterRequest, _ *mono.Msg) (SessionResponse, error) {
	return session(m.service.Register(ctx, req.Username, req.Email, req.Password))
}

func (m *AuthModule) handleLogin(ctx context.Context, req LoginRequest, _ *mono.Msg) (SessionResponse, error) {
	return session(m.service.Login(ctx, req.Email, req.Password))
}

func (m *AuthModule) handleRefresh(ctx context.Context, req RefreshRequest, _ *mono.Msg) (SessionResponse, error) {
	return session(m.service.RefreshTokens(ctx, req.RefreshToken))
}

func (m *AuthModule) handleValidateToken(ctx context.Context, req ValidateTokenRequest, _ *mono.Msg) (ValidateTokenResponse, error) {
	identity, err := m.service.VerifyToken(ctx, req.Token)
	if err != nil {
		return ValidateTokenResponse{Valid: false, Error: chat.FaultFrom(err)}, nil
	}
	return ValidateTokenResponse{Valid: true, Identity: identity}, nil
}

func (m *AuthModule) handleGetUser(ctx context.Context, req GetUserRequest, _ *mono.Msg) (GetUserResponse, error) {
	user, err := m.service.GetUser(ctx, req.UserID)
	if err != nil {
		return GetUserResponse{Error: chat.FaultFrom(err)}, nil
	}
	return GetUserResponse{User: NewUserView(user)}, nil
}

func session(user *chat.User, tokens *TokenPair, err error) (SessionResponse, error) {
	if err != nil {
		return SessionResponse{Error: chat.FaultFrom(err)}, nil
	}
	return SessionResponse{Tokens: tokens, User: NewUserView(user)}, nil
}
