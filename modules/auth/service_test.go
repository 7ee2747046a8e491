package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/Noah-Sfez/whatsup/modules/storage"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) (*AuthService, chat.Store) {
	t.Helper()
	store, err := storage.OpenSQLite(":memory:", false)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewAuthService(store, NewPasswordHasherWithCost(bcrypt.MinCost), NewJWTManager(testJWTConfig()), 0), store
}

func TestAuthService_Register(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, tokens, err := svc.Register(ctx, "alice", "  Alice@Example.COM ", "password123")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("Register() email = %q, want lower-cased", user.Email)
	}
	if user.IsOnline {
		t.Error("Register() should not mark the user online")
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" || tokens.TokenType != "Bearer" {
		t.Errorf("Register() tokens = %+v", tokens)
	}

	identity, err := svc.VerifyToken(ctx, tokens.AccessToken)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if identity.UserID != user.ID || identity.Username != "alice" {
		t.Errorf("VerifyToken() = %+v", identity)
	}

	if _, _, err := svc.Register(ctx, "alice2", "alice@example.com", "password123"); !errors.Is(err, ErrUserExists) {
		t.Errorf("Register(duplicate) error = %v, want %v", err, ErrUserExists)
	}
}

func TestAuthService_RegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name     string
		username string
		email    string
		password string
		want     error
	}{
		{"bad email", "bob", "not-an-email", "password123", ErrInvalidEmail},
		{"short password", "bob", "bob@example.com", "1234567", ErrWeakPassword},
		{"long password", "bob", "bob@example.com", strings.Repeat("a", 73), ErrPasswordTooLong},
		{"empty username", "  ", "bob@example.com", "password123", chat.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Register(context.Background(), tt.username, tt.email, tt.password)
			if !errors.Is(err, tt.want) {
				t.Errorf("Register() error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, chat.ErrValidation) {
				t.Errorf("Register() error kind = %v, want validation", chat.KindOf(err))
			}
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, "alice", "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, tokens, err := svc.Login(ctx, "ALICE@example.com", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if got.ID != user.ID || tokens.AccessToken == "" {
		t.Errorf("Login() = %+v, %+v", got, tokens)
	}

	stored, _ := store.FindUserByID(ctx, user.ID)
	if stored.IsOnline {
		t.Error("Login() must not change the online flag")
	}

	if _, _, err := svc.Login(ctx, "alice@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login(wrong password) error = %v, want %v", err, ErrInvalidCredentials)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login(unknown) error = %v, want %v", err, ErrInvalidCredentials)
	}
}

func TestAuthService_RefreshTokens(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, tokens, err := svc.Register(ctx, "alice", "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, refreshed, err := svc.RefreshTokens(ctx, tokens.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshTokens() error = %v", err)
	}
	if refreshed.AccessToken == "" {
		t.Error("RefreshTokens() returned empty access token")
	}

	if _, _, err := svc.RefreshTokens(ctx, tokens.AccessToken); !errors.Is(err, chat.ErrAuth) {
		t.Errorf("RefreshTokens(access token) error = %v, want auth error", err)
	}

	ghost, _ := svc.jwt.GenerateRefreshToken(Identity{UserID: "ghost"})
	if _, _, err := svc.RefreshTokens(ctx, ghost); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("RefreshTokens(unknown user) error = %v, want %v", err, ErrInvalidCredentials)
	}
}

func TestAuthService_GetUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, _, _ := svc.Register(ctx, "alice", "alice@example.com", "password123")
	got, err := svc.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("GetUser() username = %q, want alice", got.Username)
	}
	if _, err := svc.GetUser(ctx, "missing"); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("GetUser(missing) error = %v, want not found", err)
	}
}

func TestAuthModule_Handlers(t *testing.T) {
	svc, _ := newTestService(t)
	m := NewModuleWithService(svc)
	ctx := context.Background()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if h := m.Health(ctx); !h.Healthy {
		t.Errorf("Health() = %+v, want healthy", h)
	}

	resp, err := m.handleRegister(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "password123"}, nil)
	if err != nil {
		t.Fatalf("handleRegister() error = %v", err)
	}
	if resp.Error != nil || resp.User == nil || resp.Tokens == nil {
		t.Fatalf("handleRegister() = %+v", resp)
	}

	dup, _ := m.handleRegister(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "password123"}, nil)
	if dup.Error == nil || dup.Error.Kind != "conflict" {
		t.Errorf("handleRegister(duplicate) fault = %+v, want conflict", dup.Error)
	}

	valid, _ := m.handleValidateToken(ctx, ValidateTokenRequest{Token: resp.Tokens.AccessToken}, nil)
	if !valid.Valid || valid.Identity.UserID != resp.User.ID {
		t.Errorf("handleValidateToken() = %+v", valid)
	}

	invalid, _ := m.handleValidateToken(ctx, ValidateTokenRequest{Token: "garbage"}, nil)
	if invalid.Valid || invalid.Error == nil || invalid.Error.Kind != "auth" {
		t.Errorf("handleValidateToken(garbage) = %+v", invalid)
	}
	if !errors.Is(invalid.Error.Err(), chat.ErrAuth) {
		t.Errorf("fault does not rebuild into an auth error")
	}

	missing, _ := m.handleGetUser(ctx, GetUserRequest{UserID: "missing"}, nil)
	if missing.Error == nil || missing.Error.Kind != "not_found" {
		t.Errorf("handleGetUser(missing) = %+v", missing)
	}
}
