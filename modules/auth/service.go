package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/google/uuid"
)

var (
	// ErrInvalidCredentials is returned when login credentials are invalid.
	ErrInvalidCredentials = chat.Unauthenticated("Invalid email or password")
	// ErrInvalidEmail is returned when email format is invalid.
	ErrInvalidEmail = chat.Validationf("invalid email format")
	// ErrWeakPassword is returned when password is too weak.
	ErrWeakPassword = chat.Validationf("password must be at least 8 characters")
	// ErrPasswordTooLong is returned when password exceeds bcrypt's 72-byte limit.
	ErrPasswordTooLong = chat.Validationf("password must be at most 72 characters")
	// ErrUserExists is returned when the email is already registered.
	ErrUserExists = chat.Conflict("User already exists")
)

const defaultStoreTimeout = 5 * time.Second

// AuthService handles authentication business logic.
type AuthService struct {
	users   chat.UserRepository
	hasher  *PasswordHasher
	jwt     *JWTManager
	timeout time.Duration
}

// NewAuthService creates a new AuthService. Every store call is bounded by timeout.
func NewAuthService(users chat.UserRepository, hasher *PasswordHasher, jwt *JWTManager, timeout time.Duration) *AuthService {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &AuthService{
		users:   users,
		hasher:  hasher,
		jwt:     jwt,
		timeout: timeout,
	}
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new user account and returns a token pair for it.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*chat.User, *TokenPair, error) {
	username = strings.TrimSpace(username)
	if err := chat.ValidateUsername(username); err != nil {
		return nil, nil, err
	}

	email = NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, nil, ErrInvalidEmail
	}

	// bcrypt has a 72-byte limit.
	if len(password) < 8 {
		return nil, nil, ErrWeakPassword
	}
	if len(password) > 72 {
		return nil, nil, ErrPasswordTooLong
	}

	if _, err := s.findByEmail(ctx, email); err == nil {
		return nil, nil, ErrUserExists
	} else if !errors.Is(err, chat.ErrNotFound) {
		return nil, nil, err
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &chat.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.users.CreateUser(storeCtx, user); err != nil {
		if errors.Is(err, chat.ErrConflict) {
			return nil, nil, ErrUserExists
		}
		return nil, nil, chat.StoreFailure("create user", err)
	}

	tokens, err := s.generateTokenPair(user)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

// Login authenticates a user and returns tokens. It does not touch presence.
func (s *AuthService) Login(ctx context.Context, email, password string) (*chat.User, *TokenPair, error) {
	user, err := s.findByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}

	tokens, err := s.generateTokenPair(user)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

// RefreshTokens generates new access and refresh tokens.
func (s *AuthService) RefreshTokens(ctx context.Context, refreshToken string) (*chat.User, *TokenPair, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, nil, err
	}

	// The user must still exist.
	user, err := s.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	tokens, err := s.generateTokenPair(user)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

// VerifyToken validates an access token and returns the caller identity. It
// performs no store access and mutates nothing.
func (s *AuthService) VerifyToken(_ context.Context, token string) (*Identity, error) {
	claims, err := s.jwt.ValidateAccessToken(token)
	if err != nil {
		return nil, err
	}
	return claims.Identity(), nil
}

// GetUser retrieves a user by ID.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*chat.User, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	user, err := s.users.FindUserByID(storeCtx, userID)
	if err != nil {
		return nil, chat.StoreFailure("find user", err)
	}
	return user, nil
}

func (s *AuthService) findByEmail(ctx context.Context, email string) (*chat.User, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	user, err := s.users.FindUserByEmail(storeCtx, email)
	if err != nil {
		return nil, chat.StoreFailure("find user", err)
	}
	return user, nil
}

// generateTokenPair generates both access and refresh tokens.
func (s *AuthService) generateTokenPair(user *chat.User) (*TokenPair, error) {
	id := Identity{UserID: user.ID, Username: user.Username, Email: user.Email}

	accessToken, err := s.jwt.GenerateAccessToken(id)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.jwt.GenerateRefreshToken(id)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    s.jwt.AccessTokenDuration(),
		TokenType:    "Bearer",
	}, nil
}
