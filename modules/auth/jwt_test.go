package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/golang-jwt/jwt/v5"
)

func testJWTConfig() JWTConfig {
	return JWTConfig{
		SecretKey:            "test-secret-key",
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: 7 * 24 * time.Hour,
		Issuer:               "test-issuer",
	}
}

var alice = Identity{UserID: "user-123", Username: "alice", Email: "alice@example.com"}

func TestJWTManager_GenerateAndValidateAccessToken(t *testing.T) {
	config := testJWTConfig()
	manager := NewJWTManager(config)

	token, err := manager.GenerateAccessToken(alice)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	if token == "" {
		t.Error("GenerateAccessToken() returned empty token")
	}

	claims, err := manager.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}

	if claims.UserID != alice.UserID {
		t.Errorf("claims.UserID = %v, want %v", claims.UserID, alice.UserID)
	}
	if claims.Username != alice.Username {
		t.Errorf("claims.Username = %v, want %v", claims.Username, alice.Username)
	}
	if claims.Email != alice.Email {
		t.Errorf("claims.Email = %v, want %v", claims.Email, alice.Email)
	}
	if claims.TokenType != TokenTypeAccess {
		t.Errorf("claims.TokenType = %v, want %v", claims.TokenType, TokenTypeAccess)
	}
	if claims.Issuer != config.Issuer {
		t.Errorf("claims.Issuer = %v, want %v", claims.Issuer, config.Issuer)
	}
	if got := *claims.Identity(); got != alice {
		t.Errorf("claims.Identity() = %+v, want %+v", got, alice)
	}
}

func TestJWTManager_TokenTypesAreNotInterchangeable(t *testing.T) {
	manager := NewJWTManager(testJWTConfig())

	refresh, err := manager.GenerateRefreshToken(alice)
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}
	if _, err := manager.ValidateAccessToken(refresh); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateAccessToken(refresh) error = %v, want %v", err, ErrInvalidToken)
	}
	if _, err := manager.ValidateRefreshToken(refresh); err != nil {
		t.Errorf("ValidateRefreshToken() error = %v", err)
	}

	access, _ := manager.GenerateAccessToken(alice)
	if _, err := manager.ValidateRefreshToken(access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateRefreshToken(access) error = %v, want %v", err, ErrInvalidToken)
	}
}

func TestJWTManager_ExpiredToken(t *testing.T) {
	config := testJWTConfig()
	config.AccessTokenDuration = -time.Minute
	manager := NewJWTManager(config)

	token, err := manager.GenerateAccessToken(alice)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	_, err = manager.ValidateAccessToken(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("ValidateAccessToken() error = %v, want %v", err, ErrExpiredToken)
	}
	if !errors.Is(err, chat.ErrAuth) {
		t.Errorf("ValidateAccessToken() error kind = %v, want auth", chat.KindOf(err))
	}
}

func TestJWTManager_InvalidTokens(t *testing.T) {
	manager := NewJWTManager(testJWTConfig())
	other := NewJWTManager(JWTConfig{
		SecretKey:           "other-secret",
		AccessTokenDuration: time.Minute,
		Issuer:              "test-issuer",
	})
	forged, _ := other.GenerateAccessToken(alice)

	foreignIssuer := NewJWTManager(JWTConfig{
		SecretKey:           "test-secret-key",
		AccessTokenDuration: time.Minute,
		Issuer:              "someone-else",
	})
	wrongIssuer, _ := foreignIssuer.GenerateAccessToken(alice)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, JWTClaims{UserID: "x", TokenType: TokenTypeAccess})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", forged},
		{"wrong issuer", wrongIssuer},
		{"alg none", unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := manager.ValidateAccessToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ValidateAccessToken() error = %v, want %v", err, ErrInvalidToken)
			}
		})
	}
}

func TestJWTManager_AccessTokenDuration(t *testing.T) {
	manager := NewJWTManager(testJWTConfig())
	if got := manager.AccessTokenDuration(); got != 900 {
		t.Errorf("AccessTokenDuration() = %d, want 900", got)
	}
}
