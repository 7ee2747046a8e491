package api

import (
	"context"
	"strings"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/Noah-Sfez/whatsup/modules/auth"
	"github.com/gofiber/fiber/v2"
)

const (
	// UserContextKey is the key used to store the caller identity in the Fiber context.
	UserContextKey = "user"
)

// TokenVerifier validates access tokens.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*auth.Identity, error)
}

// AuthMiddleware creates a middleware that validates JWT bearer tokens.
func AuthMiddleware(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return respondError(c, chat.Unauthenticated("Authorization header is required"))
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return respondError(c, chat.Unauthenticated("Invalid authorization header format. Use: Bearer <token>"))
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			return respondError(c, chat.Unauthenticated("Token is required"))
		}

		identity, err := verifier.VerifyToken(c.UserContext(), token)
		if err != nil {
			if chat.KindOf(err) == chat.ErrAuth {
				return respondError(c, err)
			}
			return respondError(c, chat.Unauthenticated("Invalid or expired token"))
		}

		c.Locals(UserContextKey, identity)
		return c.Next()
	}
}

// identityFrom returns the caller stored by AuthMiddleware.
func identityFrom(c *fiber.Ctx) (*auth.Identity, bool) {
	identity, ok := c.Locals(UserContextKey).(*auth.Identity)
	return identity, ok && identity != nil
}
