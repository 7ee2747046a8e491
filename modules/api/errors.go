package api

import (
	"errors"
	"log"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/gofiber/fiber/v2"
)

// statusOf maps a domain error kind to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, chat.ErrAuth):
		return fiber.StatusUnauthorized
	case errors.Is(err, chat.ErrAuthorization):
		return fiber.StatusForbidden
	case errors.Is(err, chat.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, chat.ErrConflict):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as an ErrorResponse. Store failures and errors
// without a kind are logged and reported without their cause.
func respondError(c *fiber.Ctx, err error) error {
	fault := chat.FaultFrom(err)
	status := statusOf(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("[api] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(ErrorResponse{
		Error: fault.Message,
		Code:  fault.Kind,
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return respondError(c, chat.Validationf("%s", message))
}

// errorHandler handles errors returned by handlers and middleware.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := "server_error"
		switch {
		case fe.Code == fiber.StatusNotFound:
			code = chat.KindName(chat.ErrNotFound)
		case fe.Code < fiber.StatusInternalServerError:
			code = chat.KindName(chat.ErrValidation)
		}
		return c.Status(fe.Code).JSON(ErrorResponse{
			Error: fe.Message,
			Code:  code,
		})
	}
	return respondError(c, err)
}
