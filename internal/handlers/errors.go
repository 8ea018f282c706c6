package handlers

import (
	"errors"
	"net/http"

	"chatwave-backend/internal/apperr"
	"chatwave-backend/internal/chat"
	"chatwave-backend/internal/logger"
	"chatwave-backend/internal/services"

	"github.com/gofiber/fiber/v2"
)

// toAppError maps service and client errors onto HTTP statuses.
func toAppError(err error) *apperr.AppError {
	var ae *apperr.AppError
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, services.ErrValidation):
		return apperr.BadRequest(err.Error())
	case errors.Is(err, services.ErrNotFound),
		errors.Is(err, chat.ErrUnknownChat),
		errors.Is(err, chat.ErrUnknownMessage),
		errors.Is(err, chat.ErrUnknownUser):
		return apperr.NotFound("not found")
	case errors.Is(err, services.ErrForbidden):
		return apperr.Forbidden("not allowed")
	case errors.Is(err, services.ErrUserExists):
		return apperr.Conflict("user already exists")
	case errors.Is(err, services.ErrInvalidCredentials):
		return apperr.Unauthorized("invalid credentials")
	case errors.Is(err, services.ErrInvalidToken):
		return apperr.Unauthorized("invalid token")
	case errors.Is(err, services.ErrUploadFailed):
		return apperr.New(http.StatusBadGateway, "upload failed")
	case errors.Is(err, chat.ErrNoActiveChat):
		return apperr.BadRequest("no chat selected")
	default:
		return apperr.Internal("internal error")
	}
}

func writeError(c *fiber.Ctx, err error) error {
	e := toAppError(err)
	if e.Code >= http.StatusInternalServerError {
		logger.LogError(err, c.Method()+" "+c.Path())
	}
	return c.Status(e.Code).JSON(fiber.Map{"error": e.Message})
}

// ErrorHandler renders errors returned from handlers and middleware.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return writeError(c, err)
}
