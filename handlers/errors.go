package handlers

import (
	"errors"

	"finquest-gamification/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// StatusFor maps an engine error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidEvent), errors.Is(err, services.ErrInvalidBadge):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrUnavailable):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, err error) error {
	status := StatusFor(err)
	if services.Retryable(err) {
		c.Set(fiber.HeaderRetryAfter, "1")
	}
	if status == fiber.StatusInternalServerError {
		zap.L().Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{
		"error": services.ErrorCode(err),
		"cause": err.Error(),
	})
}
