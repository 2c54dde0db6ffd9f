// middleware/sse_auth.go
package middleware

import (
	"context"
	"strings"

	"finquest-gamification/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TokenValidator checks an end-user access token.
type TokenValidator interface {
	ValidateToken(ctx context.Context, accessToken, deviceID string) (*services.ValidateResponse, error)
}

// SSEAuthMiddleware authenticates EventSource requests, which cannot set
// headers, from the `token` and `device_id` query params. Requests that
// already carry X-User-ID from the Gateway fall through to
// UserContextMiddleware.
//
// Usage:
//
//	app.Get("/user/gamification/stream", middleware.SSEAuthMiddleware(authClient, users), handler)
func SSEAuthMiddleware(validator TokenValidator, provisioner UserProvisioner) fiber.Handler {
	headerAuth := UserContextMiddleware(provisioner)

	return func(c *fiber.Ctx) error {
		accessToken := strings.TrimSpace(c.Query("token"))
		deviceID := strings.TrimSpace(c.Query("device_id"))

		if accessToken == "" && c.Get("X-User-ID") != "" {
			return headerAuth(c)
		}
		if validator == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}
		if accessToken == "" || deviceID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing token or device_id in query",
			})
		}

		resp, err := validator.ValidateToken(c.UserContext(), accessToken, deviceID)
		if err != nil {
			zap.L().Warn("[SSEAuth] validation failed", zap.String("device_id", deviceID), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		if provisioner != nil {
			if err := provisioner.Ensure(c.UserContext(), resp.UserID); err != nil {
				zap.L().Error("[SSEAuth] failed to provision user", zap.String("user_id", resp.UserID), zap.Error(err))
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "unavailable",
					"cause": "failed to provision user",
				})
			}
		}

		c.Locals(LocalUserID, resp.UserID)
		c.Locals(LocalDeviceID, resp.DeviceID)
		c.Locals(LocalOTPNotRequired, resp.OTPNotRequiredForDevice)
		c.Locals(LocalUserRoles, resp.Roles)

		zap.L().Debug("[SSEAuth] authenticated", zap.String("user_id", resp.UserID), zap.String("device_id", resp.DeviceID))
		return c.Next()
	}
}
