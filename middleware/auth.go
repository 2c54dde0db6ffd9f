// middleware/auth.go
package middleware

import (
	"context"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Locals keys set by the auth middlewares.
const (
	LocalUserID         = "user_id"
	LocalUserRoles      = "user_roles"
	LocalOTPNotRequired = "otp_not_required"
	LocalDeviceID       = "device_id"
)

// UserProvisioner creates the local user row on first sight.
type UserProvisioner interface {
	Ensure(ctx context.Context, userID string) error
}

// UserContextMiddleware extracts user identity and roles set by Gateway.
// With a provisioner, unknown users are created on the fly.
func UserContextMiddleware(provisioner UserProvisioner) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			zap.L().Warn("[USER_CTX] X-User-ID required but missing", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID: request must come through gateway with auth context",
			})
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}

		if provisioner != nil {
			if err := provisioner.Ensure(c.UserContext(), userID); err != nil {
				zap.L().Error("[USER_CTX] failed to provision user", zap.String("user_id", userID), zap.Error(err))
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "unavailable",
					"cause": "failed to provision user",
				})
			}
		}

		c.Locals(LocalUserID, userID)
		c.Locals(LocalUserRoles, roles)
		c.Locals(LocalOTPNotRequired, strings.EqualFold(c.Get("X-Otp-Not-Required"), "true"))

		return c.Next()
	}
}

// RequireRole rejects requests whose roles (set by UserContextMiddleware)
// do not include role.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals(LocalUserRoles).([]string)
		if !slices.Contains(roles, role) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "forbidden",
				"cause": "role " + role + " required",
			})
		}
		return c.Next()
	}
}

// UserID returns the authenticated user id.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}
