// handlers/admin_routes.go
package handlers

import (
	"fmt"

	"finquest-gamification/middleware"
	"finquest-gamification/models"
	"finquest-gamification/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const maxIconBytes = 2 << 20

// CreateBadgeRequest is the body of POST /s/admin/badges.
type CreateBadgeRequest struct {
	Code        string               `json:"code"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Category    models.BadgeCategory `json:"category"`
	Rule        string               `json:"rule"`
	IsActive    *bool                `json:"is_active"`
	SortOrder   int                  `json:"sort_order"`
}

func SetupAdminRoutes(app *fiber.App, badges *services.BadgeService, users *services.UserService, icons services.IconStore) {
	// 🔒 admin: gateway token + user context + admin role
	admin := app.Group("/s/admin", middleware.UserContextMiddleware(nil), middleware.RequireRole("admin"))

	admin.Get("/badges", func(c *fiber.Ctx) error {
		defs, err := badges.List(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(defs)
	})

	admin.Post("/badges", func(c *fiber.Ctx) error {
		var req CreateBadgeRequest
		if err := c.BodyParser(&req); err != nil {
			return respondError(c, fmt.Errorf("%w: %v", services.ErrInvalidBadge, err))
		}
		active := true
		if req.IsActive != nil {
			active = *req.IsActive
		}

		def, err := badges.Create(c.UserContext(), models.BadgeDefinition{
			Code:        req.Code,
			Name:        req.Name,
			Description: req.Description,
			Category:    req.Category,
			Rule:        req.Rule,
			IsActive:    active,
			SortOrder:   req.SortOrder,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(def)
	})

	admin.Patch("/badges/:code", func(c *fiber.Ctx) error {
		var patch services.BadgePatch
		if err := c.BodyParser(&patch); err != nil {
			return respondError(c, fmt.Errorf("%w: %v", services.ErrInvalidBadge, err))
		}
		def, err := badges.Update(c.UserContext(), c.Params("code"), patch)
		if err != nil {
			return respondError(c, err)
		}
		zap.L().Info("badge updated", zap.String("code", def.Code), zap.String("by", middleware.UserID(c)))
		return c.JSON(def)
	})

	admin.Post("/badges/:code/icon", func(c *fiber.Ctx) error {
		fh, err := c.FormFile("icon")
		if err != nil {
			return respondError(c, fmt.Errorf("%w: icon file is required", services.ErrInvalidBadge))
		}
		if fh.Size > maxIconBytes {
			return respondError(c, fmt.Errorf("%w: icon exceeds %d bytes", services.ErrInvalidBadge, maxIconBytes))
		}
		f, err := fh.Open()
		if err != nil {
			return respondError(c, fmt.Errorf("%w: %v", services.ErrInvalidBadge, err))
		}
		defer f.Close()

		def, err := badges.UploadIcon(c.UserContext(), icons, c.Params("code"), fh.Header.Get("Content-Type"), f)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(def)
	})

	admin.Post("/badges/refresh", func(c *fiber.Ctx) error {
		if err := badges.Refresh(c.UserContext()); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"message": "badge catalog reloaded"})
	})

	admin.Get("/users", func(c *fiber.Ctx) error {
		found, err := users.Search(c.UserContext(), c.Query("q"), c.QueryInt("limit", 50))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(found)
	})
}
