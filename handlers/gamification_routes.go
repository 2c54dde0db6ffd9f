// handlers/gamification_routes.go
package handlers

import (
	"fmt"

	"finquest-gamification/middleware"
	"finquest-gamification/models"
	"finquest-gamification/sequencer"
	"finquest-gamification/services"

	"github.com/gofiber/fiber/v2"
)

// EventResponse is returned by POST /user/gamification/event.
type EventResponse struct {
	Result *models.GamificationResult `json:"result"`
	Plan   []sequencer.Step           `json:"plan"`
}

func SetupGamificationRoutes(app *fiber.App, progression *services.ProgressionService, provisioner middleware.UserProvisioner) {
	// 🔐 user routes: the gateway forwards /api/v1/gamification/... -> /user/gamification/...
	// per-route auth: /stream under this prefix authenticates itself
	user := app.Group("/user/gamification")
	auth := middleware.UserContextMiddleware(provisioner)

	user.Post("/event", auth, func(c *fiber.Ctx) error {
		var ev models.GamificationEvent
		if err := c.BodyParser(&ev); err != nil {
			return respondError(c, fmt.Errorf("%w: %v", services.ErrInvalidEvent, err))
		}

		result, err := progression.ProcessEvent(c.UserContext(), middleware.UserID(c), ev)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(EventResponse{Result: result, Plan: sequencer.Plan(result)})
	})

	user.Get("/me", auth, func(c *fiber.Ctx) error {
		snap, err := progression.Snapshot(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(snap)
	})

	user.Get("/badges", auth, func(c *fiber.Ctx) error {
		badges, err := progression.Badges.Gallery(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(badges)
	})

	user.Get("/history", auth, func(c *fiber.Ctx) error {
		page := c.QueryInt("page", 1)
		size := c.QueryInt("size", 20)
		history, err := progression.History(c.UserContext(), middleware.UserID(c), page, size)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(history)
	})
}
