// handlers/gamification_stream.go
package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"finquest-gamification/middleware"
	"finquest-gamification/models"
	"finquest-gamification/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const defaultStreamPoll = 2 * time.Second

// SetupStreamRoutes exposes GET /user/gamification/stream, an SSE feed of
// the user's new activity entries.
func SetupStreamRoutes(app *fiber.App, progression *services.ProgressionService, validator middleware.TokenValidator, provisioner middleware.UserProvisioner, poll time.Duration) {
	if poll <= 0 {
		poll = defaultStreamPoll
	}
	app.Get("/user/gamification/stream",
		middleware.SSEAuthMiddleware(validator, provisioner),
		streamActivity(progression, poll),
	)
}

func streamActivity(progression *services.ProgressionService, poll time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		// cursor starts at the newest entry; the stream only carries what happens next
		cursor, err := progression.LatestActivity(c.UserContext(), userID)
		if err != nil {
			return respondError(c, fmt.Errorf("%w: %v", services.ErrUnavailable, err))
		}

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no") // nginx

		done := c.Context().Done()

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			ticker := time.NewTicker(poll)
			defer ticker.Stop()

			// initial keepalive (comment event)
			_, _ = w.WriteString(":\n\n")
			if err := w.Flush(); err != nil {
				return
			}

			for {
				select {
				case <-ticker.C:
					ctx, cancel := context.WithTimeout(context.Background(), poll)
					entries, err := progression.ActivitySince(ctx, userID, cursor)
					cancel()
					if err != nil {
						zap.L().Warn("SSE query failed", zap.String("user_id", userID), zap.Error(err))
						continue
					}

					if len(entries) == 0 {
						_, _ = w.WriteString(":\n\n")
					} else {
						writeActivity(w, entries)
						cursor = entries[len(entries)-1].CreatedAt
					}

					if err := w.Flush(); err != nil {
						// client disconnected
						return
					}

				case <-done:
					return
				}
			}
		})

		return nil
	}
}

// writeActivity emits one SSE frame per entry.
func writeActivity(w io.Writer, entries []models.ActivityEntry) {
	for _, e := range entries {
		payload, err := json.Marshal(e)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "id: %s\nevent: activity\ndata: %s\n\n", e.ID, payload)
	}
}
