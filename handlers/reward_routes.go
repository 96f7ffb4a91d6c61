// handlers/reward_routes.go
package handlers

import (
	"bufio"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"finquest-api/middleware"
	"finquest-api/models"
	"finquest-api/services"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

const sseKeepAlive = 20 * time.Second

// errorStatus maps service sentinels onto HTTP statuses.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidDimension),
		errors.Is(err, services.ErrInvalidLevelResult),
		errors.Is(err, services.ErrInvalidCatalogItem),
		errors.Is(err, services.ErrInvalidTrackerKind):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrRewardNotFound),
		errors.Is(err, services.ErrUserNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrRewardNotClaimable),
		errors.Is(err, services.ErrContention),
		errors.Is(err, services.ErrStateContention):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, msg string, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{
		"error": msg,
		"cause": err.Error(),
	})
}

func missingUser(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing user context"})
}

// SetupRewardStreamRoute must run before the secured /user group is created:
// EventSource cannot send X-User-ID, so the stream authenticates with query params.
func SetupRewardStreamRoute(app *fiber.App, events *services.RewardEventBus, auth middleware.TokenValidator) {
	// 📡 SSE
	app.Get("/user/rewards/stream", middleware.SSEAuthMiddleware(auth), func(c *fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return missingUser(c)
		}

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		reqCtx := c.Context()
		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			log.Printf("[SSE] 🔌 user %d connected", userID)
			events.StreamRewardEvents(reqCtx, userID, w, sseKeepAlive)
			log.Printf("[SSE] 👋 user %d disconnected", userID)
		}))
		return nil
	})
}

// SetupRewardRoutes mounts the reward endpoints on the secured /user group.
func SetupRewardRoutes(secured fiber.Router, rewardService *services.RewardService) {
	secured.Get("/rewards/daily", func(c *fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return missingUser(c)
		}
		rewards, err := rewardService.SyncUserRewards(c.UserContext(), userID)
		if err != nil {
			log.Printf("[REWARDS] ❌ daily sync failed for user %d: %v", userID, err)
			return fail(c, "failed to sync daily rewards", err)
		}
		return c.JSON(rewards)
	})

	secured.Get("/rewards/global", func(c *fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return missingUser(c)
		}
		rewards, err := rewardService.SyncUserGlobalRewards(c.UserContext(), userID)
		if err != nil {
			log.Printf("[REWARDS] ❌ global sync failed for user %d: %v", userID, err)
			return fail(c, "failed to sync global rewards", err)
		}
		return c.JSON(rewards)
	})

	secured.Post("/rewards/progress", func(c *fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return missingUser(c)
		}
		var req struct {
			Dimension string `json:"dimension"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		d := models.RewardDimension(strings.ToLower(strings.TrimSpace(req.Dimension)))
		result, err := rewardService.UpdateCompletedRewards(c.UserContext(), userID, d)
		if err != nil {
			return fail(c, "failed to update reward progress", err)
		}
		return c.JSON(result)
	})

	secured.Post("/rewards/:id/claim", func(c *fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return missingUser(c)
		}
		rewardID, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil || rewardID < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid reward id"})
		}
		result, err := rewardService.ClaimReward(c.UserContext(), userID, rewardID)
		if err != nil {
			return fail(c, "failed to claim reward", err)
		}
		return c.JSON(result)
	})
}

func SetupLeaderboardRoutes(app *fiber.App, leaderboard *services.LeaderboardService) {
	// 🔓 Public (Gateway auth only)
	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		entries, err := leaderboard.Top(c.UserContext(), c.QueryInt("limit", 10))
		if err != nil {
			log.Printf("[LEADERBOARD] ❌ %v", err)
			return fail(c, "failed to load leaderboard", err)
		}
		return c.JSON(entries)
	})
}
