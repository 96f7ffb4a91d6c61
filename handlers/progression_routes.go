// handlers/progression_routes.go
package handlers

import (
	"log"
	"strconv"
	"strings"

	"finquest-api/middleware"
	"finquest-api/models"
	"finquest-api/services"

	"github.com/gofiber/fiber/v2"
)

// SetupProgressionRoutes mounts level and tracker endpoints on the secured /user group.
func SetupProgressionRoutes(securedGroup fiber.Router, progressionService *services.ProgressionService, trackerService *services.TrackerService) {
	securedGroup.Post("/levels/:id/result", func(c *fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return missingUser(c)
		}
		levelID, err := strconv.Atoi(c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid level id"})
		}

		var req struct {
			Score  int    `json:"score"`
			Status string `json:"status"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		status := models.LevelStatus(strings.ToLower(strings.TrimSpace(req.Status)))
		prog, err := progressionService.RecordLevelResult(c.UserContext(), userID, levelID, req.Score, status)
		if err != nil {
			log.Printf("[PROGRESS] ❌ user %d level %d: %v", userID, levelID, err)
			return fail(c, "failed to record level result", err)
		}
		return c.JSON(prog)
	})

	securedGroup.Get("/levels", func(c *fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return missingUser(c)
		}
		levels, err := progressionService.GetLevelProgress(c.UserContext(), userID)
		if err != nil {
			return fail(c, "failed to get level progress", err)
		}
		return c.JSON(levels)
	})

	securedGroup.Get("/tracker", func(c *fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return missingUser(c)
		}
		snap, err := trackerService.Get(c.UserContext(), userID)
		if err != nil {
			return fail(c, "failed to load tracker", err)
		}
		return c.JSON(snap)
	})

	securedGroup.Put("/tracker", func(c *fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return missingUser(c)
		}
		var snap services.TrackerSnapshot
		if err := c.BodyParser(&snap); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		saved, err := trackerService.Put(c.UserContext(), userID, snap)
		if err != nil {
			return fail(c, "failed to save tracker", err)
		}
		return c.JSON(saved)
	})

	securedGroup.Post("/tracker/entries", func(c *fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return missingUser(c)
		}
		var entry services.TrackerEntry
		if err := c.BodyParser(&entry); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		snap, err := trackerService.AddEntry(c.UserContext(), userID, entry)
		if err != nil {
			return fail(c, "failed to add tracker entry", err)
		}
		return c.Status(fiber.StatusCreated).JSON(snap)
	})
}

func SetupAdminRoutes(app *fiber.App, catalogService *services.CatalogService) {
	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	adminGroup.Post("/rewards", catalogService.CreateRewardDefinition)
	adminGroup.Get("/rewards", catalogService.GetAllRewardDefinitions)
}
