// services/catalog_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"

	"finquest-api/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// BadgeUploader stores a badge image and returns its public URL.
type BadgeUploader interface {
	UploadFile(ctx context.Context, fileHeader *multipart.FileHeader, key string) (string, error)
}

// CatalogService seeds reward definitions. Definitions are never updated
// once created.
type CatalogService struct {
	DB     *gorm.DB
	Badges BadgeUploader
}

func NewCatalogService(db *gorm.DB, badges BadgeUploader) *CatalogService {
	return &CatalogService{DB: db, Badges: badges}
}

func validateDefinition(def *models.RewardDefinition) error {
	def.Title = strings.TrimSpace(def.Title)
	if def.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidCatalogItem)
	}
	if def.Type != models.RewardTypeDaily && def.Type != models.RewardTypeGlobal {
		return fmt.Errorf("%w: type must be daily or global", ErrInvalidCatalogItem)
	}
	if def.Points < 0 || def.Health < 0 {
		return fmt.Errorf("%w: points and health must not be negative", ErrInvalidCatalogItem)
	}
	return nil
}

// CreateDefinition validates and inserts one definition.
func (s *CatalogService) CreateDefinition(ctx context.Context, def *models.RewardDefinition) error {
	if err := validateDefinition(def); err != nil {
		return err
	}
	if err := s.DB.WithContext(ctx).Create(def).Error; err != nil {
		return fmt.Errorf("create reward definition: %w", err)
	}
	log.Printf("[CATALOG] ✅ created %s reward %d (%s)", def.Type, def.ID, def.Title)
	return nil
}

// ListDefinitions returns the catalog, optionally filtered by type.
func (s *CatalogService) ListDefinitions(ctx context.Context, t models.RewardType) ([]models.RewardDefinition, error) {
	defs := make([]models.RewardDefinition, 0)
	q := s.DB.WithContext(ctx).Order("id ASC")
	if t != "" {
		q = q.Where("type = ?", t)
	}
	err := q.Find(&defs).Error
	return defs, err
}

func badgeKey(title, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".png"
	}
	return "badges/" + slug.Make(title) + "-" + uuid.NewString() + ext
}

func formInt(c *fiber.Ctx, field string) (*int, error) {
	raw := strings.TrimSpace(c.FormValue(field))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer", ErrInvalidCatalogItem, field)
	}
	return &v, nil
}

// --- Admin Handlers ---

// CreateRewardDefinition handles the multipart catalog form (Admin only)
func (s *CatalogService) CreateRewardDefinition(c *fiber.Ctx) error {
	def := models.RewardDefinition{
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Type:        models.RewardType(strings.ToLower(c.FormValue("type"))),
	}

	points, err := formInt(c, "points")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	health, err := formInt(c, "health")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	requirements, err := formInt(c, "requirements")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if points != nil {
		def.Points = *points
	}
	if health != nil {
		def.Health = *health
	}
	def.Requirements = requirements
	if err := validateDefinition(&def); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if badge, err := c.FormFile("badge"); err == nil {
		if s.Badges == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "badge storage is not configured"})
		}
		url, err := s.Badges.UploadFile(c.UserContext(), badge, badgeKey(def.Title, badge.Filename))
		if err != nil {
			log.Printf("[CATALOG] badge upload failed: %v", err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Failed to upload badge"})
		}
		def.Badge = &url
	}

	if err := s.CreateDefinition(c.UserContext(), &def); err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, ErrInvalidCatalogItem) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(def)
}

// GetAllRewardDefinitions lists the catalog (Admin only)
func (s *CatalogService) GetAllRewardDefinitions(c *fiber.Ctx) error {
	defs, err := s.ListDefinitions(c.UserContext(), models.RewardType(strings.ToLower(c.Query("type"))))
	if err != nil {
		log.Printf("DB Error fetching reward definitions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch rewards"})
	}
	return c.JSON(defs)
}
