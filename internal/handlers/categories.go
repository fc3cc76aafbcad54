package handlers

import (
	"strings"

	"github.com/gatherly/backend/internal/middleware"
	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/internal/services"
	"github.com/gatherly/backend/pkg/logger"
	"github.com/gatherly/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CategoriesHandler struct {
	DB    *gorm.DB
	Authz *services.AuthzService
}

func NewCategoriesHandler(db *gorm.DB, authz *services.AuthzService) *CategoriesHandler {
	return &CategoriesHandler{DB: db, Authz: authz}
}

func (h *CategoriesHandler) List(c *fiber.Ctx) error {
	var categories []models.Category
	if err := h.DB.Order("name ASC").Find(&categories).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing categories")
	}
	return utils.Success(c, fiber.StatusOK, categories)
}

type createCategoryRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (h *CategoriesHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if !h.Authz.CanManageCategories(currentUser) {
		return utils.Error(c, fiber.StatusForbidden, "organizer access required")
	}

	var req createCategoryRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	name := models.CategoryName(strings.ToUpper(strings.TrimSpace(req.Name)))
	if !name.Valid() {
		return utils.ValidationError(c, map[string]string{
			"name": "name must be one of CASUAL, BIRTHDAY, WEDDING, FORMAL",
		})
	}

	var existing models.Category
	if err := h.DB.First(&existing, "name = ?", name).Error; err == nil {
		return utils.Error(c, fiber.StatusConflict, "category already exists")
	} else if err != gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing category")
	}

	category := models.Category{Name: name, Description: req.Description}
	if err := h.DB.Create(&category).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating category")
	}

	logger.InfoWithUser(currentUser.ID.String(), "category_created", map[string]interface{}{
		"category_id": category.ID.String(),
		"name":        string(category.Name),
	})

	return utils.Success(c, fiber.StatusCreated, category)
}

// Delete removes a category and every event in it, including their
// RSVP rows. The response reports how many events were destroyed so the
// caller can surface the blast radius.
func (h *CategoriesHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if !h.Authz.CanManageCategories(currentUser) {
		return utils.Error(c, fiber.StatusForbidden, "organizer access required")
	}

	categoryID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid category id")
	}

	var category models.Category
	if err := h.DB.First(&category, "id = ?", categoryID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "category not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching category")
	}

	var deletedEvents int64
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		var eventIDs []uuid.UUID
		if err := tx.Model(&models.Event{}).
			Where("category_id = ?", category.ID).
			Pluck("id", &eventIDs).Error; err != nil {
			return err
		}
		deletedEvents = int64(len(eventIDs))

		if len(eventIDs) > 0 {
			if err := tx.Exec("DELETE FROM rsvps WHERE event_id IN ?", eventIDs).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.Event{}, "category_id = ?", category.ID).Error; err != nil {
				return err
			}
		}

		return tx.Delete(&models.Category{}, "id = ?", category.ID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting category")
	}

	logger.WarnWithUser(currentUser.ID.String(), "category_deleted", map[string]interface{}{
		"category_id":    category.ID.String(),
		"name":           string(category.Name),
		"deleted_events": deletedEvents,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message":       "category and all of its events were permanently deleted",
		"deletedEvents": deletedEvents,
	})
}
