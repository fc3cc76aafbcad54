package handlers

import (
	"strings"

	"github.com/gatherly/backend/internal/middleware"
	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/pkg/logger"
	"github.com/gatherly/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// UsersHandler is the admin-only surface. The AdminOnly middleware
// guards every route; handlers still load the target and apply the
// superuser protections.
type UsersHandler struct {
	DB *gorm.DB
}

func NewUsersHandler(db *gorm.DB) *UsersHandler {
	return &UsersHandler{DB: db}
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)
	search := strings.TrimSpace(c.Query("search"))

	query := h.DB.Model(&models.User{})
	if search != "" {
		searchValue := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?",
			searchValue,
			searchValue,
			searchValue,
			searchValue,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting users")
	}

	var users []models.User
	if err := utils.ApplyPagination(query.Order("username ASC"), p).Find(&users).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing users")
	}

	return utils.Paginated(c, users, p.Page, p.Limit, total)
}

func (h *UsersHandler) Get(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	return utils.Success(c, fiber.StatusOK, user)
}

// Delete removes an account. Superusers cannot be deleted; the record
// is left untouched and the caller gets a warning, not a crash. Events
// the user created survive with their creator cleared.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var target models.User
	if err := h.DB.First(&target, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	if target.Superuser {
		logger.WarnWithUser(currentUser.ID.String(), "superuser_delete_blocked", map[string]interface{}{
			"target_id": target.ID.String(),
		})
		return utils.Error(c, fiber.StatusForbidden, "superuser accounts cannot be deleted")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Event{}).
			Where("created_by_id = ?", target.ID).
			Update("created_by_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM rsvps WHERE user_id = ?", target.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", target.ID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting user")
	}

	logger.InfoWithUser(currentUser.ID.String(), "user_deleted", map[string]interface{}{
		"target_id":       target.ID.String(),
		"target_username": target.Username,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "user deleted"})
}

func (h *UsersHandler) ToggleActive(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var target models.User
	if err := h.DB.First(&target, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", target.ID).Update("active", !target.Active).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating user")
	}
	target.Active = !target.Active

	logger.InfoWithUser(currentUser.ID.String(), "user_active_toggled", map[string]interface{}{
		"target_id": target.ID.String(),
		"active":    target.Active,
	})

	return utils.Success(c, fiber.StatusOK, target)
}

type changeRoleRequest struct {
	Role models.UserRole `json:"role"`
}

// ChangeRole replaces the stored role outright, so repeating the call
// with the same role changes nothing. Superusers keep their implicit
// admin role no matter what is requested.
func (h *UsersHandler) ChangeRole(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var req changeRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if !req.Role.Valid() {
		return utils.Error(c, fiber.StatusBadRequest, "invalid role")
	}

	var target models.User
	if err := h.DB.First(&target, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	if target.Superuser {
		return utils.Error(c, fiber.StatusForbidden, "cannot change the role of a superuser")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", target.ID).Update("role", req.Role).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating role")
	}
	target.Role = req.Role

	logger.InfoWithUser(currentUser.ID.String(), "user_role_changed", map[string]interface{}{
		"target_id": target.ID.String(),
		"role":      string(req.Role),
	})

	return utils.Success(c, fiber.StatusOK, target)
}
