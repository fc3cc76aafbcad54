package handlers

import (
	"time"

	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type DashboardHandler struct {
	DB *gorm.DB
}

func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{DB: db}
}

// Stats returns the event counters plus one bucket of events selected
// by the filter parameter. Today is the default bucket.
func (h *DashboardHandler) Stats(c *fiber.Ctx) error {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var totalEvents, upcomingEvents, pastEvents, todaysEvents, totalAttendees int64

	if err := h.DB.Model(&models.Event{}).Count(&totalEvents).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting events")
	}
	if err := h.DB.Model(&models.Event{}).Where("date > ?", today).Count(&upcomingEvents).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting upcoming events")
	}
	if err := h.DB.Model(&models.Event{}).Where("date < ?", today).Count(&pastEvents).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting past events")
	}
	if err := h.DB.Model(&models.Event{}).Where("date = ?", today).Count(&todaysEvents).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting today's events")
	}
	if err := h.DB.Table("rsvps").Distinct("user_id").Count(&totalAttendees).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting attendees")
	}

	filter := c.Query("filter", "today")
	query := h.DB.Model(&models.Event{}).Preload("Category")

	var filterTitle string
	switch filter {
	case "all":
		filterTitle = "All Events"
	case "upcoming":
		filterTitle = "Upcoming Events"
		query = query.Where("date > ?", today)
	case "past":
		filterTitle = "Past Events"
		query = query.Where("date < ?", today)
	default:
		filter = "today"
		filterTitle = "Today's Events"
		query = query.Where("date = ?", today)
	}

	var filtered []models.Event
	if err := query.Order("date DESC").Find(&filtered).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing events")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"totalEvents":    totalEvents,
		"upcomingEvents": upcomingEvents,
		"pastEvents":     pastEvents,
		"todaysEvents":   todaysEvents,
		"totalAttendees": totalAttendees,
		"filter":         filter,
		"filterTitle":    filterTitle,
		"filteredEvents": filtered,
	})
}
