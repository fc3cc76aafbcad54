package handlers

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gatherly/backend/internal/middleware"
	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/internal/services"
	"github.com/gatherly/backend/internal/storage"
	"github.com/gatherly/backend/pkg/logger"
	"github.com/gatherly/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EventsHandler struct {
	DB       *gorm.DB
	Storage  *storage.MinIOClient
	Authz    *services.AuthzService
	Notifier *services.Notifier
}

func NewEventsHandler(db *gorm.DB, storageClient *storage.MinIOClient, authz *services.AuthzService, notifier *services.Notifier) *EventsHandler {
	return &EventsHandler{DB: db, Storage: storageClient, Authz: authz, Notifier: notifier}
}

// List is publicly readable. Filters compose with AND across
// dimensions; the free-text query matches name or location.
func (h *EventsHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.Event{}).Preload("Category")

	if q := strings.TrimSpace(c.Query("q")); q != "" {
		searchValue := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(location) LIKE ?", searchValue, searchValue)
	}

	if rawCategory := strings.TrimSpace(c.Query("category")); rawCategory != "" {
		categoryID, err := parseUUID(rawCategory)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid category id")
		}
		query = query.Where("category_id = ?", categoryID)
	}

	if rawStart := strings.TrimSpace(c.Query("start")); rawStart != "" {
		start, err := parseDate(rawStart)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid start date, expected YYYY-MM-DD")
		}
		query = query.Where("date >= ?", start)
	}

	if rawEnd := strings.TrimSpace(c.Query("end")); rawEnd != "" {
		end, err := parseDate(rawEnd)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid end date, expected YYYY-MM-DD")
		}
		query = query.Where("date <= ?", end)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting events")
	}

	var events []models.Event
	if err := utils.ApplyPagination(query.Order("date DESC"), p).Find(&events).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing events")
	}

	if err := h.attachRSVPCounts(events); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting rsvps")
	}

	return utils.Paginated(c, events, p.Page, p.Limit, total)
}

func (h *EventsHandler) Get(c *fiber.Ctx) error {
	eventID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid event id")
	}

	var event models.Event
	if err := h.DB.Preload("Category").Preload("CreatedBy").First(&event, "id = ?", eventID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "event not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching event")
	}

	var count int64
	if err := h.DB.Table("rsvps").Where("event_id = ?", event.ID).Count(&count).Error; err == nil {
		event.RSVPCount = count
	}
	event.HasImage = event.ImagePath != nil

	return utils.Success(c, fiber.StatusOK, event)
}

type eventRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
	Location    string  `json:"location"`
	CategoryID  string  `json:"categoryID"`
}

// validate checks required fields and resolves the category. It
// collects every problem instead of stopping at the first one.
func (h *EventsHandler) validate(req *eventRequest) (date time.Time, timeOfDay string, categoryID uuid.UUID, fields map[string]string) {
	fields = map[string]string{}

	req.Name = strings.TrimSpace(req.Name)
	req.Location = strings.TrimSpace(req.Location)

	if req.Name == "" {
		fields["name"] = "name is required"
	}
	if req.Location == "" {
		fields["location"] = "location is required"
	}

	var err error
	if strings.TrimSpace(req.Date) == "" {
		fields["date"] = "date is required"
	} else if date, err = parseDate(req.Date); err != nil {
		fields["date"] = "invalid date, expected YYYY-MM-DD"
	}

	if strings.TrimSpace(req.Time) == "" {
		fields["time"] = "time is required"
	} else if timeOfDay, err = parseTimeOfDay(req.Time); err != nil {
		fields["time"] = "invalid time, expected HH:MM"
	}

	if strings.TrimSpace(req.CategoryID) == "" {
		fields["categoryID"] = "categoryID is required"
	} else if categoryID, err = parseUUID(req.CategoryID); err != nil {
		fields["categoryID"] = "invalid category id"
	} else {
		var category models.Category
		if err := h.DB.First(&category, "id = ?", categoryID).Error; err != nil {
			fields["categoryID"] = "unknown category"
		}
	}

	return date, timeOfDay, categoryID, fields
}

func (h *EventsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if !h.Authz.CanManageEvents(currentUser) {
		return utils.Error(c, fiber.StatusForbidden, "organizer access required")
	}

	var req eventRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	date, timeOfDay, categoryID, fields := h.validate(&req)
	if len(fields) > 0 {
		return utils.ValidationError(c, fields)
	}

	event := models.Event{
		Name:        req.Name,
		Description: req.Description,
		Date:        date,
		Time:        timeOfDay,
		Location:    req.Location,
		CategoryID:  categoryID,
		CreatedByID: &currentUser.ID,
	}

	if err := h.DB.Create(&event).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating event")
	}

	logger.InfoWithUser(currentUser.ID.String(), "event_created", map[string]interface{}{
		"event_id":   event.ID.String(),
		"event_name": event.Name,
	})

	return utils.Success(c, fiber.StatusCreated, event)
}

func (h *EventsHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	eventID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid event id")
	}

	var event models.Event
	if err := h.DB.First(&event, "id = ?", eventID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "event not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching event")
	}

	if !h.Authz.CanManageEvent(currentUser, &event) {
		logger.WarnWithUser(currentUser.ID.String(), "permission_denied", map[string]interface{}{
			"action":   "event_update",
			"event_id": event.ID.String(),
		})
		return utils.Error(c, fiber.StatusForbidden, "you can only edit events you created")
	}

	var req eventRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	date, timeOfDay, categoryID, fields := h.validate(&req)
	if len(fields) > 0 {
		return utils.ValidationError(c, fields)
	}

	updates := map[string]interface{}{
		"name":        req.Name,
		"description": req.Description,
		"date":        date,
		"time":        timeOfDay,
		"location":    req.Location,
		"category_id": categoryID,
	}

	if err := h.DB.Model(&models.Event{}).Where("id = ?", event.ID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating event")
	}

	var updated models.Event
	if err := h.DB.Preload("Category").First(&updated, "id = ?", event.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching updated event")
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

func (h *EventsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	eventID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid event id")
	}

	var event models.Event
	if err := h.DB.First(&event, "id = ?", eventID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "event not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching event")
	}

	if !h.Authz.CanManageEvent(currentUser, &event) {
		logger.WarnWithUser(currentUser.ID.String(), "permission_denied", map[string]interface{}{
			"action":   "event_delete",
			"event_id": event.ID.String(),
		})
		return utils.Error(c, fiber.StatusForbidden, "you can only delete events you created")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM rsvps WHERE event_id = ?", event.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Event{}, "id = ?", event.ID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting event")
	}

	if event.ImagePath != nil && h.Storage != nil {
		_ = h.Storage.Delete(c.Context(), *event.ImagePath)
	}

	logger.InfoWithUser(currentUser.ID.String(), "event_deleted", map[string]interface{}{
		"event_id":   event.ID.String(),
		"event_name": event.Name,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "event deleted"})
}

// RSVP records attendance intent. The second and later calls are not an
// error; they report the existing state instead of adding a row.
func (h *EventsHandler) RSVP(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	eventID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid event id")
	}

	var event models.Event
	if err := h.DB.First(&event, "id = ?", eventID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "event not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching event")
	}

	var existing int64
	if err := h.DB.Table("rsvps").
		Where("event_id = ? AND user_id = ?", event.ID, currentUser.ID).
		Count(&existing).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking rsvp")
	}
	if existing > 0 {
		return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "already RSVP'd"})
	}

	if err := h.DB.Model(&event).Association("RSVPs").Append(currentUser); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed recording rsvp")
	}

	logger.InfoWithUser(currentUser.ID.String(), "event_rsvp", map[string]interface{}{
		"event_id":   event.ID.String(),
		"event_name": event.Name,
	})

	body := fmt.Sprintf(
		"Hi %s,\n\nYour RSVP for %q on %s at %s is confirmed.\n\nSee you there!",
		currentUser.Username,
		event.Name,
		event.Date.Format(dateLayout),
		event.Time,
	)
	h.Notifier.Send(currentUser.Email, "RSVP Confirmation: "+event.Name, body)

	return utils.Success(c, fiber.StatusCreated, fiber.Map{"message": "RSVP recorded"})
}

// Attended lists the events the current user has RSVP'd to.
func (h *EventsHandler) Attended(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var events []models.Event
	err := h.DB.Model(&models.Event{}).
		Preload("Category").
		Joins("JOIN rsvps ON rsvps.event_id = events.id").
		Where("rsvps.user_id = ?", currentUser.ID).
		Order("date DESC").
		Find(&events).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing attended events")
	}

	return utils.Success(c, fiber.StatusOK, events)
}

func (h *EventsHandler) UploadImage(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	eventID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid event id")
	}

	var event models.Event
	if err := h.DB.First(&event, "id = ?", eventID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "event not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching event")
	}

	if !h.Authz.CanManageEvent(currentUser, &event) {
		return utils.Error(c, fiber.StatusForbidden, "you can only manage events you created")
	}

	if h.Storage == nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "image storage not configured")
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "image file is required")
	}

	filename := filepath.Base(strings.TrimSpace(fileHeader.Filename))
	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(filename))
	}
	if !strings.HasPrefix(contentType, "image/") {
		return utils.Error(c, fiber.StatusBadRequest, "file must be an image")
	}

	stream, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded file")
	}
	defer stream.Close()

	objectName := fmt.Sprintf("events/%s/%s/%s", event.ID.String(), uuid.New().String(), filename)
	if err := h.Storage.Upload(c.Context(), objectName, stream, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed uploading image")
	}

	previous := event.ImagePath
	if err := h.DB.Model(&models.Event{}).Where("id = ?", event.ID).Update("image_path", objectName).Error; err != nil {
		_ = h.Storage.Delete(c.Context(), objectName)
		return utils.Error(c, fiber.StatusInternalServerError, "failed saving image reference")
	}
	if previous != nil {
		_ = h.Storage.Delete(c.Context(), *previous)
	}

	logger.InfoWithUser(currentUser.ID.String(), "event_image_uploaded", map[string]interface{}{
		"event_id":    event.ID.String(),
		"object_name": objectName,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "image uploaded"})
}

func (h *EventsHandler) ImageURL(c *fiber.Ctx) error {
	eventID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid event id")
	}

	var event models.Event
	if err := h.DB.First(&event, "id = ?", eventID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "event not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching event")
	}

	if event.ImagePath == nil {
		return utils.Error(c, fiber.StatusNotFound, "event has no image")
	}
	if h.Storage == nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "image storage not configured")
	}

	url, err := h.Storage.PresignedGetURL(c.Context(), *event.ImagePath, 15*time.Minute)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating image url")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"url": url})
}

func (h *EventsHandler) attachRSVPCounts(events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(events))
	for _, event := range events {
		ids = append(ids, event.ID)
	}

	type rsvpCount struct {
		EventID uuid.UUID
		Total   int64
	}
	var counts []rsvpCount
	err := h.DB.Table("rsvps").
		Select("event_id, COUNT(*) AS total").
		Where("event_id IN ?", ids).
		Group("event_id").
		Scan(&counts).Error
	if err != nil {
		return err
	}

	byEvent := make(map[uuid.UUID]int64, len(counts))
	for _, count := range counts {
		byEvent[count.EventID] = count.Total
	}

	for i := range events {
		events[i].RSVPCount = byEvent[events[i].ID]
		events[i].HasImage = events[i].ImagePath != nil
	}
	return nil
}
