package handlers

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gatherly/backend/internal/config"
	"github.com/gatherly/backend/internal/database"
	"github.com/gatherly/backend/internal/middleware"
	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/internal/services"
	"github.com/gatherly/backend/pkg/activation"
	"github.com/gatherly/backend/pkg/logger"
	"github.com/gatherly/backend/pkg/utils"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

type testEnv struct {
	app   *fiber.App
	db    *gorm.DB
	cfg   *config.Config
	mails *recordingMailer
}

// recordingMailer captures outgoing mail so tests can assert on
// notifications without a real SMTP server.
type recordingMailer struct {
	mu       sync.Mutex
	messages []recordedMail
}

type recordedMail struct {
	Recipient string
	Subject   string
	Body      string
}

func (m *recordingMailer) Send(recipient, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, recordedMail{Recipient: recipient, Subject: subject, Body: body})
	return nil
}

func (m *recordingMailer) snapshot() []recordedMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]recordedMail, len(m.messages))
	copy(out, m.messages)
	return out
}

// waitForMail polls until at least n messages were delivered. Delivery
// happens on a background goroutine, so tests cannot assert
// synchronously.
func (m *recordingMailer) waitForMail(t *testing.T, n int) []recordedMail {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := m.snapshot(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected at least %d delivered messages, got %d", n, len(m.snapshot()))
	return nil
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			// The driver stores a time.Time function result as a bare unix
			// int64, which it cannot scan back into datetime columns, so
			// return the driver's own text time format instead.
			return time.Now().UTC().Format("2006-01-02 15:04:05.999999999-07:00"), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
		activation.SetSecret("test-secret")
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			FrontendURL: "http://localhost:3001",
		},
		Auth: config.AuthConfig{
			AutoActivate:       false,
			ActivationTTLHours: 72,
		},
	}

	mails := &recordingMailer{}
	notifier := services.NewNotifier(mails)
	authz := services.NewAuthzService()

	authHandler := NewAuthHandler(db, notifier, cfg)
	eventsHandler := NewEventsHandler(db, nil, authz, notifier)
	categoriesHandler := NewCategoriesHandler(db, authz)
	usersHandler := NewUsersHandler(db)
	dashboardHandler := NewDashboardHandler(db)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 20 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/activate/:uid/:token", authHandler.Activate)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/me", authMiddleware.RequireAuth, authHandler.UpdateMe)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)

	api.Get("/events", authMiddleware.OptionalAuth, eventsHandler.List)
	api.Get("/events/attended", authMiddleware.RequireAuth, eventsHandler.Attended)
	api.Get("/events/:id", authMiddleware.OptionalAuth, eventsHandler.Get)
	api.Get("/events/:id/image", authMiddleware.OptionalAuth, eventsHandler.ImageURL)
	api.Post("/events/:id/rsvp", authMiddleware.RequireAuth, eventsHandler.RSVP)

	eventManageRoutes := api.Group("/events", authMiddleware.RequireAuth, middleware.OrganizerOnly)
	eventManageRoutes.Post("/", eventsHandler.Create)
	eventManageRoutes.Put("/:id", eventsHandler.Update)
	eventManageRoutes.Delete("/:id", eventsHandler.Delete)
	eventManageRoutes.Post("/:id/image", eventsHandler.UploadImage)

	api.Get("/categories", authMiddleware.RequireAuth, categoriesHandler.List)
	categoryManageRoutes := api.Group("/categories", authMiddleware.RequireAuth, middleware.OrganizerOnly)
	categoryManageRoutes.Post("/", categoriesHandler.Create)
	categoryManageRoutes.Delete("/:id", categoriesHandler.Delete)

	userRoutes := api.Group("/users", authMiddleware.RequireAuth, middleware.AdminOnly)
	userRoutes.Get("/", usersHandler.List)
	userRoutes.Get("/:id", usersHandler.Get)
	userRoutes.Delete("/:id", usersHandler.Delete)
	userRoutes.Put("/:id/active", usersHandler.ToggleActive)
	userRoutes.Put("/:id/role", usersHandler.ChangeRole)

	api.Get("/dashboard", authMiddleware.RequireAuth, dashboardHandler.Stats)

	return &testEnv{app: app, db: db, cfg: cfg, mails: mails}
}

func createTestUser(t *testing.T, db *gorm.DB, username string, role models.UserRole, active, superuser bool) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword("password123")
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		Active:       active,
		Superuser:    superuser,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func createTestCategory(t *testing.T, db *gorm.DB, name models.CategoryName) *models.Category {
	t.Helper()

	category := &models.Category{Name: name}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("failed creating test category: %v", err)
	}
	return category
}

func createTestEvent(t *testing.T, db *gorm.DB, name string, date time.Time, category *models.Category, creator *models.User) *models.Event {
	t.Helper()

	event := &models.Event{
		Name:       name,
		Date:       date,
		Time:       "18:00",
		Location:   "Main Hall",
		CategoryID: category.ID,
	}
	if creator != nil {
		event.CreatedByID = &creator.ID
	}
	if err := db.Create(event).Error; err != nil {
		t.Fatalf("failed creating test event: %v", err)
	}
	return event
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}

func dataMap(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %T", body["data"])
	}
	return data
}

func dataSlice(t *testing.T, body map[string]any) []any {
	t.Helper()
	data, ok := body["data"].([]any)
	if !ok {
		t.Fatalf("expected data array, got %T", body["data"])
	}
	return data
}
