package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatherly/backend/internal/config"
	"github.com/gatherly/backend/internal/database"
	"github.com/gatherly/backend/internal/handlers"
	"github.com/gatherly/backend/internal/middleware"
	"github.com/gatherly/backend/internal/services"
	"github.com/gatherly/backend/internal/storage"
	"github.com/gatherly/backend/pkg/activation"
	"github.com/gatherly/backend/pkg/logger"
	"github.com/gatherly/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)
	activation.SetSecret(cfg.JWT.Secret)
	activation.SetExpiry(time.Duration(cfg.Auth.ActivationTTLHours) * time.Hour)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	notifier := services.NewNotifier(services.NewSMTPMailer(cfg.SMTP))
	authz := services.NewAuthzService()

	authHandler := handlers.NewAuthHandler(db, notifier, cfg)
	eventsHandler := handlers.NewEventsHandler(db, storageClient, authz, notifier)
	categoriesHandler := handlers.NewCategoriesHandler(db, authz)
	usersHandler := handlers.NewUsersHandler(db)
	dashboardHandler := handlers.NewDashboardHandler(db)

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

	// Event list and detail are public reads; everything else on the
	// events surface needs an authenticated caller.
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

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
