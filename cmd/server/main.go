package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"roster-backend/internal/admin"
	"roster-backend/internal/auth"
	"roster-backend/internal/config"
	"roster-backend/internal/engine"
	"roster-backend/internal/instrument"
	"roster-backend/internal/logger"
	"roster-backend/internal/metadata"
	"roster-backend/internal/storage"
	"roster-backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logger.Configure(logger.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty})
	log.Info().
		Int("port", cfg.Server.Port).
		Str("db", fmt.Sprintf("%s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)).
		Msg("Config loaded")

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap system tables")
	}
	log.Info().Msg("System tables ready")

	// 4. Audit events
	var events instrument.Recorder = instrument.NoopRecorder{}
	if cfg.Instrumentation.Enabled {
		buf := instrument.NewEventBuffer(db.Pool, cfg.Instrumentation.BufferSize, cfg.Instrumentation.FlushIntervalMs)
		defer buf.Stop()
		events = buf
		go instrument.RunCleanup(ctx, db.Pool, cfg.Instrumentation.RetentionDays, time.Hour)
	}

	// 5. Schema and row services
	registry := store.NewFieldTypeRegistry()
	provisioner := store.NewProvisioner(db, registry)
	policy := metadata.StoragePolicy{PhoneAsText: cfg.Schema.PhoneAsText}
	files := storage.NewLocalStorage(cfg.Storage.LocalPath)
	creds := engine.NewCredentialIssuer(auth.HashPassword)
	rows := engine.NewRowEngine(db, registry, files, creds, events)

	// 6. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		BodyLimit:    int(cfg.Storage.MaxFileSize) * 4,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(instrument.RequestLogger(logger.With("http")))

	// 7. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 8. Auth for everything under /api
	authEnabled := cfg.Auth.JWTSecret != ""
	if !authEnabled {
		log.Warn().Msg("auth.jwt_secret is empty, API authentication is disabled")
	}
	api := app.Group("/api",
		auth.AuthMiddleware(cfg.Auth.JWTSecret),
		auth.RequireRole(cfg.Auth.AdminRole, authEnabled),
		engine.AttachUser(),
	)

	// 9. Per-domain form and row routes
	for _, d := range metadata.AllDomains() {
		group := api.Group("/" + d.Name)
		admin.RegisterFormRoutes(group, admin.NewHandler(d, provisioner, policy, events))
		engine.RegisterRowRoutes(group, engine.NewHandler(d, rows, cfg.Storage.MaxFileSize))
	}

	// 10. Uploaded files and audit event queries
	api.Get("/files/*", engine.ServeFile(files))
	api.Get("/events", instrument.NewEventHandler(db.Pool).List)

	// 11. Start server
	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("Starting server")
	if err := app.Listen(addr); err != nil {
		log.Error().Err(err).Msg("Server stopped")
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var appErr *engine.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(engine.ErrorResponse{Error: appErr})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		return c.Status(code).JSON(engine.ErrorResponse{
			Error: engine.NewAppError("HTTP_ERROR", code, fiberErr.Message),
		})
	}

	log.Error().Err(err).Str("path", c.Path()).Msg("Unhandled error")
	return c.Status(code).JSON(engine.ErrorResponse{
		Error: &engine.AppError{
			Code:    "INTERNAL_ERROR",
			Status:  code,
			Message: "Internal server error",
		},
	})
}
