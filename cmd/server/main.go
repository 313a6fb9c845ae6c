package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobby-s-dev/weather-dashboard/internal/api"
	"github.com/bobby-s-dev/weather-dashboard/internal/config"
	"github.com/bobby-s-dev/weather-dashboard/internal/scheduler"
	"github.com/bobby-s-dev/weather-dashboard/internal/services"
	"github.com/bobby-s-dev/weather-dashboard/internal/storage"
	"github.com/bobby-s-dev/weather-dashboard/pkg/client"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Initialize logger
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = level
	logger, err := zapCfg.Build()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	logger.Info("Starting Weather Dashboard Service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		logger.Warn("Unknown log level, keeping info", zap.String("level", cfg.Server.LogLevel))
	}

	// Upstream client
	wttr := client.NewWttrClient(cfg.Wttr.BaseURL, client.ClientConfig{
		Timeout:        cfg.Wttr.Timeout,
		UserAgent:      cfg.Wttr.UserAgent,
		MaxRetries:     cfg.Retry.MaxRetries,
		RetryDelay:     cfg.Retry.Delay,
		Multiplier:     cfg.Retry.Multiplier,
		Threshold:      cfg.CircuitBreaker.Threshold,
		BreakerTimeout: cfg.CircuitBreaker.Timeout,
	}, logger)

	dashboard := services.NewDashboard(logger)
	timers := scheduler.NewCronTimers(logger)

	// Initialize scheduler
	weatherScheduler := scheduler.NewScheduler(
		wttr,
		dashboard,
		timers,
		cfg.Scheduler.RefreshInterval,
		logger,
	)
	weatherScheduler.SkipIfStillRunning(cfg.Scheduler.SkipIfStillRunning)

	// Optional fetch history
	var history api.HistoryReader
	var store *storage.SQLiteStore
	if cfg.History.DBPath != "" {
		store, err = storage.NewSQLite(cfg.History.DBPath, logger)
		if err != nil {
			logger.Fatal("Failed to open fetch history", zap.Error(err))
		}
		weatherScheduler.UseRecorder(store)
		history = store
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		JSONEncoder:  json.Marshal,
		ErrorHandler: api.ErrorHandler,
	})

	// Setup handlers and routes
	handler := api.NewHandler(dashboard, weatherScheduler, history, logger)
	api.SetupRoutes(app, handler, logger)

	// Start scheduler
	if err := weatherScheduler.Start(cfg.Scheduler.DefaultLocation); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Info("Starting server", zap.String("address", addr))

		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop scheduler and let in-flight fetches land
	weatherScheduler.Stop()
	weatherScheduler.Wait()

	// Ends open streams so Fiber can drain
	dashboard.Close()

	// Shutdown Fiber app
	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	if err := timers.Close(ctx); err != nil {
		logger.Error("Timer shutdown failed", zap.Error(err))
	}

	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close fetch history", zap.Error(err))
		}
	}

	logger.Info("Server stopped")
}
