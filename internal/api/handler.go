package api

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bobby-s-dev/weather-dashboard/internal/models"
	"github.com/bobby-s-dev/weather-dashboard/internal/scheduler"
	"github.com/bobby-s-dev/weather-dashboard/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const defaultKeepAlive = 15 * time.Second

// HistoryReader lists recorded fetch attempts.
type HistoryReader interface {
	ListFetches(ctx context.Context, limit int) ([]models.FetchRecord, error)
}

type Handler struct {
	dashboard *services.Dashboard
	scheduler *scheduler.RefreshScheduler
	history   HistoryReader
	logger    *zap.Logger
	keepAlive time.Duration
}

// NewHandler builds the API handler. history may be nil, in which case
// the history endpoint reports it as disabled.
func NewHandler(dashboard *services.Dashboard, sched *scheduler.RefreshScheduler, history HistoryReader, logger *zap.Logger) *Handler {
	return &Handler{
		dashboard: dashboard,
		scheduler: sched,
		history:   history,
		logger:    logger,
		keepAlive: defaultKeepAlive,
	}
}

type setLocationRequest struct {
	Location string `json:"location"`
}

// GetWeather handles GET /api/v1/weather
func (h *Handler) GetWeather(c *fiber.Ctx) error {
	return c.JSON(h.dashboard.Snapshot())
}

// StreamWeather handles GET /api/v1/weather/stream
func (h *Handler) StreamWeather(c *fiber.Ctx) error {
	prepareSSE(c)

	updates, unsubscribe := h.dashboard.Subscribe()
	initial := h.dashboard.Snapshot()
	keepAlive := h.keepAlive
	logger := h.logger.With(zap.String("request_id", requestID(c)))

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		if err := writeEvent(w, "state", initial); err != nil {
			return
		}

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				if err := writeEvent(w, "state", snap); err != nil {
					logger.Debug("Stream client went away", zap.Error(err))
					return
				}
			case <-ticker.C:
				if err := writeComment(w, "ping"); err != nil {
					logger.Debug("Stream client went away", zap.Error(err))
					return
				}
			}
		}
	}))

	return nil
}

// SetLocation handles POST /api/v1/location
func (h *Handler) SetLocation(c *fiber.Ctx) error {
	var req setLocationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	location := strings.TrimSpace(req.Location)
	if location == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Location is required",
		})
	}

	h.logger.Info("Changing location", zap.String("location", location))

	if err := h.scheduler.SetLocation(location); err != nil {
		h.logger.Error("Failed to change location",
			zap.String("location", location),
			zap.Error(err))

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to change location",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"location": location,
	})
}

// Refresh handles POST /api/v1/refresh
func (h *Handler) Refresh(c *fiber.Ctx) error {
	if err := h.scheduler.ForceRun(); err != nil {
		if errors.Is(err, scheduler.ErrNotRunning) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Scheduler is not running",
			})
		}
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"location": h.scheduler.Location(),
	})
}

// GetHistory handles GET /api/v1/history
func (h *Handler) GetHistory(c *fiber.Ctx) error {
	if h.history == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Fetch history is disabled",
		})
	}

	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Limit must not be negative",
		})
	}

	records, err := h.history.ListFetches(c.UserContext(), limit)
	if err != nil {
		h.logger.Error("Failed to list fetch history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read fetch history",
		})
	}

	return c.JSON(fiber.Map{
		"fetches": records,
	})
}

// GetHealth handles GET /api/v1/health
func (h *Handler) GetHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":       "healthy",
		"timestamp":    time.Now(),
		"uptime":       time.Since(startTime).String(),
		"last_updated": h.dashboard.Snapshot().LastUpdated,
		"scheduler":    h.scheduler.GetStatus(),
	})
}

// GetMetrics handles GET /api/v1/metrics
func (h *Handler) GetMetrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"metrics":   h.dashboard.GetStats(),
		"scheduler": h.scheduler.GetStatus(),
		"timestamp": time.Now(),
	})
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}

var startTime = time.Now()
