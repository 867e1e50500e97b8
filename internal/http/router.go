package http

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"scout/internal/config"
	"scout/internal/jobs"
	"scout/internal/metrics"
	"scout/internal/report"
)

type Server struct {
	app       *fiber.App
	config    *config.Config
	scheduler *jobs.Scheduler
	reports   *report.Writer
	logger    *slog.Logger
}

func NewServer(cfg *config.Config, sched *jobs.Scheduler, reports *report.Writer, logger *slog.Logger) *Server {
	app := fiber.New()

	// Inject config, scheduler, and report writer into context for handlers
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("config", cfg)
		c.Locals("scheduler", sched)
		c.Locals("reports", reports)
		return c.Next()
	})

	// Request logging + metrics middleware
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		// Ensure a request ID exists
		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)
		if logger != nil {
			c.Locals("logger", logger)
		}

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		method := c.Method()
		path := c.Path()

		metrics.RecordRequest(method, path, status, latency.Milliseconds())

		if logger != nil {
			logger.Info("request",
				"request_id", reqID,
				"method", method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}

		return err
	})

	// Redis client for rate limiting and health checks
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		if opt, err := redis.ParseURL(cfg.Redis.URL); err == nil {
			rdb = redis.NewClient(opt)
		}
	}

	// Health endpoints
	app.Get("/healthz", func(c *fiber.Ctx) error {
		// Shallow health: process is up
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}

		// Deep health: check redis connectivity when configured.
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		redisStatus := "disabled"
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			} else {
				redisStatus = "ok"
			}
		}

		status := "ok"
		if redisStatus == "error" {
			status = "error"
		}

		return c.JSON(fiber.Map{
			"status": status,
			"redis":  redisStatus,
		})
	})

	// Prometheus-style metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
		return c.SendString(metrics.Export())
	})

	keys := buildKeyTable(cfg)
	authMw := authMiddleware(cfg, keys)
	var rateMw fiber.Handler
	if rdb != nil {
		rateMw = rateLimitMiddleware(cfg, rdb)
	} else {
		rateMw = func(c *fiber.Ctx) error { return c.Next() }
	}

	v1 := app.Group("/v1", authMw, rateMw)
	registerV1Routes(v1)

	admin := v1.Group("/admin", adminOnlyMiddleware)
	registerAdminRoutes(admin)

	return &Server{
		app:       app,
		config:    cfg,
		scheduler: sched,
		reports:   reports,
		logger:    logger,
	}
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	return s.app.Listen(addr)
}

func registerV1Routes(group fiber.Router) {
	group.Post("/research", researchSubmitHandler)
	group.Get("/jobs", jobsListHandler)
	group.Get("/jobs/:id", jobDetailHandler)
	group.Delete("/jobs/:id", jobCancelHandler)
	group.Get("/reports", reportsListHandler)
	group.Get("/reports/:label", reportGetHandler)
}

func registerAdminRoutes(group fiber.Router) {
	group.Post("/retention/cleanup", retentionCleanupHandler)
}
