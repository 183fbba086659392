package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/asyncpoller/api/internal/classifier"
	"github.com/asyncpoller/api/internal/client"
	"github.com/asyncpoller/api/internal/config"
	"github.com/asyncpoller/api/internal/dedup"
	"github.com/asyncpoller/api/internal/handler"
	"github.com/asyncpoller/api/internal/logging"
	"github.com/asyncpoller/api/internal/metrics"
	"github.com/asyncpoller/api/internal/middleware"
	"github.com/asyncpoller/api/internal/model"
	"github.com/asyncpoller/api/internal/service"
	"github.com/asyncpoller/api/internal/store"
	"github.com/asyncpoller/api/internal/worker"
	ws "github.com/asyncpoller/api/internal/websocket"
	"github.com/asyncpoller/api/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger := logging.New(cfg.Server)
	metrics.MustRegister()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Test Redis connection
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis not available, rate limiting disabled until it is")
	}

	// Workflow engine client
	webhookClient := client.NewWebhookClient(&cfg.Webhook, logger)
	if !webhookClient.IsConfigured() {
		logger.Warn().Msg("webhook target not configured, submits will fail with a config error")
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	// Worker pool
	pool := worker.NewPool(cfg.Jobs.Workers, cfg.Jobs.QueueSize, logger)

	// Job orchestration
	jobStore := store.NewMemoryStore()
	resolver := worker.NewResolutionWorker(
		jobStore,
		webhookClient,
		classifier.New(classifier.Options{MaxChars: cfg.Jobs.MaxMessageChars}),
		hub,
		worker.Policy{
			RetryDelay:  cfg.Jobs.RetryDelay(),
			Deadline:    cfg.Jobs.Deadline(),
			RetryNon2xx: cfg.Jobs.RetryNon2xx,
		},
		logger,
	)
	pool.OnPanic(func(jobID string, err error) {
		logger.Error().Err(err).Str("job_id", jobID).Msg("resolution worker panicked")
		resolver.Fail(jobID, model.CodeInternal, model.MsgInternal)
	})
	pool.Start(ctx)

	jobService := service.NewJobService(
		jobStore,
		dedup.NewIndex(cfg.Jobs.DedupWindow()),
		pool,
		resolver,
		webhookClient,
		hub,
		cfg.Jobs,
		logger,
	)

	// Initialize handlers
	jobHandler := handler.NewJobHandler(jobService, validate)
	healthHandler := handler.NewHealthHandler(redisClient, webhookClient)

	// Initialize middleware
	rateLimiter := middleware.NewRateLimiter(redisClient, logger)
	submitPerMin, pollPerMin := cfg.RateLimit.SubmitPerMin, cfg.RateLimit.PollPerMin
	if !cfg.RateLimit.Enabled {
		submitPerMin, pollPerMin = 0, 0
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		BodyLimit:             64 * 1024,
		DisableStartupMessage: true,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Health check
	app.Get("/health", healthHandler.Check)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes
	api := app.Group("/api")
	api.Get("/ping", jobHandler.Ping)
	api.Post("/echo", jobHandler.Echo)

	// Job routes
	api.Post("/jobs", rateLimiter.SubmitLimit(submitPerMin), jobHandler.Submit)
	api.Get("/jobs/:jobId/poll", rateLimiter.PollLimit(pollPerMin), jobHandler.Poll)
	api.Get("/jobs/:jobId", jobHandler.Snapshot)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("jobId"))
	}))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info().Msg("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	logger.Info().Str("addr", addr).Str("env", cfg.Server.Env).Msg("server starting")
	if err := app.Listen(addr); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}

	// In-flight workers get a grace period, then their deadline context is cut
	graceCtx, stop := context.WithTimeout(context.Background(), cfg.Jobs.ShutdownGrace())
	defer stop()
	if err := pool.Stop(graceCtx); err != nil {
		logger.Warn().Err(err).Msg("workers still running at exit")
	}
	cancel()
	logger.Info().Msg("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
