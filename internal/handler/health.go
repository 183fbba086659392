package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// TargetChecker reports whether the default workflow target is usable
type TargetChecker interface {
	IsConfigured() bool
}

type HealthHandler struct {
	redis   *redis.Client
	webhook TargetChecker
}

func NewHealthHandler(redisClient *redis.Client, webhook TargetChecker) *HealthHandler {
	return &HealthHandler{
		redis:   redisClient,
		webhook: webhook,
	}
}

// Check handles GET /health
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), time.Second)
	defer cancel()

	redisOK := h.redis != nil && h.redis.Ping(ctx).Err() == nil

	return c.JSON(fiber.Map{
		"status": "ok",
		"services": fiber.Map{
			"webhook": h.webhook.IsConfigured(),
			"redis":   redisOK,
		},
	})
}
