package http

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"scout/internal/config"
)

// principal is the resolved API key attached to the request context.
type principal struct {
	Label   string
	IsAdmin bool
	keyHash string
}

// keyTable maps raw API keys to their configuration, built once at server
// construction.
func buildKeyTable(cfg *config.Config) map[string]config.APIKeyConfig {
	table := make(map[string]config.APIKeyConfig, len(cfg.Auth.Keys))
	for _, k := range cfg.Auth.Keys {
		if strings.TrimSpace(k.Key) != "" {
			table[k.Key] = k
		}
	}
	return table
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// authMiddleware validates the Authorization: Bearer <key> header and
// attaches the resolved principal to the context.
func authMiddleware(cfg *config.Config, keys map[string]config.APIKeyConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.Auth.Enabled {
			return c.Next()
		}

		rawAuth := c.Get("Authorization")
		if rawAuth == "" || !strings.HasPrefix(rawAuth, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Success: false,
				Code:    "UNAUTHENTICATED",
				Error:   "Missing Authorization Bearer token",
			})
		}

		token := strings.TrimSpace(strings.TrimPrefix(rawAuth, "Bearer "))
		if token == "" || !strings.HasPrefix(token, "scout_") {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Success: false,
				Code:    "UNAUTHENTICATED",
				Error:   "Invalid API key format",
			})
		}

		keyCfg, ok := keys[token]
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Success: false,
				Code:    "UNAUTHENTICATED",
				Error:   "Invalid or revoked API key",
			})
		}

		c.Locals("principal", principal{
			Label:   keyCfg.Label,
			IsAdmin: keyCfg.IsAdmin,
			keyHash: hashKey(token),
		})
		return c.Next()
	}
}

// rateLimitMiddleware enforces a simple per-minute fixed-window rate limit
// per API key using Redis.
func rateLimitMiddleware(cfg *config.Config, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.Auth.Enabled || cfg.RateLimit.DefaultPerMinute <= 0 {
			return c.Next()
		}

		val := c.Locals("principal")
		p, ok := val.(principal)
		if !ok {
			// If there's no principal in context, auth should have failed already.
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Success: false,
				Code:    "UNAUTHENTICATED",
				Error:   "API key not found in context",
			})
		}

		now := time.Now().UTC()
		window := now.Format("200601021504") // YYYYMMDDHHMM minute window
		key := fmt.Sprintf("scout:rl:%s:%s", p.keyHash, window)

		ctx := c.Context()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
				Success: false,
				Code:    "INTERNAL_ERROR",
				Error:   fmt.Sprintf("rate limit increment failed: %v", err),
			})
		}
		if count == 1 {
			// First hit in this window; set TTL
			_ = rdb.Expire(ctx, key, time.Minute)
		}

		if count > int64(cfg.RateLimit.DefaultPerMinute) {
			return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{
				Success: false,
				Code:    "RATE_LIMIT_EXCEEDED",
				Error:   "Rate limit exceeded, try again later",
			})
		}

		return c.Next()
	}
}

// adminOnlyMiddleware ensures the current API key has admin privileges.
func adminOnlyMiddleware(c *fiber.Ctx) error {
	val := c.Locals("principal")
	p, ok := val.(principal)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Success: false,
			Code:    "UNAUTHENTICATED",
			Error:   "API key not found in context",
		})
	}

	if !p.IsAdmin {
		return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{
			Success: false,
			Code:    "FORBIDDEN",
			Error:   "Admin privileges required",
		})
	}

	return c.Next()
}
