package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v3"

	"github.com/darzihub/darzi-notify/app/dto"
	"github.com/darzihub/darzi-notify/config"
)

// APIKey returns a middleware that guards admin routes with a static key.
// Keys are compared in constant time.
func APIKey(cfg config.SecurityConfig) fiber.Handler {
	return func(c fiber.Ctx) error {
		if !cfg.RequireAPIKey {
			return c.Next()
		}
		presented := c.Get(cfg.APIKeyHeader)
		if presented != "" {
			for _, allowed := range cfg.AllowedAPIKeys {
				if subtle.ConstantTimeCompare([]byte(presented), []byte(allowed)) == 1 {
					return c.Next()
				}
			}
		}
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid or missing API key",
			Error: dto.ErrorDetail{
				Code: "UNAUTHORIZED",
			},
		})
	}
}
