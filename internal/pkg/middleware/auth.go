package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/mediabridge/internal/pkg/usercontext"
)

// RequireAccount ensures a verified account for mutating API routes and returns JSON 401 otherwise.
func RequireAccount(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "valid bearer token required",
		})
	}
	return c.Next()
}
