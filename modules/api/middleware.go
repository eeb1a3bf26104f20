package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ServiceLocalsKey is the key under which the calling service name is stored.
const ServiceLocalsKey = "service"

// serviceAuthMiddleware guards the collaborator hooks with a Bearer service
// token. Insecure mode lets requests without a token through.
func (m *APIModule) serviceAuthMiddleware(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		if m.config.Auth.Insecure {
			return c.Next()
		}
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   CodeUnauthenticated,
			Message: "Authorization header is required",
		})
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   CodeUnauthenticated,
			Message: "Invalid authorization header format. Use: Bearer <token>",
		})
	}

	service, err := m.auth.VerifyService(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		status := fiber.StatusUnauthorized
		if errors.Is(err, ErrInsufficientScope) {
			status = fiber.StatusForbidden
		}
		return c.Status(status).JSON(ErrorResponse{
			Error:   CodeUnauthenticated,
			Message: err.Error(),
		})
	}

	c.Locals(ServiceLocalsKey, service)
	return c.Next()
}
