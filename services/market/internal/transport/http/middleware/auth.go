package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/book-market/pkg/auth"
	"github.com/sakashimaa/book-market/services/market/internal/domain"
)

const (
	LocalUserID = "userId"
	LocalEmail  = "email"
	LocalRole   = "role"
)

type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

func NewAuthMiddleware(validator TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: missed header"})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: Invalid header format"})
		}

		claims, err := validator.Validate(parts[1])
		if err != nil || claims.UserID == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: Invalid token"})
		}

		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalEmail, claims.Email)
		c.Locals(LocalRole, claims.Role)
		return c.Next()
	}
}

// CallerFrom reads the identity stored by the auth middleware.
func CallerFrom(c *fiber.Ctx) (domain.Caller, bool) {
	userID, ok := c.Locals(LocalUserID).(int64)
	if !ok || userID == 0 {
		return domain.Caller{}, false
	}

	role, _ := c.Locals(LocalRole).(auth.Role)
	email, _ := c.Locals(LocalEmail).(string)

	return domain.Caller{
		UserID: userID,
		Email:  email,
		Role:   role,
	}, true
}
