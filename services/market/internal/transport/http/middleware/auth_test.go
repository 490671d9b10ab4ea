package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/book-market/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddleware(t *testing.T) {
	tokens, err := auth.NewTokenManager("test-secret", time.Minute)
	require.NoError(t, err)

	valid, err := tokens.Generate(42, "seller@example.com", auth.RoleSeller)
	require.NoError(t, err)

	other, err := auth.NewTokenManager("other-secret", time.Minute)
	require.NoError(t, err)
	forged, err := other.Generate(42, "seller@example.com", auth.RoleAdmin)
	require.NoError(t, err)

	app := fiber.New()
	app.Use(NewAuthMiddleware(tokens))
	app.Get("/me", func(c *fiber.Ctx) error {
		caller, ok := CallerFrom(c)
		if !ok {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		return c.JSON(fiber.Map{"id": caller.UserID, "role": caller.Role, "email": caller.Email})
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid", header: "Bearer " + valid, want: fiber.StatusOK},
		{name: "missing", header: "", want: fiber.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + valid, want: fiber.StatusUnauthorized},
		{name: "forged", header: "Bearer " + forged, want: fiber.StatusUnauthorized},
		{name: "garbage", header: "Bearer abc.def.ghi", want: fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestCallerFrom_NoLocals(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		_, ok := CallerFrom(c)
		assert.False(t, ok)
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}
