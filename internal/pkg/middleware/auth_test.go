package middleware

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/mediabridge/internal/pkg/usercontext"
)

type staticVerifier map[string]string

func (s staticVerifier) VerifyToken(token string) (string, error) {
	if account, ok := s[token]; ok {
		return account, nil
	}
	return "", errors.New("invalid token")
}

func newTestApp() *fiber.App {
	app := fiber.New()
	app.Use(UserContextMiddleware(staticVerifier{"good": "acct-1"}))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(usercontext.GetAccountID(c))
	})
	app.Put("/protected", RequireAccount, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestUserContextMiddleware(t *testing.T) {
	app := newTestApp()

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"no header", "", ""},
		{"valid token", "Bearer good", "acct-1"},
		{"lowercase scheme", "bearer good", "acct-1"},
		{"invalid token", "Bearer bad", ""},
		{"basic auth", "Basic Z29vZA==", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			body, _ := io.ReadAll(resp.Body)
			assert.Equal(t, tt.want, string(body))
		})
	}
}

func TestRequireAccount(t *testing.T) {
	app := newTestApp()

	req := httptest.NewRequest("PUT", "/protected", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("PUT", "/protected", nil)
	req.Header.Set("Authorization", "Bearer good")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}
