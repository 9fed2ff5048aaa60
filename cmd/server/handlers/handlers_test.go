package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"space-pulse/cmd/server/ctxkeys"
	"space-pulse/cmd/server/handlers/httperr"
	"space-pulse/internal/config"
	"space-pulse/internal/logger"
	"space-pulse/internal/model"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthz(t *testing.T) {
	tests := []struct {
		name   string
		store  Pinger
		status int
	}{
		{"ok", pingFunc(func(context.Context) error { return nil }), 200},
		{"ping fails", pingFunc(func(context.Context) error { return errors.New("no route") }), 503},
		{"no store", nil, 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/healthz", Healthz(tt.store))

			resp, err := app.Test(httptest.NewRequest("GET", "/healthz", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestMe(t *testing.T) {
	_, err := logger.Init(config.Config{LogLevel: "error", LogFormat: "text"})
	require.NoError(t, err)

	app := fiber.New(fiber.Config{ErrorHandler: httperr.Handler})
	app.Get("/me", func(c *fiber.Ctx) error {
		if c.Get("X-Anon") == "" {
			c.Locals(ctxkeys.PrincipalKey, model.UserSnapshot{ID: "u1", Email: "ada@example.com", Username: "ada"})
		}
		return c.Next()
	}, Me)

	resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	var got model.UserSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "ada", got.Username)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("X-Anon", "1")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}
