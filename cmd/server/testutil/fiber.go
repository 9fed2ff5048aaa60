package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"space-pulse/cmd/server/handlers/httperr"
	"space-pulse/internal/config"
	"space-pulse/internal/logger"
	"space-pulse/internal/model"
	"space-pulse/internal/services/auth"
	util "space-pulse/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

// TestSecret signs every token issued by tests.
const TestSecret = "test-secret-key-with-32-characters"

// CreateTestApp creates a basic Fiber app for testing with common configuration
func CreateTestApp(t *testing.T) *fiber.App {
	t.Helper()
	cfg := config.Config{LogLevel: "debug", LogFormat: "text"}
	_, err := logger.Init(cfg)
	require.NoError(t, err)

	return fiber.New(fiber.Config{
		ErrorHandler: httperr.Handler,
	})
}

// CreateTestValidator creates a validator with the custom tags registered
func CreateTestValidator(t *testing.T) *validator.Validate {
	t.Helper()
	v, err := util.NewValidator()
	require.NoError(t, err)
	return v
}

// CreateTestAuth returns a token service signing with TestSecret.
func CreateTestAuth(t *testing.T) *auth.Service {
	t.Helper()
	s, err := auth.NewService(config.Config{JWTAlgorithm: "HS256", JWTSecret: TestSecret}, nil)
	require.NoError(t, err)
	return s
}

// CreateTestJWT creates a JWT token for user signed with TestSecret.
func CreateTestJWT(t *testing.T, user model.UserSnapshot, expiry time.Duration) string {
	t.Helper()
	token, err := CreateTestAuth(t).Issue(user, expiry)
	require.NoError(t, err)
	return token
}

// CreateJSONRequest creates an HTTP request with JSON body
func CreateJSONRequest(method, url string, body any) *http.Request {
	var reqBody []byte
	if body != nil {
		reqBody, _ = json.Marshal(body)
	}

	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// CreateAuthenticatedRequest creates an HTTP request with Authorization header
func CreateAuthenticatedRequest(method, url string, body any, token string) *http.Request {
	req := CreateJSONRequest(method, url, body)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// CreateWebSocketRequest creates an HTTP request with WebSocket upgrade headers
func CreateWebSocketRequest(url string, token *string) *http.Request {
	requestURL := url
	if token != nil {
		requestURL += "?token=" + *token
	}

	req := httptest.NewRequest("GET", requestURL, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	return req
}
