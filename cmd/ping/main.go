// cmd/ping is a container health probe: exit 0 when /healthz reports ok.
//
//	HEALTHCHECK CMD ["/ping"]
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"space-pulse/internal/clients/api"
)

const (
	defaultPort          = 8080
	expectedHealthStatus = "ok"
	requestTimeout       = 2 * time.Second

	// exit codes
	codeRequestFailed     = 2
	codeBadHTTPStatus     = 3
	codeReportedUnhealthy = 5
)

func main() {
	port := detectPort()
	client := api.New(fmt.Sprintf("http://localhost:%d", port), "",
		api.WithHTTPClient(&http.Client{Timeout: requestTimeout}))

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	status, err := client.Health(ctx)
	var apiErr *api.Error
	switch {
	case errors.As(err, &apiErr):
		fail(codeBadHTTPStatus, "unexpected HTTP status %d (%s)", apiErr.Status, apiErr.Message)
	case err != nil:
		fail(codeRequestFailed, "request failed: %v", err)
	case status != "" && status != expectedHealthStatus:
		fail(codeReportedUnhealthy, "service reported unhealthy: %q", status)
	}

	log.Printf("service healthy on port %d", port)
}

// detectPort parses APP_PORT and falls back to defaultPort.
func detectPort() int {
	if v := os.Getenv("APP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p <= 65535 {
			return p
		}
	}
	return defaultPort
}

// fail logs a message and exits with the given code.
func fail(code int, format string, args ...any) {
	log.Printf(format, args...)
	os.Exit(code)
}
