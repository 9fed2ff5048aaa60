package main

import (
	"log/slog"
	"time"

	"space-pulse/cmd/server/handlers"
	"space-pulse/cmd/server/handlers/httperr"
	spacesHandlers "space-pulse/cmd/server/handlers/spaces"
	"space-pulse/cmd/server/middlewares"
	"space-pulse/internal/config"
	"space-pulse/internal/realtime"
	"space-pulse/internal/services/auth"
	"space-pulse/internal/services/spaces"
	util "space-pulse/internal/utils"

	_ "space-pulse/docs" // Load swagger docs

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
)

const (
	RateLimitExpiration = 1 * time.Minute
)

// server is everything main needs to run and stop the API.
type server struct {
	app *fiber.App
	hub *realtime.Hub
}

// setupRouter configures the Fiber app on top of gw.
func setupRouter(cfg config.Config, gw spaces.Gateway, log *slog.Logger) (*server, error) {
	v, err := util.NewValidator()
	if err != nil {
		return nil, err
	}

	authSvc, err := auth.NewService(cfg, log)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: httperr.Handler,
		Immutable:    true, // make Fiber copy all request-derived strings
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Content-Type, Authorization",
	}))

	rtMetrics := realtime.NewMetrics()
	if cfg.RouteMetricsEnabled {
		middlewares.AttachMetrics(app, rtMetrics.Collectors()...)
	}

	hub := realtime.NewHub(cfg.WSOutboxBuffer, rtMetrics)
	pub := realtime.NewPublisher(hub, rtMetrics, log)
	svc := spaces.NewService(gw, pub, log)

	// Health check endpoint, outside versioned API to appease scanners and to avoid logging
	app.Get("/healthz", handlers.Healthz(svc))

	app.Get("/docs/*", swagger.HandlerDefault)

	var v1 fiber.Router
	if cfg.RequestLoggingEnabled {
		v1 = app.Group("/api/v1", fiberlogger.New())
		log.Info("request logging enabled")
	} else {
		v1 = app.Group("/api/v1")
		log.Info("request logging disabled")
	}

	protected := v1.Group("", middlewares.JWT(authSvc), middlewares.MutationLimiter(cfg.MutationRatePerMin, RateLimitExpiration))
	protected.Get("/me", handlers.Me)
	spacesHandlers.NewHandlers(svc, v).Register(protected)

	stream := spacesHandlers.NewStreamHandlers(hub, pub, gw, authSvc, cfg.WSMaxSessionSec)
	app.Get("/ws/stream",
		middlewares.ConnectLimiter(cfg.WSConnectRatePerMin, RateLimitExpiration),
		stream.WSUpgrade,
		websocket.New(stream.WSStream),
	)

	return &server{app: app, hub: hub}, nil
}
