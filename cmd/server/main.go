package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mongo "space-pulse/internal/clients/mongo"
	"space-pulse/internal/clients/postgres"
	"space-pulse/internal/config"
	"space-pulse/internal/logger"
	"space-pulse/internal/services/spaces"

	"github.com/grafana/pyroscope-go"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Create bootstrap logger for early errors
	bootstrapLog := log.New(os.Stderr, "bootstrap: ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		bootstrapLog.Printf("config load failed: %v", err)
		os.Exit(1)
	}

	logg, err := logger.Init(cfg)
	if err != nil {
		bootstrapLog.Printf("logger init failed: %v", err)
		os.Exit(1)
	}

	if cfg.PyroscopeAddress != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "space-pulse",
			ServerAddress:   cfg.PyroscopeAddress,
			Logger:          nil,
		})
		if err != nil {
			logg.Warn("pyroscope start failed", "error", err)
		} else {
			defer func() { _ = profiler.Stop() }()
		}
	}

	gw, closeStore, err := openStore(ctx, cfg, logg)
	if err != nil {
		logg.Error("store init", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}

	srv, err := setupRouter(cfg, gw, logg)
	if err != nil {
		logg.Error("router setup", "err", err)
		os.Exit(1)
	}

	logg.Info("starting SpacePulse", "port", cfg.AppPort, "store", cfg.StoreDriver)
	portStr := fmt.Sprintf(":%d", cfg.AppPort)

	g.Go(func() error {
		err := srv.app.Listen(portStr)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	// Graceful shutdown
	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()

		// closing the hub ends every stream so Shutdown does not wait on them
		srv.hub.Close()
		if err := srv.app.ShutdownWithContext(shutdownCtx); err != nil {
			return err
		}
		return closeStore(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error("fatal", "err", err)
		os.Exit(1)
	}
	logg.Info("graceful shutdown complete")
}

// openStore connects the gateway selected by STORE_DRIVER.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (spaces.Gateway, func(context.Context) error, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN, log)
		if err != nil {
			return nil, nil, err
		}
		return store, func(context.Context) error { return store.Close() }, nil

	default:
		_, db, err := mongo.Init(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("connected to mongo", "db", db.Name())

		repo, err := mongo.NewSpacesRepo(ctx, db)
		if err != nil {
			_ = mongo.Shutdown(ctx)
			return nil, nil, fmt.Errorf("%w: %w", spaces.ErrCreateGateway, err)
		}
		return repo, mongo.Shutdown, nil
	}
}
