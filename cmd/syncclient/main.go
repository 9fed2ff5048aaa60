// cmd/syncclient runs one headless client session against a server and logs how its
// replica converges as events arrive.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"space-pulse/internal/clients/api"
	"space-pulse/internal/clients/wsclient"
	"space-pulse/internal/config"
	"space-pulse/internal/logger"
	"space-pulse/internal/model"
	"space-pulse/internal/replica"
	"space-pulse/internal/services/auth"
	"space-pulse/internal/session"

	"github.com/oklog/ulid/v2"
)

var (
	baseURL  = flag.String("url", env("API_BASE_URL", "http://localhost:8080"), "Server base URL")
	token    = flag.String("token", os.Getenv("TOKEN"), "Bearer token; a dev token is signed from JWT_SECRET when empty")
	codec    = flag.String("codec", env("STREAM_CODEC", "json"), "Stream codec: json or cbor")
	spaceID  = flag.String("space", "", "Space to select after start")
	say      = flag.String("say", "", "Message to send to the selected space")
	duration = flag.Duration("for", 0, "Stop after this long, 0 runs until interrupted")
)

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		fmt.Fprintln(os.Stderr, "FATAL:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logger.Init(cfg)
	if err != nil {
		return err
	}

	if *token == "" {
		if *token, err = devToken(cfg, log); err != nil {
			return err
		}
	}

	client := api.New(*baseURL, *token, api.WithLogger(log))
	me, err := client.Me(ctx)
	if err != nil {
		return fmt.Errorf("who am i: %w", err)
	}

	tr, err := wsclient.Dial(ctx, *baseURL, *token, *codec, log)
	if err != nil {
		return err
	}
	defer func() { _ = tr.Close() }()

	sess := session.New(client, tr, me.ID, log)
	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()

	log.Info("session started", "user_id", me.ID, "username", me.Username, "codec", *codec)

	if *spaceID != "" {
		if err := sess.SelectSpace(ctx, *spaceID); err != nil {
			return err
		}
		if *say != "" {
			if err := sess.SendMessage(ctx, *spaceID, *say); err != nil {
				log.Warn("send failed", "space_id", *spaceID, "error", err)
			}
		}
	}

	for {
		select {
		case st, ok := <-sess.Updates():
			if !ok {
				return <-runErr
			}
			logState(log, st)
		case <-tr.Done():
			return fmt.Errorf("stream lost: %w", tr.Err())
		case err := <-runErr:
			return err
		}
	}
}

// devToken signs a token for a throwaway user. The server must share JWT_SECRET.
func devToken(cfg config.Config, log *slog.Logger) (string, error) {
	tokens, err := auth.NewService(cfg, log)
	if err != nil {
		return "", err
	}
	id := ulid.Make().String()
	user := model.UserSnapshot{
		ID:       id,
		Name:     "Sync Client",
		Username: "sync-" + id[len(id)-6:],
		Email:    "sync-" + id[len(id)-6:] + "@example.com",
	}
	return tokens.Issue(user, 12*time.Hour)
}

func logState(log *slog.Logger, st replica.State) {
	fields := []any{"spaces", len(st.Spaces), "active_space", st.ActiveSpaceID}
	if sp, ok := st.Active(); ok {
		fields = append(fields,
			"members", len(sp.Members),
			"messages", len(sp.Messages),
			"notes", len(sp.Notes),
			"admins", model.AdminCount(sp.Members),
		)
		if n := len(sp.Messages); n > 0 {
			last := sp.Messages[n-1]
			fields = append(fields, "last_message", last.Author.Username+": "+last.Content)
		}
	}
	log.Info("replica updated", fields...)
}
