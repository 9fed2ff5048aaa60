// cmd/initdata seeds a running server with fake spaces, members, messages and notes.
// Tokens are signed locally with JWT_SECRET, so it only works against a server that shares
// the secret (or DEV_MODE on both sides).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"space-pulse/internal/clients/api"
	"space-pulse/internal/config"
	"space-pulse/internal/logger"
	"space-pulse/internal/model"
	"space-pulse/internal/services/auth"
	"space-pulse/internal/services/spaces"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/oklog/ulid/v2"
)

// ----------------------------------------------------------------------------
// Config ---------------------------------------------------------------------
var (
	baseURL   = flag.String("url", env("API_BASE_URL", "http://localhost:8080"), "Server base URL")
	nUsers    = flag.Int("users", envInt("USERS", 4), "How many fake users to create")
	nSpaces   = flag.Int("spaces", envInt("SPACES", 3), "How many spaces to create")
	nMessages = flag.Int("messages", envInt("MESSAGES", 40), "Messages per space")
	nNotes    = flag.Int("notes", envInt("NOTES", 8), "Notes per space")
	seed      = flag.Int64("seed", 0, "Fake data seed, 0 picks one from the clock")
)

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscan(v, &i); err == nil && i > 0 {
			return i
		}
	}
	return def
}

type actor struct {
	user   model.UserSnapshot
	client *api.Client
}

// ----------------------------------------------------------------------------
// Main -----------------------------------------------------------------------
func main() {
	flag.Parse()
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	gofakeit.Seed(*seed)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx); err != nil {
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
	tokens, err := auth.NewService(cfg, log)
	if err != nil {
		return err
	}

	fmt.Printf("Seeding %s (users=%d spaces=%d messages=%d notes=%d seed=%d)\n",
		*baseURL, *nUsers, *nSpaces, *nMessages, *nNotes, *seed)

	if status, err := api.New(*baseURL, "").Health(ctx); err != nil {
		return fmt.Errorf("server not healthy (%s): %w", status, err)
	}

	actors := make([]actor, 0, max(*nUsers, 1))
	for i := 0; i < max(*nUsers, 1); i++ {
		u := fakeUser()
		token, err := tokens.Issue(u, auth.DefaultTTL)
		if err != nil {
			return err
		}
		actors = append(actors, actor{user: u, client: api.New(*baseURL, token, api.WithLogger(log))})
		fmt.Printf("  user %-24s token=%s\n", u.Username, token)
	}

	for i := 0; i < *nSpaces; i++ {
		if err := seedSpace(ctx, actors); err != nil {
			return err
		}
	}
	fmt.Println("Done.")
	return nil
}

func fakeUser() model.UserSnapshot {
	p := gofakeit.Person()
	username := strings.ToLower(p.FirstName + "." + p.LastName)
	return model.UserSnapshot{
		ID:       ulid.Make().String(),
		Name:     p.FirstName + " " + p.LastName,
		Username: username,
		Email:    username + "@example.com",
		Avatar:   p.Image,
	}
}

// seedSpace creates one space owned by a random actor, lets everyone join and fills it.
func seedSpace(ctx context.Context, actors []actor) error {
	owner := actors[gofakeit.Number(0, len(actors)-1)]
	desc := gofakeit.HackerPhrase()
	icon := gofakeit.Emoji()

	sp, err := owner.client.CreateSpace(ctx, spaces.CreateSpaceRequest{
		Name:        gofakeit.Company() + " " + gofakeit.BuzzWord(),
		Description: &desc,
		Icon:        &icon,
	})
	if err != nil {
		return fmt.Errorf("create space: %w", err)
	}

	for _, a := range actors {
		if a.user.ID == owner.user.ID {
			continue
		}
		if _, err := a.client.JoinSpace(ctx, sp.ID); err != nil {
			return fmt.Errorf("join %s: %w", sp.ID, err)
		}
	}

	for i := 0; i < *nMessages; i++ {
		a := actors[gofakeit.Number(0, len(actors)-1)]
		if _, err := a.client.SendMessage(ctx, sp.ID, spaces.SendMessageRequest{Content: gofakeit.Sentence(gofakeit.Number(3, 18))}); err != nil {
			return fmt.Errorf("message in %s: %w", sp.ID, err)
		}
	}

	ids := make([]string, 0, *nNotes)
	for i := 0; i < *nNotes; i++ {
		a := actors[gofakeit.Number(0, len(actors)-1)]
		n, err := a.client.CreateNote(ctx, sp.ID, fakeNote())
		if err != nil {
			return fmt.Errorf("note in %s: %w", sp.ID, err)
		}
		ids = append(ids, n.ID)
	}
	if len(ids) > 1 {
		gofakeit.ShuffleStrings(ids)
		if _, err := owner.client.ReorderNotes(ctx, sp.ID, spaces.ReorderNotesRequest{OrderedIDs: ids}); err != nil {
			return fmt.Errorf("reorder %s: %w", sp.ID, err)
		}
	}

	fmt.Printf("  space %s %q: %d members, %d messages, %d notes\n", sp.ID, sp.Name, len(actors), *nMessages, len(ids))
	return nil
}

func fakeNote() spaces.NoteRequest {
	blocks := []spaces.NoteBlockRequest{
		{Type: model.BlockHeading, Content: gofakeit.BuzzWord()},
		{Type: model.BlockText, Content: gofakeit.Paragraph(1, gofakeit.Number(2, 5), 12, " ")},
	}
	if gofakeit.Bool() {
		title := "Action items"
		items := make([]spaces.NoteItemRequest, gofakeit.Number(1, 5))
		for i := range items {
			items[i] = spaces.NoteItemRequest{Text: gofakeit.Sentence(5), Done: gofakeit.Bool()}
		}
		blocks = append(blocks, spaces.NoteBlockRequest{Type: model.BlockTodo, TodoTitle: &title, Items: items})
	}
	return spaces.NoteRequest{Title: gofakeit.Sentence(gofakeit.Number(2, 6)), Blocks: blocks}
}
