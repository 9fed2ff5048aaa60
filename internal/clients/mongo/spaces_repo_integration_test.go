//go:build integration

package mongo

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"space-pulse/internal/config"
	"space-pulse/internal/logger"
	"space-pulse/internal/model"
	"space-pulse/internal/services/spaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startMongo runs a throwaway standalone server and returns its URI.
func startMongo(ctx context.Context, t *testing.T) string {
	t.Helper()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:8.0",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor: wait.ForExec([]string{"mongosh", "--eval", "db.adminCommand('ping')"}).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "27017")
	require.NoError(t, err)
	return fmt.Sprintf("mongodb://%s:%s/", host, port.Port())
}

func newIntegrationRepo(t *testing.T) *SpacesRepo {
	t.Helper()
	ctx := context.Background()
	reset()
	t.Cleanup(reset)

	cfg := config.Config{MongoURI: startMongo(ctx, t), MongoDBName: "spaces_it", LogLevel: "error", LogFormat: "json"}
	log, err := logger.Init(cfg)
	require.NoError(t, err)

	_, db, err := Init(ctx, cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Shutdown(context.Background()) })

	repo, err := NewSpacesRepo(ctx, db)
	require.NoError(t, err)
	return repo
}

var (
	ada = model.UserSnapshot{ID: "u-ada", Name: "Ada", Email: "ada@example.com"}
	bob = model.UserSnapshot{ID: "u-bob", Name: "Bob", Email: "bob@example.com"}
)

func TestSpacesRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	repo := newIntegrationRepo(t)
	ctx := context.Background()

	sp, err := repo.CreateSpace(ctx, spaces.NewSpace{Name: "Launch", Creator: ada})
	require.NoError(t, err)
	require.Len(t, sp.Members, 1)
	assert.Equal(t, model.RoleAdmin, sp.Members[0].Role)

	t.Run("membership", func(t *testing.T) {
		m, err := repo.JoinSpace(ctx, sp.ID, bob)
		require.NoError(t, err)
		assert.Equal(t, model.RoleMember, m.Role)

		_, err = repo.JoinSpace(ctx, sp.ID, bob)
		assert.ErrorIs(t, err, spaces.ErrAlreadyMember)

		_, err = repo.SetMemberRole(ctx, sp.ID, ada.ID, model.RoleMember)
		assert.ErrorIs(t, err, spaces.ErrLastAdmin)

		list, err := repo.ListSpaces(ctx, bob.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Len(t, list[0].Members, 2)

		_, err = repo.GetMember(ctx, sp.ID, "u-nobody")
		assert.ErrorIs(t, err, spaces.ErrNotMember)
	})

	t.Run("notes keep head insertion and explicit order", func(t *testing.T) {
		n1, err := repo.CreateNote(ctx, model.Note{SpaceID: sp.ID, Title: "first"})
		require.NoError(t, err)
		n2, err := repo.CreateNote(ctx, model.Note{SpaceID: sp.ID, Title: "second", Blocks: []model.NoteBlock{{ID: "b1", Type: model.BlockText, Content: "x"}}})
		require.NoError(t, err)
		assert.Less(t, n2.Rank, n1.Rank)

		got, err := repo.GetSpace(ctx, sp.ID)
		require.NoError(t, err)
		require.Len(t, got.Notes, 2)
		assert.Equal(t, n2.ID, got.Notes[0].ID)

		order, err := repo.ReorderNotes(ctx, sp.ID, []string{n1.ID})
		require.NoError(t, err)
		assert.Equal(t, []string{n1.ID, n2.ID}, order)
		got, err = repo.GetSpace(ctx, sp.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{n1.ID, n2.ID}, []string{got.Notes[0].ID, got.Notes[1].ID})
		assert.Equal(t, 0, got.Notes[0].Rank)

		updated, err := repo.UpdateNote(ctx, model.Note{ID: n2.ID, SpaceID: sp.ID, Title: "second v2"})
		require.NoError(t, err)
		assert.Equal(t, "second v2", updated.Title)
		assert.Empty(t, updated.Blocks)
		assert.Equal(t, 1, updated.Rank)

		_, err = repo.ReorderNotes(ctx, sp.ID, []string{n1.ID, "0123456789abcdef01234567"})
		assert.ErrorIs(t, err, spaces.ErrInvalidOrder)
		require.NoError(t, repo.DeleteNote(ctx, sp.ID, n1.ID))
		assert.ErrorIs(t, repo.DeleteNote(ctx, sp.ID, n1.ID), spaces.ErrNoteNotFound)
	})

	t.Run("messages keep kind", func(t *testing.T) {
		_, err := repo.CreateMessage(ctx, model.Message{SpaceID: sp.ID, Content: "hello", Kind: model.KindText})
		require.NoError(t, err)
		_, err = repo.CreateMessage(ctx, model.Message{SpaceID: sp.ID, Content: "Bob joined", Kind: model.KindActivity})
		require.NoError(t, err)

		got, err := repo.GetSpace(ctx, sp.ID)
		require.NoError(t, err)
		require.Len(t, got.Messages, 2)
		assert.Equal(t, model.KindActivity, got.Messages[1].Kind)
		assert.Equal(t, "Bob joined", got.Messages[1].Content)
	})

	t.Run("info patch", func(t *testing.T) {
		desc := "weekly"
		got, err := repo.UpdateSpaceInfo(ctx, sp.ID, model.SpaceInfo{Description: &desc})
		require.NoError(t, err)
		require.NotNil(t, got.Description)
		assert.Equal(t, "Launch", got.Name)

		empty := ""
		got, err = repo.UpdateSpaceInfo(ctx, sp.ID, model.SpaceInfo{Description: &empty})
		require.NoError(t, err)
		assert.Nil(t, got.Description)
	})

	t.Run("last admin leaving promotes, last member leaving deletes", func(t *testing.T) {
		res, err := repo.LeaveSpace(ctx, sp.ID, ada.ID)
		require.NoError(t, err)
		assert.False(t, res.SpaceDeleted)
		require.Len(t, res.Members, 1)
		assert.Equal(t, model.RoleAdmin, res.Members[0].Role)

		res, err = repo.LeaveSpace(ctx, sp.ID, bob.ID)
		require.NoError(t, err)
		assert.True(t, res.SpaceDeleted)

		_, err = repo.GetSpace(ctx, sp.ID)
		assert.ErrorIs(t, err, spaces.ErrSpaceNotFound)
	})
}

func TestSpacesRepo_ConcurrentLeaveDeletesOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	repo := newIntegrationRepo(t)
	ctx := context.Background()

	sp, err := repo.CreateSpace(ctx, spaces.NewSpace{Name: "Race", Creator: ada})
	require.NoError(t, err)
	_, err = repo.JoinSpace(ctx, sp.ID, bob)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]model.LeaveResult, 2)
	for i, u := range []string{ada.ID, bob.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := repo.LeaveSpace(ctx, sp.ID, u)
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	deleted := 0
	for _, r := range results {
		if r.SpaceDeleted {
			deleted++
		}
	}
	assert.Equal(t, 1, deleted, "exactly one leaver observes the empty space")
}
