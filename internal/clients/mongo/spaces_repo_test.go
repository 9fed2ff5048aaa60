package mongo

import (
	"context"
	"testing"
	"time"

	"space-pulse/internal/model"
	"space-pulse/internal/services/spaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestSpaceDocToModel(t *testing.T) {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	doc := spaceDoc{
		ID:        bson.NewObjectID(),
		Name:      "Launch",
		CreatedAt: created,
		Members:   []model.Member{{UserID: "u-ada", Role: model.RoleAdmin}},
	}
	msg := messageDoc{
		ID:      bson.NewObjectID(),
		SpaceID: doc.ID,
		Content: model.EncodeContent(model.KindActivity, "Ada joined the space"),
	}
	note := noteDoc{ID: bson.NewObjectID(), SpaceID: doc.ID, Title: "Plan", Rank: -1}

	sp := doc.toModel([]messageDoc{msg}, []noteDoc{note})

	assert.Equal(t, doc.ID.Hex(), sp.ID)
	assert.Equal(t, doc.ID.Hex(), sp.Members[0].SpaceID, "embedded members carry their space id")
	require.Len(t, sp.Messages, 1)
	assert.Equal(t, model.KindActivity, sp.Messages[0].Kind)
	assert.Equal(t, "Ada joined the space", sp.Messages[0].Content)
	require.Len(t, sp.Notes, 1)
	assert.NotNil(t, sp.Notes[0].Blocks, "blocks never decode to null")

	empty := doc.toModel(nil, nil)
	assert.NotNil(t, empty.Messages)
	assert.NotNil(t, empty.Notes)
}

func TestMalformedIDs(t *testing.T) {
	_, err := spaceOID("nope")
	assert.ErrorIs(t, err, spaces.ErrSpaceNotFound)
	_, err = noteOID("draft")
	assert.ErrorIs(t, err, spaces.ErrNoteNotFound)

	id := bson.NewObjectID()
	got, err := spaceOID(id.Hex())
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestWithRepoTimeout(t *testing.T) {
	t.Run("adds a deadline", func(t *testing.T) {
		ctx, cancel := WithRepoTimeout(context.Background(), time.Second)
		defer cancel()
		_, ok := ctx.Deadline()
		assert.True(t, ok)
	})

	t.Run("keeps a stricter parent deadline", func(t *testing.T) {
		parent, cancelParent := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancelParent()
		ctx, cancel := WithRepoTimeout(parent, time.Minute)
		defer cancel()
		assert.Equal(t, parent, ctx)
	})

	t.Run("canceled parent passes through", func(t *testing.T) {
		parent, cancelParent := context.WithCancel(context.Background())
		cancelParent()
		ctx, cancel := WithRepoTimeout(parent, time.Minute)
		defer cancel()
		assert.Equal(t, parent, ctx)
	})
}

func TestStoredTime(t *testing.T) {
	in := time.Date(2024, 5, 1, 9, 0, 0, 123456789, time.FixedZone("CEST", 2*3600))
	out := storedTime(in)
	assert.Equal(t, time.UTC, out.Location())
	assert.Equal(t, 123000000, out.Nanosecond())
}
