package postgres

import (
	"errors"
	"testing"
	"time"

	"space-pulse/internal/model"
	"space-pulse/internal/services/spaces"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func strp(s string) *string { return &s }

func TestBlockRowsRoundTripKeepsOrder(t *testing.T) {
	noteID := uuid.New()
	blocks := []model.NoteBlock{
		{ID: "b1", Type: model.BlockHeading, Content: "Plan"},
		{ID: "b2", Type: model.BlockTodo, TodoTitle: strp("Today"), Items: []model.NoteBlockItem{
			{ID: "i1", Text: "write"},
			{ID: "i2", Text: "review", Done: true, Description: strp("before lunch")},
		}},
		{ID: "b3", Type: model.BlockText, Content: "done"},
	}

	rows := blockRows(noteID, blocks)
	require.Len(t, rows, 3)
	for i, r := range rows {
		assert.Equal(t, noteID, r.NoteID)
		assert.Equal(t, i, r.Position)
	}
	assert.Equal(t, 1, rows[1].Items[1].Position)

	note := noteRow{ID: noteID, SpaceID: uuid.New(), Title: "T", Blocks: rows}.toModel()
	assert.Equal(t, noteID.String(), note.ID)
	assert.Equal(t, blocks, note.Blocks)
}

func TestNoteRowWithoutBlocks(t *testing.T) {
	note := noteRow{ID: uuid.New(), SpaceID: uuid.New(), Title: "Empty"}.toModel()
	assert.NotNil(t, note.Blocks)
	assert.Empty(t, note.Blocks)
}

func TestMemberRowConversion(t *testing.T) {
	spaceID := uuid.New()
	joined := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m := model.Member{
		UserID:   "u1",
		Role:     model.RoleAdmin,
		JoinedAt: joined,
		User:     model.UserSnapshot{ID: "u1", Name: "Ada", Username: "ada", Email: "ada@example.com"},
	}

	row := memberFromModel(spaceID, m)
	assert.Equal(t, "ADMIN", row.Role)

	back := row.toModel()
	m.SpaceID = spaceID.String()
	assert.Equal(t, m, back)
}

func TestMessageRowDecodesActivity(t *testing.T) {
	row := messageRow{
		ID:         uuid.New(),
		SpaceID:    uuid.New(),
		Content:    model.EncodeContent(model.KindActivity, "Ada joined"),
		AuthorName: "Ada",
	}
	msg := row.toModel()
	assert.Equal(t, model.KindActivity, msg.Kind)
	assert.Equal(t, "Ada joined", msg.Content)
	assert.Equal(t, "Ada", msg.Author.Name)
}

func TestSpaceRowEmptyCollections(t *testing.T) {
	sp := spaceRow{ID: uuid.New(), Name: "Crew"}.toModel()
	assert.NotNil(t, sp.Members)
	assert.NotNil(t, sp.Messages)
	assert.NotNil(t, sp.Notes)
}

func TestMalformedIDs(t *testing.T) {
	_, err := parseSpaceID("not-a-uuid")
	assert.ErrorIs(t, err, spaces.ErrSpaceNotFound)

	_, err = parseNoteID("draft")
	assert.ErrorIs(t, err, spaces.ErrNoteNotFound)

	id := uuid.New()
	got, err := parseSpaceID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestNotFoundAs(t *testing.T) {
	assert.ErrorIs(t, notFoundAs(gorm.ErrRecordNotFound, spaces.ErrNoteNotFound), spaces.ErrNoteNotFound)

	other := errors.New("boom")
	assert.Same(t, other, notFoundAs(other, spaces.ErrNoteNotFound))
}

func TestCanonicalIDs(t *testing.T) {
	id := uuid.New()
	urn := "urn:uuid:" + id.String()
	assert.Equal(t, []string{id.String(), "bogus"}, canonical([]string{urn, "bogus"}))
}

func TestStoredTimeMicroseconds(t *testing.T) {
	in := time.Date(2025, 1, 2, 3, 4, 5, 123456789, time.FixedZone("X", 3600))
	out := storedTime(in)
	assert.Equal(t, time.UTC, out.Location())
	assert.Equal(t, 123456000, out.Nanosecond())
}
