package drafts

import (
	"context"
	"errors"
	"testing"

	"space-pulse/internal/model"
	"space-pulse/internal/services/spaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockCreator is a mock implementation of Creator
type MockCreator struct {
	mock.Mock
}

func (m *MockCreator) CreateNote(ctx context.Context, spaceID string, req spaces.NoteRequest) (model.Note, error) {
	args := m.Called(ctx, spaceID, req)
	return args.Get(0).(model.Note), args.Error(1)
}

func TestStore_BeginIsPerSpaceAndReused(t *testing.T) {
	s := NewStore()

	d := s.Begin("s1", "Untitled")
	assert.True(t, d.IsDraft())
	assert.Equal(t, "s1", d.SpaceID)

	again := s.Begin("s1", "Other")
	assert.Equal(t, "Untitled", again.Title)

	_, ok := s.Get("s2")
	assert.False(t, ok)
}

func TestStore_EditAndCancel(t *testing.T) {
	s := NewStore()
	_, err := s.Edit("s1", "x", nil)
	assert.ErrorIs(t, err, ErrNoDraft)

	s.Begin("s1", "Untitled")
	blocks := []model.NoteBlock{{ID: "b1", Type: model.BlockText, Content: "first"}}
	d, err := s.Edit("s1", "Plan", blocks)
	require.NoError(t, err)
	assert.Equal(t, "Plan", d.Title)

	blocks[0].Content = "mutated by caller"
	got, _ := s.Get("s1")
	assert.Equal(t, "first", got.Blocks[0].Content)

	assert.True(t, s.Cancel("s1"))
	assert.False(t, s.Cancel("s1"))
}

func TestStore_CommitClearsOnSuccess(t *testing.T) {
	s := NewStore()
	s.Begin("s1", "Plan")
	_, err := s.Edit("s1", "Plan", []model.NoteBlock{{ID: "b1", Type: model.BlockTodo, Items: []model.NoteBlockItem{{ID: "i1", Text: "ship"}}}})
	require.NoError(t, err)

	c := new(MockCreator)
	c.On("CreateNote", mock.Anything, "s1", mock.MatchedBy(func(r spaces.NoteRequest) bool {
		return r.Title == "Plan" && len(r.Blocks) == 1 && r.Blocks[0].Items[0].Text == "ship"
	})).Return(model.Note{ID: "n1", SpaceID: "s1", Title: "Plan"}, nil)

	n, err := s.Commit(context.Background(), "s1", c)
	require.NoError(t, err)
	assert.Equal(t, "n1", n.ID)
	_, ok := s.Get("s1")
	assert.False(t, ok)
	c.AssertExpectations(t)
}

func TestStore_CommitFailureKeepsDraft(t *testing.T) {
	s := NewStore()
	s.Begin("s1", "Plan")

	c := new(MockCreator)
	c.On("CreateNote", mock.Anything, "s1", mock.Anything).Return(model.Note{}, errors.New("offline"))

	_, err := s.Commit(context.Background(), "s1", c)
	assert.Error(t, err)
	d, ok := s.Get("s1")
	assert.True(t, ok)
	assert.Equal(t, "Plan", d.Title)

	_, err = s.Commit(context.Background(), "s2", c)
	assert.ErrorIs(t, err, ErrNoDraft)
}
