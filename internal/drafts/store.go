// Package drafts keeps unsaved notes on the client until the user commits them.
//
// A draft never enters the replica. Committing runs the create mutation and hands back the
// confirmed note; the replica learns about it from the note:created echo like every other
// client does.
package drafts

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"space-pulse/internal/model"
	"space-pulse/internal/services/spaces"
)

// ErrNoDraft is returned when the space has no pending draft.
var ErrNoDraft = errors.New("no draft for this space")

// Creator runs the create-note mutation.
type Creator interface {
	CreateNote(ctx context.Context, spaceID string, req spaces.NoteRequest) (model.Note, error)
}

// Store holds at most one draft per space.
type Store struct {
	mu     sync.Mutex
	drafts map[string]model.Note
	now    func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		drafts: make(map[string]model.Note),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Begin opens a draft in spaceID, or returns the one already open.
func (s *Store) Begin(spaceID, title string) model.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.drafts[spaceID]; ok {
		return d
	}
	now := s.now()
	d := model.Note{
		ID:        model.DraftID,
		SpaceID:   spaceID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Blocks:    []model.NoteBlock{},
	}
	s.drafts[spaceID] = d
	return d
}

// Get returns the draft of spaceID.
func (s *Store) Get(spaceID string) (model.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[spaceID]
	return d, ok
}

// Edit replaces title and blocks of the draft.
func (s *Store) Edit(spaceID, title string, blocks []model.NoteBlock) (model.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[spaceID]
	if !ok {
		return model.Note{}, ErrNoDraft
	}
	d.Title = title
	d.Blocks = slices.Clone(blocks)
	d.UpdatedAt = s.now()
	s.drafts[spaceID] = d
	return d, nil
}

// Cancel discards the draft. Nothing is sent anywhere.
func (s *Store) Cancel(spaceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.drafts[spaceID]
	delete(s.drafts, spaceID)
	return ok
}

// Commit persists the draft through c. On success the draft is gone and the confirmed note
// is returned for selection; on failure the draft stays so the user can retry.
func (s *Store) Commit(ctx context.Context, spaceID string, c Creator) (model.Note, error) {
	d, ok := s.Get(spaceID)
	if !ok {
		return model.Note{}, ErrNoDraft
	}

	n, err := c.CreateNote(ctx, spaceID, Request(d))
	if err != nil {
		return model.Note{}, err
	}

	s.Cancel(spaceID)
	return n, nil
}

// Request converts a note into the create/update payload.
func Request(n model.Note) spaces.NoteRequest {
	req := spaces.NoteRequest{Title: n.Title, Blocks: make([]spaces.NoteBlockRequest, 0, len(n.Blocks))}
	for _, b := range n.Blocks {
		br := spaces.NoteBlockRequest{ID: b.ID, Type: b.Type, Content: b.Content, TodoTitle: b.TodoTitle}
		for _, it := range b.Items {
			br.Items = append(br.Items, spaces.NoteItemRequest{ID: it.ID, Text: it.Text, Done: it.Done, Description: it.Description})
		}
		req.Blocks = append(req.Blocks, br)
	}
	return req
}
