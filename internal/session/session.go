// Package session runs one client: it owns the replica, serializes every change to it
// through a single goroutine, and keeps the channel subscriptions in step with the
// selection.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"space-pulse/internal/drafts"
	"space-pulse/internal/events"
	"space-pulse/internal/logger"
	"space-pulse/internal/model"
	"space-pulse/internal/replica"
	"space-pulse/internal/services/spaces"
	"space-pulse/internal/subscriptions"
)

// ErrClosed is returned by intents issued after the session stopped.
var ErrClosed = errors.New("session closed")

// Gateway is the server API as seen by a client.
type Gateway interface {
	ListSpaces(ctx context.Context) ([]model.Space, error)
	GetSpace(ctx context.Context, spaceID string) (model.Space, error)
	CreateSpace(ctx context.Context, req spaces.CreateSpaceRequest) (model.Space, error)
	DeleteSpace(ctx context.Context, spaceID string) error
	JoinSpace(ctx context.Context, spaceID string) (model.Member, error)
	LeaveSpace(ctx context.Context, spaceID string) (model.LeaveResult, error)
	UpdateSpaceInfo(ctx context.Context, spaceID string, req spaces.UpdateSpaceInfoRequest) (model.Space, error)
	SendMessage(ctx context.Context, spaceID string, req spaces.SendMessageRequest) (model.Message, error)
	CreateNote(ctx context.Context, spaceID string, req spaces.NoteRequest) (model.Note, error)
	UpdateNote(ctx context.Context, spaceID, noteID string, req spaces.NoteRequest) (model.Note, error)
	DeleteNote(ctx context.Context, spaceID, noteID string) error
	ReorderNotes(ctx context.Context, spaceID string, req spaces.ReorderNotesRequest) ([]string, error)
	SetMemberRole(ctx context.Context, spaceID, userID string, req spaces.SetMemberRoleRequest) ([]model.Member, error)
	RemoveMember(ctx context.Context, spaceID, userID string) ([]model.Member, error)
}

// Session is a running client.
type Session struct {
	gw     Gateway
	subs   *subscriptions.Controller
	drafts *drafts.Store
	log    *slog.Logger

	cmds    chan command
	updates chan replica.State
	done    chan struct{}

	mu       sync.RWMutex
	snapshot replica.State
}

// New creates a session for userID. Run must be called to start it.
func New(gw Gateway, tr subscriptions.Transport, userID string, log *slog.Logger) *Session {
	s := &Session{
		gw:       gw,
		drafts:   drafts.NewStore(),
		log:      logger.Or(log),
		cmds:     make(chan command, 64),
		updates:  make(chan replica.State, 1),
		done:     make(chan struct{}),
		snapshot: replica.New(userID),
	}
	s.subs = subscriptions.New(tr, s.Deliver, s.log)
	return s
}

// Updates delivers a snapshot after every change. Only the latest snapshot is kept when the
// reader falls behind.
func (s *Session) Updates() <-chan replica.State {
	return s.updates
}

// Snapshot returns the current replica.
func (s *Session) Snapshot() replica.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Run subscribes to the global channel, loads the space list and processes commands until
// ctx is done.
func (s *Session) Run(ctx context.Context) error {
	defer func() {
		close(s.done)
		s.subs.Close()
		close(s.updates)
	}()

	s.subs.Start()
	go s.refresh(ctx)

	st := s.Snapshot()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-s.cmds:
			st = s.step(ctx, st, cmd)
		}
	}
}

// step runs one command. A panic in a merge rule is contained to that command.
func (s *Session) step(ctx context.Context, st replica.State, cmd command) (next replica.State) {
	prev := st
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("command panicked, state kept", "command", fmt.Sprintf("%T", cmd), "panic", r)
			next = prev
		}
	}()

	next = cmd.exec(st)

	// An explicit selection always reaches the controller: selecting the space whose
	// subscribe failed must retry it, and Select is a no-op once the space is subscribed.
	sel, selecting := cmd.(selectSpaceCmd)
	if selecting || next.ActiveSpaceID != prev.ActiveSpaceID {
		s.subs.Select(next.ActiveSpaceID)
	}
	if selecting && sel.spaceID != "" && next.ActiveSpaceID == sel.spaceID {
		go s.refetch(ctx, sel.spaceID)
	}

	s.publish(next)
	return next
}

func (s *Session) publish(st replica.State) {
	s.mu.Lock()
	s.snapshot = st
	s.mu.Unlock()

	// Latest wins: replace an unread snapshot rather than block the loop.
	select {
	case <-s.updates:
	default:
	}
	s.updates <- st
}

func (s *Session) enqueue(ctx context.Context, cmd command) error {
	select {
	case s.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// Deliver feeds one transport event into the session.
func (s *Session) Deliver(in replica.Inbound) {
	if err := s.enqueue(context.Background(), inboundCmd{in: in}); err != nil {
		s.log.Debug("inbound event after close", "channel", string(in.Channel))
	}
}

// Flush waits until every command queued so far has been applied.
func (s *Session) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if err := s.enqueue(ctx, flushCmd{done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

func (s *Session) respond(ctx context.Context, op string, fn func(replica.State) replica.State) {
	if err := s.enqueue(ctx, responseCmd{op: op, fn: fn}); err != nil {
		s.log.Debug("response dropped", "op", op, "error", err)
	}
}

func (s *Session) refresh(ctx context.Context) {
	list, err := s.gw.ListSpaces(ctx)
	if err != nil {
		s.log.Warn("space list fetch failed", "error", err)
		return
	}
	s.respond(ctx, "list", func(st replica.State) replica.State {
		return replica.SetSpaces(st, list)
	})
}

// refetch reloads a selected space. It runs after the subscription is open so that nothing
// published in between is missed.
func (s *Session) refetch(ctx context.Context, spaceID string) {
	sp, err := s.gw.GetSpace(ctx, spaceID)
	if err != nil {
		s.log.Warn("space refetch failed", "space_id", spaceID, "error", err)
		return
	}
	s.respond(ctx, "refetch", func(st replica.State) replica.State {
		return replica.PutSpace(st, sp)
	})
}

// Refresh reloads the space list.
func (s *Session) Refresh(ctx context.Context) {
	s.refresh(ctx)
}

// SelectSpace makes spaceID the active space, or clears the selection with "".
func (s *Session) SelectSpace(ctx context.Context, spaceID string) error {
	return s.enqueue(ctx, selectSpaceCmd{spaceID: spaceID})
}

// SelectNote opens a note of the active space.
func (s *Session) SelectNote(ctx context.Context, noteID string) error {
	return s.enqueue(ctx, selectNoteCmd{noteID: noteID})
}

// ToggleBlock collapses or expands one note block locally.
func (s *Session) ToggleBlock(ctx context.Context, spaceID, noteID, blockID string) error {
	return s.enqueue(ctx, toggleBlockCmd{spaceID: spaceID, noteID: noteID, blockID: blockID})
}

// apply merges a confirmed change the same way its echo would be merged.
func (s *Session) apply(ctx context.Context, op string, ch events.Channel, ev events.Event) {
	s.respond(ctx, op, func(st replica.State) replica.State {
		return replica.Apply(st, replica.Inbound{Channel: ch, Event: ev})
	})
}

// CreateSpace creates a space and adds it to the replica.
func (s *Session) CreateSpace(ctx context.Context, req spaces.CreateSpaceRequest) (model.Space, error) {
	sp, err := s.gw.CreateSpace(ctx, req)
	if err != nil {
		return model.Space{}, err
	}
	s.respond(ctx, "create-space", func(st replica.State) replica.State {
		return replica.AddSpace(st, sp)
	})
	return sp, nil
}

// DeleteSpace deletes a space.
func (s *Session) DeleteSpace(ctx context.Context, spaceID string) error {
	if err := s.gw.DeleteSpace(ctx, spaceID); err != nil {
		return err
	}
	s.apply(ctx, "delete-space", events.Global, events.SpaceDeleted{SpaceID: spaceID})
	return nil
}

// JoinSpace joins a space and loads it.
func (s *Session) JoinSpace(ctx context.Context, spaceID string) error {
	if _, err := s.gw.JoinSpace(ctx, spaceID); err != nil {
		return err
	}
	sp, err := s.gw.GetSpace(ctx, spaceID)
	if err != nil {
		return err
	}
	s.respond(ctx, "join", func(st replica.State) replica.State {
		return replica.PutSpace(replica.AddSpace(st, sp), sp)
	})
	return nil
}

// LeaveSpace leaves a space and drops it from the replica.
func (s *Session) LeaveSpace(ctx context.Context, spaceID string) error {
	if _, err := s.gw.LeaveSpace(ctx, spaceID); err != nil {
		return err
	}
	s.respond(ctx, "leave", func(st replica.State) replica.State {
		return replica.RemoveSpace(st, spaceID)
	})
	return nil
}

// UpdateSpaceInfo patches space metadata.
func (s *Session) UpdateSpaceInfo(ctx context.Context, spaceID string, req spaces.UpdateSpaceInfoRequest) error {
	sp, err := s.gw.UpdateSpaceInfo(ctx, spaceID, req)
	if err != nil {
		return err
	}
	s.apply(ctx, "update-space", events.SpaceChannel(spaceID), events.SpaceInfoUpdated{
		SpaceID:     spaceID,
		Name:        sp.Name,
		Description: emptyIfNil(sp.Description),
		Icon:        emptyIfNil(sp.Icon),
	})
	return nil
}

// SendMessage posts a chat message.
func (s *Session) SendMessage(ctx context.Context, spaceID, content string) error {
	msg, err := s.gw.SendMessage(ctx, spaceID, spaces.SendMessageRequest{Content: content})
	if err != nil {
		return err
	}
	s.apply(ctx, "send-message", events.SpaceChannel(spaceID), events.MessageNew{Message: msg})
	return nil
}

// BeginDraft opens a local draft note in spaceID.
func (s *Session) BeginDraft(spaceID, title string) model.Note {
	return s.drafts.Begin(spaceID, title)
}

// Draft returns the open draft of spaceID.
func (s *Session) Draft(spaceID string) (model.Note, bool) {
	return s.drafts.Get(spaceID)
}

// EditDraft replaces the draft's content.
func (s *Session) EditDraft(spaceID, title string, blocks []model.NoteBlock) (model.Note, error) {
	return s.drafts.Edit(spaceID, title, blocks)
}

// CancelDraft discards the draft without contacting the server.
func (s *Session) CancelDraft(spaceID string) {
	s.drafts.Cancel(spaceID)
}

// CommitDraft persists the draft and selects the confirmed note. The note itself is left to
// its note:created echo; the selection points at it until the echo lands.
func (s *Session) CommitDraft(ctx context.Context, spaceID string) (model.Note, error) {
	n, err := s.drafts.Commit(ctx, spaceID, creator{s.gw})
	if err != nil {
		return model.Note{}, err
	}
	s.respond(ctx, "select-note", func(st replica.State) replica.State {
		if st.ActiveSpaceID != spaceID {
			return st
		}
		return replica.SelectNote(st, n.ID)
	})
	return n, nil
}

// UpdateNote replaces a note's content.
func (s *Session) UpdateNote(ctx context.Context, spaceID, noteID string, req spaces.NoteRequest) error {
	n, err := s.gw.UpdateNote(ctx, spaceID, noteID, req)
	if err != nil {
		return err
	}
	s.apply(ctx, "update-note", events.SpaceChannel(spaceID), events.NoteUpdated{SpaceID: spaceID, Note: n})
	return nil
}

// DeleteNote deletes a note.
func (s *Session) DeleteNote(ctx context.Context, spaceID, noteID string) error {
	if err := s.gw.DeleteNote(ctx, spaceID, noteID); err != nil {
		return err
	}
	s.apply(ctx, "delete-note", events.SpaceChannel(spaceID), events.NoteDeleted{SpaceID: spaceID, NoteID: noteID})
	return nil
}

// ReorderNotes sets the note order of a space. The replica takes the complete order the
// server answers with, not ids.
func (s *Session) ReorderNotes(ctx context.Context, spaceID string, ids []string) error {
	order, err := s.gw.ReorderNotes(ctx, spaceID, spaces.ReorderNotesRequest{OrderedIDs: ids})
	if err != nil {
		return err
	}
	s.apply(ctx, "reorder-notes", events.SpaceChannel(spaceID), events.NotesReordered{SpaceID: spaceID, OrderedIDs: order})
	return nil
}

// SetMemberRole changes a member's role.
func (s *Session) SetMemberRole(ctx context.Context, spaceID, userID string, role model.Role) error {
	members, err := s.gw.SetMemberRole(ctx, spaceID, userID, spaces.SetMemberRoleRequest{Role: role})
	if err != nil {
		return err
	}
	s.apply(ctx, "set-role", events.SpaceChannel(spaceID), events.MemberRoleChanged{SpaceID: spaceID, TargetUserID: userID, Role: role, Members: members})
	return nil
}

// RemoveMember removes another member.
func (s *Session) RemoveMember(ctx context.Context, spaceID, userID string) error {
	members, err := s.gw.RemoveMember(ctx, spaceID, userID)
	if err != nil {
		return err
	}
	s.apply(ctx, "remove-member", events.SpaceChannel(spaceID), events.MemberRemoved{SpaceID: spaceID, TargetUserID: userID, Members: members})
	return nil
}

// creator adapts Gateway to drafts.Creator.
type creator struct {
	gw Gateway
}

func (c creator) CreateNote(ctx context.Context, spaceID string, req spaces.NoteRequest) (model.Note, error) {
	return c.gw.CreateNote(ctx, spaceID, req)
}

func emptyIfNil(v *string) *string {
	s := ""
	if v != nil {
		s = *v
	}
	return &s
}
