package spaces

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"space-pulse/internal/events"
	"space-pulse/internal/logger"
	"space-pulse/internal/model"
	"space-pulse/internal/utils/sanitize"

	"github.com/oklog/ulid/v2"
)

// Service handles space business logic. Every mutation is committed through the gateway
// first and published second; a publish failure never undoes a committed change.
type Service struct {
	gw  Gateway
	pub Publisher
	log *slog.Logger
	now func() time.Time
}

// NewService creates a new spaces service
func NewService(gw Gateway, pub Publisher, log *slog.Logger) *Service {
	return &Service{
		gw:  gw,
		pub: pub,
		log: logger.Or(log),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.gw.Ping(ctx)
}

// CreateSpace creates a space with who as its first ADMIN.
func (s *Service) CreateSpace(ctx context.Context, who Principal, req CreateSpaceRequest) (model.Space, error) {
	name := sanitize.Line(req.Name)
	if name == "" {
		return model.Space{}, ErrInvalidInput
	}

	sp, err := s.gw.CreateSpace(ctx, NewSpace{
		Name:        name,
		Description: sanitize.Optional(req.Description),
		Icon:        sanitize.Optional(req.Icon),
		Creator:     who,
	})
	if err != nil {
		return model.Space{}, s.fail(err, ErrCreateSpace, "user_id", who.ID)
	}

	s.publish(ctx, events.Global, events.SpaceCreated{Space: publicSnapshot(sp)})
	return sp, nil
}

// publicSnapshot is sp as announced on the global channel, which every connected user
// hears: member emails are left out.
func publicSnapshot(sp model.Space) model.Space {
	sp.Members = slices.Clone(sp.Members)
	for i := range sp.Members {
		sp.Members[i].User.Email = ""
	}
	return sp
}

// GetSpace returns the full space detail. Only members may read it.
func (s *Service) GetSpace(ctx context.Context, who Principal, spaceID string) (model.Space, error) {
	sp, err := s.gw.GetSpace(ctx, spaceID)
	if err != nil {
		return model.Space{}, s.fail(err, ErrGetSpace, "user_id", who.ID, "space_id", spaceID)
	}
	if _, ok := sp.Member(who.ID); !ok {
		s.log.Info("space read by non-member", "user_id", who.ID, "space_id", spaceID)
		return model.Space{}, ErrNotMember
	}
	return sp, nil
}

// ListSpaces returns the spaces who belongs to.
func (s *Service) ListSpaces(ctx context.Context, who Principal) ([]model.Space, error) {
	list, err := s.gw.ListSpaces(ctx, who.ID)
	if err != nil {
		return nil, s.fail(err, ErrListSpaces, "user_id", who.ID)
	}
	if list == nil {
		list = []model.Space{}
	}
	return list, nil
}

// DeleteSpace removes a space with everything in it. ADMIN only.
func (s *Service) DeleteSpace(ctx context.Context, who Principal, spaceID string) error {
	if _, err := s.requireAdmin(ctx, who, spaceID); err != nil {
		return err
	}
	if err := s.gw.DeleteSpace(ctx, spaceID); err != nil {
		return s.fail(err, ErrDeleteSpace, "user_id", who.ID, "space_id", spaceID)
	}

	s.publish(ctx, events.Global, events.SpaceDeleted{SpaceID: spaceID})
	return nil
}

// JoinSpace adds who to the space as a MEMBER.
func (s *Service) JoinSpace(ctx context.Context, who Principal, spaceID string) (model.Member, error) {
	m, err := s.gw.JoinSpace(ctx, spaceID, who)
	if err != nil {
		return model.Member{}, s.fail(err, ErrJoinSpace, "user_id", who.ID, "space_id", spaceID)
	}

	s.publish(ctx, events.SpaceChannel(spaceID), events.MemberJoined{SpaceID: spaceID, Member: m})
	s.narrate(ctx, who, spaceID, displayName(who)+" joined the space")
	return m, nil
}

// LeaveSpace removes who from the space. The last member leaving deletes the space.
func (s *Service) LeaveSpace(ctx context.Context, who Principal, spaceID string) (model.LeaveResult, error) {
	res, err := s.gw.LeaveSpace(ctx, spaceID, who.ID)
	if err != nil {
		return model.LeaveResult{}, s.fail(err, ErrLeaveSpace, "user_id", who.ID, "space_id", spaceID)
	}

	if res.SpaceDeleted {
		s.log.Info("last member left, space deleted", "user_id", who.ID, "space_id", spaceID)
		s.publish(ctx, events.Global, events.SpaceDeleted{SpaceID: spaceID})
		return res, nil
	}

	s.publish(ctx, events.SpaceChannel(spaceID), events.MemberLeft{SpaceID: spaceID, UserID: who.ID, Members: res.Members})
	s.narrate(ctx, who, spaceID, displayName(who)+" left the space")
	return res, nil
}

// SendMessage posts a chat message.
func (s *Service) SendMessage(ctx context.Context, who Principal, spaceID string, req SendMessageRequest) (model.Message, error) {
	if _, err := s.requireMember(ctx, who, spaceID); err != nil {
		return model.Message{}, err
	}
	content := sanitize.Clean(req.Content)
	if content == "" {
		return model.Message{}, ErrInvalidInput
	}
	return s.post(ctx, who, spaceID, model.KindText, content)
}

// SendActivityMessage posts a system narration line on behalf of who.
func (s *Service) SendActivityMessage(ctx context.Context, who Principal, spaceID, text string) (model.Message, error) {
	if _, err := s.requireMember(ctx, who, spaceID); err != nil {
		return model.Message{}, err
	}
	content := sanitize.Clean(text)
	if content == "" {
		return model.Message{}, ErrInvalidInput
	}
	return s.post(ctx, who, spaceID, model.KindActivity, content)
}

func (s *Service) post(ctx context.Context, who Principal, spaceID string, kind model.MessageKind, content string) (model.Message, error) {
	msg, err := s.gw.CreateMessage(ctx, model.Message{
		SpaceID:   spaceID,
		Content:   content,
		Timestamp: s.now(),
		Author:    model.Author{Name: who.Name, Username: who.Username},
		Kind:      kind,
	})
	if err != nil {
		return model.Message{}, s.fail(err, ErrSendMessage, "user_id", who.ID, "space_id", spaceID)
	}

	ch := events.SpaceChannel(spaceID)
	if kind == model.KindActivity {
		s.publish(ctx, ch, events.ActivityNew{Message: msg})
	} else {
		s.publish(ctx, ch, events.MessageNew{Message: msg})
	}
	return msg, nil
}

// narrate records an activity line after a committed membership change. Failures are logged
// only: the change itself already happened.
func (s *Service) narrate(ctx context.Context, who Principal, spaceID, text string) {
	if _, err := s.post(ctx, who, spaceID, model.KindActivity, text); err != nil {
		s.log.Warn("activity message not recorded", "space_id", spaceID, "user_id", who.ID, "error", err)
	}
}

// CreateNote adds a note at the head of the space's note list.
func (s *Service) CreateNote(ctx context.Context, who Principal, spaceID string, req NoteRequest) (model.Note, error) {
	if _, err := s.requireMember(ctx, who, spaceID); err != nil {
		return model.Note{}, err
	}
	n, err := s.buildNote(spaceID, "", req)
	if err != nil {
		return model.Note{}, err
	}

	created, err := s.gw.CreateNote(ctx, n)
	if err != nil {
		return model.Note{}, s.fail(err, ErrCreateNote, "user_id", who.ID, "space_id", spaceID)
	}

	s.publish(ctx, events.SpaceChannel(spaceID), events.NoteCreated{SpaceID: spaceID, Note: created})
	return created, nil
}

// UpdateNote replaces a note's title and blocks.
func (s *Service) UpdateNote(ctx context.Context, who Principal, spaceID, noteID string, req NoteRequest) (model.Note, error) {
	if noteID == model.DraftID {
		return model.Note{}, ErrDraftNote
	}
	if _, err := s.requireMember(ctx, who, spaceID); err != nil {
		return model.Note{}, err
	}
	n, err := s.buildNote(spaceID, noteID, req)
	if err != nil {
		return model.Note{}, err
	}

	updated, err := s.gw.UpdateNote(ctx, n)
	if err != nil {
		return model.Note{}, s.fail(err, ErrUpdateNote, "user_id", who.ID, "space_id", spaceID, "note_id", noteID)
	}

	s.publish(ctx, events.SpaceChannel(spaceID), events.NoteUpdated{SpaceID: spaceID, Note: updated})
	return updated, nil
}

// DeleteNote removes a note.
func (s *Service) DeleteNote(ctx context.Context, who Principal, spaceID, noteID string) error {
	if noteID == model.DraftID {
		return ErrDraftNote
	}
	if _, err := s.requireMember(ctx, who, spaceID); err != nil {
		return err
	}
	if err := s.gw.DeleteNote(ctx, spaceID, noteID); err != nil {
		return s.fail(err, ErrDeleteNote, "user_id", who.ID, "space_id", spaceID, "note_id", noteID)
	}

	s.publish(ctx, events.SpaceChannel(spaceID), events.NoteDeleted{SpaceID: spaceID, NoteID: noteID})
	return nil
}

// ReorderNotes sets the explicit order of the space's notes. The request may name only some
// of them; the returned and published order always lists every note of the space.
func (s *Service) ReorderNotes(ctx context.Context, who Principal, spaceID string, req ReorderNotesRequest) ([]string, error) {
	if !validOrder(req.OrderedIDs) {
		return nil, ErrInvalidOrder
	}
	if _, err := s.requireMember(ctx, who, spaceID); err != nil {
		return nil, err
	}
	order, err := s.gw.ReorderNotes(ctx, spaceID, req.OrderedIDs)
	if err != nil {
		return nil, s.fail(err, ErrReorderNotes, "user_id", who.ID, "space_id", spaceID)
	}

	s.publish(ctx, events.SpaceChannel(spaceID), events.NotesReordered{SpaceID: spaceID, OrderedIDs: slices.Clone(order)})
	return order, nil
}

// SetMemberRole changes a member's role. ADMIN only.
func (s *Service) SetMemberRole(ctx context.Context, who Principal, spaceID, targetUserID string, req SetMemberRoleRequest) ([]model.Member, error) {
	if !req.Role.Valid() {
		return nil, ErrInvalidInput
	}
	if _, err := s.requireAdmin(ctx, who, spaceID); err != nil {
		return nil, err
	}

	members, err := s.gw.SetMemberRole(ctx, spaceID, targetUserID, req.Role)
	if err != nil {
		return nil, s.fail(err, ErrUpdateMember, "user_id", who.ID, "space_id", spaceID, "target_user_id", targetUserID)
	}

	s.publish(ctx, events.SpaceChannel(spaceID), events.MemberRoleChanged{
		SpaceID:      spaceID,
		TargetUserID: targetUserID,
		Role:         req.Role,
		Members:      members,
	})
	return members, nil
}

// RemoveMember removes another member from the space. ADMIN only; members leave themselves
// through LeaveSpace.
func (s *Service) RemoveMember(ctx context.Context, who Principal, spaceID, targetUserID string) ([]model.Member, error) {
	if targetUserID == who.ID {
		return nil, ErrForbidden
	}
	if _, err := s.requireAdmin(ctx, who, spaceID); err != nil {
		return nil, err
	}
	target, err := s.gw.GetMember(ctx, spaceID, targetUserID)
	if err != nil {
		return nil, s.fail(err, ErrRemoveMember, "user_id", who.ID, "space_id", spaceID, "target_user_id", targetUserID)
	}

	members, err := s.gw.RemoveMember(ctx, spaceID, targetUserID)
	if err != nil {
		return nil, s.fail(err, ErrRemoveMember, "user_id", who.ID, "space_id", spaceID, "target_user_id", targetUserID)
	}

	s.publish(ctx, events.SpaceChannel(spaceID), events.MemberRemoved{SpaceID: spaceID, TargetUserID: targetUserID, Members: members})
	s.narrate(ctx, who, spaceID, displayName(who)+" removed "+displayName(target.User))
	return members, nil
}

// UpdateSpaceInfo patches name, description and icon. ADMIN only.
func (s *Service) UpdateSpaceInfo(ctx context.Context, who Principal, spaceID string, req UpdateSpaceInfoRequest) (model.Space, error) {
	if _, err := s.requireAdmin(ctx, who, spaceID); err != nil {
		return model.Space{}, err
	}

	var patch model.SpaceInfo
	if req.Name != nil {
		name := sanitize.Line(*req.Name)
		if name == "" {
			return model.Space{}, ErrInvalidInput
		}
		patch.Name = &name
	}
	if req.Description != nil {
		d := sanitize.Clean(*req.Description)
		patch.Description = &d
	}
	if req.Icon != nil {
		i := sanitize.Clean(*req.Icon)
		patch.Icon = &i
	}

	sp, err := s.gw.UpdateSpaceInfo(ctx, spaceID, patch)
	if err != nil {
		return model.Space{}, s.fail(err, ErrUpdateSpace, "user_id", who.ID, "space_id", spaceID)
	}

	// Post-state values; an empty string tells clients the field is cleared.
	s.publish(ctx, events.SpaceChannel(spaceID), events.SpaceInfoUpdated{
		SpaceID:     spaceID,
		Name:        sp.Name,
		Description: orEmpty(sp.Description),
		Icon:        orEmpty(sp.Icon),
	})
	return sp, nil
}

func (s *Service) requireMember(ctx context.Context, who Principal, spaceID string) (model.Member, error) {
	m, err := s.gw.GetMember(ctx, spaceID, who.ID)
	if err != nil {
		return model.Member{}, s.fail(err, ErrGetSpace, "user_id", who.ID, "space_id", spaceID)
	}
	return m, nil
}

func (s *Service) requireAdmin(ctx context.Context, who Principal, spaceID string) (model.Member, error) {
	m, err := s.requireMember(ctx, who, spaceID)
	if err != nil {
		return model.Member{}, err
	}
	if m.Role != model.RoleAdmin {
		s.log.Info("admin operation refused", "user_id", who.ID, "space_id", spaceID, "role", string(m.Role))
		return model.Member{}, ErrForbidden
	}
	return m, nil
}

// fail maps a gateway error to what the caller sees: known domain errors pass through,
// everything else is logged and replaced by wrap.
func (s *Service) fail(err, wrap error, fields ...any) error {
	if known := domainError(err); known != nil {
		s.log.Info(known.Error(), fields...)
		return known
	}
	s.log.Error(wrap.Error(), append([]any{"error", err}, fields...)...)
	return wrap
}

func (s *Service) publish(ctx context.Context, ch events.Channel, ev events.Event) {
	if err := s.pub.Publish(ctx, ch, ev); err != nil {
		s.log.Warn("event not published", "error", err, "channel", string(ch), "event_type", string(ev.Type()))
	}
}

// buildNote sanitizes a request into a note. Missing block and item ids are generated.
func (s *Service) buildNote(spaceID, noteID string, req NoteRequest) (model.Note, error) {
	title := sanitize.Line(req.Title)
	if title == "" {
		return model.Note{}, ErrInvalidInput
	}

	now := s.now()
	n := model.Note{
		ID:        noteID,
		SpaceID:   spaceID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Blocks:    make([]model.NoteBlock, 0, len(req.Blocks)),
	}
	for _, b := range req.Blocks {
		block := model.NoteBlock{
			ID:        idOrNew(b.ID),
			Type:      b.Type,
			Content:   sanitize.Clean(b.Content),
			TodoTitle: sanitize.Optional(b.TodoTitle),
		}
		for _, it := range b.Items {
			block.Items = append(block.Items, model.NoteBlockItem{
				ID:          idOrNew(it.ID),
				Text:        sanitize.Clean(it.Text),
				Done:        it.Done,
				Description: sanitize.Optional(it.Description),
			})
		}
		n.Blocks = append(n.Blocks, block)
	}
	return n, nil
}

func validOrder(ids []string) bool {
	if len(ids) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" || id == model.DraftID {
			return false
		}
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
	}
	return true
}

func idOrNew(id string) string {
	if id != "" {
		return id
	}
	return ulid.Make().String()
}

func displayName(u model.UserSnapshot) string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Username != "":
		return u.Username
	case u.Email != "":
		return u.Email
	}
	return "Someone"
}

func orEmpty(v *string) *string {
	s := ""
	if v != nil {
		s = *v
	}
	return &s
}
