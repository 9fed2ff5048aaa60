package events

import (
	"errors"
	"fmt"

	"space-pulse/internal/model"
)

// Type is the wire name of an event.
type Type string

const (
	TypeSpaceCreated      Type = "space:created"
	TypeSpaceDeleted      Type = "space:deleted"
	TypeMessageNew        Type = "message:new"
	TypeActivityNew       Type = "activity:new"
	TypeNoteCreated       Type = "note:created"
	TypeNoteUpdated       Type = "note:updated"
	TypeNoteDeleted       Type = "note:deleted"
	TypeNotesReordered    Type = "notes:reordered"
	TypeMemberJoined      Type = "member:joined"
	TypeMemberLeft        Type = "member:left"
	TypeMemberRemoved     Type = "member:removed"
	TypeMemberRoleChanged Type = "member:role-changed"
	TypeSpaceInfoUpdated  Type = "space:info-updated"
)

// GlobalTypes are bound on the global channel for the whole session.
var GlobalTypes = []Type{TypeSpaceCreated, TypeSpaceDeleted}

// SpaceTypes are bound on the active space channel.
var SpaceTypes = []Type{
	TypeMessageNew,
	TypeActivityNew,
	TypeNoteCreated,
	TypeNoteUpdated,
	TypeNoteDeleted,
	TypeNotesReordered,
	TypeMemberJoined,
	TypeMemberLeft,
	TypeMemberRemoved,
	TypeMemberRoleChanged,
	TypeSpaceInfoUpdated,
}

// Scope returns the kind of channel t is published on.
func (t Type) Scope() Scope {
	if t == TypeSpaceCreated || t == TypeSpaceDeleted {
		return ScopeGlobal
	}
	return ScopeSpace
}

var (
	// ErrUnknownEvent is returned when decoding an event type this build does not know.
	ErrUnknownEvent = errors.New("unknown event type")
	// ErrMalformedPayload is returned when a payload cannot be decoded into its event shape.
	ErrMalformedPayload = errors.New("malformed event payload")
)

// Event is one of the concrete event structs below. The set is closed.
type Event interface {
	Type() Type
	// TargetSpace is the space the event describes, "" when it does not carry one.
	TargetSpace() string
	sealed()
}

type SpaceCreated struct {
	Space model.Space `json:"space"`
}

type SpaceDeleted struct {
	SpaceID string `json:"spaceId"`
}

type MessageNew struct {
	model.Message
}

type ActivityNew struct {
	model.Message
}

type NoteCreated struct {
	Note    model.Note `json:"note"`
	SpaceID string     `json:"spaceId"`
}

type NoteUpdated struct {
	Note    model.Note `json:"note"`
	SpaceID string     `json:"spaceId"`
}

type NoteDeleted struct {
	NoteID  string `json:"noteId"`
	SpaceID string `json:"spaceId"`
}

type NotesReordered struct {
	SpaceID    string   `json:"spaceId"`
	OrderedIDs []string `json:"orderedIds"`
}

type MemberJoined struct {
	SpaceID string       `json:"spaceId"`
	Member  model.Member `json:"member"`
}

// MemberLeft carries the remaining member list when the server could compute it.
type MemberLeft struct {
	SpaceID string         `json:"spaceId"`
	UserID  string         `json:"userId"`
	Members []model.Member `json:"members,omitempty"`
}

type MemberRemoved struct {
	SpaceID      string         `json:"spaceId"`
	TargetUserID string         `json:"targetUserId"`
	Members      []model.Member `json:"members,omitempty"`
}

// MemberRoleChanged always ships the full member list; role rules depend on the whole set.
type MemberRoleChanged struct {
	SpaceID      string         `json:"spaceId"`
	TargetUserID string         `json:"targetUserId"`
	Role         model.Role     `json:"role"`
	Members      []model.Member `json:"members"`
}

type SpaceInfoUpdated struct {
	SpaceID     string  `json:"spaceId"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Icon        *string `json:"icon,omitempty"`
}

func (SpaceCreated) Type() Type      { return TypeSpaceCreated }
func (SpaceDeleted) Type() Type      { return TypeSpaceDeleted }
func (MessageNew) Type() Type        { return TypeMessageNew }
func (ActivityNew) Type() Type       { return TypeActivityNew }
func (NoteCreated) Type() Type       { return TypeNoteCreated }
func (NoteUpdated) Type() Type       { return TypeNoteUpdated }
func (NoteDeleted) Type() Type       { return TypeNoteDeleted }
func (NotesReordered) Type() Type    { return TypeNotesReordered }
func (MemberJoined) Type() Type      { return TypeMemberJoined }
func (MemberLeft) Type() Type        { return TypeMemberLeft }
func (MemberRemoved) Type() Type     { return TypeMemberRemoved }
func (MemberRoleChanged) Type() Type { return TypeMemberRoleChanged }
func (SpaceInfoUpdated) Type() Type  { return TypeSpaceInfoUpdated }

func (e SpaceCreated) TargetSpace() string      { return e.Space.ID }
func (e SpaceDeleted) TargetSpace() string      { return e.SpaceID }
func (e MessageNew) TargetSpace() string        { return e.Message.SpaceID }
func (e ActivityNew) TargetSpace() string       { return e.Message.SpaceID }
func (e NoteCreated) TargetSpace() string       { return e.SpaceID }
func (e NoteUpdated) TargetSpace() string       { return e.SpaceID }
func (e NoteDeleted) TargetSpace() string       { return e.SpaceID }
func (e NotesReordered) TargetSpace() string    { return e.SpaceID }
func (e MemberJoined) TargetSpace() string      { return e.SpaceID }
func (e MemberLeft) TargetSpace() string        { return e.SpaceID }
func (e MemberRemoved) TargetSpace() string     { return e.SpaceID }
func (e MemberRoleChanged) TargetSpace() string { return e.SpaceID }
func (e SpaceInfoUpdated) TargetSpace() string  { return e.SpaceID }

func (SpaceCreated) sealed()      {}
func (SpaceDeleted) sealed()      {}
func (MessageNew) sealed()        {}
func (ActivityNew) sealed()       {}
func (NoteCreated) sealed()       {}
func (NoteUpdated) sealed()       {}
func (NoteDeleted) sealed()       {}
func (NotesReordered) sealed()    {}
func (MemberJoined) sealed()      {}
func (MemberLeft) sealed()        {}
func (MemberRemoved) sealed()     {}
func (MemberRoleChanged) sealed() {}
func (SpaceInfoUpdated) sealed()  {}

// newEvent returns a pointer to the zero value of the struct registered for t.
func newEvent(t Type) (any, error) {
	switch t {
	case TypeSpaceCreated:
		return &SpaceCreated{}, nil
	case TypeSpaceDeleted:
		return &SpaceDeleted{}, nil
	case TypeMessageNew:
		return &MessageNew{}, nil
	case TypeActivityNew:
		return &ActivityNew{}, nil
	case TypeNoteCreated:
		return &NoteCreated{}, nil
	case TypeNoteUpdated:
		return &NoteUpdated{}, nil
	case TypeNoteDeleted:
		return &NoteDeleted{}, nil
	case TypeNotesReordered:
		return &NotesReordered{}, nil
	case TypeMemberJoined:
		return &MemberJoined{}, nil
	case TypeMemberLeft:
		return &MemberLeft{}, nil
	case TypeMemberRemoved:
		return &MemberRemoved{}, nil
	case TypeMemberRoleChanged:
		return &MemberRoleChanged{}, nil
	case TypeSpaceInfoUpdated:
		return &SpaceInfoUpdated{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, t)
}

// Decode builds the typed event for t from data using unmarshal (json.Unmarshal,
// cbor.Unmarshal, ...).
func Decode(t Type, data []byte, unmarshal func([]byte, any) error) (Event, error) {
	target, err := newEvent(t)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty %s payload", ErrMalformedPayload, t)
	}
	if err := unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, t, err)
	}
	return deref(target), nil
}

func deref(v any) Event {
	switch e := v.(type) {
	case *SpaceCreated:
		return *e
	case *SpaceDeleted:
		return *e
	case *MessageNew:
		return *e
	case *ActivityNew:
		return *e
	case *NoteCreated:
		return *e
	case *NoteUpdated:
		return *e
	case *NoteDeleted:
		return *e
	case *NotesReordered:
		return *e
	case *MemberJoined:
		return *e
	case *MemberLeft:
		return *e
	case *MemberRemoved:
		return *e
	case *MemberRoleChanged:
		return *e
	case *SpaceInfoUpdated:
		return *e
	}
	return nil
}
