package replica

import (
	"space-pulse/internal/events"
	"space-pulse/internal/model"
)

// Inbound is an event together with the channel it was received on.
type Inbound struct {
	Channel events.Channel
	Event   events.Event
}

// Apply merges one inbound event into s and returns the new state.
//
// Handlers are idempotent under replay and never fail: an event that does not fit the replica
// (unknown ids, wrong channel, missing fields) leaves the state as it was. Space-scoped events
// only ever touch the space named by their channel.
func Apply(s State, in Inbound) State {
	if in.Event == nil {
		return s
	}
	if in.Channel.IsGlobal() {
		return applyGlobal(s, in.Event)
	}
	spaceID := in.Channel.SpaceID()
	if spaceID == "" || in.Event.Type().Scope() != events.ScopeSpace {
		return s
	}
	if target := in.Event.TargetSpace(); target != "" && target != spaceID {
		return s
	}
	return applySpace(s, spaceID, in.Event)
}

func applyGlobal(s State, ev events.Event) State {
	switch e := ev.(type) {
	case events.SpaceCreated:
		if !s.isMember(e.Space.Members) {
			return s
		}
		return AddSpace(s, e.Space)
	case events.SpaceDeleted:
		return RemoveSpace(s, e.SpaceID)
	}
	return s
}

func applySpace(s State, spaceID string, ev events.Event) State {
	switch e := ev.(type) {
	case events.MessageNew:
		m := e.Message
		m.SpaceID = spaceID
		if m.Kind == "" {
			m.Kind = model.KindText
		}
		return appendMessage(s, spaceID, m)

	case events.ActivityNew:
		m := e.Message
		m.SpaceID = spaceID
		m.Kind = model.KindActivity
		return appendMessage(s, spaceID, m)

	case events.NoteCreated:
		return s.updateSpace(spaceID, func(sp model.Space) model.Space {
			sp.Notes = prependNote(sp.Notes, e.Note)
			return sp
		})

	case events.NoteUpdated:
		return s.updateSpace(spaceID, func(sp model.Space) model.Space {
			sp.Notes = replaceNote(sp.Notes, e.Note)
			return sp
		})

	case events.NoteDeleted:
		s = s.updateSpace(spaceID, func(sp model.Space) model.Space {
			sp.Notes = removeNote(sp.Notes, e.NoteID)
			return sp
		})
		if s.ActiveSpaceID == spaceID && s.ActiveNoteID == e.NoteID {
			s.ActiveNoteID = ""
		}
		return s

	case events.NotesReordered:
		if e.OrderedIDs == nil {
			return s
		}
		return s.updateSpace(spaceID, func(sp model.Space) model.Space {
			sp.Notes = reorderNotes(sp.Notes, e.OrderedIDs)
			return sp
		})

	case events.MemberJoined:
		return s.updateSpace(spaceID, func(sp model.Space) model.Space {
			m := e.Member
			m.SpaceID = spaceID
			sp.Members = addMember(sp.Members, m)
			return sp
		})

	case events.MemberLeft:
		return departMember(s, spaceID, e.UserID, e.Members)

	case events.MemberRemoved:
		return departMember(s, spaceID, e.TargetUserID, e.Members)

	case events.MemberRoleChanged:
		return s.updateSpace(spaceID, func(sp model.Space) model.Space {
			if e.Members != nil {
				sp.Members = e.Members
				return sp
			}
			sp.Members = setRole(sp.Members, e.TargetUserID, e.Role)
			return sp
		})

	case events.SpaceInfoUpdated:
		return s.updateSpace(spaceID, func(sp model.Space) model.Space {
			if e.Name != "" {
				sp.Name = e.Name
			}
			if e.Description != nil {
				sp.Description = optional(*e.Description)
			}
			if e.Icon != nil {
				sp.Icon = optional(*e.Icon)
			}
			return sp
		})
	}
	return s
}

func appendMessage(s State, spaceID string, m model.Message) State {
	return s.updateSpace(spaceID, func(sp model.Space) model.Space {
		sp.Messages = insertMessage(sp.Messages, m)
		return sp
	})
}

// departMember handles leave and remove. A full member list replaces local state; without
// one the user is filtered out. When the session user is the one leaving, the whole space
// goes away.
func departMember(s State, spaceID, userID string, members []model.Member) State {
	if userID != "" && userID == s.SelfUserID {
		return RemoveSpace(s, spaceID)
	}
	return s.updateSpace(spaceID, func(sp model.Space) model.Space {
		if members != nil {
			sp.Members = members
			return sp
		}
		sp.Members = removeMember(sp.Members, userID)
		return sp
	})
}

// optional maps the server's "cleared" empty string back to an absent field.
func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
