// Package replica holds the client-side copy of server state and the merge rules that keep it
// converged with the server under at-least-once event delivery.
//
// Every function here is pure: a State is never modified in place, touched slices are copied.
// Callers that share a State across goroutines therefore only need to serialize the
// replacement of their State value, not its contents.
package replica

import (
	"slices"

	"space-pulse/internal/model"
)

// State is the replica of one user session.
type State struct {
	SelfUserID    string
	ActiveSpaceID string
	ActiveNoteID  string
	Spaces        []model.Space
}

// New returns an empty replica for userID.
func New(userID string) State {
	return State{SelfUserID: userID}
}

func (s State) index(spaceID string) int {
	return slices.IndexFunc(s.Spaces, func(sp model.Space) bool { return sp.ID == spaceID })
}

// Space returns the replica copy of spaceID.
func (s State) Space(spaceID string) (model.Space, bool) {
	i := s.index(spaceID)
	if i < 0 {
		return model.Space{}, false
	}
	return s.Spaces[i], true
}

// Active returns the selected space, if any.
func (s State) Active() (model.Space, bool) {
	if s.ActiveSpaceID == "" {
		return model.Space{}, false
	}
	return s.Space(s.ActiveSpaceID)
}

// withSpace returns s with the space at index i replaced by sp.
func (s State) withSpace(i int, sp model.Space) State {
	s.Spaces = slices.Clone(s.Spaces)
	s.Spaces[i] = sp
	return s
}

// updateSpace runs fn on the replica copy of spaceID. Unknown spaces are left alone.
func (s State) updateSpace(spaceID string, fn func(sp model.Space) model.Space) State {
	i := s.index(spaceID)
	if i < 0 {
		return s
	}
	return s.withSpace(i, fn(s.Spaces[i]))
}

// isMember reports whether the session user appears in members. An anonymous replica accepts
// every space.
func (s State) isMember(members []model.Member) bool {
	if s.SelfUserID == "" {
		return true
	}
	return indexMember(members, s.SelfUserID) >= 0
}

// AddSpace inserts sp at the head of the list unless its id is already known.
func AddSpace(s State, sp model.Space) State {
	if sp.ID == "" || s.index(sp.ID) >= 0 {
		return s
	}
	out := make([]model.Space, 0, len(s.Spaces)+1)
	out = append(out, sp)
	s.Spaces = append(out, s.Spaces...)
	return s
}

// PutSpace stores a freshly fetched copy of sp. The fetch is authoritative for members and
// notes; local view state on notes is kept. Messages are append-only, so the fetched ones are
// merged with those already received: an event applied after subscribing can describe a
// message committed after the fetch was read. A space that left the replica while the fetch
// was in flight stays gone.
func PutSpace(s State, sp model.Space) State {
	i := s.index(sp.ID)
	if i < 0 {
		return s
	}
	old := s.Spaces[i]
	sp.Notes = keepCollapsedAll(old.Notes, sp.Notes)
	sp.Messages = mergeMessages(sp.Messages, old.Messages)
	return s.withSpace(i, sp)
}

// SetSpaces replaces the space list with a fetched one, keeping nested collections already
// loaded for spaces that are still present. Spaces the user no longer belongs to disappear.
func SetSpaces(s State, list []model.Space) State {
	out := make([]model.Space, 0, len(list))
	for _, sp := range list {
		if old, ok := s.Space(sp.ID); ok {
			if sp.Messages == nil {
				sp.Messages = old.Messages
			}
			if sp.Notes == nil {
				sp.Notes = old.Notes
			}
			if sp.Members == nil {
				sp.Members = old.Members
			}
		}
		out = append(out, sp)
	}
	s.Spaces = out
	if s.index(s.ActiveSpaceID) < 0 {
		s.ActiveSpaceID = ""
		s.ActiveNoteID = ""
	}
	return s
}

// RemoveSpace drops spaceID and clears the selection when it pointed at it.
func RemoveSpace(s State, spaceID string) State {
	i := s.index(spaceID)
	if i < 0 {
		return s
	}
	s.Spaces = slices.Delete(slices.Clone(s.Spaces), i, i+1)
	if s.ActiveSpaceID == spaceID {
		s.ActiveSpaceID = ""
		s.ActiveNoteID = ""
	}
	return s
}

// SelectSpace moves the selection to spaceID, or clears it with "". The note selection is
// reset whenever the space changes.
func SelectSpace(s State, spaceID string) State {
	if spaceID != "" && s.index(spaceID) < 0 {
		return s
	}
	if s.ActiveSpaceID != spaceID {
		s.ActiveNoteID = ""
	}
	s.ActiveSpaceID = spaceID
	return s
}

// SelectNote marks noteID as the open note of the active space. The note does not have to be
// in the replica yet: a confirmed create may be selected before its echo arrives.
func SelectNote(s State, noteID string) State {
	s.ActiveNoteID = noteID
	return s
}

// ToggleCollapsed flips the local collapsed flag of one block.
func ToggleCollapsed(s State, spaceID, noteID, blockID string) State {
	return s.updateSpace(spaceID, func(sp model.Space) model.Space {
		i := indexNote(sp.Notes, noteID)
		if i < 0 {
			return sp
		}
		n := sp.Notes[i]
		j := slices.IndexFunc(n.Blocks, func(b model.NoteBlock) bool { return b.ID == blockID })
		if j < 0 {
			return sp
		}
		n.Blocks = slices.Clone(n.Blocks)
		n.Blocks[j].Collapsed = !n.Blocks[j].Collapsed
		sp.Notes = slices.Clone(sp.Notes)
		sp.Notes[i] = n
		return sp
	})
}
