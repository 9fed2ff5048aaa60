package replica

import (
	"slices"

	"space-pulse/internal/model"
)

// The helpers below never modify their input slices. When nothing changes they return the
// input unchanged so callers can cheaply detect no-ops.

func indexMessage(msgs []model.Message, id string) int {
	return slices.IndexFunc(msgs, func(m model.Message) bool { return m.ID == id })
}

// insertMessage adds m keeping timestamp order, unless a message with the same id exists.
func insertMessage(msgs []model.Message, m model.Message) []model.Message {
	if m.ID == "" || indexMessage(msgs, m.ID) >= 0 {
		return msgs
	}
	// Nearly always an append, so search from the tail.
	pos := len(msgs)
	for pos > 0 && m.Before(msgs[pos-1]) {
		pos--
	}
	out := make([]model.Message, 0, len(msgs)+1)
	out = append(out, msgs[:pos]...)
	out = append(out, m)
	return append(out, msgs[pos:]...)
}

// mergeMessages adds the local messages the fetched list does not carry yet.
func mergeMessages(fetched, local []model.Message) []model.Message {
	out := fetched
	for _, m := range local {
		out = insertMessage(out, m)
	}
	return out
}

func indexNote(notes []model.Note, id string) int {
	return slices.IndexFunc(notes, func(n model.Note) bool { return n.ID == id })
}

// prependNote inserts n at the head of the list if its id is absent.
func prependNote(notes []model.Note, n model.Note) []model.Note {
	if n.ID == "" || n.IsDraft() || indexNote(notes, n.ID) >= 0 {
		return notes
	}
	out := make([]model.Note, 0, len(notes)+1)
	out = append(out, n)
	return append(out, notes...)
}

// replaceNote swaps the note with n.ID for n, keeping its position and local view state.
func replaceNote(notes []model.Note, n model.Note) []model.Note {
	i := indexNote(notes, n.ID)
	if i < 0 || n.IsDraft() {
		return notes
	}
	out := slices.Clone(notes)
	out[i] = keepCollapsed(notes[i], n)
	return out
}

func removeNote(notes []model.Note, id string) []model.Note {
	if indexNote(notes, id) < 0 {
		return notes
	}
	return slices.DeleteFunc(slices.Clone(notes), func(n model.Note) bool { return n.ID == id })
}

// reorderNotes rebuilds the list in the order of ids, using only notes already known locally.
// Unknown and repeated ids are skipped. Ranks are rewritten to match the new positions.
func reorderNotes(notes []model.Note, ids []string) []model.Note {
	byID := make(map[string]model.Note, len(notes))
	for _, n := range notes {
		byID[n.ID] = n
	}
	out := make([]model.Note, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		n, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		n.Rank = len(out)
		out = append(out, n)
	}
	return out
}

// keepCollapsed copies the client-only collapsed flag from old blocks onto fresh ones.
func keepCollapsed(old, fresh model.Note) model.Note {
	collapsed := make(map[string]bool)
	for _, b := range old.Blocks {
		if b.Collapsed {
			collapsed[b.ID] = true
		}
	}
	if len(collapsed) == 0 {
		return fresh
	}
	fresh.Blocks = slices.Clone(fresh.Blocks)
	for i := range fresh.Blocks {
		if collapsed[fresh.Blocks[i].ID] {
			fresh.Blocks[i].Collapsed = true
		}
	}
	return fresh
}

func keepCollapsedAll(old, fresh []model.Note) []model.Note {
	if len(old) == 0 {
		return fresh
	}
	out := slices.Clone(fresh)
	for i, n := range out {
		if j := indexNote(old, n.ID); j >= 0 {
			out[i] = keepCollapsed(old[j], n)
		}
	}
	return out
}

func indexMember(members []model.Member, userID string) int {
	return slices.IndexFunc(members, func(m model.Member) bool { return m.UserID == userID })
}

func addMember(members []model.Member, m model.Member) []model.Member {
	if m.UserID == "" || indexMember(members, m.UserID) >= 0 {
		return members
	}
	out := make([]model.Member, 0, len(members)+1)
	out = append(out, members...)
	return append(out, m)
}

func removeMember(members []model.Member, userID string) []model.Member {
	if indexMember(members, userID) < 0 {
		return members
	}
	return slices.DeleteFunc(slices.Clone(members), func(m model.Member) bool { return m.UserID == userID })
}

func setRole(members []model.Member, userID string, role model.Role) []model.Member {
	i := indexMember(members, userID)
	if i < 0 || !role.Valid() || members[i].Role == role {
		return members
	}
	out := slices.Clone(members)
	out[i].Role = role
	return out
}
