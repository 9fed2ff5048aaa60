package spaces

import (
	"slices"
	"time"

	"space-pulse/internal/model"
)

// Depart returns members without userID. When userID held the only ADMIN role, the
// longest-standing remaining member is promoted so the space keeps an ADMIN.
// Gateways call it inside their transaction so the check and the write are atomic.
func Depart(members []model.Member, userID string) ([]model.Member, error) {
	i := slices.IndexFunc(members, func(m model.Member) bool { return m.UserID == userID })
	if i < 0 {
		return nil, ErrNotMember
	}

	rest := make([]model.Member, 0, len(members)-1)
	rest = append(rest, members[:i]...)
	rest = append(rest, members[i+1:]...)
	if len(rest) == 0 || model.AdminCount(rest) > 0 {
		return rest, nil
	}

	oldest := 0
	for j, m := range rest {
		if m.JoinedAt.Before(rest[oldest].JoinedAt) {
			oldest = j
		}
	}
	rest[oldest].Role = model.RoleAdmin
	return rest, nil
}

// ChangeRole returns members with userID moved to role. Demoting the last ADMIN fails.
func ChangeRole(members []model.Member, userID string, role model.Role) ([]model.Member, error) {
	i := slices.IndexFunc(members, func(m model.Member) bool { return m.UserID == userID })
	if i < 0 {
		return nil, ErrNotMember
	}
	if members[i].Role == model.RoleAdmin && role != model.RoleAdmin && model.AdminCount(members) == 1 {
		return nil, ErrLastAdmin
	}

	out := slices.Clone(members)
	out[i].Role = role
	return out, nil
}

// Admit returns members with user appended as a MEMBER.
func Admit(members []model.Member, spaceID string, user model.UserSnapshot, joinedAt time.Time) ([]model.Member, model.Member, error) {
	if slices.ContainsFunc(members, func(m model.Member) bool { return m.UserID == user.ID }) {
		return nil, model.Member{}, ErrAlreadyMember
	}
	m := model.Member{SpaceID: spaceID, UserID: user.ID, Role: model.RoleMember, JoinedAt: joinedAt, User: user}
	out := append(slices.Clone(members), m)
	return out, m, nil
}

// FullOrder returns the complete note order for a reorder request: ids first, then the notes
// of current that ids left out, in their existing order. An id that is not in current, or
// repeats, makes the request invalid.
func FullOrder(current, ids []string) ([]string, error) {
	placed := make(map[string]bool, len(current))
	for _, id := range current {
		placed[id] = false
	}

	order := make([]string, 0, len(current))
	for _, id := range ids {
		done, ok := placed[id]
		if !ok || done {
			return nil, ErrInvalidOrder
		}
		placed[id] = true
		order = append(order, id)
	}
	for _, id := range current {
		if !placed[id] {
			order = append(order, id)
		}
	}
	return order, nil
}
