// Package model holds the entities shared by the server, the wire events and the client replica.
package model

import (
	"strings"
	"time"
)

// Role is a member's permission level inside a space.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// MessageKind distinguishes user chat from system narration.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindActivity MessageKind = "activity"
)

// BlockType is the type of a note block.
type BlockType string

const (
	BlockText    BlockType = "text"
	BlockHeading BlockType = "heading"
	BlockTodo    BlockType = "todo"
)

// DraftID is the sentinel id carried by a client-local note that was never persisted.
const DraftID = "draft"

// activityMarker prefixes activity message content at the persistence boundary.
const activityMarker = "::activity::"

// UserSnapshot is the denormalized copy of a user stored alongside memberships.
type UserSnapshot struct {
	ID       string `bson:"id" json:"id" example:"683cdb8aa96ad71e8e075bd0"`
	Name     string `bson:"name" json:"name" example:"Ada Lovelace"`
	Username string `bson:"username" json:"username" example:"ada"`
	Email    string `bson:"email" json:"email" example:"ada@example.com"`
	Avatar   string `bson:"avatar,omitempty" json:"avatar,omitempty"`
}

// Author is the minimal user snapshot carried by a message.
type Author struct {
	Name     string `bson:"name" json:"name" example:"Ada Lovelace"`
	Username string `bson:"username" json:"username" example:"ada"`
}

// Member is a user's membership in a space, keyed by (SpaceID, UserID).
type Member struct {
	SpaceID  string       `bson:"space_id" json:"spaceId"`
	UserID   string       `bson:"user_id" json:"userId"`
	Role     Role         `bson:"role" json:"role" example:"MEMBER"`
	JoinedAt time.Time    `bson:"joined_at" json:"joinedAt"`
	User     UserSnapshot `bson:"user" json:"user"`
}

// Message is a chat or activity line in a space.
type Message struct {
	ID        string      `json:"id"`
	SpaceID   string      `json:"spaceId"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Author    Author      `json:"author"`
	Kind      MessageKind `json:"kind"`
}

// Before reports whether m sorts before o: timestamp ascending, ties broken by id.
func (m Message) Before(o Message) bool {
	if !m.Timestamp.Equal(o.Timestamp) {
		return m.Timestamp.Before(o.Timestamp)
	}
	return m.ID < o.ID
}

// NoteBlockItem is one entry of a todo block.
type NoteBlockItem struct {
	ID          string  `bson:"id" json:"id"`
	Text        string  `bson:"text" json:"text"`
	Done        bool    `bson:"done" json:"done"`
	Description *string `bson:"description,omitempty" json:"description,omitempty"`
}

// NoteBlock is a typed paragraph of a note. Collapsed is local view state only.
type NoteBlock struct {
	ID        string          `bson:"id" json:"id"`
	Type      BlockType       `bson:"type" json:"type"`
	Content   string          `bson:"content" json:"content"`
	TodoTitle *string         `bson:"todo_title,omitempty" json:"todoTitle,omitempty"`
	Items     []NoteBlockItem `bson:"items,omitempty" json:"items,omitempty"`
	Collapsed bool            `bson:"-" json:"-"`
}

// Note is a shared document inside a space. Rank is the explicit order of the note list.
type Note struct {
	ID        string      `json:"id"`
	SpaceID   string      `json:"spaceId"`
	Title     string      `json:"title"`
	Rank      int         `json:"rank"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Blocks    []NoteBlock `json:"blocks"`
}

// IsDraft reports whether n is the unconfirmed local draft.
func (n Note) IsDraft() bool {
	return n.ID == DraftID
}

// Space is a shared chat/notes workspace with its own membership.
type Space struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Icon        *string   `json:"icon,omitempty"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	Members     []Member  `json:"members"`
	Messages    []Message `json:"messages"`
	Notes       []Note    `json:"notes"`
}

// Member returns the membership of userID, if any.
func (s Space) Member(userID string) (Member, bool) {
	for _, m := range s.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

// SpaceInfo is the patch applied by UpdateSpaceInfo. Nil fields are left untouched.
type SpaceInfo struct {
	Name        *string
	Description *string
	Icon        *string
}

// LeaveResult describes what a LeaveSpace call did.
type LeaveResult struct {
	SpaceDeleted bool
	Members      []Member
}

// EncodeContent returns the stored form of a message body.
func EncodeContent(kind MessageKind, content string) string {
	if kind == KindActivity {
		return activityMarker + content
	}
	return content
}

// DecodeContent splits a stored message body into its kind and visible text.
func DecodeContent(stored string) (MessageKind, string) {
	if rest, ok := strings.CutPrefix(stored, activityMarker); ok {
		return KindActivity, rest
	}
	return KindText, stored
}

// AdminCount counts ADMIN members.
func AdminCount(members []Member) int {
	n := 0
	for _, m := range members {
		if m.Role == RoleAdmin {
			n++
		}
	}
	return n
}
