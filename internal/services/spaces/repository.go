package spaces

import (
	"context"

	"space-pulse/internal/events"
	"space-pulse/internal/model"
)

// NewSpace is what a gateway needs to create a space. The creator becomes its first ADMIN.
type NewSpace struct {
	Name        string
	Description *string
	Icon        *string
	Creator     model.UserSnapshot
}

// Gateway is the persistence boundary. Every call is atomic and returns canonical post-state:
// ids, timestamps and ranks assigned by the store are visible in the result.
type Gateway interface {
	CreateSpace(ctx context.Context, in NewSpace) (model.Space, error)
	// GetSpace loads a space with members, messages and notes.
	GetSpace(ctx context.Context, spaceID string) (model.Space, error)
	// ListSpaces returns the spaces userID belongs to, members included, newest first.
	ListSpaces(ctx context.Context, userID string) ([]model.Space, error)
	DeleteSpace(ctx context.Context, spaceID string) error

	JoinSpace(ctx context.Context, spaceID string, user model.UserSnapshot) (model.Member, error)
	// LeaveSpace removes userID and deletes the space when it was the last member, in one
	// transaction.
	LeaveSpace(ctx context.Context, spaceID, userID string) (model.LeaveResult, error)
	GetMember(ctx context.Context, spaceID, userID string) (model.Member, error)
	// SetMemberRole returns the full member list after the change.
	SetMemberRole(ctx context.Context, spaceID, userID string, role model.Role) ([]model.Member, error)
	// RemoveMember returns the full member list after the removal.
	RemoveMember(ctx context.Context, spaceID, userID string) ([]model.Member, error)
	UpdateSpaceInfo(ctx context.Context, spaceID string, patch model.SpaceInfo) (model.Space, error)

	CreateMessage(ctx context.Context, msg model.Message) (model.Message, error)

	// CreateNote stores n at the head of the note order.
	CreateNote(ctx context.Context, n model.Note) (model.Note, error)
	// UpdateNote replaces title and every block of n.
	UpdateNote(ctx context.Context, n model.Note) (model.Note, error)
	DeleteNote(ctx context.Context, spaceID, noteID string) error
	// ReorderNotes ranks the notes following ids; notes left out keep their relative order
	// after them. It returns the complete order it wrote. Every id must belong to the space.
	ReorderNotes(ctx context.Context, spaceID string, ids []string) ([]string, error)

	Ping(ctx context.Context) error
}

// Publisher fans committed changes out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, channel events.Channel, ev events.Event) error
}
