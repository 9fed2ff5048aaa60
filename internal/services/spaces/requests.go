package spaces

import "space-pulse/internal/model"

// Principal is the authenticated user a service call acts for.
type Principal = model.UserSnapshot

// CreateSpaceRequest represents a space creation request
type CreateSpaceRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=100" example:"Design Team"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000" example:"Weekly design syncs"`
	Icon        *string `json:"icon,omitempty" validate:"omitempty,max=2048" example:"https://cdn.example.com/icons/design.png"`
}

// UpdateSpaceInfoRequest patches space metadata. An empty description or icon clears it.
type UpdateSpaceInfoRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=100" example:"Design Guild"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	Icon        *string `json:"icon,omitempty" validate:"omitempty,max=2048"`
}

// SendMessageRequest represents a chat message
type SendMessageRequest struct {
	Content string `json:"content" validate:"required,min=1,max=4000" example:"Standup in 5"`
}

// NoteItemRequest is one todo entry.
type NoteItemRequest struct {
	ID          string  `json:"id,omitempty" validate:"omitempty,max=64"`
	Text        string  `json:"text" validate:"max=2000"`
	Done        bool    `json:"done"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// NoteBlockRequest is one block of a note body.
type NoteBlockRequest struct {
	ID        string            `json:"id,omitempty" validate:"omitempty,max=64"`
	Type      model.BlockType   `json:"type" validate:"required,oneof=text heading todo" example:"text"`
	Content   string            `json:"content" validate:"max=20000"`
	TodoTitle *string           `json:"todoTitle,omitempty" validate:"omitempty,max=200"`
	Items     []NoteItemRequest `json:"items,omitempty" validate:"omitempty,max=500,dive"`
}

// NoteRequest creates a note or replaces its title and blocks.
type NoteRequest struct {
	Title  string             `json:"title" validate:"required,min=1,max=200" example:"Sprint retro"`
	Blocks []NoteBlockRequest `json:"blocks" validate:"omitempty,max=500,dive"`
}

// NoteOrder is the complete note order of a space after a reorder.
type NoteOrder struct {
	OrderedIDs []string `json:"orderedIds"`
}

// ReorderNotesRequest carries the new note order.
type ReorderNotesRequest struct {
	OrderedIDs []string `json:"orderedIds" validate:"required,min=1,unique,dive,required"`
}

// SetMemberRoleRequest changes a member's role.
type SetMemberRoleRequest struct {
	Role model.Role `json:"role" validate:"required,space_role" example:"ADMIN"`
}
