package spaces

import "errors"

// Lookup and permission failures. Gateways return these unwrapped or wrapped; the service
// passes them through so the HTTP layer can map them.
var (
	// ErrSpaceNotFound is returned when the space does not exist.
	ErrSpaceNotFound = errors.New("space not found")
	// ErrNoteNotFound is returned when the note does not exist in the space.
	ErrNoteNotFound = errors.New("note not found")
	// ErrNotMember is returned when the user is not a member of the space.
	ErrNotMember = errors.New("not a member of this space")
	// ErrForbidden is returned when the member lacks the role for the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrAlreadyMember is returned by JoinSpace for existing members.
	ErrAlreadyMember = errors.New("already a member of this space")
	// ErrLastAdmin is returned when a change would leave a space without an ADMIN.
	ErrLastAdmin = errors.New("space must keep at least one admin")
	// ErrInvalidOrder is returned for reorder requests with duplicate or foreign note ids.
	ErrInvalidOrder = errors.New("invalid note order")
	// ErrDraftNote is returned when a client tries to persist through the draft sentinel id.
	ErrDraftNote = errors.New("draft notes cannot be modified on the server")
	// ErrInvalidInput is returned when input is empty after sanitizing or otherwise unusable.
	ErrInvalidInput = errors.New("invalid input")
)

// Wrapped operation failures. The cause is logged, the caller only sees the sentinel.
var (
	ErrCreateSpace   = errors.New("failed to create space")
	ErrGetSpace      = errors.New("failed to load space")
	ErrListSpaces    = errors.New("failed to list spaces")
	ErrDeleteSpace   = errors.New("failed to delete space")
	ErrJoinSpace     = errors.New("failed to join space")
	ErrLeaveSpace    = errors.New("failed to leave space")
	ErrUpdateSpace   = errors.New("failed to update space")
	ErrSendMessage   = errors.New("failed to send message")
	ErrCreateNote    = errors.New("failed to create note")
	ErrUpdateNote    = errors.New("failed to update note")
	ErrDeleteNote    = errors.New("failed to delete note")
	ErrReorderNotes  = errors.New("failed to reorder notes")
	ErrUpdateMember  = errors.New("failed to update member")
	ErrRemoveMember  = errors.New("failed to remove member")
	ErrCreateGateway = errors.New("failed to create spaces gateway")
)

// passthrough lists errors the service returns as is instead of wrapping.
var passthrough = []error{
	ErrSpaceNotFound,
	ErrNoteNotFound,
	ErrNotMember,
	ErrForbidden,
	ErrAlreadyMember,
	ErrLastAdmin,
	ErrInvalidOrder,
	ErrDraftNote,
	ErrInvalidInput,
}

// domainError returns the sentinel err matches, or nil.
func domainError(err error) error {
	for _, target := range passthrough {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}
