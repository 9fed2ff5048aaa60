package spaces

import (
	"context"

	"space-pulse/cmd/server/handlers/handlerutil"
	"space-pulse/internal/model"
	"space-pulse/internal/services/spaces"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// Service defines the interface for the spaces service
type Service interface {
	CreateSpace(ctx context.Context, who spaces.Principal, req spaces.CreateSpaceRequest) (model.Space, error)
	GetSpace(ctx context.Context, who spaces.Principal, spaceID string) (model.Space, error)
	ListSpaces(ctx context.Context, who spaces.Principal) ([]model.Space, error)
	DeleteSpace(ctx context.Context, who spaces.Principal, spaceID string) error
	JoinSpace(ctx context.Context, who spaces.Principal, spaceID string) (model.Member, error)
	LeaveSpace(ctx context.Context, who spaces.Principal, spaceID string) (model.LeaveResult, error)
	UpdateSpaceInfo(ctx context.Context, who spaces.Principal, spaceID string, req spaces.UpdateSpaceInfoRequest) (model.Space, error)
	SendMessage(ctx context.Context, who spaces.Principal, spaceID string, req spaces.SendMessageRequest) (model.Message, error)
	CreateNote(ctx context.Context, who spaces.Principal, spaceID string, req spaces.NoteRequest) (model.Note, error)
	UpdateNote(ctx context.Context, who spaces.Principal, spaceID, noteID string, req spaces.NoteRequest) (model.Note, error)
	DeleteNote(ctx context.Context, who spaces.Principal, spaceID, noteID string) error
	ReorderNotes(ctx context.Context, who spaces.Principal, spaceID string, req spaces.ReorderNotesRequest) ([]string, error)
	SetMemberRole(ctx context.Context, who spaces.Principal, spaceID, targetUserID string, req spaces.SetMemberRoleRequest) ([]model.Member, error)
	RemoveMember(ctx context.Context, who spaces.Principal, spaceID, targetUserID string) ([]model.Member, error)
}

// LeaveResponse is returned by the leave endpoint.
type LeaveResponse struct {
	SpaceDeleted bool           `json:"spaceDeleted"`
	Members      []model.Member `json:"members"`
}

// MembersResponse carries the member list after a membership change.
type MembersResponse struct {
	Members []model.Member `json:"members"`
}

// Handlers contains the spaces HTTP handlers
type Handlers struct {
	service   Service
	validator *validator.Validate
}

// NewHandlers creates new spaces handlers
func NewHandlers(service Service, validator *validator.Validate) *Handlers {
	return &Handlers{
		service:   service,
		validator: validator,
	}
}

// Register mounts every route on r, which must already be JWT protected.
func (h *Handlers) Register(r fiber.Router) {
	r.Get("/spaces", h.List)
	r.Post("/spaces", h.Create)
	r.Get("/spaces/:id", h.Get)
	r.Patch("/spaces/:id", h.UpdateInfo)
	r.Delete("/spaces/:id", h.Delete)
	r.Post("/spaces/:id/join", h.Join)
	r.Post("/spaces/:id/leave", h.Leave)
	r.Post("/spaces/:id/messages", h.SendMessage)
	r.Post("/spaces/:id/notes", h.CreateNote)
	// before /notes/:noteId so "order" is not taken for a note id
	r.Put("/spaces/:id/notes/order", h.ReorderNotes)
	r.Put("/spaces/:id/notes/:noteId", h.UpdateNote)
	r.Delete("/spaces/:id/notes/:noteId", h.DeleteNote)
	r.Patch("/spaces/:id/members/:userId", h.SetMemberRole)
	r.Delete("/spaces/:id/members/:userId", h.RemoveMember)
}

// List handles listing the caller's spaces
// @Summary List my spaces
// @Tags spaces
// @Produce json
// @Security Bearer
// @Success 200 {array} model.Space
// @Failure 401 {object} httperr.E
// @Router /spaces [get]
func (h *Handlers) List(c *fiber.Ctx) error {
	who, err := handlerutil.GetPrincipal(c)
	if err != nil {
		return err
	}

	list, err := h.service.ListSpaces(c.UserContext(), who)
	if err != nil {
		return handlerutil.HandleServiceError(err, "List", who)
	}
	return c.JSON(list)
}

// Create handles space creation
// @Summary Create a space
// @Tags spaces
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body spaces.CreateSpaceRequest true "Create space request"
// @Success 201 {object} model.Space
// @Failure 400 {object} httperr.E
// @Failure 401 {object} httperr.E
// @Router /spaces [post]
func (h *Handlers) Create(c *fiber.Ctx) error {
	who, err := handlerutil.GetPrincipal(c)
	if err != nil {
		return err
	}

	var req spaces.CreateSpaceRequest
	if err := handlerutil.ParseAndValidateBody(c, &req, h.validator, "Create"); err != nil {
		return err
	}

	sp, err := h.service.CreateSpace(c.UserContext(), who, req)
	if err != nil {
		return handlerutil.HandleServiceError(err, "Create", who)
	}
	return c.Status(201).JSON(sp)
}

// Get handles the full space detail used on selection
// @Summary Get a space with members, messages and notes
// @Tags spaces
// @Produce json
// @Security Bearer
// @Param id path string true "Space ID"
// @Success 200 {object} model.Space
// @Failure 403 {object} httperr.E
// @Failure 404 {object} httperr.E
// @Router /spaces/{id} [get]
func (h *Handlers) Get(c *fiber.Ctx) error {
	who, err := handlerutil.GetPrincipal(c)
	if err != nil {
		return err
	}

	spaceID := c.Params("id")
	sp, err := h.service.GetSpace(c.UserContext(), who, spaceID)
	if err != nil {
		return handlerutil.HandleServiceError(err, "Get", who, "space_id", spaceID)
	}
	return c.JSON(sp)
}

// UpdateInfo handles space metadata changes
// @Summary Update space name, description or icon
// @Tags spaces
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Space ID"
// @Param request body spaces.UpdateSpaceInfoRequest true "Fields to change; empty description or icon clears it"
// @Success 200 {object} model.Space
// @Failure 400 {object} httperr.E
// @Failure 403 {object} httperr.E
// @Failure 404 {object} httperr.E
// @Router /spaces/{id} [patch]
func (h *Handlers) UpdateInfo(c *fiber.Ctx) error {
	who, err := handlerutil.GetPrincipal(c)
	if err != nil {
		return err
	}

	var req spaces.UpdateSpaceInfoRequest
	if err := handlerutil.ParseAndValidateBody(c, &req, h.validator, "UpdateInfo"); err != nil {
		return err
	}

	spaceID := c.Params("id")
	sp, err := h.service.UpdateSpaceInfo(c.UserContext(), who, spaceID, req)
	if err != nil {
		return handlerutil.HandleServiceError(err, "UpdateInfo", who, "space_id", spaceID)
	}
	return c.JSON(sp)
}

// Delete handles space deletion
// @Summary Delete a space
// @Tags spaces
// @Security Bearer
// @Param id path string true "Space ID"
// @Success 204
// @Failure 403 {object} httperr.E
// @Failure 404 {object} httperr.E
// @Router /spaces/{id} [delete]
func (h *Handlers) Delete(c *fiber.Ctx) error {
	who, err := handlerutil.GetPrincipal(c)
	if err != nil {
		return err
	}

	spaceID := c.Params("id")
	if err := h.service.DeleteSpace(c.UserContext(), who, spaceID); err != nil {
		return handlerutil.HandleServiceError(err, "Delete", who, "space_id", spaceID)
	}
	return c.SendStatus(204)
}

// Join handles joining a space
// @Summary Join a space
// @Tags members
// @Produce json
// @Security Bearer
// @Param id path string true "Space ID"
// @Success 201 {object} model.Member
// @Failure 404 {object} httperr.E
// @Failure 409 {object} httperr.E
// @Router /spaces/{id}/join [post]
func (h *Handlers) Join(c *fiber.Ctx) error {
	who, err := handlerutil.GetPrincipal(c)
	if err != nil {
		return err
	}

	spaceID := c.Params("id")
	m, err := h.service.JoinSpace(c.UserContext(), who, spaceID)
	if err != nil {
		return handlerutil.HandleServiceError(err, "Join", who, "space_id", spaceID)
	}
	return c.Status(201).JSON(m)
}

// Leave handles leaving a space
// @Summary Leave a space; the last member leaving deletes it
// @Tags members
// @Produce json
// @Security Bearer
// @Param id path string true "Space ID"
// @Success 200 {object} LeaveResponse
// @Failure 403 {object} httperr.E
// @Failure 404 {object} httperr.E
// @Router /spaces/{id}/leave [post]
func (h *Handlers) Leave(c *fiber.Ctx) error {
	who, err := handlerutil.GetPrincipal(c)
	if err != nil {
		return err
	}

	spaceID := c.Params("id")
	res, err := h.service.LeaveSpace(c.UserContext(), who, spaceID)
	if err != nil {
		return handlerutil.HandleServiceError(err, "Leave", who, "space_id", spaceID)
	}
	members := res.Members
	if members == nil {
		members = []model.Member{}
	}
	return c.JSON(LeaveResponse{SpaceDeleted: res.SpaceDeleted, Members: members})
}

// SendMessage handles posting a chat message
// @Summary Send a message
// @Tags messages
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Space ID"
// @Param request body spaces.SendMessageRequest true "Message"
// @Success 201 {object} model.Message
// @Failure 400 {object} httperr.E
// @Failure 403 {object} httperr.E
// @Router /spaces/{id}/messages [post]
func (h *Handlers) SendMessage(c *fiber.Ctx) error {
	who, err := handlerutil.GetPrincipal(c)
	if err != nil {
		return err
	}

	var req spaces.SendMessageRequest
	if err := handlerutil.ParseAndValidateBody(c, &req, h.validator, "SendMessage"); err != nil {
		return err
	}

	spaceID := c.Params("id")
	msg, err := h.service.SendMessage(c.UserContext(), who, spaceID, req)
	if err != nil {
		return handlerutil.HandleServiceError(err, "SendMessage", who, "space_id", spaceID)
	}
	return c.Status(201).JSON(msg)
}

// CreateNote handles note creation
// @Summary Create a note at the head of the list
// @Tags notes
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Space ID"
// @Param request body spaces.NoteRequest true "Note"
// @Success 201 {object} model.Note
// @Failure 400 {object} httperr.E
// @Failure 403 {object} httperr.E
// @Router /spaces/{id}/notes [post]
func (h *Handlers) CreateNote(c *fiber.Ctx) error {
	who, err := handlerutil.GetPrincipal(c)
	if err != nil {
		return err
	}

	var req spaces.NoteRequest
	if err := handlerutil.ParseAndValidateBody(c, &req, h.validator, "CreateNote"); err != nil {
		return err
	}

	spaceID := c.Params("id")
	n, err := h.service.CreateNote(c.UserContext(), who, spaceID, req)
	if err != nil {
		return handlerutil.HandleServiceError(err, "CreateNote", who, "space_id", spaceID)
	}
	return c.Status(201).JSON(n)
}

// UpdateNote handles note replacement
// @Summary Replace a note's title and blocks
// @Tags notes
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Space ID"
// @Param noteId path string true "Note ID"
// @Param request body spaces.NoteRequest true "Note"
// @Success 200 {object} model.Note
// @Failure 400 {object} httperr.E
// @Failure 404 {object} httperr.E
// @Router /spaces/{id}/notes/{noteId} [put]
func (h *Handlers) UpdateNote(c *fiber.Ctx) error {
	who, err := handlerutil.GetPrincipal(c)
	if err != nil {
		return err
	}

	var req spaces.NoteRequest
	if err := handlerutil.ParseAndValidateBody(c, &req, h.validator, "UpdateNote"); err != nil {
		return err
	}

	spaceID, noteID := c.Params("id"), c.Params("noteId")
	n, err := h.service.UpdateNote(c.UserContext(), who, spaceID, noteID, req)
	if err != nil {
		return handlerutil.HandleServiceError(err, "UpdateNote", who, "space_id", spaceID, "note_id", noteID)
	}
	return c.JSON(n)
}

// DeleteNote handles note deletion
// @Summary Delete a note
// @Tags notes
// @Security Bearer
// @Param id path string true "Space ID"
// @Param noteId path string true "Note ID"
// @Success 204
// @Failure 404 {object} httperr.E
// @Router /spaces/{id}/notes/{noteId} [delete]
func (h *Handlers) DeleteNote(c *fiber.Ctx) error {
	who, err := handlerutil.GetPrincipal(c)
	if err != nil {
		return err
	}

	spaceID, noteID := c.Params("id"), c.Params("noteId")
	if err := h.service.DeleteNote(c.UserContext(), who, spaceID, noteID); err != nil {
		return handlerutil.HandleServiceError(err, "DeleteNote", who, "space_id", spaceID, "note_id", noteID)
	}
	return c.SendStatus(204)
}

// ReorderNotes handles note reordering
// @Summary Reorder notes
// @Tags notes
// @Accept json
// @Security Bearer
// @Param id path string true "Space ID"
// @Param request body spaces.ReorderNotesRequest true "New order"
// @Success 200 {object} spaces.NoteOrder
// @Failure 400 {object} httperr.E
// @Router /spaces/{id}/notes/order [put]
func (h *Handlers) ReorderNotes(c *fiber.Ctx) error {
	who, err := handlerutil.GetPrincipal(c)
	if err != nil {
		return err
	}

	var req spaces.ReorderNotesRequest
	if err := handlerutil.ParseAndValidateBody(c, &req, h.validator, "ReorderNotes"); err != nil {
		return err
	}

	spaceID := c.Params("id")
	order, err := h.service.ReorderNotes(c.UserContext(), who, spaceID, req)
	if err != nil {
		return handlerutil.HandleServiceError(err, "ReorderNotes", who, "space_id", spaceID)
	}
	return c.JSON(spaces.NoteOrder{OrderedIDs: order})
}

// SetMemberRole handles role changes
// @Summary Change a member's role
// @Tags members
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Space ID"
// @Param userId path string true "Target user ID"
// @Param request body spaces.SetMemberRoleRequest true "Role"
// @Success 200 {object} MembersResponse
// @Failure 403 {object} httperr.E
// @Failure 409 {object} httperr.E
// @Router /spaces/{id}/members/{userId} [patch]
func (h *Handlers) SetMemberRole(c *fiber.Ctx) error {
	who, err := handlerutil.GetPrincipal(c)
	if err != nil {
		return err
	}

	var req spaces.SetMemberRoleRequest
	if err := handlerutil.ParseAndValidateBody(c, &req, h.validator, "SetMemberRole"); err != nil {
		return err
	}

	spaceID, target := c.Params("id"), c.Params("userId")
	members, err := h.service.SetMemberRole(c.UserContext(), who, spaceID, target, req)
	if err != nil {
		return handlerutil.HandleServiceError(err, "SetMemberRole", who, "space_id", spaceID, "target_user_id", target)
	}
	return c.JSON(MembersResponse{Members: members})
}

// RemoveMember handles removing another member
// @Summary Remove a member
// @Tags members
// @Produce json
// @Security Bearer
// @Param id path string true "Space ID"
// @Param userId path string true "Target user ID"
// @Success 200 {object} MembersResponse
// @Failure 403 {object} httperr.E
// @Failure 404 {object} httperr.E
// @Router /spaces/{id}/members/{userId} [delete]
func (h *Handlers) RemoveMember(c *fiber.Ctx) error {
	who, err := handlerutil.GetPrincipal(c)
	if err != nil {
		return err
	}

	spaceID, target := c.Params("id"), c.Params("userId")
	members, err := h.service.RemoveMember(c.UserContext(), who, spaceID, target)
	if err != nil {
		return handlerutil.HandleServiceError(err, "RemoveMember", who, "space_id", spaceID, "target_user_id", target)
	}
	return c.JSON(MembersResponse{Members: members})
}
