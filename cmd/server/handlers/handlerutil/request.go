package handlerutil

import (
	"errors"

	"space-pulse/cmd/server/ctxkeys"
	"space-pulse/cmd/server/handlers/httperr"
	"space-pulse/internal/logger"
	"space-pulse/internal/services/spaces"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// GetPrincipal returns the user the JWT middleware authenticated.
func GetPrincipal(c *fiber.Ctx) (spaces.Principal, error) {
	p, ok := c.Locals(ctxkeys.PrincipalKey).(spaces.Principal)
	if !ok || p.ID == "" {
		logger.L().Error("principal not found in context", "handler", "GetPrincipal", "path", c.Path())
		return spaces.Principal{}, httperr.Fail(httperr.ErrUnauthorized)
	}
	return p, nil
}

// ParseAndValidateBody parses request body and validates it
func ParseAndValidateBody(c *fiber.Ctx, req any, v *validator.Validate, handlerName string) error {
	userID, _ := c.Locals(ctxkeys.UserIDKey).(string)

	if err := c.BodyParser(req); err != nil {
		logger.L().Warn("failed to parse request body", "handler", handlerName, "user_id", userID, "error", err)
		return httperr.Fail(httperr.ErrBadRequest)
	}

	if err := v.StructCtx(c.UserContext(), req); err != nil {
		logger.L().Warn("request validation failed", "handler", handlerName, "user_id", userID, "error", err)
		return httperr.InvalidInput(err)
	}

	return nil
}

// statusFor maps service sentinels to HTTP statuses; 0 means unexpected.
func statusFor(err error) int {
	switch {
	case errors.Is(err, spaces.ErrSpaceNotFound), errors.Is(err, spaces.ErrNoteNotFound):
		return 404
	case errors.Is(err, spaces.ErrNotMember), errors.Is(err, spaces.ErrForbidden):
		return 403
	case errors.Is(err, spaces.ErrAlreadyMember), errors.Is(err, spaces.ErrLastAdmin):
		return 409
	case errors.Is(err, spaces.ErrInvalidOrder), errors.Is(err, spaces.ErrDraftNote), errors.Is(err, spaces.ErrInvalidInput):
		return 400
	}
	return 0
}

// HandleServiceError turns a service error into the response error. Domain errors keep
// their message; anything else is logged and answered with the operation's sentinel text.
func HandleServiceError(err error, handlerName string, who spaces.Principal, fields ...any) error {
	logFields := append([]any{"handler", handlerName, "user_id", who.ID, "error", err}, fields...)

	if status := statusFor(err); status != 0 {
		logger.L().Info("request refused", logFields...)
		return httperr.Fail(httperr.E{Status: status, Message: err.Error()})
	}

	logger.L().Error("service operation failed", logFields...)
	return httperr.Fail(httperr.InternalError(err.Error()))
}
