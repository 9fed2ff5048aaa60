// Package httperr is the JSON error envelope every endpoint answers with: {"error": "..."}.
package httperr

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// E is an error that knows its HTTP status.
type E struct {
	Status  int    `json:"-" example:"400"`
	Message string `json:"error" example:"Bad Request"`
}

func (e E) Error() string {
	return e.Message
}

// JSON writes e as the response.
func (e E) JSON(c *fiber.Ctx) error {
	return c.Status(e.Status).JSON(e)
}

// New builds an E; an empty message becomes the status text.
func New(status int, message string) E {
	if message == "" {
		message = http.StatusText(status)
	}
	return E{Status: status, Message: message}
}

// Fail hands err to the app's error Handler.
func Fail(err E) error {
	return err
}

func InvalidInput(err error) error {
	return Fail(New(fiber.StatusBadRequest, "Invalid input: "+err.Error()))
}

func InternalError(message string) E {
	return New(fiber.StatusInternalServerError, message)
}

var (
	ErrBadRequest      = New(fiber.StatusBadRequest, "")
	ErrUnauthorized    = New(fiber.StatusUnauthorized, "")
	ErrForbidden       = New(fiber.StatusForbidden, "")
	ErrNotFound        = New(fiber.StatusNotFound, "Not Found")
	ErrConflict        = New(fiber.StatusConflict, "")
	ErrTooManyRequests = New(fiber.StatusTooManyRequests, "")
	ErrUnavailable     = New(fiber.StatusServiceUnavailable, "")
	ErrInternal        = InternalError("Internal Server Error")
)

// From resolves err to the envelope the Handler will send. Fiber's own errors keep their
// code; anything unrecognized is a 500 that does not leak the cause.
func From(err error) E {
	var e E
	if errors.As(err, &e) {
		return e
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return New(fe.Code, fe.Message)
	}
	return ErrInternal
}

// Handler is the fiber.Config ErrorHandler.
func Handler(c *fiber.Ctx, err error) error {
	return From(err).JSON(c)
}
