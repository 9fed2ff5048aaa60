package handlers

import (
	"space-pulse/cmd/server/handlers/handlerutil"

	"github.com/gofiber/fiber/v2"
)

// Me returns the principal carried by the token.
// @Summary Get current user
// @Description Get the user the bearer token identifies
// @Tags auth
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} model.UserSnapshot
// @Failure 401 {object} httperr.E
// @Router /me [get]
func Me(c *fiber.Ctx) error {
	p, err := handlerutil.GetPrincipal(c)
	if err != nil {
		return err
	}
	return c.JSON(p)
}
