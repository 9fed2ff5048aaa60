package middlewares

import (
	"space-pulse/cmd/server/ctxkeys"
	"space-pulse/cmd/server/handlers/httperr"
	"space-pulse/internal/services/auth"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// JWT returns a configured Fiber middleware that:
//
//   - validates the Bearer token with the key and algorithm of authSvc
//   - makes sure the token carries "user_id" and "email" claims
//   - stores the principal in ctx.Locals so downstream handlers can trust it.
//
// On any problem it bubbles up a 401 via the global httperr handler.
func JWT(authSvc *auth.Service) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: authSvc.SigningKey(),
		SuccessHandler: func(c *fiber.Ctx) error {
			// Token already verified at this point.
			token := c.Locals("user").(*jwt.Token)
			claims, _ := token.Claims.(jwt.MapClaims)

			principal, err := auth.PrincipalFromClaims(claims)
			if err != nil {
				return httperr.Fail(httperr.E{Status: 401, Message: err.Error()})
			}

			c.Locals(ctxkeys.UserIDKey, principal.ID)
			c.Locals(ctxkeys.UserEmailKey, principal.Email)
			c.Locals(ctxkeys.PrincipalKey, principal)
			return c.Next()
		},

		// Override the default "unauthorized" JSON to match the project style
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return httperr.Fail(httperr.ErrUnauthorized)
		},
	})
}
