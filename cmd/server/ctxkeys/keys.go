// Package ctxkeys names the fiber Locals shared by middlewares and handlers.
package ctxkeys

const (
	UserIDKey    = "userID"
	UserEmailKey = "userEmail"
	// PrincipalKey holds the spaces.Principal built from the token claims.
	PrincipalKey = "principal"
	// ParentCtxKey holds the request context for websocket handlers, which run after fiber
	// has released the request.
	ParentCtxKey = "parentCtx"
)
