// Package docs SpacePulse API
//
// @title  SpacePulse API
// @version 0.1.0
// @description Shared spaces with chat, notes and live updates.
// @host      localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
package docs

import (
	_ "space-pulse/cmd/server/handlers/httperr"
	_ "space-pulse/internal/model"
	_ "space-pulse/internal/services/spaces"
)
