package handlers

import (
	"log/slog"

	"github.com/edgard/stashbot/internal/config"
	"github.com/edgard/stashbot/internal/database"
)

// HandlerDeps provides dependencies for command handlers.
type HandlerDeps struct {
	Logger   *slog.Logger
	Messages config.MessagesConfig
	Store    database.Store
}
