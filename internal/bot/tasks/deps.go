// Package tasks implements optional scheduled maintenance tasks for
// long-running deployments. It includes task definitions, dependencies, and
// registration mechanisms.
package tasks

import (
	"log/slog"
	"net/http"

	"github.com/edgard/stashbot/internal/config"
	"github.com/edgard/stashbot/internal/database"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger     *slog.Logger
	Store      database.Store
	HTTPClient *http.Client
	Config     *config.Config
}
