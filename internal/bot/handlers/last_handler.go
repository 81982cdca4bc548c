package handlers

import (
	"context"
	"fmt"

	"github.com/edgard/stashbot/internal/database"
)

// NewLastHandler returns a handler for the /last command.
func NewLastHandler(deps HandlerDeps) HandlerFunc {
	return lastHandler{deps}.Handle
}

// lastHandler links the sender's most recently stored media.
type lastHandler struct {
	deps HandlerDeps
}

func (h lastHandler) Handle(ctx context.Context, req Request) string {
	log := h.deps.Logger.With("handler", "last")

	if h.deps.Store == nil || req.UserID == 0 {
		return h.deps.Messages.NoUploads
	}

	var upload database.LastUpload
	found, err := h.deps.Store.GetUserData(ctx, req.UserID, database.UserDataLastUpload, &upload)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load last upload", "error", err, "user_id", req.UserID)
		return h.deps.Messages.NoUploads
	}
	if !found || upload.URL == "" {
		return h.deps.Messages.NoUploads
	}
	return fmt.Sprintf(h.deps.Messages.LastUpload, upload.Kind, upload.URL)
}
