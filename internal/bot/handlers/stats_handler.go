package handlers

import (
	"context"
	"fmt"
)

const dateLayout = "2006-01-02"

// NewStatsHandler returns a handler for the /stats command.
func NewStatsHandler(deps HandlerDeps) HandlerFunc {
	return statsHandler{deps}.Handle
}

// statsHandler reports how many messages the sender has stored.
type statsHandler struct {
	deps HandlerDeps
}

func (h statsHandler) Handle(ctx context.Context, req Request) string {
	log := h.deps.Logger.With("handler", "stats")

	if h.deps.Store == nil || req.UserID == 0 {
		return h.deps.Messages.TextReceived
	}

	stats, err := h.deps.Store.GetMessageStats(ctx, req.UserID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load message stats", "error", err, "user_id", req.UserID)
		return h.deps.Messages.TextReceived
	}
	reply := fmt.Sprintf(h.deps.Messages.Stats, stats.Total, stats.Media)

	user, err := h.deps.Store.GetUser(ctx, req.UserID)
	if err != nil {
		log.WarnContext(ctx, "Failed to load user for stats", "error", err, "user_id", req.UserID)
		return reply
	}
	if user != nil && !user.CreatedAt.IsZero() {
		reply += "\n" + fmt.Sprintf(h.deps.Messages.StatsSince, user.CreatedAt.Format(dateLayout))
	}
	return reply
}
