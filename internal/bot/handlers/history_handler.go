package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/edgard/stashbot/internal/database"
	"github.com/edgard/stashbot/internal/logger"
)

const (
	historyLimit   = 5
	historyPreview = 48
)

// NewHistoryHandler returns a handler for the /history command.
func NewHistoryHandler(deps HandlerDeps) HandlerFunc {
	return historyHandler{deps}.Handle
}

// historyHandler lists the sender's most recent inbound messages.
type historyHandler struct {
	deps HandlerDeps
}

func (h historyHandler) Handle(ctx context.Context, req Request) string {
	log := h.deps.Logger.With("handler", "history")

	if h.deps.Store == nil || req.UserID == 0 {
		return h.deps.Messages.TextReceived
	}

	// Replies are interleaved with inbound rows; fetch enough to fill the list.
	messages, err := h.deps.Store.GetUserMessages(ctx, req.UserID, historyLimit*3)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load message history", "error", err, "user_id", req.UserID)
		return h.deps.Messages.TextReceived
	}

	var lines []string
	for _, m := range messages {
		if m.IsBot || len(lines) == historyLimit {
			continue
		}
		lines = append(lines, "• "+describeMessage(m))
	}
	if len(lines) == 0 {
		return h.deps.Messages.HistoryEmpty
	}
	return h.deps.Messages.History + "\n" + strings.Join(lines, "\n")
}

func describeMessage(m database.Message) string {
	text := logger.TruncateString(m.MessageText, historyPreview)
	if !m.FileType.Valid {
		return fmt.Sprintf("%s %s", m.Timestamp.Format(dateLayout), text)
	}

	line := fmt.Sprintf("%s [%s]", m.Timestamp.Format(dateLayout), m.FileType.String)
	if m.StorageURL.Valid {
		line += " " + m.StorageURL.String
	}
	if text != "" {
		line += " " + text
	}
	return line
}
