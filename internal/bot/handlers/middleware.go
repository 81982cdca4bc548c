package handlers

import (
	"context"
	"time"
)

// WithLogging logs every command invocation and how long it took.
func WithLogging(deps HandlerDeps) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) string {
			log := deps.Logger.With("handler", req.Command)
			log.InfoContext(ctx, "Handling command", "chat_id", req.ChatID, "user_id", req.UserID)

			start := time.Now()
			reply := next(ctx, req)

			log.DebugContext(ctx, "Command handled", "duration", time.Since(start))
			return reply
		}
	}
}
