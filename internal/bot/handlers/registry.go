// Package handlers contains the bot's command handlers, along with their
// registration logic and middleware.
package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot/models"
)

// Request is the command invocation passed to a handler.
type Request struct {
	ChatID  int64
	UserID  int64
	Command string
	Args    string
	Message *models.Message
}

// HandlerFunc computes the reply text for a command.
type HandlerFunc func(ctx context.Context, req Request) string

// Middleware wraps a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// RegisteredHandler represents a command handler with its description and middleware.
// It encapsulates all information needed to register and document a command.
type RegisteredHandler struct {
	Pattern     string
	Description string
	Handler     HandlerFunc
	Middleware  []Middleware
}

// Wrapped returns the handler with its middleware applied. Middleware are
// applied in reverse order so the first one in the slice is the outermost.
func (r RegisteredHandler) Wrapped() HandlerFunc {
	handler := r.Handler
	for i := len(r.Middleware) - 1; i >= 0; i-- {
		handler = r.Middleware[i](handler)
	}
	return handler
}

// RegisterAllCommands initializes and returns a map of all available bot commands.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)
	logging := []Middleware{WithLogging(deps)}

	handlers["/start"] = RegisteredHandler{
		Pattern:     "start",
		Description: "Start the bot",
		Handler:     NewStartHandler(deps),
		Middleware:  logging,
	}
	handlers["/help"] = RegisteredHandler{
		Pattern:     "help",
		Description: "Show this help message",
		Handler:     NewHelpHandler(deps),
		Middleware:  logging,
	}
	handlers["/stats"] = RegisteredHandler{
		Pattern:     "stats",
		Description: "Show your message statistics",
		Handler:     NewStatsHandler(deps),
		Middleware:  logging,
	}
	handlers["/history"] = RegisteredHandler{
		Pattern:     "history",
		Description: "Show your recent messages",
		Handler:     NewHistoryHandler(deps),
		Middleware:  logging,
	}
	handlers["/last"] = RegisteredHandler{
		Pattern:     "last",
		Description: "Show your last stored media",
		Handler:     NewLastHandler(deps),
		Middleware:  logging,
	}

	return handlers
}

// ParseCommand splits "/name@bot args" into its command name and arguments.
// Only text starting with a slash is a command.
func ParseCommand(text string) (name, args string, ok bool) {
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// Lookup finds the registered handler for a message text.
func Lookup(handlers map[string]RegisteredHandler, text string) (RegisteredHandler, Request, bool) {
	name, args, ok := ParseCommand(text)
	if !ok {
		return RegisteredHandler{}, Request{}, false
	}
	h, found := handlers["/"+name]
	if !found || h.Handler == nil {
		return RegisteredHandler{}, Request{}, false
	}
	return h, Request{Command: name, Args: args}, true
}
