package handlers

import "context"

// NewHelpHandler returns a handler for the /help command.
func NewHelpHandler(deps HandlerDeps) HandlerFunc {
	return helpHandler{deps}.Handle
}

// helpHandler processes the /help command using injected dependencies.
type helpHandler struct {
	deps HandlerDeps
}

func (h helpHandler) Handle(_ context.Context, _ Request) string {
	return h.deps.Messages.Help
}
