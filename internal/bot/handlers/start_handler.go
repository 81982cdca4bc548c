package handlers

import "context"

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) HandlerFunc {
	return startHandler{deps}.Handle
}

// startHandler processes the /start command using injected dependencies.
type startHandler struct {
	deps HandlerDeps
}

func (h startHandler) Handle(_ context.Context, _ Request) string {
	return h.deps.Messages.Welcome
}
