package tool

import (
	"context"
	"fmt"

	"github.com/queryhub/queryhub/internal/domain/decision"
)

// Registry maps tool identifiers to handlers. It is assembled once at startup
// and immutable afterwards, so dispatch needs no locking.
type Registry struct {
	handlers map[decision.ToolID]Handler
}

// NewRegistry builds a registry from the given handlers.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	m := make(map[decision.ToolID]Handler, len(handlers))
	for _, h := range handlers {
		id := h.ID()
		if !decision.Known(id) {
			return nil, fmt.Errorf("registry: handler has unknown tool id %q", id)
		}
		if _, exists := m[id]; exists {
			return nil, fmt.Errorf("registry: duplicate handler for %q", id)
		}
		m[id] = h
	}
	return &Registry{handlers: m}, nil
}

// Known reports whether a handler is registered for id.
func (r *Registry) Known(id decision.ToolID) bool {
	_, ok := r.handlers[id]
	return ok
}

// Dispatch routes the request to the handler for target. An unknown target
// yields an error result with empty items, never a Go error.
func (r *Registry) Dispatch(ctx context.Context, target decision.ToolID, req Request) Result {
	h, ok := r.handlers[target]
	if !ok {
		return Result{
			Error: fmt.Sprintf("unknown feature: %s", target),
			Items: []Item{},
		}
	}
	return h.Handle(ctx, req)
}
