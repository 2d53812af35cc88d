package tasks

import (
	"context"
	"fmt"
	"sync"

	"aiengine/internal/models"
)

// Handler executes one task. A nil return completes the task; an error
// sends it through the retry/backoff state machine.
type Handler func(ctx context.Context, payload models.JSONB) error

// HandlerRegistry maps task type names to handlers. The hosting
// application registers handlers at startup; the dispatcher only
// resolves by name.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

// Register binds a task type to a handler.
func (r *HandlerRegistry) Register(taskType string, h Handler) error {
	if taskType == "" {
		return fmt.Errorf("task type is required")
	}
	if h == nil {
		return fmt.Errorf("handler is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[taskType]; exists {
		return fmt.Errorf("handler for task type %q already registered", taskType)
	}
	r.handlers[taskType] = h
	return nil
}

// Resolve returns the handler for a task type.
func (r *HandlerRegistry) Resolve(taskType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[taskType]
	return h, ok
}

// Types returns the registered task type names.
func (r *HandlerRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
