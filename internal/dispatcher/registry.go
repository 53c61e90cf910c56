package dispatcher

import (
	"context"
	"fmt"

	"github.com/careerhub/ai-pipeline/internal/task"
)

// Handler executes one task type. The returned map becomes the task result
// stored in the database and published to the result queue.
type Handler func(ctx context.Context, msg *task.Message) (map[string]interface{}, error)

// Registry maps task types to their handlers
type Registry struct {
	handlers map[task.Type]Handler
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[task.Type]Handler),
	}
}

// Register binds a handler to a task type, replacing any previous binding
func (r *Registry) Register(taskType task.Type, handler Handler) {
	r.handlers[taskType] = handler
}

// Lookup returns the handler for a task type
func (r *Registry) Lookup(taskType task.Type) (Handler, error) {
	handler, ok := r.handlers[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: no handler registered for %q", task.ErrUnknownTaskType, taskType)
	}
	return handler, nil
}

// Types returns the registered task types
func (r *Registry) Types() []task.Type {
	types := make([]task.Type, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
