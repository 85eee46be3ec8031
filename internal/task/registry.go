package task

import (
	"sort"

	"dockhand/internal/models"
)

// Handler implements one task type's actual work. It receives the stored
// params verbatim (plus the reserved ParamTaskID key) and reports failure by
// returning an error; any returned map is treated as success.
type Handler func(params models.JSONMap) (models.JSONMap, error)

// ParamTaskID is the reserved params key the engine injects at enqueue time
// so a handler can address its own log stream.
const ParamTaskID = "_task_id"

// Registry maps task-type names to handlers. It is populated once at startup
// by the process entry point and read-only afterwards, so lookups need no
// synchronization.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(taskType string, handler Handler) {
	r.handlers[taskType] = handler
}

func (r *Registry) Get(taskType string) (Handler, bool) {
	h, ok := r.handlers[taskType]
	return h, ok
}

func (r *Registry) Has(taskType string) bool {
	_, ok := r.handlers[taskType]
	return ok
}

// Types returns the registered task-type names in sorted order
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
