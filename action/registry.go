package action

import (
	"fmt"
	"sync"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/definition"
)

// Registry maps step types and action names to handlers. Type handlers
// take precedence; steps whose type has no handler fall back to Task
// semantics, dispatching on the step's action name. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	types   map[definition.StepType]Handler
	actions map[string]Handler
}

// NewRegistry creates a registry preloaded with no-op handlers for the
// structural step types whose work is done by the engine itself.
func NewRegistry() *Registry {
	return &Registry{
		types: map[definition.StepType]Handler{
			definition.TypeDecision: Noop,
			definition.TypeJoin:     Noop,
		},
		actions: make(map[string]Handler),
	}
}

// Register binds an action name to a handler. Re-registration replaces
// the previous handler.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = h
}

// RegisterFunc is a convenience for Register with a bare function.
func (r *Registry) RegisterFunc(name string, fn HandlerFunc) {
	r.Register(name, fn)
}

// RegisterType binds a step type to a handler, overriding the Task
// fallback for that type (used for Script and ErrorHandler steps).
func (r *Registry) RegisterType(t definition.StepType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t] = h
}

// Resolve returns the handler for a step: the type handler when one is
// registered, otherwise the action-name handler (Task fallback, also
// applied to unknown step types).
func (r *Registry) Resolve(step *definition.Step) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.types[step.Type]; ok {
		return h, nil
	}
	if h, ok := r.actions[step.Action]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("%w: step %q action %q", stepflow.ErrNoHandler, step.ID, step.Action)
}

// Actions returns all registered action names.
func (r *Registry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	return names
}
