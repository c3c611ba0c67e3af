package task

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Registry maps task kinds to their handlers. It is built once at process
// start and shared by the dispatcher and the runner.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds handler to kind.
func (r *Registry) Register(kind string, handler Handler) error {
	if strings.TrimSpace(kind) == "" {
		return fmt.Errorf("%w: empty kind", ErrUnknownKind)
	}
	if handler == nil {
		return ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[kind]; ok {
		return fmt.Errorf("%w: %s", ErrKindRegistered, kind)
	}
	r.handlers[kind] = handler
	return nil
}

// Lookup returns the handler registered for kind.
func (r *Registry) Lookup(kind string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
