package execution

import (
	"fmt"
	"sync"
)

// Registry tracks the live executor for each in-flight execution. Control
// requests route through it; an execution absent from the registry has no
// goroutine driving it and must be rehydrated from persisted state.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]*Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]*Executor),
	}
}

// Register claims the execution id for the given executor. Registration is
// exclusive; a second claim for the same id fails.
func (r *Registry) Register(executor *Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := executor.ID()
	if _, exists := r.executors[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}

	r.executors[id] = executor

	return nil
}

// Get returns the live executor for the execution id.
func (r *Registry) Get(id string) (*Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, exists := r.executors[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}

	return executor, nil
}

// Unregister releases the execution id. Unregistering an unknown id is a
// no-op so cleanup paths can run unconditionally.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.executors, id)
}

// IDs returns the ids of all registered executors.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.executors))
	for id := range r.executors {
		ids = append(ids, id)
	}

	return ids
}

// Len returns the number of registered executors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.executors)
}
