package runner

import (
	"context"
	"fmt"
	"sync"
)

// Registry maps backend names to step runners. The executor resolves a node's
// routing hints against it; nodes without a backend hint use the default.
type Registry struct {
	mu       sync.RWMutex
	runners  map[string]StepRunner
	fallback string
}

// NewRegistry creates a runner registry whose unhinted nodes go to the named
// default backend.
func NewRegistry(defaultBackend string) *Registry {
	return &Registry{
		runners:  make(map[string]StepRunner),
		fallback: defaultBackend,
	}
}

// Register adds a named backend.
func (r *Registry) Register(backend string, stepRunner StepRunner) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runners[backend] = stepRunner
}

// Resolve returns the runner for the given backend name, falling back to the
// default when the name is empty.
func (r *Registry) Resolve(backend string) (StepRunner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if backend == "" {
		backend = r.fallback
	}

	stepRunner, ok := r.runners[backend]
	if !ok {
		return nil, fmt.Errorf("step runner backend %q not registered", backend)
	}

	return stepRunner, nil
}

// Run resolves the request's backend hint and dispatches the step to it.
func (r *Registry) Run(ctx context.Context, req StepRequest) (*StepResult, error) {
	backend := ""
	if req.Hints != nil {
		backend = req.Hints.Backend
	}

	stepRunner, err := r.Resolve(backend)
	if err != nil {
		return nil, err
	}

	return stepRunner.Run(ctx, req)
}
