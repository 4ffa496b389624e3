// Package runner defines the contract between the execution engine and the
// backends that actually carry out node instructions.
package runner

import (
	"context"

	"github.com/flowplane/flowplane/pkg/models"
)

// StepRequest is one node attempt handed to a step runner. The instruction
// has already had its {{variable}} references resolved.
type StepRequest struct {
	ExecutionID string
	NodeID      string
	Instruction string
	Variables   map[string]any
	Hints       *models.RoutingHints
}

// StepResult is a successful step outcome. Output becomes the node's result
// and, when the node names an output, a new variable binding.
type StepResult struct {
	Output any
}

// StepRunner executes one step. The engine invokes it once per node attempt
// with no implicit retries; the call is the only blocking point inside a
// node's processing. The engine does not interrupt an in-flight call; the
// context is the runner's chance to honor stop signals itself.
type StepRunner interface {
	Run(ctx context.Context, req StepRequest) (*StepResult, error)
}

// Func adapts a function to the StepRunner interface.
type Func func(ctx context.Context, req StepRequest) (*StepResult, error)

func (f Func) Run(ctx context.Context, req StepRequest) (*StepResult, error) {
	return f(ctx, req)
}
