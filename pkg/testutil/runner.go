package testutil

import (
	"context"
	"sync"

	"github.com/flowplane/flowplane/pkg/runner"
)

// StepOutcome scripts one node's behavior in a ScriptedRunner.
type StepOutcome struct {
	Output any
	Err    error
	// Block, when non-nil, is closed by the test to release the step. It
	// lets tests park an execution inside a node deterministically.
	Block <-chan struct{}
}

// ScriptedRunner is a StepRunner whose behavior per node id is scripted up
// front. It records every request it receives.
type ScriptedRunner struct {
	mu       sync.Mutex
	outcomes map[string]StepOutcome
	requests []runner.StepRequest
}

// NewScriptedRunner creates a runner that succeeds with nil output for any
// node not explicitly scripted.
func NewScriptedRunner() *ScriptedRunner {
	return &ScriptedRunner{
		outcomes: make(map[string]StepOutcome),
	}
}

// Script sets the outcome for a node id.
func (r *ScriptedRunner) Script(nodeID string, outcome StepOutcome) *ScriptedRunner {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outcomes[nodeID] = outcome

	return r
}

func (r *ScriptedRunner) Run(ctx context.Context, req runner.StepRequest) (*runner.StepResult, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	outcome := r.outcomes[req.NodeID]
	r.mu.Unlock()

	if outcome.Block != nil {
		select {
		case <-outcome.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if outcome.Err != nil {
		return nil, outcome.Err
	}

	return &runner.StepResult{Output: outcome.Output}, nil
}

// Requests returns a copy of every request seen so far.
func (r *ScriptedRunner) Requests() []runner.StepRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]runner.StepRequest, len(r.requests))
	copy(out, r.requests)

	return out
}

// CallCount returns how many times the node was dispatched.
func (r *ScriptedRunner) CallCount(nodeID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0

	for _, req := range r.requests {
		if req.NodeID == nodeID {
			count++
		}
	}

	return count
}
