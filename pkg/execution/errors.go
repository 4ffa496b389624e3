// Package execution implements the flow execution engine: the executor state
// machine that walks a flow graph, and the registry of live executors.
package execution

import (
	"errors"
	"fmt"

	"github.com/flowplane/flowplane/pkg/models"
)

var (
	// ErrAlreadyRegistered indicates a live executor already owns the
	// execution id. Ownership is exclusive; a second registration is a bug
	// or a duplicate start request.
	ErrAlreadyRegistered = errors.New("executor already registered for execution")

	// ErrNotRegistered indicates no live executor holds the execution id.
	ErrNotRegistered = errors.New("no live executor registered for execution")
)

// InvalidTransitionError is returned when a control call (pause, resume,
// stop) is not legal for the execution's current status. The execution state
// is left untouched.
type InvalidTransitionError struct {
	ExecutionID string
	From        models.ExecutionStatus
	Action      string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s execution %s in status %s", e.Action, e.ExecutionID, e.From)
}

// IsInvalidTransition checks whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError

	return errors.As(err, &target)
}

// PersistenceError wraps a state-write failure. The executor halts the
// execution when persistence fails rather than continue with in-memory state
// that disk no longer reflects.
type PersistenceError struct {
	ExecutionID string
	Err         error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist execution %s: %v", e.ExecutionID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
