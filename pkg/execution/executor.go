package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowplane/flowplane/pkg/eventbus"
	"github.com/flowplane/flowplane/pkg/events"
	"github.com/flowplane/flowplane/pkg/models"
	"github.com/flowplane/flowplane/pkg/outputs"
	"github.com/flowplane/flowplane/pkg/persistence"
	"github.com/flowplane/flowplane/pkg/runner"
	"github.com/flowplane/flowplane/pkg/template"
)

// Executor drives one execution of one flow. It owns the execution state
// exclusively: all mutations happen here, get persisted after every node
// transition, and are announced on the event bus. Control calls (Pause, Stop)
// arrive from other goroutines and are honored at the next checkpoint, which
// sits between nodes; an in-flight step is never interrupted.
type Executor struct {
	flow    *models.Flow
	state   *models.ExecutionState
	runner  runner.StepRunner
	repo    persistence.ExecutionRepository
	bus     eventbus.EventPublisher
	tracker *outputs.Tracker
	logger  *slog.Logger

	mu             sync.Mutex
	pauseRequested bool
	stopRequested  bool
}

// Config carries an executor's collaborators. Flow, State, Runner and Repo
// are required; EventBus and Tracker are optional observers.
type Config struct {
	Flow     *models.Flow
	State    *models.ExecutionState
	Runner   runner.StepRunner
	Repo     persistence.ExecutionRepository
	EventBus eventbus.EventPublisher
	Tracker  *outputs.Tracker
	Logger   *slog.Logger
}

// NewExecutor creates an executor for the given flow and execution state.
func NewExecutor(cfg Config) (*Executor, error) {
	if cfg.Flow == nil {
		return nil, fmt.Errorf("flow is required")
	}

	if cfg.State == nil {
		return nil, fmt.Errorf("execution state is required")
	}

	if cfg.Runner == nil {
		return nil, fmt.Errorf("step runner is required")
	}

	if cfg.Repo == nil {
		return nil, fmt.Errorf("execution repository is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		flow:    cfg.Flow,
		state:   cfg.State,
		runner:  cfg.Runner,
		repo:    cfg.Repo,
		bus:     cfg.EventBus,
		tracker: cfg.Tracker,
		logger: logger.With(
			"execution_id", cfg.State.ID,
			"flow_id", cfg.Flow.ID,
		),
	}, nil
}

// ID returns the execution id this executor drives.
func (e *Executor) ID() string {
	return e.state.ID
}

// Status returns the execution's current status.
func (e *Executor) Status() models.ExecutionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state.Status
}

// Run starts the execution and blocks until it pauses or reaches a terminal
// status. Returning with a paused execution is not an error; Resume picks the
// walk back up from persisted state.
func (e *Executor) Run(ctx context.Context) error {
	e.mu.Lock()

	if e.state.Status != models.ExecutionStatusPending {
		from := e.state.Status
		e.mu.Unlock()

		return &InvalidTransitionError{ExecutionID: e.state.ID, From: from, Action: "run"}
	}

	e.state.Status = models.ExecutionStatusRunning
	e.state.AppendLog(models.LogLevelInfo, "", "execution started")
	e.mu.Unlock()

	if e.tracker != nil {
		if err := e.tracker.Start(e.state.ID, e.defaultBackend()); err != nil {
			e.logger.WarnContext(ctx, "Failed to start output tracking", "error", err)
		}
	}

	if err := e.persist(ctx); err != nil {
		return err
	}

	e.emitStateUpdate(ctx)

	return e.loop(ctx)
}

// Resume picks a paused execution back up and blocks like Run does.
func (e *Executor) Resume(ctx context.Context) error {
	if err := e.ClaimResume(); err != nil {
		return err
	}

	return e.ResumeClaimed(ctx)
}

// ClaimResume atomically takes the paused to running transition. Exactly one
// of any concurrent claimers wins; the rest get an InvalidTransitionError
// without touching the execution. The winner must follow up with
// ResumeClaimed to continue the walk.
func (e *Executor) ClaimResume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status != models.ExecutionStatusPaused {
		return &InvalidTransitionError{ExecutionID: e.state.ID, From: e.state.Status, Action: "resume"}
	}

	e.state.Status = models.ExecutionStatusRunning
	e.pauseRequested = false
	e.state.AppendLog(models.LogLevelInfo, "", "execution resumed")

	return nil
}

// ResumeClaimed continues a walk whose resume was already claimed via
// ClaimResume and blocks like Run does.
func (e *Executor) ResumeClaimed(ctx context.Context) error {
	e.logger.InfoContext(ctx, "Resuming execution")

	if err := e.persist(ctx); err != nil {
		return err
	}

	e.emitStateUpdate(ctx)

	return e.loop(ctx)
}

// Pause requests a pause. The request takes effect at the next checkpoint;
// calling it again before then is a no-op.
func (e *Executor) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status != models.ExecutionStatusRunning {
		return &InvalidTransitionError{ExecutionID: e.state.ID, From: e.state.Status, Action: "pause"}
	}

	e.pauseRequested = true

	return nil
}

// Stop requests termination. A running execution stops at its next
// checkpoint; a paused or pending one is finalized synchronously before Stop
// returns, since no loop is active to pick the request up.
func (e *Executor) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state.Status {
	case models.ExecutionStatusRunning:
		e.stopRequested = true

		return nil
	case models.ExecutionStatusPaused, models.ExecutionStatusPending:
		return e.finalizeLocked(ctx, models.ExecutionStatusFailed, "execution stopped by user request")
	default:
		return &InvalidTransitionError{ExecutionID: e.state.ID, From: e.state.Status, Action: "stop"}
	}
}

type checkpointAction int

const (
	checkpointContinue checkpointAction = iota
	checkpointPaused
	checkpointStopped
)

// loop walks the graph one eligible node at a time. Between nodes it samples
// control requests; a stop request wins over a pause request issued in the
// same gap.
func (e *Executor) loop(ctx context.Context) error {
	for {
		if e.Status().IsTerminal() {
			return nil
		}

		action, err := e.checkpoint(ctx)
		if err != nil {
			return err
		}

		switch action {
		case checkpointPaused, checkpointStopped:
			return nil
		case checkpointContinue:
		}

		node := e.nextEligibleNode()
		if node == nil {
			return e.finish(ctx)
		}

		if err := e.runNode(ctx, node); err != nil {
			var paused *pauseSignal
			if errors.As(err, &paused) {
				return nil
			}

			return err
		}
	}
}

// checkpoint applies any pending control request. It is the only place a
// running execution changes status on someone else's behalf.
func (e *Executor) checkpoint(ctx context.Context) (checkpointAction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopRequested {
		e.stopRequested = false
		e.pauseRequested = false

		return checkpointStopped, e.finalizeLocked(ctx, models.ExecutionStatusFailed, "execution stopped by user request")
	}

	if e.pauseRequested {
		e.pauseRequested = false
		e.state.Status = models.ExecutionStatusPaused
		e.state.AppendLog(models.LogLevelInfo, "", "execution paused")

		if err := e.persistLocked(ctx); err != nil {
			return checkpointPaused, err
		}

		e.emitStateUpdateLocked(ctx)
		e.logger.InfoContext(ctx, "Execution paused")

		return checkpointPaused, nil
	}

	return checkpointContinue, nil
}

// nextEligibleNode returns the first pending node whose inbound edge sources
// have all reached a terminal node status. Selection follows the flow's node
// order, so repeated runs of the same graph walk it the same way.
func (e *Executor) nextEligibleNode() *models.Node {
	for _, node := range e.flow.Nodes {
		nodeState := e.state.NodeStates[node.ID]
		if nodeState == nil || nodeState.Status != models.NodeRunStatusPending {
			continue
		}

		eligible := true

		for _, source := range e.flow.InboundSources(node.ID) {
			sourceState := e.state.NodeStates[source]
			if sourceState == nil || !sourceState.Status.IsTerminal() {
				eligible = false

				break
			}
		}

		if eligible {
			return node
		}
	}

	return nil
}

// runNode executes one node end to end: dispatch, record the outcome, persist,
// and apply the node's error policy on failure.
func (e *Executor) runNode(ctx context.Context, node *models.Node) error {
	nodeState := e.state.NodeStates[node.ID]
	startedAt := time.Now().UTC()

	e.mu.Lock()
	nodeState.Status = models.NodeRunStatusRunning
	nodeState.StartedAt = &startedAt
	e.state.CurrentNodeID = node.ID
	e.state.AppendLog(models.LogLevelInfo, node.ID, "node started")
	e.mu.Unlock()

	if err := e.persist(ctx); err != nil {
		return err
	}

	e.emitStateUpdate(ctx)
	e.emit(ctx, events.NodeStarted{
		BaseEvent:   e.baseEvent(events.NodeStartedEvent),
		ExecutionID: e.state.ID,
		NodeID:      node.ID,
	})

	e.logger.InfoContext(ctx, "Running node", "node_id", node.ID)

	result, runErr := e.dispatch(ctx, node)

	completedAt := time.Now().UTC()

	if runErr != nil {
		return e.handleNodeFailure(ctx, node, nodeState, completedAt, runErr)
	}

	e.mu.Lock()
	nodeState.Status = models.NodeRunStatusCompleted
	nodeState.CompletedAt = &completedAt
	nodeState.Result = result.Output

	if node.OutputName != "" {
		e.state.Variables[node.OutputName] = result.Output
	}

	e.state.AppendLog(models.LogLevelInfo, node.ID, "node completed")
	e.mu.Unlock()

	if e.tracker != nil && result.Output != nil {
		if err := e.tracker.Append(e.state.ID, fmt.Sprint(result.Output)); err != nil {
			e.logger.DebugContext(ctx, "Failed to append tracked output", "error", err)
		}
	}

	if err := e.persist(ctx); err != nil {
		return err
	}

	e.emit(ctx, events.NodeFinished{
		BaseEvent:   e.baseEvent(events.NodeFinishedEvent),
		ExecutionID: e.state.ID,
		NodeID:      node.ID,
		Status:      models.NodeRunStatusCompleted,
	})

	return nil
}

// dispatch resolves the node's instruction and hands it to the step runner.
func (e *Executor) dispatch(ctx context.Context, node *models.Node) (*runner.StepResult, error) {
	e.mu.Lock()
	variables := make(map[string]any, len(e.state.Variables))
	for k, v := range e.state.Variables {
		variables[k] = v
	}
	e.mu.Unlock()

	instruction, err := template.Render(node.Instruction, variables)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve instruction for node %s: %w", node.ID, err)
	}

	result, err := e.runner.Run(ctx, runner.StepRequest{
		ExecutionID: e.state.ID,
		NodeID:      node.ID,
		Instruction: instruction,
		Variables:   variables,
		Hints:       node.Hints,
	})
	if err != nil {
		return nil, err
	}

	if result == nil {
		result = &runner.StepResult{}
	}

	return result, nil
}

// handleNodeFailure records the failure and applies the node's error policy:
// continue keeps walking, pause parks the execution for operator review, and
// fail (the default) terminates the whole execution.
func (e *Executor) handleNodeFailure(ctx context.Context, node *models.Node, nodeState *models.NodeState, completedAt time.Time, runErr error) error {
	policy := node.ErrorPolicyOrDefault()

	e.logger.WarnContext(ctx, "Node failed",
		"node_id", node.ID,
		"on_error", string(policy),
		"error", runErr,
	)

	e.mu.Lock()
	nodeState.Status = models.NodeRunStatusFailed
	nodeState.CompletedAt = &completedAt
	nodeState.Error = runErr.Error()
	e.state.AppendLog(models.LogLevelError, node.ID, fmt.Sprintf("node failed: %v", runErr))
	e.mu.Unlock()

	if err := e.persist(ctx); err != nil {
		return err
	}

	e.emit(ctx, events.NodeFinished{
		BaseEvent:   e.baseEvent(events.NodeFinishedEvent),
		ExecutionID: e.state.ID,
		NodeID:      node.ID,
		Status:      models.NodeRunStatusFailed,
		Error:       runErr.Error(),
	})

	switch policy {
	case models.ErrorPolicyContinue:
		return nil
	case models.ErrorPolicyPause:
		e.mu.Lock()
		defer e.mu.Unlock()

		e.state.Status = models.ExecutionStatusPaused
		e.state.AppendLog(models.LogLevelWarn, node.ID, "execution paused by node error policy")

		if err := e.persistLocked(ctx); err != nil {
			return err
		}

		e.emitStateUpdateLocked(ctx)

		return &pauseSignal{}
	default:
		e.mu.Lock()
		defer e.mu.Unlock()

		return e.finalizeLocked(ctx, models.ExecutionStatusFailed, fmt.Sprintf("node %s failed: %v", node.ID, runErr))
	}
}

// finish closes out an execution with no eligible nodes left. Nodes still
// pending at this point were stranded by upstream failures; they are marked
// skipped so the record shows they never ran.
func (e *Executor) finish(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, nodeState := range e.state.NodeStates {
		if nodeState.Status == models.NodeRunStatusPending {
			nodeState.Status = models.NodeRunStatusSkipped
			e.state.AppendLog(models.LogLevelWarn, id, "node skipped: never became eligible")
		}
	}

	return e.finalizeLocked(ctx, models.ExecutionStatusCompleted, "execution completed")
}

// finalizeLocked moves the execution to a terminal status, persists it and
// announces the outcome. Caller must hold the mutex.
func (e *Executor) finalizeLocked(ctx context.Context, status models.ExecutionStatus, message string) error {
	completedAt := time.Now().UTC()
	e.state.Status = status
	e.state.CompletedAt = &completedAt
	e.state.CurrentNodeID = ""

	level := models.LogLevelInfo
	if status == models.ExecutionStatusFailed {
		level = models.LogLevelError
	}

	e.state.AppendLog(level, "", message)

	if err := e.persistLocked(ctx); err != nil {
		return err
	}

	e.emitStateUpdateLocked(ctx)
	e.emit(ctx, events.ExecutionFinished{
		BaseEvent:   e.baseEvent(events.ExecutionFinishedEvent),
		ExecutionID: e.state.ID,
		Status:      status,
		Duration:    completedAt.Sub(e.state.StartedAt),
	})

	if e.tracker != nil {
		if err := e.tracker.Complete(e.state.ID, status == models.ExecutionStatusCompleted); err != nil {
			e.logger.DebugContext(ctx, "Failed to complete output tracking", "error", err)
		}
	}

	e.logger.InfoContext(ctx, "Execution finished", "status", string(status))

	return nil
}

func (e *Executor) persist(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.persistLocked(ctx)
}

// persistLocked writes the execution state through the repository. A write
// failure halts the execution; continuing with state disk no longer reflects
// would make restart recovery lie.
func (e *Executor) persistLocked(ctx context.Context) error {
	if err := e.repo.Save(ctx, e.state); err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist execution state", "error", err)

		return &PersistenceError{ExecutionID: e.state.ID, Err: err}
	}

	return nil
}

func (e *Executor) emitStateUpdate(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.emitStateUpdateLocked(ctx)
}

func (e *Executor) emitStateUpdateLocked(ctx context.Context) {
	e.emit(ctx, events.StateUpdate{
		BaseEvent:     e.baseEvent(events.StateUpdateEvent),
		ExecutionID:   e.state.ID,
		Status:        e.state.Status,
		CurrentNodeID: e.state.CurrentNodeID,
	})
}

// emit publishes an event, logging failures rather than surfacing them. The
// event stream is advisory; execution correctness never depends on it.
func (e *Executor) emit(ctx context.Context, event eventbus.Event) {
	if e.bus == nil {
		return
	}

	if err := e.bus.Publish(ctx, e.state.ID, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", string(event.GetType()),
			"error", err,
		)
	}
}

func (e *Executor) baseEvent(eventType events.EventType) events.BaseEvent {
	return events.BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		FlowID:    e.flow.ID,
	}
}

func (e *Executor) defaultBackend() string {
	for _, node := range e.flow.Nodes {
		if node.Hints != nil && node.Hints.Backend != "" {
			return node.Hints.Backend
		}
	}

	return ""
}

// pauseSignal unwinds the loop after an error-policy pause. It is internal:
// loop callers treat it as a clean return, never as a failure.
type pauseSignal struct{}

func (*pauseSignal) Error() string {
	return "execution paused"
}
