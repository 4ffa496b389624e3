package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowplane/flowplane/pkg/eventbus"
	"github.com/flowplane/flowplane/pkg/events"
	"github.com/flowplane/flowplane/pkg/execution"
	"github.com/flowplane/flowplane/pkg/models"
	"github.com/flowplane/flowplane/pkg/outputs"
	"github.com/flowplane/flowplane/pkg/persistence"
	"github.com/flowplane/flowplane/pkg/runner"
)

// ErrExecutionNotFound is returned when an execution record is not found.
var ErrExecutionNotFound = persistence.ErrExecutionNotFound

// Execution manages execution lifecycles. Each started execution gets its own
// executor goroutine; the live registry routes control requests to it.
// Executions found in the store without a live executor (the process
// restarted underneath them) are rehydrated from persisted state on demand.
type Execution struct {
	persistence persistence.Persistence
	registry    *execution.Registry
	runner      runner.StepRunner
	bus         eventbus.EventPublisher
	tracker     *outputs.Tracker
	logger      *slog.Logger
}

// NewExecution creates a new execution service.
func NewExecution(
	persistence persistence.Persistence,
	registry *execution.Registry,
	stepRunner runner.StepRunner,
	bus eventbus.EventPublisher,
	tracker *outputs.Tracker,
	logger *slog.Logger,
) *Execution {
	if logger == nil {
		logger = slog.Default()
	}

	return &Execution{
		persistence: persistence,
		registry:    registry,
		runner:      stepRunner,
		bus:         bus,
		tracker:     tracker,
		logger:      logger,
	}
}

// Start creates and persists a new execution of the flow, then launches its
// executor in the background. The returned state is the initial pending
// record; callers poll or subscribe for progress.
func (s *Execution) Start(ctx context.Context, flowID string, variables map[string]any) (*models.ExecutionState, error) {
	stored, err := s.persistence.Flows().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if stored == nil {
		return nil, ErrFlowNotFound
	}

	state := models.NewExecutionState(uuid.New().String(), stored, variables)

	if err := s.persistence.Executions().Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to persist execution: %w", err)
	}

	s.emit(ctx, state.ID, events.ExecutionCreated{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.ExecutionCreatedEvent,
			Timestamp: time.Now().UTC(),
			FlowID:    stored.ID,
		},
		ExecutionID: state.ID,
		Variables:   state.Variables,
	})

	executor, err := s.newExecutor(stored, state)
	if err != nil {
		return nil, err
	}

	if err := s.registry.Register(executor); err != nil {
		return nil, fmt.Errorf("failed to register executor: %w", err)
	}

	go s.drive(executor, executor.Run)

	return state, nil
}

// Get retrieves an execution's persisted state.
func (s *Execution) Get(ctx context.Context, id string) (*models.ExecutionState, error) {
	state, err := s.persistence.Executions().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if state == nil {
		return nil, ErrExecutionNotFound
	}

	return state, nil
}

// List retrieves all execution records.
func (s *Execution) List(ctx context.Context) ([]*models.ExecutionState, error) {
	states, err := s.persistence.Executions().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return states, nil
}

// ListByFlow retrieves all execution records for one flow.
func (s *Execution) ListByFlow(ctx context.Context, flowID string) ([]*models.ExecutionState, error) {
	states, err := s.persistence.Executions().ListByFlow(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions for flow %s: %w", flowID, err)
	}

	return states, nil
}

// Logs retrieves a filtered page of an execution's log entries plus the total
// match count.
func (s *Execution) Logs(ctx context.Context, id string, filter models.LogFilter) ([]models.LogEntry, int, error) {
	state, err := s.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	entries, total := state.FilterLogs(filter)

	return entries, total, nil
}

// Pause requests a pause of a running execution. The pause takes effect at
// the execution's next checkpoint.
func (s *Execution) Pause(ctx context.Context, id string) error {
	executor, err := s.registry.Get(id)
	if err != nil {
		// Without a live executor there is nothing running to pause.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}

		return fmt.Errorf("%w: %s", ErrExecutionNotActive, id)
	}

	if err := executor.Pause(); err != nil {
		if execution.IsInvalidTransition(err) {
			return fmt.Errorf("%w: %s", ErrExecutionNotActive, id)
		}

		return err
	}

	return nil
}

// Resume continues a paused execution. When no live executor holds the id,
// the execution is rehydrated from persisted state first; this is how paused
// executions survive a process restart.
func (s *Execution) Resume(ctx context.Context, id string) error {
	executor, err := s.registry.Get(id)
	if err != nil {
		executor, err = s.rehydrate(ctx, id)
		if err != nil {
			return err
		}
	}

	// Claim the paused to running transition before handing off. A losing
	// concurrent Resume fails here and never reaches drive, whose error path
	// would unregister the winner's live executor.
	if err := executor.ClaimResume(); err != nil {
		if execution.IsInvalidTransition(err) {
			return fmt.Errorf("%w: %s", ErrExecutionNotPaused, id)
		}

		return err
	}

	go s.drive(executor, executor.ResumeClaimed)

	return nil
}

// Stop terminates an execution. Running executions stop at their next
// checkpoint; paused ones are finalized before Stop returns. An execution
// left non-terminal in the store with no live executor is finalized directly.
func (s *Execution) Stop(ctx context.Context, id string) error {
	executor, err := s.registry.Get(id)
	if err != nil {
		return s.stopOrphan(ctx, id)
	}

	if err := executor.Stop(ctx); err != nil {
		if execution.IsInvalidTransition(err) {
			return fmt.Errorf("%w: %s", ErrExecutionFinished, id)
		}

		return err
	}

	if executor.Status().IsTerminal() {
		s.registry.Unregister(id)
	}

	return nil
}

// rehydrate rebuilds an executor from persisted state. Only paused executions
// can be rehydrated; anything else either finished or lost its in-flight work
// when the process died and must be stopped rather than resumed.
func (s *Execution) rehydrate(ctx context.Context, id string) (*execution.Executor, error) {
	state, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if state.Status != models.ExecutionStatusPaused {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotPaused, id)
	}

	stored, err := s.persistence.Flows().GetByID(ctx, state.FlowID)
	if err != nil {
		return nil, err
	}

	if stored == nil {
		return nil, fmt.Errorf("flow %s for execution %s: %w", state.FlowID, id, ErrFlowNotFound)
	}

	executor, err := s.newExecutor(stored, state)
	if err != nil {
		return nil, err
	}

	if err := s.registry.Register(executor); err != nil {
		// Lost the race with a concurrent rehydrate; use the winner.
		return s.registry.Get(id)
	}

	s.logger.InfoContext(ctx, "Rehydrated execution from persisted state", "execution_id", id)

	return executor, nil
}

// stopOrphan finalizes a stored execution that has no live executor.
func (s *Execution) stopOrphan(ctx context.Context, id string) error {
	state, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if state.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrExecutionFinished, id)
	}

	completedAt := time.Now().UTC()
	state.Status = models.ExecutionStatusFailed
	state.CompletedAt = &completedAt
	state.CurrentNodeID = ""
	state.AppendLog(models.LogLevelError, "", "execution stopped by user request")

	if err := s.persistence.Executions().Save(ctx, state); err != nil {
		return fmt.Errorf("failed to persist stopped execution: %w", err)
	}

	s.emit(ctx, state.ID, events.ExecutionFinished{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.ExecutionFinishedEvent,
			Timestamp: completedAt,
			FlowID:    state.FlowID,
		},
		ExecutionID: state.ID,
		Status:      state.Status,
		Duration:    completedAt.Sub(state.StartedAt),
	})

	s.logger.InfoContext(ctx, "Stopped execution with no live executor", "execution_id", id)

	return nil
}

func (s *Execution) newExecutor(stored *models.Flow, state *models.ExecutionState) (*execution.Executor, error) {
	return execution.NewExecutor(execution.Config{
		Flow:     stored,
		State:    state,
		Runner:   s.runner,
		Repo:     s.persistence.Executions(),
		EventBus: s.bus,
		Tracker:  s.tracker,
		Logger:   s.logger,
	})
}

// drive runs an executor to its next resting point (paused or terminal) on a
// background context: executions outlive the HTTP request that started them.
func (s *Execution) drive(executor *execution.Executor, enter func(context.Context) error) {
	ctx := context.Background()

	if err := enter(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Execution halted",
			"execution_id", executor.ID(),
			"error", err,
		)

		s.registry.Unregister(executor.ID())

		return
	}

	// Paused executions stay registered so Pause, Resume and Stop can still
	// reach them without a rehydrate round trip.
	if executor.Status().IsTerminal() {
		s.registry.Unregister(executor.ID())
	}
}

func (s *Execution) emit(ctx context.Context, key string, event eventbus.Event) {
	if s.bus == nil {
		return
	}

	if err := s.bus.Publish(ctx, key, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", string(event.GetType()),
			"error", err,
		)
	}
}
