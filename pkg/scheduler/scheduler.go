// Package scheduler starts recurring executions for flows that carry a cron
// schedule in their metadata.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/flowplane/flowplane/pkg/models"
	"github.com/flowplane/flowplane/pkg/services"
)

// MetadataKey is the flow metadata entry holding the cron expression.
const MetadataKey = "schedule"

// Scheduler registers one cron entry per scheduled flow and starts an
// execution each time the entry fires. Reload re-reads the stored flows so
// schedule changes take effect without a restart.
type Scheduler struct {
	flows      *services.Flow
	executions *services.Execution
	logger     *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	started bool
}

// NewScheduler creates a scheduler over the given services.
func NewScheduler(flows *services.Flow, executions *services.Execution, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		flows:      flows,
		executions: executions,
		logger:     logger,
		cron:       cron.New(),
		entries:    make(map[string]cron.EntryID),
	}
}

// Start loads scheduled flows and begins firing them.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if err := s.reloadLocked(ctx); err != nil {
		return err
	}

	s.cron.Start()
	s.started = true

	s.logger.InfoContext(ctx, "Scheduler started", "scheduled_flows", len(s.entries))

	return nil
}

// Reload re-reads stored flows and replaces the registered cron entries.
func (s *Scheduler) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reloadLocked(ctx)
}

// Stop halts the cron runner and waits for in-flight trigger callbacks.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	stopCtx := s.cron.Stop()

	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.started = false
	s.logger.InfoContext(ctx, "Scheduler stopped")

	return nil
}

func (s *Scheduler) reloadLocked(ctx context.Context) error {
	stored, err := s.flows.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load flows for scheduling: %w", err)
	}

	for flowID, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, flowID)
	}

	for _, flow := range stored {
		expression, ok := scheduleExpression(flow)
		if !ok {
			continue
		}

		flowID := flow.ID

		entryID, err := s.cron.AddFunc(expression, func() {
			s.fire(flowID)
		})
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping flow with invalid schedule",
				"flow_id", flowID,
				"schedule", expression,
				"error", err,
			)

			continue
		}

		s.entries[flowID] = entryID
	}

	return nil
}

func (s *Scheduler) fire(flowID string) {
	ctx := context.Background()

	state, err := s.executions.Start(ctx, flowID, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to start scheduled execution",
			"flow_id", flowID,
			"error", err,
		)

		return
	}

	s.logger.InfoContext(ctx, "Started scheduled execution",
		"flow_id", flowID,
		"execution_id", state.ID,
	)
}

func scheduleExpression(flow *models.Flow) (string, bool) {
	raw, ok := flow.Metadata[MetadataKey]
	if !ok {
		return "", false
	}

	expression, ok := raw.(string)
	if !ok || expression == "" {
		return "", false
	}

	return expression, true
}
