package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flowplane/flowplane/pkg/models"
	"github.com/flowplane/flowplane/pkg/persistence"
)

// ExecutionRepository handles execution-state database operations. The upsert
// is a single statement, so readers never observe a half-written record.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `id, flow_id, status, started_at, completed_at, current_node_id, variables, node_states, logs`

// List returns all execution states, most recently started first.
func (er *ExecutionRepository) List(ctx context.Context) ([]*models.ExecutionState, error) {
	query := `SELECT ` + executionColumns + ` FROM executions ORDER BY started_at DESC`

	return er.queryExecutions(ctx, query)
}

// ListByFlow returns all execution states for the given flow.
func (er *ExecutionRepository) ListByFlow(ctx context.Context, flowID string) ([]*models.ExecutionState, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE flow_id = $1 ORDER BY started_at DESC`

	return er.queryExecutions(ctx, query, flowID)
}

// GetByID retrieves an execution state by its id.
func (er *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.ExecutionState, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	state, err := scanExecution(er.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", id, err)
	}

	return state, nil
}

// Save upserts an execution state record.
func (er *ExecutionRepository) Save(ctx context.Context, state *models.ExecutionState) error {
	variablesJSON, err := json.Marshal(state.Variables)
	if err != nil {
		return persistence.NewStoreError("Save", state.ID,
			fmt.Errorf("failed to marshal variables: %w", err))
	}

	nodeStatesJSON, err := json.Marshal(state.NodeStates)
	if err != nil {
		return persistence.NewStoreError("Save", state.ID,
			fmt.Errorf("failed to marshal node states: %w", err))
	}

	logsJSON, err := json.Marshal(state.Logs)
	if err != nil {
		return persistence.NewStoreError("Save", state.ID,
			fmt.Errorf("failed to marshal logs: %w", err))
	}

	query := `
		INSERT INTO executions (id, flow_id, status, started_at, completed_at, current_node_id, variables, node_states, logs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			current_node_id = EXCLUDED.current_node_id,
			variables = EXCLUDED.variables,
			node_states = EXCLUDED.node_states,
			logs = EXCLUDED.logs
	`

	_, err = er.db.ExecContext(ctx, query,
		state.ID,
		state.FlowID,
		state.Status,
		state.StartedAt,
		state.CompletedAt,
		nullableString(state.CurrentNodeID),
		variablesJSON,
		nodeStatesJSON,
		logsJSON,
	)
	if err != nil {
		return persistence.NewStoreError("Save", state.ID, err)
	}

	return nil
}

func (er *ExecutionRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]*models.ExecutionState, error) {
	rows, err := er.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewStoreError("List", "", err)
	}
	defer func() { _ = rows.Close() }()

	var states []*models.ExecutionState

	for rows.Next() {
		state, err := scanExecution(rows)
		if err != nil {
			return nil, persistence.NewStoreError("List", "", err)
		}

		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("List", "", err)
	}

	return states, nil
}

func scanExecution(row rowScanner) (*models.ExecutionState, error) {
	var (
		state          models.ExecutionState
		completedAt    sql.NullTime
		currentNodeID  sql.NullString
		variablesJSON  []byte
		nodeStatesJSON []byte
		logsJSON       []byte
	)

	err := row.Scan(
		&state.ID,
		&state.FlowID,
		&state.Status,
		&state.StartedAt,
		&completedAt,
		&currentNodeID,
		&variablesJSON,
		&nodeStatesJSON,
		&logsJSON,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		state.CompletedAt = &completedAt.Time
	}

	if currentNodeID.Valid {
		state.CurrentNodeID = currentNodeID.String
	}

	if err := json.Unmarshal(variablesJSON, &state.Variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	if err := json.Unmarshal(nodeStatesJSON, &state.NodeStates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node states: %w", err)
	}

	if err := json.Unmarshal(logsJSON, &state.Logs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal logs: %w", err)
	}

	return &state, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}

	return s
}
