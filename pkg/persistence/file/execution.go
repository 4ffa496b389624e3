package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/flowplane/flowplane/pkg/models"
	"github.com/flowplane/flowplane/pkg/persistence"
)

const executionsDir = "executions"

// ExecutionRepository handles execution-state file operations. Writes go
// through write-new-then-rename so a crash mid-write never leaves a partial
// record for a later reader (or a restart re-hydration) to trip over.
type ExecutionRepository struct {
	root string
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

// List returns all stored execution states, most recently started first.
func (er *ExecutionRepository) List(ctx context.Context) ([]*models.ExecutionState, error) {
	dir := filepath.Join(er.root, executionsDir)

	entries, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, persistence.NewStoreError("List", "", err)
	}

	states := make([]*models.ExecutionState, 0, len(entries))

	for _, entry := range entries {
		id := entry[:len(entry)-len(".json")]

		state, err := er.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load execution %s: %w", id, err)
		}

		states = append(states, state)
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].StartedAt.After(states[j].StartedAt)
	})

	return states, nil
}

// ListByFlow returns all execution states belonging to the given flow.
func (er *ExecutionRepository) ListByFlow(ctx context.Context, flowID string) ([]*models.ExecutionState, error) {
	all, err := er.List(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.ExecutionState, 0, len(all))

	for _, state := range all {
		if state.FlowID == flowID {
			matched = append(matched, state)
		}
	}

	return matched, nil
}

// GetByID retrieves an execution state by its id.
func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.ExecutionState, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewStoreError("GetByID", id, err)
	}

	path := filepath.Join(er.root, executionsDir, id+".json")

	data, err := readDocument(path, persistence.ErrExecutionNotFound)
	if err != nil {
		return nil, persistence.NewStoreError("GetByID", id, err)
	}

	var state models.ExecutionState

	err = json.Unmarshal(data, &state)
	if err != nil {
		return nil, persistence.NewStoreError("GetByID", id,
			fmt.Errorf("failed to unmarshal execution state: %w", err))
	}

	return &state, nil
}

// Save atomically writes an execution state document.
func (er *ExecutionRepository) Save(_ context.Context, state *models.ExecutionState) error {
	if err := validateID(state.ID); err != nil {
		return persistence.NewStoreError("Save", state.ID, err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return persistence.NewStoreError("Save", state.ID,
			fmt.Errorf("failed to marshal execution state: %w", err))
	}

	path := filepath.Join(er.root, executionsDir, state.ID+".json")

	err = writeAtomic(path, data)
	if err != nil {
		return persistence.NewStoreError("Save", state.ID, err)
	}

	return nil
}
