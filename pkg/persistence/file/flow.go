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

const flowsDir = "flows"

// FlowRepository handles flow-related file operations.
type FlowRepository struct {
	root string
}

// NewFlowRepository creates a new flow repository.
func NewFlowRepository(root string) *FlowRepository {
	return &FlowRepository{root: root}
}

// List returns all stored flows sorted by creation time, newest first.
func (fr *FlowRepository) List(ctx context.Context) ([]*models.Flow, error) {
	dir := filepath.Join(fr.root, flowsDir)

	entries, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, persistence.NewStoreError("List", "", err)
	}

	flows := make([]*models.Flow, 0, len(entries))

	for _, entry := range entries {
		id := entry[:len(entry)-len(".json")]

		flowRecord, err := fr.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load flow %s: %w", id, err)
		}

		flows = append(flows, flowRecord)
	}

	sort.Slice(flows, func(i, j int) bool {
		return flows[i].CreatedAt.After(flows[j].CreatedAt)
	})

	return flows, nil
}

// GetByID retrieves a flow by its id.
func (fr *FlowRepository) GetByID(_ context.Context, id string) (*models.Flow, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewStoreError("GetByID", id, err)
	}

	path := filepath.Join(fr.root, flowsDir, id+".json")

	data, err := readDocument(path, persistence.ErrFlowNotFound)
	if err != nil {
		return nil, persistence.NewStoreError("GetByID", id, err)
	}

	var flowRecord models.Flow

	err = json.Unmarshal(data, &flowRecord)
	if err != nil {
		return nil, persistence.NewStoreError("GetByID", id,
			fmt.Errorf("failed to unmarshal flow: %w", err))
	}

	return &flowRecord, nil
}

// Save writes a flow document atomically.
func (fr *FlowRepository) Save(_ context.Context, flowRecord *models.Flow) error {
	if err := validateID(flowRecord.ID); err != nil {
		return persistence.NewStoreError("Save", flowRecord.ID, err)
	}

	data, err := json.Marshal(flowRecord)
	if err != nil {
		return persistence.NewStoreError("Save", flowRecord.ID,
			fmt.Errorf("failed to marshal flow: %w", err))
	}

	path := filepath.Join(fr.root, flowsDir, flowRecord.ID+".json")

	err = writeAtomic(path, data)
	if err != nil {
		return persistence.NewStoreError("Save", flowRecord.ID, err)
	}

	return nil
}

// Delete removes a flow document.
func (fr *FlowRepository) Delete(_ context.Context, id string) error {
	if err := validateID(id); err != nil {
		return persistence.NewStoreError("Delete", id, err)
	}

	path := filepath.Join(fr.root, flowsDir, id+".json")

	err := os.Remove(path)
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.NewStoreError("Delete", id, persistence.ErrFlowNotFound)
		}

		return persistence.NewStoreError("Delete", id, err)
	}

	return nil
}
