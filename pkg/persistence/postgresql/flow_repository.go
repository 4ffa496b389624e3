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

// FlowRepository handles flow-related database operations.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewFlowRepository creates a new flow repository.
func NewFlowRepository(db *sql.DB, logger *slog.Logger) *FlowRepository {
	return &FlowRepository{db: db, logger: logger}
}

const flowColumns = `id, name, version, nodes, edges, variables, metadata, created_at, updated_at`

// List returns all flows, newest first.
func (fr *FlowRepository) List(ctx context.Context) ([]*models.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows ORDER BY created_at DESC`

	rows, err := fr.db.QueryContext(ctx, query)
	if err != nil {
		return nil, persistence.NewStoreError("List", "", err)
	}
	defer func() { _ = rows.Close() }()

	var flows []*models.Flow

	for rows.Next() {
		flowRecord, err := scanFlow(rows)
		if err != nil {
			return nil, persistence.NewStoreError("List", "", err)
		}

		flows = append(flows, flowRecord)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("List", "", err)
	}

	return flows, nil
}

// GetByID retrieves a flow by its id.
func (fr *FlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows WHERE id = $1`

	flowRecord, err := scanFlow(fr.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", id, persistence.ErrFlowNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", id, err)
	}

	return flowRecord, nil
}

// Save upserts a flow record.
func (fr *FlowRepository) Save(ctx context.Context, flowRecord *models.Flow) error {
	nodesJSON, err := json.Marshal(flowRecord.Nodes)
	if err != nil {
		return persistence.NewStoreError("Save", flowRecord.ID,
			fmt.Errorf("failed to marshal nodes: %w", err))
	}

	edgesJSON, err := json.Marshal(flowRecord.Edges)
	if err != nil {
		return persistence.NewStoreError("Save", flowRecord.ID,
			fmt.Errorf("failed to marshal edges: %w", err))
	}

	variablesJSON, err := json.Marshal(flowRecord.Variables)
	if err != nil {
		return persistence.NewStoreError("Save", flowRecord.ID,
			fmt.Errorf("failed to marshal variables: %w", err))
	}

	metadataJSON, err := json.Marshal(flowRecord.Metadata)
	if err != nil {
		return persistence.NewStoreError("Save", flowRecord.ID,
			fmt.Errorf("failed to marshal metadata: %w", err))
	}

	query := `
		INSERT INTO flows (id, name, version, nodes, edges, variables, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			version = EXCLUDED.version,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			variables = EXCLUDED.variables,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`

	_, err = fr.db.ExecContext(ctx, query,
		flowRecord.ID,
		flowRecord.Name,
		flowRecord.Version,
		nodesJSON,
		edgesJSON,
		variablesJSON,
		metadataJSON,
		flowRecord.CreatedAt,
		flowRecord.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Save", flowRecord.ID, err)
	}

	return nil
}

// Delete removes a flow record.
func (fr *FlowRepository) Delete(ctx context.Context, id string) error {
	result, err := fr.db.ExecContext(ctx, `DELETE FROM flows WHERE id = $1`, id)
	if err != nil {
		return persistence.NewStoreError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewStoreError("Delete", id, persistence.ErrFlowNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlow(row rowScanner) (*models.Flow, error) {
	var (
		flowRecord    models.Flow
		nodesJSON     []byte
		edgesJSON     []byte
		variablesJSON []byte
		metadataJSON  []byte
	)

	err := row.Scan(
		&flowRecord.ID,
		&flowRecord.Name,
		&flowRecord.Version,
		&nodesJSON,
		&edgesJSON,
		&variablesJSON,
		&metadataJSON,
		&flowRecord.CreatedAt,
		&flowRecord.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(nodesJSON, &flowRecord.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	if err := json.Unmarshal(edgesJSON, &flowRecord.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	if err := json.Unmarshal(variablesJSON, &flowRecord.Variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	if err := json.Unmarshal(metadataJSON, &flowRecord.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &flowRecord, nil
}
