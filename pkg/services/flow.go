package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/flowplane/flowplane/pkg/flow"
	"github.com/flowplane/flowplane/pkg/models"
	"github.com/flowplane/flowplane/pkg/persistence"
)

// ErrFlowNotFound is returned when a flow is not found.
var ErrFlowNotFound = persistence.ErrFlowNotFound

// Flow manages flow definitions: validation, versioning and storage.
type Flow struct {
	persistence persistence.Persistence
	validator   *validator.Validate
}

// NewFlow creates a new flow service.
func NewFlow(persistence persistence.Persistence) *Flow {
	return &Flow{
		persistence: persistence,
		validator:   validator.New(),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Flow) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List retrieves all stored flows.
func (s *Flow) List(ctx context.Context) ([]*models.Flow, error) {
	flows, err := s.persistence.Flows().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	return flows, nil
}

// FetchByID retrieves a flow by its ID.
func (s *Flow) FetchByID(ctx context.Context, id string) (*models.Flow, error) {
	stored, err := s.persistence.Flows().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if stored == nil {
		return nil, ErrFlowNotFound
	}

	return stored, nil
}

// Create validates and stores a new flow at version 1.
func (s *Flow) Create(ctx context.Context, definition *models.Flow) (*models.Flow, error) {
	if err := s.validate(definition); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	definition.ID = uuid.New().String()
	definition.Version = 1
	definition.CreatedAt = now
	definition.UpdatedAt = now

	err := s.persistence.Flows().Save(ctx, definition)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow: %w", err)
	}

	return definition, nil
}

// Update replaces an existing flow's definition and bumps its version. A flow
// referenced by executions stays readable at the old version through those
// execution records; the stored definition always reflects the latest version.
func (s *Flow) Update(ctx context.Context, flowID string, definition *models.Flow) (*models.Flow, error) {
	existing, err := s.FetchByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if err := s.validate(definition); err != nil {
		return nil, err
	}

	definition.ID = flowID
	definition.Version = existing.Version + 1
	definition.CreatedAt = existing.CreatedAt
	definition.UpdatedAt = time.Now().UTC()

	err = s.persistence.Flows().Save(ctx, definition)
	if err != nil {
		return nil, fmt.Errorf("failed to update flow: %w", err)
	}

	return definition, nil
}

// Delete removes a flow by its ID.
func (s *Flow) Delete(ctx context.Context, flowID string) error {
	if _, err := s.FetchByID(ctx, flowID); err != nil {
		return err
	}

	err := s.persistence.Flows().Delete(ctx, flowID)
	if err != nil {
		return fmt.Errorf("failed to delete flow: %w", err)
	}

	return nil
}

// validate runs struct-level and graph-level validation on a flow definition.
func (s *Flow) validate(definition *models.Flow) error {
	if definition == nil {
		return ErrFlowNil
	}

	if strings.TrimSpace(definition.Name) == "" {
		return NewValidationError(
			"validateFlow",
			"FLOW_NAME_REQUIRED",
			"flow name is required",
			ErrFlowNameRequired,
		)
	}

	if len(definition.Nodes) == 0 {
		return NewValidationError(
			"validateFlow",
			"NODES_REQUIRED",
			"flow must have at least one node",
			ErrNodesRequired,
		)
	}

	if err := s.validator.Struct(definition); err != nil {
		return NewValidationError(
			"validateFlow",
			"INVALID_FLOW",
			err.Error(),
			ErrInvalidRequest,
		)
	}

	if err := flow.Validate(definition); err != nil {
		var graphErr *flow.GraphError
		if errors.As(err, &graphErr) {
			return NewValidationError(
				"validateFlow",
				"INVALID_FLOW_GRAPH",
				graphErr.Error(),
				ErrInvalidFlowGraph,
			)
		}

		return err
	}

	return nil
}
