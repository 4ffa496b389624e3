// Package persistence provides the data storage abstraction for flows and
// execution state.
package persistence

import (
	"context"

	"github.com/flowplane/flowplane/pkg/models"
)

// FlowRepository stores flow definitions.
type FlowRepository interface {
	List(ctx context.Context) ([]*models.Flow, error)
	GetByID(ctx context.Context, id string) (*models.Flow, error)
	Save(ctx context.Context, flow *models.Flow) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores execution state records, one per execution id.
// Save must be atomic: a reader never observes a partially written record,
// even if the process dies mid-write.
type ExecutionRepository interface {
	List(ctx context.Context) ([]*models.ExecutionState, error)
	ListByFlow(ctx context.Context, flowID string) ([]*models.ExecutionState, error)
	GetByID(ctx context.Context, id string) (*models.ExecutionState, error)
	Save(ctx context.Context, state *models.ExecutionState) error
}

// Persistence is the storage backend consumed by the control plane.
type Persistence interface {
	Flows() FlowRepository
	Executions() ExecutionRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
