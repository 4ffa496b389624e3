// Package web provides HTTP request and response types for the control plane API.
package web

import "github.com/flowplane/flowplane/pkg/models"

// CreateFlowRequest represents the request body for creating a new flow.
type CreateFlowRequest struct {
	Name      string         `json:"name"                validate:"required,min=3"`
	Nodes     []*models.Node `json:"nodes"               validate:"required,min=1,dive"`
	Edges     []*models.Edge `json:"edges"               validate:"omitempty,dive"`
	Variables map[string]any `json:"variables,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// UpdateFlowRequest represents the request body for replacing a flow's
// definition. Updates are whole-definition; the stored version is bumped.
type UpdateFlowRequest struct {
	Name      string         `json:"name"                validate:"required,min=3"`
	Nodes     []*models.Node `json:"nodes"               validate:"required,min=1,dive"`
	Edges     []*models.Edge `json:"edges"               validate:"omitempty,dive"`
	Variables map[string]any `json:"variables,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// StartExecutionRequest represents the request body for starting an execution.
type StartExecutionRequest struct {
	FlowID    string         `json:"flow_id"             validate:"required"`
	Variables map[string]any `json:"variables,omitempty"`
}

// StartExecutionResponse acknowledges an asynchronous execution start.
type StartExecutionResponse struct {
	ExecutionID string                 `json:"execution_id"`
	Status      models.ExecutionStatus `json:"status"`
}

// ControlResponse represents the outcome of a pause, resume or stop request.
type ControlResponse struct {
	Success   bool                   `json:"success"`
	Execution *models.ExecutionState `json:"execution"`
}

// LogsResponse represents a paginated page of execution log entries.
type LogsResponse struct {
	Logs  []models.LogEntry `json:"logs"`
	Total int               `json:"total"`
}

func (r CreateFlowRequest) toFlow() *models.Flow {
	return &models.Flow{
		Name:      r.Name,
		Nodes:     r.Nodes,
		Edges:     r.Edges,
		Variables: r.Variables,
		Metadata:  r.Metadata,
	}
}

func (r UpdateFlowRequest) toFlow() *models.Flow {
	return &models.Flow{
		Name:      r.Name,
		Nodes:     r.Nodes,
		Edges:     r.Edges,
		Variables: r.Variables,
		Metadata:  r.Metadata,
	}
}
