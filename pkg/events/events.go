// Package events defines event types and structures for execution lifecycle
// notifications.
package events

import (
	"time"

	"github.com/flowplane/flowplane/pkg/models"
)

type EventType string

// Topic carries all execution lifecycle events.
const Topic = "flowplane.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle events.
	ExecutionCreatedEvent  EventType = "execution.created"
	StateUpdateEvent       EventType = "STATE_UPDATE"
	ExecutionFinishedEvent EventType = "execution.finished"

	// Node-level events.
	NodeStartedEvent  EventType = "node.started"
	NodeFinishedEvent EventType = "node.finished"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	FlowID    string         `json:"flow_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ExecutionCreated is emitted once when an execution record is first persisted.
type ExecutionCreated struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	Variables   map[string]any `json:"variables,omitempty"`
}

func (e ExecutionCreated) GetType() EventType {
	return ExecutionCreatedEvent
}

// StateUpdate is pushed after every checkpoint so observers can show live
// progress without polling.
type StateUpdate struct {
	BaseEvent

	ExecutionID   string                 `json:"execution_id"`
	Status        models.ExecutionStatus `json:"status"`
	CurrentNodeID string                 `json:"current_node_id,omitempty"`
}

func (e StateUpdate) GetType() EventType {
	return StateUpdateEvent
}

// ExecutionFinished is emitted when an execution reaches a terminal status.
type ExecutionFinished struct {
	BaseEvent

	ExecutionID string                 `json:"execution_id"`
	Status      models.ExecutionStatus `json:"status"`
	Duration    time.Duration          `json:"duration"`
}

func (e ExecutionFinished) GetType() EventType {
	return ExecutionFinishedEvent
}

// NodeStarted is emitted when a node's step is dispatched to its runner.
type NodeStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
}

func (e NodeStarted) GetType() EventType {
	return NodeStartedEvent
}

// NodeFinished is emitted when a node reaches a terminal node status.
type NodeFinished struct {
	BaseEvent

	ExecutionID string               `json:"execution_id"`
	NodeID      string               `json:"node_id"`
	Status      models.NodeRunStatus `json:"status"`
	Error       string               `json:"error,omitempty"`
}

func (e NodeFinished) GetType() EventType {
	return NodeFinishedEvent
}
