package models

import "time"

// ExecutionStatus is the lifecycle state of a flow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// CanTransitionTo reports whether the state machine permits moving from s to
// next. A stop while paused goes straight to failed; there is no separate
// cancelled status.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	switch s {
	case ExecutionStatusPending:
		return next == ExecutionStatusRunning || next == ExecutionStatusFailed
	case ExecutionStatusRunning:
		return next == ExecutionStatusPaused ||
			next == ExecutionStatusCompleted ||
			next == ExecutionStatusFailed
	case ExecutionStatusPaused:
		return next == ExecutionStatusRunning || next == ExecutionStatusFailed
	default:
		return false
	}
}

// NodeRunStatus is the lifecycle state of a single node within an execution.
type NodeRunStatus string

const (
	NodeRunStatusPending   NodeRunStatus = "pending"
	NodeRunStatusRunning   NodeRunStatus = "running"
	NodeRunStatusCompleted NodeRunStatus = "completed"
	NodeRunStatusFailed    NodeRunStatus = "failed"
	NodeRunStatusSkipped   NodeRunStatus = "skipped"
)

// IsTerminal reports whether the node will not run again in this execution.
func (s NodeRunStatus) IsTerminal() bool {
	return s == NodeRunStatusCompleted || s == NodeRunStatusFailed || s == NodeRunStatusSkipped
}

// NodeState tracks one node's progress within an execution.
type NodeState struct {
	Status      NodeRunStatus `json:"status"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Result      any           `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// LogLevel classifies execution log entries.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogEntry is one line of an execution's append-only audit log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	NodeID    string    `json:"node_id,omitempty"`
	Message   string    `json:"message"`
}

// ExecutionState is the persisted record of one run of a flow. It is owned
// exclusively by the executor driving it; everyone else reads snapshots.
type ExecutionState struct {
	ID            string                `json:"id"`
	FlowID        string                `json:"flow_id"`
	Status        ExecutionStatus       `json:"status"`
	StartedAt     time.Time             `json:"started_at"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
	CurrentNodeID string                `json:"current_node_id,omitempty"`
	Variables     map[string]any        `json:"variables,omitempty"`
	NodeStates    map[string]*NodeState `json:"node_states"`
	Logs          []LogEntry            `json:"logs"`
}

// NewExecutionState builds the initial pending state for a run of the given
// flow. The flow's variables are merged with caller overrides (overrides win)
// and every node gets a pending NodeState entry.
func NewExecutionState(id string, flow *Flow, overrides map[string]any) *ExecutionState {
	variables := make(map[string]any, len(flow.Variables)+len(overrides))
	for k, v := range flow.Variables {
		variables[k] = v
	}

	for k, v := range overrides {
		variables[k] = v
	}

	nodeStates := make(map[string]*NodeState, len(flow.Nodes))
	for _, node := range flow.Nodes {
		nodeStates[node.ID] = &NodeState{Status: NodeRunStatusPending}
	}

	return &ExecutionState{
		ID:         id,
		FlowID:     flow.ID,
		Status:     ExecutionStatusPending,
		StartedAt:  time.Now().UTC(),
		Variables:  variables,
		NodeStates: nodeStates,
		Logs:       make([]LogEntry, 0),
	}
}

// AppendLog appends an entry to the execution's log. Logs are append-only;
// nothing ever removes or reorders them.
func (e *ExecutionState) AppendLog(level LogLevel, nodeID, message string) {
	e.Logs = append(e.Logs, LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		NodeID:    nodeID,
		Message:   message,
	})
}

// LogFilter selects a page of execution log entries.
type LogFilter struct {
	Level  LogLevel
	NodeID string
	Limit  int
	Offset int
}

// FilterLogs returns the matching page of log entries plus the total number of
// matches before pagination.
func (e *ExecutionState) FilterLogs(filter LogFilter) ([]LogEntry, int) {
	matched := make([]LogEntry, 0, len(e.Logs))

	for _, entry := range e.Logs {
		if filter.Level != "" && entry.Level != filter.Level {
			continue
		}

		if filter.NodeID != "" && entry.NodeID != filter.NodeID {
			continue
		}

		matched = append(matched, entry)
	}

	total := len(matched)

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []LogEntry{}, total
		}

		matched = matched[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	return matched, total
}
