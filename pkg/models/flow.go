// Package models defines the core domain models for flow-based automation.
package models

import "time"

// ErrorPolicy controls how the executor reacts when a node's step fails.
type ErrorPolicy string

const (
	ErrorPolicyContinue ErrorPolicy = "continue" // Record the failure, keep walking the graph
	ErrorPolicyPause    ErrorPolicy = "pause"    // Pause the whole execution for operator review
	ErrorPolicyFail     ErrorPolicy = "fail"     // Fail the whole execution immediately
)

// RoutingHints are passed through to the step runner untouched. The executor
// never interprets them; they tell the backend where and how to run a step.
type RoutingHints struct {
	Backend        string `json:"backend,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	ResumeStrategy string `json:"resume_strategy,omitempty"`
}

// Node is one step in a flow: a natural-language instruction plus error policy.
// Instruction may contain {{variable}} references resolved at execution time.
type Node struct {
	ID          string        `json:"id"                    validate:"required"`
	Instruction string        `json:"instruction"           validate:"required"`
	OutputName  string        `json:"output_name,omitempty"`
	OnError     ErrorPolicy   `json:"on_error,omitempty"    validate:"omitempty,oneof=continue pause fail"`
	Hints       *RoutingHints `json:"hints,omitempty"`
}

// ErrorPolicyOrDefault returns the node's error policy, defaulting to fail.
func (n *Node) ErrorPolicyOrDefault() ErrorPolicy {
	if n.OnError == "" {
		return ErrorPolicyFail
	}

	return n.OnError
}

// Edge is a directed connection between two nodes in a flow.
type Edge struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
	Label  string `json:"label,omitempty"`
}

// Flow represents a versioned, named directed graph of instruction nodes.
// A flow is immutable once an execution references it; changes go through a
// new version.
type Flow struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"       validate:"required,min=3"`
	Version   int            `json:"version"    validate:"min=0"`
	Nodes     []*Node        `json:"nodes"`
	Edges     []*Edge        `json:"edges"`
	Variables map[string]any `json:"variables,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NodeByID returns the node with the given id, or nil when absent.
func (f *Flow) NodeByID(id string) *Node {
	for _, node := range f.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// EntryNodes returns the nodes with no inbound edges. These are where an
// execution's walk begins.
func (f *Flow) EntryNodes() []*Node {
	inbound := make(map[string]bool, len(f.Nodes))
	for _, edge := range f.Edges {
		inbound[edge.Target] = true
	}

	entries := make([]*Node, 0, len(f.Nodes))

	for _, node := range f.Nodes {
		if !inbound[node.ID] {
			entries = append(entries, node)
		}
	}

	return entries
}

// InboundSources returns the ids of nodes with an edge into the given node.
func (f *Flow) InboundSources(nodeID string) []string {
	var sources []string

	for _, edge := range f.Edges {
		if edge.Target == nodeID {
			sources = append(sources, edge.Source)
		}
	}

	return sources
}
