// Package testutil provides builders and fakes shared by tests.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/flowplane/flowplane/pkg/models"
)

// FlowBuilder assembles flows for tests with sensible defaults.
type FlowBuilder struct {
	flow *models.Flow
}

// NewFlowBuilder creates a builder seeded with a valid empty flow.
func NewFlowBuilder() *FlowBuilder {
	now := time.Now().UTC()

	return &FlowBuilder{
		flow: &models.Flow{
			ID:        uuid.New().String(),
			Name:      "test flow",
			Version:   1,
			Nodes:     []*models.Node{},
			Edges:     []*models.Edge{},
			Variables: map[string]any{},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func (b *FlowBuilder) WithID(id string) *FlowBuilder {
	b.flow.ID = id

	return b
}

func (b *FlowBuilder) WithName(name string) *FlowBuilder {
	b.flow.Name = name

	return b
}

func (b *FlowBuilder) WithVariable(name string, value any) *FlowBuilder {
	b.flow.Variables[name] = value

	return b
}

func (b *FlowBuilder) WithMetadata(key string, value any) *FlowBuilder {
	if b.flow.Metadata == nil {
		b.flow.Metadata = map[string]any{}
	}

	b.flow.Metadata[key] = value

	return b
}

func (b *FlowBuilder) WithNode(node *models.Node) *FlowBuilder {
	b.flow.Nodes = append(b.flow.Nodes, node)

	return b
}

func (b *FlowBuilder) WithEdge(source, target string) *FlowBuilder {
	b.flow.Edges = append(b.flow.Edges, &models.Edge{Source: source, Target: target})

	return b
}

func (b *FlowBuilder) Build() *models.Flow {
	return b.flow
}

// NewNode creates a plain instruction node.
func NewNode(id, instruction string) *models.Node {
	return &models.Node{
		ID:          id,
		Instruction: instruction,
	}
}

// NewNodeWithPolicy creates a node with an explicit error policy.
func NewNodeWithPolicy(id, instruction string, policy models.ErrorPolicy) *models.Node {
	return &models.Node{
		ID:          id,
		Instruction: instruction,
		OnError:     policy,
	}
}

// NewOutputNode creates a node that binds its result to a variable.
func NewOutputNode(id, instruction, outputName string) *models.Node {
	return &models.Node{
		ID:          id,
		Instruction: instruction,
		OutputName:  outputName,
	}
}

// LinearFlow builds a chain a -> b -> c ... from the given nodes.
func LinearFlow(nodes ...*models.Node) *models.Flow {
	builder := NewFlowBuilder()

	for i, node := range nodes {
		builder.WithNode(node)

		if i > 0 {
			builder.WithEdge(nodes[i-1].ID, node.ID)
		}
	}

	return builder.Build()
}
