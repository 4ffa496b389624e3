package flow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/flowplane/pkg/models"
)

func buildFlow(nodes []string, edges [][2]string) *models.Flow {
	f := &models.Flow{ID: "flow-under-test", Name: "flow under test"}

	for _, id := range nodes {
		f.Nodes = append(f.Nodes, &models.Node{ID: id, Instruction: "do " + id})
	}

	for _, edge := range edges {
		f.Edges = append(f.Edges, &models.Edge{Source: edge[0], Target: edge[1]})
	}

	return f
}

func TestValidateAcceptsWellFormedGraphs(t *testing.T) {
	tests := []struct {
		name  string
		nodes []string
		edges [][2]string
	}{
		{"empty flow", nil, nil},
		{"single node", []string{"a"}, nil},
		{"linear chain", []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}}},
		{"diamond", []string{"a", "b", "c", "d"}, [][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}}},
		{"disconnected components", []string{"a", "b"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, Validate(buildFlow(tt.nodes, tt.edges)))
		})
	}
}

func TestValidateRejectsDuplicateNodeIDs(t *testing.T) {
	f := buildFlow([]string{"a", "a"}, nil)

	err := Validate(f)
	require.Error(t, err)

	var graphErr *GraphError

	require.True(t, errors.As(err, &graphErr))
	assert.Contains(t, graphErr.Problems[0], `duplicate node id "a"`)
}

func TestValidateRejectsUnknownEdgeEndpoints(t *testing.T) {
	f := buildFlow([]string{"a"}, [][2]string{{"a", "ghost"}, {"phantom", "a"}})

	err := Validate(f)
	require.Error(t, err)

	var graphErr *GraphError

	require.True(t, errors.As(err, &graphErr))
	assert.Len(t, graphErr.Problems, 2)
}

func TestValidateRejectsDuplicateEdges(t *testing.T) {
	f := buildFlow([]string{"a", "b"}, [][2]string{{"a", "b"}, {"a", "b"}})

	err := Validate(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate edge a -> b")
}

func TestValidateRejectsCycles(t *testing.T) {
	t.Run("two-node cycle", func(t *testing.T) {
		f := buildFlow([]string{"a", "b"}, [][2]string{{"a", "b"}, {"b", "a"}})

		err := Validate(f)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unreachable nodes: a, b")
	})

	t.Run("node behind a cycle is reported too", func(t *testing.T) {
		f := buildFlow(
			[]string{"a", "b", "c", "d"},
			[][2]string{{"a", "b"}, {"b", "c"}, {"c", "b"}, {"c", "d"}},
		)

		err := Validate(f)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unreachable nodes: b, c, d")
	})

	t.Run("self loop", func(t *testing.T) {
		f := buildFlow([]string{"a"}, [][2]string{{"a", "a"}})

		require.Error(t, Validate(f))
	})
}
