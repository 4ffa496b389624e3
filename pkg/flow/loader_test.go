package flow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/flowplane/pkg/models"
)

const yamlDefinition = `
name: deploy pipeline
variables:
  env: staging
nodes:
  - id: build
    instruction: build the {{env}} artifact
    output_name: artifact
  - id: deploy
    instruction: deploy {{artifact}} to {{env}}
    on_error: pause
edges:
  - source: build
    target: deploy
`

func TestParseYAML(t *testing.T) {
	parsed, err := Parse([]byte(yamlDefinition), "yaml")
	require.NoError(t, err)

	assert.NotEmpty(t, parsed.ID)
	assert.Equal(t, "deploy pipeline", parsed.Name)
	assert.Equal(t, 1, parsed.Version)
	assert.Equal(t, "staging", parsed.Variables["env"])
	assert.False(t, parsed.CreatedAt.IsZero())

	require.Len(t, parsed.Nodes, 2)
	assert.Equal(t, "artifact", parsed.Nodes[0].OutputName)
	assert.Equal(t, models.ErrorPolicyPause, parsed.Nodes[1].OnError)

	require.Len(t, parsed.Edges, 1)
	assert.Equal(t, "build", parsed.Edges[0].Source)
}

func TestParseJSON(t *testing.T) {
	definition := `{
		"name": "json flow",
		"nodes": [{"id": "a", "instruction": "do a"}]
	}`

	parsed, err := Parse([]byte(definition), "json")
	require.NoError(t, err)
	assert.Equal(t, "json flow", parsed.Name)
	require.Len(t, parsed.Nodes, 1)
}

func TestParseRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name       string
		definition string
	}{
		{"missing name", `{"nodes": [{"id": "a", "instruction": "do a"}]}`},
		{"missing nodes", `{"name": "no nodes"}`},
		{"node without instruction", `{"name": "bad node", "nodes": [{"id": "a"}]}`},
		{"bad error policy", `{"name": "bad policy", "nodes": [{"id": "a", "instruction": "x", "on_error": "retry"}]}`},
		{"edge without target", `{"name": "bad edge", "nodes": [{"id": "a", "instruction": "x"}], "edges": [{"source": "a"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.definition), "json")
			assert.Error(t, err)
		})
	}
}

func TestParseRejectsInvalidGraphs(t *testing.T) {
	definition := `{
		"name": "cyclic flow",
		"nodes": [
			{"id": "a", "instruction": "do a"},
			{"id": "b", "instruction": "do b"}
		],
		"edges": [
			{"source": "a", "target": "b"},
			{"source": "b", "target": "a"}
		]
	}`

	_, err := Parse([]byte(definition), "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable nodes")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlDefinition), 0o600))

	parsed, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "deploy pipeline", parsed.Name)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
