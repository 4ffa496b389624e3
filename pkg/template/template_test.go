package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	variables := map[string]any{
		"branch": "main",
		"count":  3,
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no references", "run the tests", "run the tests"},
		{"single reference", "deploy {{branch}}", "deploy main"},
		{"repeated reference", "merge {{branch}} into {{branch}}", "merge main into main"},
		{"non-string value", "retry {{count}} times", "retry 3 times"},
		{"whitespace inside braces", "deploy {{ branch }}", "deploy main"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Render(tt.input, variables)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRenderUnboundVariableFails(t *testing.T) {
	_, err := Render("deploy {{branch}}", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `variable "branch" is not bound`)
}

func TestRenderNilVariables(t *testing.T) {
	result, err := Render("plain instruction", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain instruction", result)

	_, err = Render("needs {{thing}}", nil)
	assert.Error(t, err)
}

func TestNeedsRendering(t *testing.T) {
	assert.True(t, NeedsRendering("deploy {{branch}}"))
	assert.False(t, NeedsRendering("deploy main"))
}
