package flow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"

	"github.com/flowplane/flowplane/pkg/models"
)

// Parse decodes a flow definition from JSON or YAML, validates it against the
// definition schema and the graph rules, and returns the bound Flow. Missing
// ids are assigned, missing versions start at 1.
func Parse(data []byte, format string) (*models.Flow, error) {
	if strings.EqualFold(format, "yaml") || strings.EqualFold(format, "yml") {
		converted, err := yaml.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("failed to convert YAML flow definition: %w", err)
		}

		data = converted
	}

	var definition map[string]any
	if err := json.Unmarshal(data, &definition); err != nil {
		return nil, fmt.Errorf("failed to decode flow definition: %w", err)
	}

	if err := ValidateDefinition(definition); err != nil {
		return nil, err
	}

	var parsed models.Flow
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to bind flow definition: %w", err)
	}

	if parsed.ID == "" {
		parsed.ID = uuid.New().String()
	}

	if parsed.Version == 0 {
		parsed.Version = 1
	}

	now := time.Now().UTC()
	if parsed.CreatedAt.IsZero() {
		parsed.CreatedAt = now
	}

	parsed.UpdatedAt = now

	if err := Validate(&parsed); err != nil {
		return nil, err
	}

	return &parsed, nil
}

// LoadFile reads a flow definition from disk, selecting the format from the
// file extension (.yaml, .yml or .json).
func LoadFile(path string) (*models.Flow, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied definition path
	if err != nil {
		return nil, fmt.Errorf("failed to read flow definition %s: %w", path, err)
	}

	format := strings.TrimPrefix(filepath.Ext(path), ".")

	return Parse(data, format)
}
