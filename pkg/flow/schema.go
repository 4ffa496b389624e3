package flow

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// definitionSchema constrains imported flow definitions before they are bound
// to the Flow model. Graph-level rules (edge endpoints, cycles) are checked
// separately by Validate.
const definitionSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name", "nodes"],
	"properties": {
		"id": {"type": "string"},
		"name": {"type": "string", "minLength": 3},
		"version": {"type": "integer", "minimum": 0},
		"nodes": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "instruction"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"instruction": {"type": "string", "minLength": 1},
					"output_name": {"type": "string"},
					"on_error": {"enum": ["continue", "pause", "fail"]},
					"hints": {
						"type": "object",
						"properties": {
							"backend": {"type": "string"},
							"session_id": {"type": "string"},
							"resume_strategy": {"type": "string"}
						}
					}
				}
			}
		},
		"edges": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["source", "target"],
				"properties": {
					"source": {"type": "string", "minLength": 1},
					"target": {"type": "string", "minLength": 1},
					"label": {"type": "string"}
				}
			}
		},
		"variables": {"type": "object"},
		"metadata": {"type": "object"}
	}
}`

// ValidateDefinition validates a decoded flow definition document against the
// flow JSON schema.
func ValidateDefinition(definition map[string]any) error {
	schemaLoader := gojsonschema.NewStringLoader(definitionSchema)
	dataLoader := gojsonschema.NewGoLoader(definition)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate flow definition: %w", err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("invalid flow definition: %s", strings.Join(descriptions, "; "))
	}

	return nil
}
