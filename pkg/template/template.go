// Package template resolves {{variable}} references in node instructions.
package template

import (
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

// variablePattern matches bare {{name}} references. Instruction authors write
// {{branch}}, not {{.branch}}; the rewrite below maps them onto text/template
// field syntax before execution.
var variablePattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Render resolves {{variable}} references in input against the variables map.
// A reference to a variable that is not bound is an error; instructions are
// handed verbatim to execution backends and silently dropping a reference
// would change their meaning.
func Render(input string, variables map[string]any) (string, error) {
	if !NeedsRendering(input) {
		return input, nil
	}

	rewritten := variablePattern.ReplaceAllString(input, `{{index_or_fail . "$1"}}`)

	tmpl, err := template.
		New("instruction").
		Funcs(template.FuncMap{
			"index_or_fail": func(variables map[string]any, name string) (any, error) {
				value, ok := variables[name]
				if !ok {
					return nil, fmt.Errorf("variable %q is not bound", name)
				}

				return value, nil
			},
		}).Parse(rewritten)
	if err != nil {
		return "", fmt.Errorf("failed to parse instruction template: %w", err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, variables)
	if err != nil {
		return "", fmt.Errorf("failed to resolve instruction variables: %w", err)
	}

	return buf.String(), nil
}

// NeedsRendering reports whether the input contains template markers.
func NeedsRendering(input string) bool {
	return strings.Contains(input, "{{")
}
