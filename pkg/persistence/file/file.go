// Package file provides file-based persistence for flows and execution state.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flowplane/flowplane/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface on the file
// system. Each record is one JSON document keyed by id.
type Persistence struct {
	root          string
	flowRepo      *FlowRepository
	executionRepo *ExecutionRepository
}

// NewPersistence creates a new instance of Persistence rooted at the given
// directory. A "file://" prefix is stripped for database-URL style
// configuration.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:          cleanRoot,
		flowRepo:      NewFlowRepository(cleanRoot),
		executionRepo: NewExecutionRepository(cleanRoot),
	}
}

// Flows returns the flow repository implementation for file persistence.
func (fp *Persistence) Flows() persistence.FlowRepository {
	return fp.flowRepo
}

// Executions returns the execution repository implementation for file persistence.
func (fp *Persistence) Executions() persistence.ExecutionRepository {
	return fp.executionRepo
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file-based persistence, there is
// nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// validateID rejects identifiers unsafe for file operations.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", persistence.ErrInvalidID)
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q contains path separators", persistence.ErrInvalidID, id)
	}

	return nil
}

// writeAtomic writes data to path via a temporary file in the same directory
// followed by a rename, so readers never observe a partial document.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	err = os.Rename(tmpName, path)
	if err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return nil
}

// readDocument reads a JSON document, mapping a missing file to notFound.
func readDocument(path string, notFound error) ([]byte, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is validated and constructed safely
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound
		}

		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return data, nil
}
