// Package testutil provides helpers shared by gpuprep tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/gpuprep/internal/adapters/logging"
	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
)

// RunContext returns a RunContext for calling step phases directly, with
// a discarding logger and the given facts (which may be nil).
func RunContext(facts sequence.Facts) sequence.RunContext {
	return sequence.NewRunContext(context.Background()).
		WithLogger(logging.NewNopLogger()).
		WithFacts(facts)
}

// StaticFacts is a fixed environment snapshot.
type StaticFacts struct {
	Accelerators int
	Err          error
	Environment  string
}

// AcceleratorCount returns the configured count or error.
func (f StaticFacts) AcceleratorCount(context.Context) (int, error) {
	return f.Accelerators, f.Err
}

// ActiveEnvironment returns the configured environment name.
func (f StaticFacts) ActiveEnvironment() string {
	return f.Environment
}

// WriteTempFile writes content to a file in dir, creating parents.
func WriteTempFile(t testing.TB, dir, filename, content string) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "failed to write temp file: %s", filename)

	return path
}

// WriteTempDir creates a subdirectory in dir.
func WriteTempDir(t testing.TB, dir, dirname string) string {
	t.Helper()

	path := filepath.Join(dir, dirname)
	require.NoError(t, os.MkdirAll(path, 0o755), "failed to create temp subdirectory: %s", dirname)

	return path
}
