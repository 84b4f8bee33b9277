// Package build compiles a cloned source tree with make.
package build

import (
	"fmt"
	"path/filepath"

	"github.com/felixgeelhaar/gpuprep/internal/validation"
)

// Config describes a make invocation and the artifact it must produce.
type Config struct {
	Dir      string
	Artifact string
	Args     []string
}

// ArtifactPath returns the absolute location of the artifact.
func (c Config) ArtifactPath() string {
	return filepath.Join(c.Dir, c.Artifact)
}

// Validate checks the directory, artifact and make arguments.
func (c Config) Validate() error {
	if err := validation.ValidatePath(c.Dir); err != nil {
		return fmt.Errorf("dir: %w", err)
	}
	if err := validation.ValidatePath(c.Artifact); err != nil {
		return fmt.Errorf("artifact: %w", err)
	}
	if filepath.IsAbs(c.Artifact) {
		return fmt.Errorf("artifact: %q must be relative to dir", c.Artifact)
	}
	for i, arg := range c.Args {
		if err := validation.ValidateArgument(arg); err != nil {
			return fmt.Errorf("make_args[%d]: %w", i, err)
		}
	}
	return nil
}
