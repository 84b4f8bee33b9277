package command

import (
	"os/exec"

	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

// PathLocator resolves executables through PATH.
type PathLocator struct{}

// NewPathLocator creates a new PathLocator.
func NewPathLocator() PathLocator {
	return PathLocator{}
}

// LookPath returns the absolute path of name.
func (PathLocator) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

var _ ports.ToolLocator = PathLocator{}
