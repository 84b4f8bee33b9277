// Package git clones source repositories such as the collective
// communication benchmark.
package git

import (
	"fmt"

	"github.com/felixgeelhaar/gpuprep/internal/validation"
)

// Config describes one repository to clone.
type Config struct {
	URL  string
	Ref  string
	Dest string
}

// Validate checks the clone URL, ref and destination.
func (c Config) Validate() error {
	if err := validation.ValidateGitURL(c.URL); err != nil {
		return fmt.Errorf("repo: %w", err)
	}
	if err := validation.ValidateBranch(c.Ref); err != nil {
		return fmt.Errorf("ref: %w", err)
	}
	if err := validation.ValidatePath(c.Dest); err != nil {
		return fmt.Errorf("dir: %w", err)
	}
	return nil
}
