package mcp

import (
	"fmt"

	"github.com/felixgeelhaar/gpuprep/internal/validation"
)

// ValidateConfigPath validates an optional manifest path.
func ValidateConfigPath(path string) error {
	if path == "" {
		return nil
	}
	if err := validation.ValidatePath(path); err != nil {
		return fmt.Errorf("invalid config_path: %w", err)
	}
	return nil
}

// ValidatePlanInput validates PlanInput fields.
func ValidatePlanInput(in *PlanInput) error {
	if err := ValidateConfigPath(in.ConfigPath); err != nil {
		return err
	}
	for _, sel := range in.Only {
		if err := validation.ValidateArgument(sel); err != nil {
			return fmt.Errorf("invalid only selector: %w", err)
		}
	}
	return nil
}

// ValidateStatusInput validates StatusInput fields.
func ValidateStatusInput(in *StatusInput) error {
	if err := ValidateConfigPath(in.ConfigPath); err != nil {
		return err
	}
	if in.LogLines < 0 || in.LogLines > maxLogLines {
		return fmt.Errorf("invalid log_lines: must be between 0 and %d", maxLogLines)
	}
	return nil
}
