// Package commandutil runs external tools on behalf of provider steps and
// turns their failures into errors that keep the tool's output.
package commandutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

// ExitError reports a command that ran and exited with a non-zero status.
type ExitError struct {
	Call   ports.CommandCall
	Result ports.CommandResult
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Call.String(), e.Result.ExitCode)
}

// CommandOutput returns the diagnostic output of the failed command.
func (e *ExitError) CommandOutput() string {
	return e.Result.Output()
}

// Exec runs command and returns an *ExitError when it exits non-zero. A
// missing executable becomes a MISSING_DEPENDENCY error.
func Exec(ctx context.Context, runner ports.CommandRunner, command string, args ...string) (ports.CommandResult, error) {
	result, err := runner.Run(ctx, command, args...)
	if err != nil {
		if IsCommandNotFound(err) {
			return result, sequence.NewMissingDependencyError("", []string{command})
		}
		return result, fmt.Errorf("run %s: %w", command, err)
	}
	if !result.Success() {
		return result, &ExitError{
			Call:   ports.CommandCall{Command: command, Args: args},
			Result: result,
		}
	}
	return result, nil
}

// Probe runs command and reports only whether it succeeded. Errors other
// than a non-zero exit are returned.
func Probe(ctx context.Context, runner ports.CommandRunner, command string, args ...string) (bool, ports.CommandResult, error) {
	result, err := runner.Run(ctx, command, args...)
	if err != nil {
		return false, result, fmt.Errorf("run %s: %w", command, err)
	}
	return result.Success(), result, nil
}

// IsCommandNotFound reports whether an error indicates a missing executable.
func IsCommandNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
		return true
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return true
	}
	return false
}
