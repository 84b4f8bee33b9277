// Package mocks provides test doubles for testing.
package mocks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

// CommandRunner is a thread-safe test double for ports.CommandRunner.
//
// Results registered for the same command line form a queue: each call
// consumes the next one and the last result keeps being returned. This
// lets a test describe state before and after an action.
type CommandRunner struct {
	mu      sync.Mutex
	results map[string][]ports.CommandResult
	errors  map[string]error
	hooks   map[string]func()
	calls   []ports.CommandCall
}

// NewCommandRunner creates a new CommandRunner mock.
func NewCommandRunner() *CommandRunner {
	return &CommandRunner{
		results: make(map[string][]ports.CommandResult),
		errors:  make(map[string]error),
		hooks:   make(map[string]func()),
		calls:   make([]ports.CommandCall, 0),
	}
}

// AddResult registers an expected command and its result.
func (m *CommandRunner) AddResult(command string, args []string, results ...ports.CommandResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := buildKey(command, args)
	m.results[key] = append(m.results[key], results...)
}

// AddError registers an expected command that should return an error.
func (m *CommandRunner) AddError(command string, args []string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[buildKey(command, args)] = err
}

// OnRun registers a side effect executed when the command runs, e.g. to
// create the directory a real clone would have produced.
func (m *CommandRunner) OnRun(command string, args []string, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[buildKey(command, args)] = fn
}

// Run executes a mock command.
func (m *CommandRunner) Run(_ context.Context, command string, args ...string) (ports.CommandResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, ports.CommandCall{Command: command, Args: args})
	key := buildKey(command, args)
	hook := m.hooks[key]

	if err, ok := m.errors[key]; ok {
		m.mu.Unlock()
		return ports.CommandResult{}, err
	}

	queue, ok := m.results[key]
	if !ok || len(queue) == 0 {
		m.mu.Unlock()
		return ports.CommandResult{}, fmt.Errorf("no mock result for command: %s %v", command, args)
	}
	result := queue[0]
	if len(queue) > 1 {
		m.results[key] = queue[1:]
	}
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return result, nil
}

// Calls returns all recorded command invocations.
func (m *CommandRunner) Calls() []ports.CommandCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]ports.CommandCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// Called reports whether the exact command line was invoked.
func (m *CommandRunner) Called(command string, args ...string) bool {
	key := buildKey(command, args)
	for _, c := range m.Calls() {
		if buildKey(c.Command, c.Args) == key {
			return true
		}
	}
	return false
}

// Reset clears all registered results, errors, and recorded calls.
func (m *CommandRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = make(map[string][]ports.CommandResult)
	m.errors = make(map[string]error)
	m.hooks = make(map[string]func())
	m.calls = make([]ports.CommandCall, 0)
}

// buildKey creates a unique key for a command and its arguments.
func buildKey(command string, args []string) string {
	return command + ":" + strings.Join(args, ":")
}

// Ensure CommandRunner implements ports.CommandRunner.
var _ ports.CommandRunner = (*CommandRunner)(nil)
