package mocks

import (
	"fmt"
	"os/exec"
	"sync"

	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

// ToolLocator is a test double for ports.ToolLocator. Every tool is
// considered present unless registered as missing.
type ToolLocator struct {
	mu      sync.RWMutex
	missing map[string]bool
}

// NewToolLocator creates a locator that finds every tool.
func NewToolLocator() *ToolLocator {
	return &ToolLocator{missing: make(map[string]bool)}
}

// Missing marks tools as absent from PATH.
func (l *ToolLocator) Missing(tools ...string) *ToolLocator {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range tools {
		l.missing[t] = true
	}
	return l
}

// LookPath resolves a tool.
func (l *ToolLocator) LookPath(name string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.missing[name] {
		return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
	}
	return "/usr/bin/" + name, nil
}

// Ensure ToolLocator implements ports.ToolLocator.
var _ ports.ToolLocator = (*ToolLocator)(nil)
