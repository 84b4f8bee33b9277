// Package facts holds the EnvironmentSnapshot: values about the host that
// are gathered from external inventory tools once and then reused by every
// step that needs them.
package facts

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
)

// Well-known fact names.
const (
	FactAcceleratorCount  = "accelerator_count"
	FactActiveEnvironment = "active_environment"
)

// envActive is the variable conda sets inside an activated environment.
const envActive = "CONDA_DEFAULT_ENV"

// Probe queries an external tool for a single raw value.
type Probe interface {
	Name() string
	Query(ctx context.Context) (string, error)
}

// GatherFact runs probe and parses the first line of its output as a
// non-negative integer. With requirePositive, zero is rejected too.
func GatherFact(ctx context.Context, probe Probe, requirePositive bool) (int, error) {
	raw, err := probe.Query(ctx)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", probe.Name(), err)
	}
	return ParseCount(probe.Name(), raw, requirePositive)
}

// ParseCount parses raw inventory output into a count.
func ParseCount(name, raw string, requirePositive bool) (int, error) {
	line := strings.TrimSpace(raw)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}

	n, err := strconv.Atoi(line)
	if err != nil || n < 0 {
		return 0, sequence.NewValidationError(name, raw, "n/a", "not a non-negative integer")
	}
	if requirePositive && n == 0 {
		return 0, sequence.NewValidationError(name, raw, "0", "zero accelerators").
			WithSuggestion("Check that the GPU driver is loaded (nvidia-smi must list at least one device).")
	}
	return n, nil
}

// Snapshot caches facts for the duration of a run. The accelerator count is
// gathered on first use; failed gathers are not cached so a later call
// retries the probe.
type Snapshot struct {
	mu          sync.Mutex
	accelerator Probe
	lookupEnv   func(string) (string, bool)
	count       *int
	named       map[string]string
}

// Option configures a Snapshot.
type Option func(*Snapshot)

// WithEnvLookup replaces the environment lookup used for ActiveEnvironment.
func WithEnvLookup(lookup func(string) (string, bool)) Option {
	return func(s *Snapshot) {
		s.lookupEnv = lookup
	}
}

// NewSnapshot creates a snapshot that gathers the accelerator count from probe.
func NewSnapshot(accelerator Probe, opts ...Option) *Snapshot {
	s := &Snapshot{
		accelerator: accelerator,
		lookupEnv:   os.LookupEnv,
		named:       make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AcceleratorCount returns the number of accelerators on the host. Zero is
// a validation failure.
func (s *Snapshot) AcceleratorCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count != nil {
		return *s.count, nil
	}
	if s.accelerator == nil {
		return 0, sequence.NewValidationError(FactAcceleratorCount, "", "n/a", "no accelerator probe configured")
	}

	n, err := GatherFact(ctx, s.accelerator, true)
	if err != nil {
		return 0, err
	}
	s.count = &n
	s.named[FactAcceleratorCount] = strconv.Itoa(n)
	return n, nil
}

// ActiveEnvironment returns the name of the active conda environment, or ""
// when none is active.
func (s *Snapshot) ActiveEnvironment() string {
	v, _ := s.lookupEnv(envActive)
	return strings.TrimSpace(v)
}

// Set records an arbitrary named fact.
func (s *Snapshot) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.named[name] = value
}

// Get returns a named fact.
func (s *Snapshot) Get(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.named[name]
	return v, ok
}

// Fact is a single named value for display.
type Fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// All returns every gathered fact sorted by name, including the active
// environment.
func (s *Snapshot) All() []Fact {
	s.mu.Lock()
	values := lo.Assign(s.named)
	s.mu.Unlock()

	if env := s.ActiveEnvironment(); env != "" {
		values[FactActiveEnvironment] = env
	}

	names := lo.Keys(values)
	sort.Strings(names)
	return lo.Map(names, func(name string, _ int) Fact {
		return Fact{Name: name, Value: values[name]}
	})
}

var _ sequence.Facts = (*Snapshot)(nil)
