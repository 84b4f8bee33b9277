package pip

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

// IndexStep writes index-url and trusted-host into the [global] section of
// pip.conf, keeping every other setting in the file.
type IndexStep struct {
	cfg Config
	id  sequence.StepID
	fs  ports.FileSystem
}

// NewIndexStep creates a new IndexStep.
func NewIndexStep(cfg Config, fs ports.FileSystem) *IndexStep {
	return &IndexStep{
		cfg: cfg,
		id:  sequence.MustNewStepID("pip:index:global"),
		fs:  fs,
	}
}

// ID returns the step identifier.
func (s *IndexStep) ID() sequence.StepID {
	return s.id
}

// Requires returns nothing; the file is written directly.
func (s *IndexStep) Requires() []string {
	return nil
}

// Check reports whether pip.conf already holds the same values.
func (s *IndexStep) Check(_ sequence.RunContext) (sequence.StepStatus, error) {
	file, err := s.load()
	if err != nil {
		return sequence.StatusUnknown, err
	}
	if s.matches(file) {
		return sequence.StatusSatisfied, nil
	}
	return sequence.StatusNeedsApply, nil
}

// Apply merges the index settings into pip.conf.
func (s *IndexStep) Apply(_ sequence.RunContext) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	file, err := s.load()
	if err != nil {
		return err
	}

	global := file.Section("global")
	global.Key("index-url").SetValue(s.cfg.IndexURL)
	if host := s.cfg.Host(); host != "" {
		global.Key("trusted-host").SetValue(host)
	}

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return fmt.Errorf("render %s: %w", s.cfg.ConfigPath, err)
	}
	if err := s.fs.MkdirAll(filepath.Dir(s.cfg.ConfigPath), 0o755); err != nil {
		return err
	}
	return s.fs.WriteFile(s.cfg.ConfigPath, buf.Bytes(), 0o644)
}

// Verify reads the file back.
func (s *IndexStep) Verify(_ sequence.RunContext) error {
	file, err := s.load()
	if err != nil {
		return err
	}
	if !s.matches(file) {
		return fmt.Errorf("%s does not point at %s", s.cfg.ConfigPath, s.cfg.IndexURL)
	}
	return nil
}

// Explain provides a human-readable explanation.
func (s *IndexStep) Explain() sequence.Explanation {
	return sequence.NewExplanation(
		"configure pip index",
		fmt.Sprintf("Sets index-url=%s in %s.", s.cfg.IndexURL, s.cfg.ConfigPath),
	)
}

// load parses pip.conf, returning an empty file when it does not exist yet.
func (s *IndexStep) load() (*ini.File, error) {
	data, err := s.fs.ReadFile(s.cfg.ConfigPath)
	if errors.Is(err, os.ErrNotExist) {
		return ini.Empty(), nil
	}
	if err != nil {
		return nil, err
	}
	file, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.cfg.ConfigPath, err)
	}
	return file, nil
}

func (s *IndexStep) matches(file *ini.File) bool {
	global, err := file.GetSection("global")
	if err != nil {
		return false
	}
	if global.Key("index-url").String() != s.cfg.IndexURL {
		return false
	}
	host := s.cfg.Host()
	return host == "" || global.Key("trusted-host").String() == host
}

var _ sequence.Step = (*IndexStep)(nil)
