package modelhub

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
	"github.com/felixgeelhaar/gpuprep/internal/validation"
)

// VerifyStep checks downloaded weights against the hub and repairs them by
// removing damaged files and downloading again.
type VerifyStep struct {
	cfg      Config
	id       sequence.StepID
	verifier *Verifier
	runner   ports.CommandRunner
	fs       ports.FileSystem
	last     *VerifyReport
}

// NewVerifyStep creates a new VerifyStep.
func NewVerifyStep(cfg Config, verifier *Verifier, runner ports.CommandRunner, fs ports.FileSystem) *VerifyStep {
	return &VerifyStep{
		cfg:      cfg,
		id:       sequence.MustNewStepID("model:verify:" + cfg.ID),
		verifier: verifier,
		runner:   runner,
		fs:       fs,
	}
}

// ID returns the step identifier.
func (s *VerifyStep) ID() sequence.StepID {
	return s.id
}

// Requires returns the hub client used for repairs when it has to be found
// on PATH.
func (s *VerifyStep) Requires() []string {
	if filepath.IsAbs(s.cfg.client()) {
		return nil
	}
	return []string{s.cfg.client()}
}

// Check hashes the local files. Every file matching means nothing to do. A
// model directory that does not exist yet is left to the download step.
func (s *VerifyStep) Check(ctx sequence.RunContext) (sequence.StepStatus, error) {
	s.last = nil
	if !s.fs.IsDir(s.cfg.Dest()) {
		return sequence.StatusNeedsApply, nil
	}
	report, err := s.verifier.Verify(ctx.Context(), s.cfg)
	if err != nil {
		return sequence.StatusUnknown, err
	}
	s.last = report
	if report.OK() {
		return sequence.StatusSatisfied, nil
	}
	for _, p := range report.Problems {
		ctx.Logger().Warn(ctx.Context(), "model file does not match hub",
			ports.F("file", p.Name), ports.F("problem", string(p.Kind)))
	}
	return sequence.StatusNeedsApply, nil
}

// Apply removes damaged files and downloads the model again.
func (s *VerifyStep) Apply(ctx sequence.RunContext) error {
	if s.last == nil {
		report, err := s.verifier.Verify(ctx.Context(), s.cfg)
		if err != nil {
			return err
		}
		s.last = report
	}
	return Repair(ctx.Context(), s.cfg, s.last, s.runner, s.fs)
}

// Verify hashes again after the repair.
func (s *VerifyStep) Verify(ctx sequence.RunContext) error {
	report, err := s.verifier.Verify(ctx.Context(), s.cfg)
	if err != nil {
		return err
	}
	s.last = report
	if !report.OK() {
		return errors.New(report.Summary())
	}
	return nil
}

// Explain provides a human-readable explanation.
func (s *VerifyStep) Explain() sequence.Explanation {
	return sequence.NewExplanation(
		"verify "+s.cfg.ID,
		fmt.Sprintf("Compares size and sha256 of every file in %s with the hub.", s.cfg.Dest()),
	)
}

// LastReport returns the report of the most recent check.
func (s *VerifyStep) LastReport() *VerifyReport {
	return s.last
}

// Repair removes files that are present but damaged and runs the hub client
// again, which also fetches missing files.
func Repair(ctx context.Context, cfg Config, report *VerifyReport, runner ports.CommandRunner, fs ports.FileSystem) error {
	if report.OK() {
		return nil
	}
	for _, p := range report.Damaged() {
		if validation.ValidatePath(p.Name) != nil || !fs.Exists(localPath(cfg, p.Name)) {
			continue
		}
		if err := fs.Remove(localPath(cfg, p.Name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove damaged %s: %w", p.Name, err)
		}
	}
	return download(ctx, runner, cfg)
}

var _ sequence.Step = (*VerifyStep)(nil)
