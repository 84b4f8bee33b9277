package modelhub

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
	"github.com/felixgeelhaar/gpuprep/internal/provider/commandutil"
)

// markerFile is present in every transformer checkpoint.
const markerFile = "config.json"

// DownloadStep fetches a model with the hub's command line client unless
// its destination directory already exists.
type DownloadStep struct {
	cfg    Config
	id     sequence.StepID
	runner ports.CommandRunner
	fs     ports.FileSystem
}

// NewDownloadStep creates a new DownloadStep.
func NewDownloadStep(cfg Config, runner ports.CommandRunner, fs ports.FileSystem) *DownloadStep {
	return &DownloadStep{
		cfg:    cfg,
		id:     sequence.MustNewStepID("model:download:" + cfg.ID),
		runner: runner,
		fs:     fs,
	}
}

// ID returns the step identifier.
func (s *DownloadStep) ID() sequence.StepID {
	return s.id
}

// Requires returns the hub client when it has to be found on PATH. A
// client inside the conda environment is installed by an earlier step.
func (s *DownloadStep) Requires() []string {
	if filepath.IsAbs(s.cfg.client()) {
		return nil
	}
	return []string{s.cfg.client()}
}

// Check reports whether the destination directory exists.
func (s *DownloadStep) Check(_ sequence.RunContext) (sequence.StepStatus, error) {
	if s.fs.IsDir(s.cfg.Dest()) {
		return sequence.StatusSatisfied, nil
	}
	return sequence.StatusNeedsApply, nil
}

// Apply downloads the model into its destination.
func (s *DownloadStep) Apply(ctx sequence.RunContext) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	return download(ctx.Context(), s.runner, s.cfg)
}

// Verify checks that the checkpoint config was downloaded.
func (s *DownloadStep) Verify(_ sequence.RunContext) error {
	marker := filepath.Join(s.cfg.Dest(), markerFile)
	if !s.fs.Exists(marker) {
		return fmt.Errorf("download finished but %s is missing", marker)
	}
	return nil
}

// Explain provides a human-readable explanation.
func (s *DownloadStep) Explain() sequence.Explanation {
	return sequence.NewExplanation(
		"download "+s.cfg.ID,
		fmt.Sprintf("Downloads %s from %s into %s.", s.cfg.ID, s.cfg.Hub, s.cfg.Dest()),
	)
}

// download runs the hub client. Both clients resume partial downloads and
// skip files that are already complete.
func download(ctx context.Context, runner ports.CommandRunner, cfg Config) error {
	var args []string
	switch cfg.Hub {
	case HubHuggingFace:
		args = []string{"download", cfg.ID, "--local-dir", cfg.Dest()}
		if cfg.Revision != "" {
			args = append(args, "--revision", cfg.Revision)
		}
	default:
		args = []string{"download", "--model", cfg.ID, "--local_dir", cfg.Dest()}
		if cfg.Revision != "" {
			args = append(args, "--revision", cfg.Revision)
		}
	}
	_, err := commandutil.Exec(ctx, runner, cfg.client(), args...)
	return err
}

var _ sequence.Step = (*DownloadStep)(nil)
