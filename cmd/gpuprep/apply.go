package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/gpuprep/internal/adapters/logging"
	"github.com/felixgeelhaar/gpuprep/internal/app"
	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/tui"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Provision the host",
	Long: `Apply runs every step of the manifest in order.

Each step checks the host first. Satisfied steps are skipped, missing ones
are applied and then verified. The first failing critical step stops the
run; failing best-effort steps are reported and the run continues.

Use --dry-run to evaluate the checks without changing anything, and --only
to run a subset of the steps:

  gpuprep apply --only conda          # every conda step
  gpuprep apply --only service:launch # just the server launch`,
	RunE: runApply,
}

var (
	applyDryRun bool
	applyOnly   []string
	applyTUI    bool
)

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Evaluate every check without making changes")
	applyCmd.Flags().StringSliceVar(&applyOnly, "only", nil, "Run only steps matching these IDs or prefixes")
	applyCmd.Flags().BoolVar(&applyTUI, "tui", false, "Show live progress")
}

func runApply(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, err := loadProvisioner(cmd)
	if err != nil {
		return err
	}

	opts := app.ApplyOptions{DryRun: applyDryRun, Only: applyOnly}

	var report *sequence.Report
	if applyTUI {
		seq, selErr := p.Select(applyOnly)
		if selErr != nil {
			return selErr
		}
		// The progress view owns the terminal.
		p.WithLogger(logging.NewNopLogger())
		report, err = tui.RunApply(ctx, cmd.OutOrStdout(), "gpuprep apply", seq.Len(),
			func(ctx context.Context, obs sequence.Observer) (*sequence.Report, error) {
				opts.Observer = obs
				return p.Apply(ctx, opts)
			})
	} else {
		report, err = p.Apply(ctx, opts)
	}
	if report == nil {
		if err != nil {
			return fmt.Errorf("apply failed: %w", err)
		}
		return nil
	}

	if applyDryRun {
		p.PrintPlan(report)
	} else {
		p.PrintReport(report)
	}
	switch {
	case errors.Is(err, tui.ErrCancelled), errors.Is(err, context.Canceled):
		return errInterrupted
	case err != nil:
		return errRunFailed
	}
	return nil
}
