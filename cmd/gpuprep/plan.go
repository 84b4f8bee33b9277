package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/gpuprep/internal/app"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show which steps apply would run",
	Long: `Plan evaluates the check of every step against the host and shows
which steps are satisfied and which would be applied. Nothing is changed.`,
	RunE: runPlan,
}

var planOnly []string

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().StringSliceVar(&planOnly, "only", nil, "Plan only steps matching these IDs or prefixes")
}

func runPlan(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	p, err := loadProvisioner(cmd)
	if err != nil {
		return err
	}

	report, err := p.Apply(ctx, app.ApplyOptions{DryRun: true, Only: planOnly})
	if report == nil {
		return fmt.Errorf("plan failed: %w", err)
	}

	p.PrintPlan(report)
	if err != nil {
		return errRunFailed
	}
	return nil
}
