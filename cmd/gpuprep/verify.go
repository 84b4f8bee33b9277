package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the downloaded model against the hub",
	Long: `Verify compares the size and SHA-256 of every downloaded model file with
the metadata published by the hub.

With --repair, files that do not match are removed and the download runs
again before a second check.`,
	RunE: runVerify,
}

var verifyRepair bool

// errModelDamaged is returned when files still do not match the hub.
var errModelDamaged = errors.New("model files do not match the hub")

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().BoolVar(&verifyRepair, "repair", false, "Remove damaged files and download them again")
}

func runVerify(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, err := loadProvisioner(cmd)
	if err != nil {
		return err
	}

	report, err := p.Verify(ctx, verifyRepair)
	if report != nil {
		p.PrintVerify(report)
	}
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}
	if !report.OK() {
		return errModelDamaged
	}
	return nil
}
