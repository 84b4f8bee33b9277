package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Gather and print host facts",
	Long: `Facts probes the host the same way apply does and prints what it found:
the number of accelerators and the active conda environment.`,
	RunE: runFacts,
}

func init() {
	rootCmd.AddCommand(factsCmd)
}

func runFacts(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	p, err := loadProvisioner(cmd)
	if err != nil {
		return err
	}

	list, err := p.Facts(ctx)
	p.PrintFacts(list)
	if err != nil {
		return fmt.Errorf("fact gathering failed: %w", err)
	}
	return nil
}
