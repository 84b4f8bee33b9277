package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the inference server is running",
	RunE:  runStatus,
}

var statusLogs int

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().IntVarP(&statusLogs, "logs", "n", 0, "Also print the last N lines of the server log")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	p, err := loadProvisioner(cmd)
	if err != nil {
		return err
	}

	st, err := p.Status()
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}
	p.PrintStatus(st)

	if statusLogs > 0 {
		if tail := p.LogTail(statusLogs); tail != "" {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", tail)
		}
	}
	return nil
}
