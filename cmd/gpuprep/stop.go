package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the inference server",
	Long: `Stop sends SIGTERM to the server recorded in the pidfile and removes
the pidfile.`,
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, _ []string) error {
	p, err := loadProvisioner(cmd)
	if err != nil {
		return err
	}

	st, err := p.Stop()
	if err != nil {
		return fmt.Errorf("stop failed: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: stopped pid %d\n", st.Name, st.PID)
	return nil
}
