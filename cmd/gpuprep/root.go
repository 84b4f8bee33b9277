package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/gpuprep/internal/adapters/logging"
	"github.com/felixgeelhaar/gpuprep/internal/app"
	"github.com/felixgeelhaar/gpuprep/internal/config"
	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
)

var (
	// Global flags
	cfgFile  string
	verbose  bool
	logLevel string
	logJSON  bool
	noColor  bool
)

var rootCmd = &cobra.Command{
	Use:   "gpuprep",
	Short: "Provision multi-GPU inference hosts",
	Long: `gpuprep brings a GPU host from a bare OS install to a running
inference server, described by a single manifest (gpuprep.yaml).

Every step checks the host first and only acts when something is missing,
so running it again on a provisioned host changes nothing:
  packages → accelerators → benchmark → pip → conda → model → server → firewall`,
	SilenceErrors: true, // We handle error formatting ourselves
	SilenceUsage:  true, // Don't show usage on error
}

var (
	// errRunFailed is returned after a failed run's report has been printed.
	errRunFailed = errors.New("provisioning failed")
	// errInterrupted is returned when a signal or the progress view stopped
	// the run between steps.
	errInterrupted = errors.New("provisioning interrupted")
)

// newProvisioner binds a loaded manifest to the host.
var newProvisioner = func(m *config.Manifest, out io.Writer) *app.Provisioner {
	return app.New(m, out)
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "manifest file (default: gpuprep.yaml, gpuprep.yml or gpuprep.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")

	registerFlagCompletions()
}

// configPath returns the --config flag, or the first default manifest in
// the working directory.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.Find(".")
}

// loadProvisioner loads the manifest and binds it to the host.
func loadProvisioner(cmd *cobra.Command) (*app.Provisioner, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	m, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	out := cmd.OutOrStdout()
	return newProvisioner(m, out).
		WithLogger(newLogger(cmd.ErrOrStderr())).
		WithColor(useColor(out)), nil
}

func newLogger(w io.Writer) ports.Logger {
	level := ports.ParseLevel(logLevel)
	if verbose {
		level = ports.LevelDebug
	}
	return logging.NewConsoleLogger(
		logging.WithOutput(w),
		logging.WithLevel(level),
		logging.WithJSONFormat(logJSON),
		logging.WithColor(useColor(w)),
	)
}

func useColor(w io.Writer) bool {
	return !noColor && logging.IsTerminal(w)
}

// formatError returns a user-friendly error message.
// With verbose=false: shows the message and suggestion.
// With verbose=true: shows every detail the error carries.
func formatError(err error) string {
	if verbose {
		return app.FormatError(err)
	}

	var list *config.ErrorList
	if errors.As(err, &list) {
		return list.Format()
	}

	var userErr *config.UserError
	if errors.As(err, &userErr) {
		msg := userErr.Message
		if userErr.Context != "" {
			msg += fmt.Sprintf(" (at %s)", userErr.Context)
		}
		if userErr.Suggestion != "" {
			msg += fmt.Sprintf("\n\nSuggestion: %s", userErr.Suggestion)
		}
		return msg
	}

	var stepErr *sequence.StepError
	if errors.As(err, &stepErr) && stepErr.Suggestion != "" {
		return fmt.Sprintf("%s\n\nSuggestion: %s", stepErr.Error(), stepErr.Suggestion)
	}
	return err.Error()
}

// printError prints an error message to stderr with proper formatting.
func printError(err error) {
	printErrorTo(os.Stderr, err)
}

// printErrorTo prints an error message to the given writer.
func printErrorTo(w io.Writer, err error) {
	_, _ = fmt.Fprintf(w, "Error: %s\n", formatError(err))
}

// registerFlagCompletions sets up custom completions for global flags.
func registerFlagCompletions() {
	_ = rootCmd.RegisterFlagCompletionFunc("config", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"yaml", "yml", "toml"}, cobra.ShellCompDirectiveFilterFileExt
	})

	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})
}
