// Package mcp exposes the read-only gpuprep operations as MCP tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/gpuprep/internal/app"
	"github.com/felixgeelhaar/gpuprep/internal/config"
	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
)

// Loader builds a Provisioner for the manifest at configPath.
type Loader func(configPath string) (*app.Provisioner, error)

// VersionInfo contains build version information.
type VersionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// PlanInput is the input for the gpuprep_plan tool.
type PlanInput struct {
	ConfigPath string   `json:"config_path,omitempty" jsonschema:"description=Path to the host manifest (default: gpuprep.yaml)"`
	Only       []string `json:"only,omitempty" jsonschema:"description=Restrict the plan to step IDs or prefixes such as conda or service:launch"`
}

// PlanOutput is the output for the gpuprep_plan tool.
type PlanOutput struct {
	HasChanges bool        `json:"has_changes"`
	Summary    PlanSummary `json:"summary"`
	Steps      []PlanStep  `json:"steps"`
	Error      string      `json:"error,omitempty"`
}

// PlanSummary contains plan statistics.
type PlanSummary struct {
	Total      int `json:"total"`
	NeedsApply int `json:"needs_apply"`
	Satisfied  int `json:"satisfied"`
	Failed     int `json:"failed"`
	NotRun     int `json:"not_run"`
}

// PlanStep represents a single step in the plan.
type PlanStep struct {
	ID         string `json:"id"`
	Provider   string `json:"provider"`
	Status     string `json:"status"`
	BestEffort bool   `json:"best_effort,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ValidateInput is the input for the gpuprep_validate tool.
type ValidateInput struct {
	ConfigPath string `json:"config_path,omitempty" jsonschema:"description=Path to the host manifest (default: gpuprep.yaml)"`
}

// ValidateOutput is the output for the gpuprep_validate tool.
type ValidateOutput struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// ValidationIssue is one problem found in the manifest.
type ValidationIssue struct {
	Code       string `json:"code"`
	Field      string `json:"field,omitempty"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// FactsInput is the input for the gpuprep_facts tool.
type FactsInput struct {
	ConfigPath string `json:"config_path,omitempty" jsonschema:"description=Path to the host manifest (default: gpuprep.yaml)"`
}

// FactsOutput is the output for the gpuprep_facts tool.
type FactsOutput struct {
	Facts      map[string]string `json:"facts"`
	ProbeError string            `json:"probe_error,omitempty"`
}

// StatusInput is the input for the gpuprep_status tool.
type StatusInput struct {
	ConfigPath string `json:"config_path,omitempty" jsonschema:"description=Path to the host manifest (default: gpuprep.yaml)"`
	LogLines   int    `json:"log_lines,omitempty" jsonschema:"description=Number of server log lines to include (default: 0)"`
}

// StatusOutput is the output for the gpuprep_status tool.
type StatusOutput struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	BuildDate  string `json:"build_date"`
	ConfigPath string `json:"config_path"`
	Server     string `json:"server,omitempty"`
	PID        int    `json:"pid,omitempty"`
	Running    bool   `json:"running"`
	PIDFile    string `json:"pid_file,omitempty"`
	LogFile    string `json:"log_file,omitempty"`
	LogTail    string `json:"log_tail,omitempty"`
}

// VerifyInput is the input for the gpuprep_verify tool.
type VerifyInput struct {
	ConfigPath string `json:"config_path,omitempty" jsonschema:"description=Path to the host manifest (default: gpuprep.yaml)"`
}

// VerifyOutput is the output for the gpuprep_verify tool.
type VerifyOutput struct {
	Model    string   `json:"model"`
	Dir      string   `json:"dir"`
	OK       bool     `json:"ok"`
	Expected int      `json:"expected"`
	Checked  int      `json:"checked"`
	Problems []string `json:"problems,omitempty"`
}

// maxLogLines caps the log tail returned over MCP.
const maxLogLines = 200

// RegisterAll registers all MCP tools with the server.
func RegisterAll(srv *mcp.Server, load Loader, defaultConfig string, versionInfo VersionInfo) {
	registerPlanTool(srv, load, defaultConfig)
	registerValidateTool(srv, load, defaultConfig)
	registerFactsTool(srv, load, defaultConfig)
	registerStatusTool(srv, load, defaultConfig, versionInfo)
	registerVerifyTool(srv, load, defaultConfig)
}

func registerPlanTool(srv *mcp.Server, load Loader, defaultConfig string) {
	srv.Tool("gpuprep_plan").
		Description("Show which provisioning steps would run on this host. Evaluates every precondition without changing anything.").
		ReadOnly().
		Handler(func(ctx context.Context, in PlanInput) (*PlanOutput, error) {
			if err := ValidatePlanInput(&in); err != nil {
				return nil, err
			}
			p, err := load(orDefault(in.ConfigPath, defaultConfig))
			if err != nil {
				return nil, err
			}

			report, err := p.Apply(ctx, app.ApplyOptions{DryRun: true, Only: in.Only})
			if report == nil {
				return nil, err
			}

			output := &PlanOutput{
				HasChanges: report.Count(sequence.OutcomePending) > 0,
				Summary: PlanSummary{
					Total:      len(report.Results),
					NeedsApply: report.Count(sequence.OutcomePending),
					Satisfied:  report.Count(sequence.OutcomeSkipped),
					Failed:     report.Count(sequence.OutcomeFailed) + report.Count(sequence.OutcomeTolerated),
					NotRun:     report.Count(sequence.OutcomeNotRun),
				},
				Steps: make([]PlanStep, 0, len(report.Results)),
			}
			if err != nil {
				output.Error = app.FormatError(err)
			}
			for _, res := range report.Results {
				step := PlanStep{
					ID:         res.StepID().String(),
					Provider:   res.StepID().Provider(),
					Status:     res.Outcome().String(),
					BestEffort: res.Criticality() == sequence.BestEffort,
				}
				if res.Error() != nil {
					step.Error = res.Error().Error()
				}
				output.Steps = append(output.Steps, step)
			}
			return output, nil
		})
}

func registerValidateTool(srv *mcp.Server, load Loader, defaultConfig string) {
	srv.Tool("gpuprep_validate").
		Description("Validate the host manifest without touching the host. Reports every problem at once.").
		ReadOnly().
		Handler(func(_ context.Context, in ValidateInput) (*ValidateOutput, error) {
			if err := ValidateConfigPath(in.ConfigPath); err != nil {
				return nil, err
			}
			_, err := load(orDefault(in.ConfigPath, defaultConfig))
			if err == nil {
				return &ValidateOutput{Valid: true}, nil
			}

			var list *config.ErrorList
			var userErr *config.UserError
			switch {
			case errors.As(err, &list):
				return &ValidateOutput{Errors: issues(list.Errors()...)}, nil
			case errors.As(err, &userErr):
				return &ValidateOutput{Errors: issues(userErr)}, nil
			default:
				return nil, err
			}
		})
}

func registerFactsTool(srv *mcp.Server, load Loader, defaultConfig string) {
	srv.Tool("gpuprep_facts").
		Description("Gather host facts such as the accelerator count and the active Python environment.").
		ReadOnly().
		Handler(func(ctx context.Context, in FactsInput) (*FactsOutput, error) {
			if err := ValidateConfigPath(in.ConfigPath); err != nil {
				return nil, err
			}
			p, err := load(orDefault(in.ConfigPath, defaultConfig))
			if err != nil {
				return nil, err
			}

			list, probeErr := p.Facts(ctx)
			output := &FactsOutput{Facts: make(map[string]string, len(list))}
			for _, f := range list {
				output.Facts[f.Name] = f.Value
			}
			if probeErr != nil {
				output.ProbeError = probeErr.Error()
			}
			return output, nil
		})
}

func registerStatusTool(srv *mcp.Server, load Loader, defaultConfig string, versionInfo VersionInfo) {
	srv.Tool("gpuprep_status").
		Description("Get gpuprep version info and the state of the launched inference server.").
		ReadOnly().
		Handler(func(_ context.Context, in StatusInput) (*StatusOutput, error) {
			if err := ValidateStatusInput(&in); err != nil {
				return nil, err
			}
			configPath := orDefault(in.ConfigPath, defaultConfig)
			output := &StatusOutput{
				Version:    versionInfo.Version,
				Commit:     versionInfo.Commit,
				BuildDate:  versionInfo.BuildDate,
				ConfigPath: configPath,
			}

			p, err := load(configPath)
			if err != nil {
				return output, nil //nolint:nilerr // Intentional: version info is useful without a manifest
			}
			st, err := p.Status()
			if err != nil {
				return nil, err
			}
			output.Server = st.Name
			output.PID = st.PID
			output.Running = st.Alive
			output.PIDFile = st.PIDFile
			output.LogFile = st.LogFile
			if in.LogLines > 0 {
				output.LogTail = p.LogTail(in.LogLines)
			}
			return output, nil
		})
}

func registerVerifyTool(srv *mcp.Server, load Loader, defaultConfig string) {
	srv.Tool("gpuprep_verify").
		Description("Check the downloaded model files against the hub's sizes and checksums. Never repairs.").
		ReadOnly().
		Handler(func(ctx context.Context, in VerifyInput) (*VerifyOutput, error) {
			if err := ValidateConfigPath(in.ConfigPath); err != nil {
				return nil, err
			}
			p, err := load(orDefault(in.ConfigPath, defaultConfig))
			if err != nil {
				return nil, err
			}

			report, err := p.Verify(ctx, false)
			if err != nil {
				return nil, fmt.Errorf("verify failed: %w", err)
			}
			output := &VerifyOutput{
				Model:    p.Manifest().Model.ID,
				Dir:      report.Dir,
				OK:       report.OK(),
				Expected: report.Expected,
				Checked:  report.Checked,
			}
			for _, problem := range report.Problems {
				output.Problems = append(output.Problems, problem.String())
			}
			return output, nil
		})
}

func issues(errs ...*config.UserError) []ValidationIssue {
	out := make([]ValidationIssue, 0, len(errs))
	for _, e := range errs {
		out = append(out, ValidationIssue{
			Code:       e.Code,
			Field:      e.Context,
			Message:    e.Message,
			Suggestion: e.Suggestion,
		})
	}
	return out
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
