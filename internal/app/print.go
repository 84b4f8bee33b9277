package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/felixgeelhaar/gpuprep/internal/config"
	"github.com/felixgeelhaar/gpuprep/internal/domain/facts"
	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/provider/modelhub"
	"github.com/felixgeelhaar/gpuprep/internal/provider/service"
)

var (
	outcomeStyles = map[sequence.Outcome]lipgloss.Style{
		sequence.OutcomeApplied:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		sequence.OutcomeSkipped:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		sequence.OutcomePending:   lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		sequence.OutcomeTolerated: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		sequence.OutcomeFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		sequence.OutcomeNotRun:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Faint(true),
	}
	outcomeSymbols = map[sequence.Outcome]string{
		sequence.OutcomeApplied:   "✓",
		sequence.OutcomeSkipped:   "=",
		sequence.OutcomePending:   "+",
		sequence.OutcomeTolerated: "!",
		sequence.OutcomeFailed:    "✗",
		sequence.OutcomeNotRun:    "-",
	}
	headerStyle = lipgloss.NewStyle().Bold(true)
	titleCaser  = cases.Title(language.English)
)

// PrintPlan outputs the precondition status of every step.
func (p *Provisioner) PrintPlan(report *sequence.Report) {
	p.printf("\n%s\n\n", p.header("gpuprep plan"))

	pending := report.Count(sequence.OutcomePending)
	if pending == 0 && report.Err == nil {
		p.printf("No changes needed. The host is provisioned.\n")
		return
	}

	p.printf("Steps: %d total, %d to apply, %d satisfied\n\n",
		len(report.Results), pending, report.Count(sequence.OutcomeSkipped))
	for _, res := range report.Results {
		p.printResult(res)
	}
	if report.Err != nil {
		p.printError(report.Err)
		return
	}
	p.printf("\nRun 'gpuprep apply' to execute this plan.\n")
}

// PrintReport outputs the result of a provisioning run.
func (p *Provisioner) PrintReport(report *sequence.Report) {
	p.printf("\n%s\n\n", p.header("gpuprep apply"))

	for _, res := range report.Results {
		p.printResult(res)
		for _, note := range res.Notes() {
			p.printf("      %s\n", note)
		}
	}

	counts := lo.FilterMap(sequence.Outcomes(), func(o sequence.Outcome, _ int) (string, bool) {
		n := report.Count(o)
		return fmt.Sprintf("%d %s", n, o), n > 0
	})
	p.printf("\n%s in %s (run %s)\n", strings.Join(counts, ", "),
		report.Duration().Round(time.Millisecond), report.RunID)

	if report.Err != nil {
		p.printError(report.Err)
	}
}

// PrintFacts outputs the gathered environment snapshot.
func (p *Provisioner) PrintFacts(list []facts.Fact) {
	p.printf("\n%s\n\n", p.header("Host facts"))
	if len(list) == 0 {
		p.printf("No facts gathered.\n")
		return
	}
	width := lo.Max(lo.Map(list, func(f facts.Fact, _ int) int { return len(f.Name) }))
	for _, f := range list {
		p.printf("  %-*s  %s\n", width, f.Name, f.Value)
	}
}

// PrintVerify outputs a model integrity report.
func (p *Provisioner) PrintVerify(report *modelhub.VerifyReport) {
	p.printf("\n%s\n\n", p.header("Model integrity"))
	p.printf("%s\n", report.Summary())
	for _, problem := range report.Problems {
		p.printf("  %s %s\n", p.style(sequence.OutcomeFailed, "✗"), problem)
	}
	if !report.OK() {
		p.printf("\nRun 'gpuprep verify --repair' to remove damaged files and download them again.\n")
	}
}

// PrintStatus outputs the state of the launched server.
func (p *Provisioner) PrintStatus(st service.Status) {
	switch {
	case st.PID == 0:
		p.printf("%s: not launched (no pidfile at %s)\n", st.Name, st.PIDFile)
	case st.Alive:
		p.printf("%s: %s, pid %d\n", st.Name, p.style(sequence.OutcomeApplied, "running"), st.PID)
	case st.Reused:
		p.printf("%s: %s, pid %d now runs another program\n", st.Name, p.style(sequence.OutcomeFailed, "dead"), st.PID)
	default:
		p.printf("%s: %s, pid %d is gone\n", st.Name, p.style(sequence.OutcomeFailed, "dead"), st.PID)
	}
	p.printf("  logs: %s\n", st.LogFile)
}

func (p *Provisioner) printResult(res sequence.StepResult) {
	o := res.Outcome()
	label := titleCaser.String(string(o))
	line := fmt.Sprintf("  %s %s %s", p.style(o, outcomeSymbols[o]), p.style(o, fmt.Sprintf("%-10s", label)), res.StepID())
	if res.Criticality() == sequence.BestEffort {
		line += " (best-effort)"
	}
	if d := res.Duration(); d > 0 {
		line += fmt.Sprintf("  %s", d.Round(time.Millisecond))
	}
	p.printf("%s\n", line)
	if o == sequence.OutcomeTolerated && res.Error() != nil {
		p.printf("      %s\n", res.Error())
	}
}

func (p *Provisioner) printError(err error) {
	p.printf("\n%s %s\n", p.style(sequence.OutcomeFailed, "Error:"), FormatError(err))
}

// FormatError renders err with every detail the typed errors carry.
func FormatError(err error) string {
	var stepErr *sequence.StepError
	if errors.As(err, &stepErr) {
		return stepErr.Format()
	}
	var list *config.ErrorList
	if errors.As(err, &list) {
		return list.Format()
	}
	var userErr *config.UserError
	if errors.As(err, &userErr) {
		return userErr.Format()
	}
	return err.Error()
}

func (p *Provisioner) header(s string) string {
	if !p.color {
		return s
	}
	return headerStyle.Render(s)
}

func (p *Provisioner) style(o sequence.Outcome, s string) string {
	if !p.color {
		return s
	}
	return outcomeStyles[o].Render(s)
}

func (p *Provisioner) printf(format string, args ...interface{}) {
	if p.out != nil {
		_, _ = fmt.Fprintf(p.out, format, args...)
	}
}
