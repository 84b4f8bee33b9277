package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
)

// recentResults is how many finished steps stay on screen.
const recentResults = 8

// ErrCancelled is returned when the operator quits the view before the
// run finished. The step that was running completes; no later step starts.
var ErrCancelled = errors.New("run cancelled")

// StepStartMsg is sent when a step starts executing.
type StepStartMsg struct {
	StepID sequence.StepID
}

// StepFinishedMsg is sent when a step has a result.
type StepFinishedMsg struct {
	Result sequence.StepResult
}

// RunDoneMsg is sent when the sequence returned.
type RunDoneMsg struct {
	Report *sequence.Report
	Err    error
}

// Observer forwards runner progress into a Bubble Tea program.
type Observer struct {
	send func(tea.Msg)
}

// NewObserver creates an Observer that delivers messages through send.
func NewObserver(send func(tea.Msg)) Observer {
	return Observer{send: send}
}

// StepStarted implements sequence.Observer.
func (o Observer) StepStarted(id sequence.StepID) {
	o.send(StepStartMsg{StepID: id})
}

// StepFinished implements sequence.Observer.
func (o Observer) StepFinished(result sequence.StepResult) {
	o.send(StepFinishedMsg{Result: result})
}

var _ sequence.Observer = Observer{}

// applyModel is the Bubble Tea model for a provisioning run.
type applyModel struct {
	title     string
	total     int
	finished  int
	failed    int
	current   sequence.StepID
	running   bool
	results   []sequence.StepResult
	spinner   spinner.Model
	styles    Styles
	width     int
	done      bool
	cancelled bool
	runErr    error
}

func newApplyModel(title string, total int) applyModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	styles := DefaultStyles()
	s.Style = styles.Spinner

	return applyModel{
		title:   title,
		total:   total,
		spinner: s,
		styles:  styles,
		width:   80,
		results: make([]sequence.StepResult, 0, total),
	}
}

// Init starts the spinner.
func (m applyModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages.
func (m applyModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			m.cancelled = true
			return m, tea.Quit
		}

	case StepStartMsg:
		m.current = msg.StepID
		m.running = true
		return m, nil

	case StepFinishedMsg:
		m.results = append(m.results, msg.Result)
		m.finished++
		m.running = false
		if msg.Result.Outcome() == sequence.OutcomeFailed {
			m.failed++
		}
		return m, nil

	case RunDoneMsg:
		m.done = true
		m.running = false
		m.runErr = msg.Err
		if msg.Report != nil {
			m.results = msg.Report.Results
			m.finished = len(msg.Report.Results)
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the model.
func (m applyModel) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render(m.title))
	b.WriteString("\n\n")

	if m.total == 0 {
		b.WriteString(m.styles.Help.Render("Nothing to do: the manifest has no steps."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(progressBar(m.styles.ProgressBar, 40, m.percent()))
	b.WriteString("\n\n")

	status := fmt.Sprintf("Progress: %d/%d steps", m.finished, m.total)
	if m.failed > 0 {
		status += fmt.Sprintf(" (%d failed)", m.failed)
	}
	b.WriteString(m.styles.Help.Render(status))
	b.WriteString("\n\n")

	if m.running && !m.done {
		fmt.Fprintf(&b, "%s %s\n\n", m.spinner.View(), m.styles.Info.Render(m.current.String()))
	}

	start := 0
	if len(m.results) > recentResults && !m.done {
		start = len(m.results) - recentResults
	}
	for _, r := range m.results[start:] {
		fmt.Fprintf(&b, "  %s %s\n", m.symbol(r.Outcome()), r.StepID())
	}

	switch {
	case m.done && m.runErr == nil:
		b.WriteString("\n")
		b.WriteString(m.styles.Success.Render("Host provisioned."))
		b.WriteString("\n")
	case m.done:
		b.WriteString("\n")
		b.WriteString(m.styles.Error.Render("Run aborted: " + m.runErr.Error()))
		b.WriteString("\n")
	default:
		b.WriteString("\n")
		b.WriteString(m.styles.Help.Render("q or ctrl+c stops after the current step"))
	}
	return b.String()
}

func (m applyModel) percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.finished) / float64(m.total)
}

func (m applyModel) symbol(o sequence.Outcome) string {
	switch o {
	case sequence.OutcomeApplied:
		return m.styles.Success.Render("✓")
	case sequence.OutcomeSkipped:
		return m.styles.Help.Render("=")
	case sequence.OutcomePending:
		return m.styles.Info.Render("+")
	case sequence.OutcomeTolerated:
		return m.styles.Warning.Render("!")
	case sequence.OutcomeFailed:
		return m.styles.Error.Render("✗")
	default:
		return m.styles.Help.Render("-")
	}
}

// RunFunc runs a sequence, reporting progress to the observer.
type RunFunc func(ctx context.Context, obs sequence.Observer) (*sequence.Report, error)

// RunApply shows the progress of run in the terminal. Quitting the view
// cancels ctx, which the runner checks between steps; the function returns
// only after run has returned.
func RunApply(ctx context.Context, out io.Writer, title string, total int, run RunFunc) (*sequence.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newApplyModel(title, total), tea.WithContext(ctx), tea.WithOutput(out))

	type outcome struct {
		report *sequence.Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := run(ctx, NewObserver(p.Send))
		done <- outcome{report: report, err: err}
		p.Send(RunDoneMsg{Report: report, Err: err})
	}()

	final, uiErr := p.Run()
	cancel()
	res := <-done

	if m, ok := final.(applyModel); ok && m.cancelled && res.err != nil {
		return res.report, fmt.Errorf("%w: %w", ErrCancelled, res.err)
	}
	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return res.report, fmt.Errorf("progress view failed: %w", uiErr)
	}
	return res.report, res.err
}
