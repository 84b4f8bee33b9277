package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
)

func result(id string, outcome sequence.Outcome) sequence.StepResult {
	return sequence.NewStepResult(sequence.MustNewStepID(id), outcome, nil)
}

func TestApplyModel_Init(t *testing.T) {
	t.Parallel()

	model := newApplyModel("Provisioning", 3)
	assert.NotNil(t, model.Init(), "Init should start the spinner")
}

func TestApplyModel_EmptyRun(t *testing.T) {
	t.Parallel()

	view := newApplyModel("Provisioning", 0).View()
	assert.Contains(t, view, "Nothing to do")
}

func TestApplyModel_WindowResize(t *testing.T) {
	t.Parallel()

	next, _ := newApplyModel("Provisioning", 3).Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Equal(t, 120, next.(applyModel).width)
}

func TestApplyModel_Progress(t *testing.T) {
	t.Parallel()

	var model tea.Model = newApplyModel("Provisioning", 2)

	model, _ = model.Update(StepStartMsg{StepID: sequence.MustNewStepID("conda:env:vllm")})
	m := model.(applyModel)
	assert.True(t, m.running)
	assert.Contains(t, m.View(), "conda:env:vllm")
	assert.Contains(t, m.View(), "Progress: 0/2 steps")

	model, _ = model.Update(StepFinishedMsg{Result: result("conda:env:vllm", sequence.OutcomeApplied)})
	m = model.(applyModel)
	assert.False(t, m.running)
	assert.Equal(t, 1, m.finished)
	assert.InDelta(t, 0.5, m.percent(), 1e-9)

	model, _ = model.Update(StepFinishedMsg{Result: result("service:launch:vllm", sequence.OutcomeFailed)})
	m = model.(applyModel)
	assert.Equal(t, 1, m.failed)
	assert.Contains(t, m.View(), "(1 failed)")
}

func TestApplyModel_RunDone(t *testing.T) {
	t.Parallel()

	report := &sequence.Report{Results: []sequence.StepResult{
		result("gpu:require:1", sequence.OutcomeFailed),
		result("service:launch:vllm", sequence.OutcomeNotRun),
	}}
	model, cmd := newApplyModel("Provisioning", 2).Update(RunDoneMsg{Report: report, Err: errors.New("zero accelerators")})
	m := model.(applyModel)

	assert.NotNil(t, cmd, "done should quit the program")
	assert.True(t, m.done)
	assert.Equal(t, 2, m.finished)
	view := m.View()
	assert.Contains(t, view, "Run aborted: zero accelerators")
	assert.Contains(t, view, "service:launch:vllm")
}

func TestApplyModel_Cancel(t *testing.T) {
	t.Parallel()

	model, cmd := newApplyModel("Provisioning", 2).Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, model.(applyModel).cancelled)
	assert.NotNil(t, cmd)
}

func TestObserver_ForwardsMessages(t *testing.T) {
	t.Parallel()

	var got []tea.Msg
	obs := NewObserver(func(msg tea.Msg) { got = append(got, msg) })

	id := sequence.MustNewStepID("pip:index:global")
	obs.StepStarted(id)
	obs.StepFinished(result("pip:index:global", sequence.OutcomeSkipped))

	require.Len(t, got, 2)
	assert.Equal(t, StepStartMsg{StepID: id}, got[0])
	assert.Equal(t, sequence.OutcomeSkipped, got[1].(StepFinishedMsg).Result.Outcome())
}

func TestProgressBar(t *testing.T) {
	t.Parallel()

	styles := DefaultStyles()
	assert.Contains(t, progressBar(styles.ProgressBar, 12, 0.5), " 50%")
	assert.Contains(t, progressBar(styles.ProgressBar, 12, 2), "100%")
	assert.Contains(t, progressBar(styles.ProgressBar, 12, -1), "  0%")
}
