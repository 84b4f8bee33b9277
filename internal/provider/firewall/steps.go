package firewall

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/gpuprep/internal/domain/sequence"
	"github.com/felixgeelhaar/gpuprep/internal/ports"
	"github.com/felixgeelhaar/gpuprep/internal/provider/commandutil"
)

// AllowStep opens one port. The action is judged by its exit status alone.
type AllowStep struct {
	port   int
	proto  string
	id     sequence.StepID
	runner ports.CommandRunner
}

// NewAllowStep creates a new AllowStep.
func NewAllowStep(port int, proto string, runner ports.CommandRunner) *AllowStep {
	return &AllowStep{
		port:   port,
		proto:  proto,
		id:     sequence.MustNewStepID("firewall:allow:" + rule(port, proto)),
		runner: runner,
	}
}

// ID returns the step identifier.
func (s *AllowStep) ID() sequence.StepID {
	return s.id
}

// Requires returns the firewall tool.
func (s *AllowStep) Requires() []string {
	return []string{"sudo", "ufw"}
}

// BestEffortByDefault marks the step as tolerated on failure. Hosts behind
// a cloud security group often have ufw disabled or absent.
func (s *AllowStep) BestEffortByDefault() bool {
	return true
}

// Check looks for an existing ALLOW rule in ufw status. An inactive or
// unreadable firewall asks for the action.
func (s *AllowStep) Check(ctx sequence.RunContext) (sequence.StepStatus, error) {
	ok, result, err := commandutil.Probe(ctx.Context(), s.runner, "sudo", "ufw", "status")
	if err != nil || !ok {
		return sequence.StatusNeedsApply, nil
	}
	want := rule(s.port, s.proto)
	for _, line := range strings.Split(result.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == want && fields[1] == "ALLOW" {
			return sequence.StatusSatisfied, nil
		}
	}
	return sequence.StatusNeedsApply, nil
}

// Apply adds the allow rule.
func (s *AllowStep) Apply(ctx sequence.RunContext) error {
	_, err := commandutil.Exec(ctx.Context(), s.runner, "sudo", "ufw", "allow", rule(s.port, s.proto))
	return err
}

// Verify is satisfied by the exit status of Apply.
func (s *AllowStep) Verify(_ sequence.RunContext) error {
	return nil
}

// Explain provides a human-readable explanation.
func (s *AllowStep) Explain() sequence.Explanation {
	return sequence.NewExplanation(
		"allow "+rule(s.port, s.proto),
		fmt.Sprintf("Runs ufw allow %s so clients can reach the server.", rule(s.port, s.proto)),
	)
}

func rule(port int, proto string) string {
	return strconv.Itoa(port) + "/" + proto
}

var _ sequence.Step = (*AllowStep)(nil)
