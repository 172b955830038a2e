package types

// Phase identifies a stage of the evaluation state machine.
// Rounds begin in PhaseExploration and advance strictly forward; a phase is
// never re-entered once exited.
type Phase string

const (
	// PhaseExploration probes the subject broadly to map weak decision boundaries.
	PhaseExploration Phase = "exploration"

	// PhaseExploitation concentrates attack generation on categories that
	// exploration found promising.
	PhaseExploitation Phase = "exploitation"

	// PhaseValidation re-executes prior successful attacks to confirm
	// reproducibility and filter flukes.
	PhaseValidation Phase = "validation"

	// PhaseConsensus gathers additional judgments for under-corroborated
	// interactions before final calibration.
	PhaseConsensus Phase = "consensus"

	// PhaseRemediation derives remediation guidance for confirmed vulnerabilities.
	PhaseRemediation Phase = "remediation"

	// PhaseTerminated is the terminal state; no further rounds run.
	PhaseTerminated Phase = "terminated"
)

// String returns the string representation of the Phase.
func (p Phase) String() string {
	return string(p)
}

// IsValid checks if the phase is one of the known evaluation phases.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseExploration, PhaseExploitation, PhaseValidation,
		PhaseConsensus, PhaseRemediation, PhaseTerminated:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the phase is the terminal state.
func (p Phase) IsTerminal() bool {
	return p == PhaseTerminated
}

// AllPhases returns the non-terminal phases in state-machine order.
func AllPhases() []Phase {
	return []Phase{
		PhaseExploration,
		PhaseExploitation,
		PhaseValidation,
		PhaseConsensus,
		PhaseRemediation,
	}
}
