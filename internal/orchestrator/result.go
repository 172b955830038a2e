package orchestrator

import (
	"time"

	"github.com/Mauttaram/SecurityEvaluator/internal/budget"
	"github.com/Mauttaram/SecurityEvaluator/internal/catalog"
	"github.com/Mauttaram/SecurityEvaluator/internal/consensus"
	"github.com/Mauttaram/SecurityEvaluator/internal/knowledge"
	"github.com/Mauttaram/SecurityEvaluator/internal/scoring"
	"github.com/Mauttaram/SecurityEvaluator/internal/types"
)

// TerminationReason explains why an evaluation run ended.
type TerminationReason string

const (
	// TerminationBudgetExhausted means the spend cap was reached.
	TerminationBudgetExhausted TerminationReason = "budget_exhausted"

	// TerminationRoundsExhausted means the round cap was reached.
	TerminationRoundsExhausted TerminationReason = "rounds_exhausted"

	// TerminationStabilized means the run converged: validation reported no
	// new successful attacks for the configured window, every phase ran its
	// course, or no coalition could be formed for any remaining phase.
	TerminationStabilized TerminationReason = "stabilized"
)

// String returns the string representation of the TerminationReason.
func (r TerminationReason) String() string {
	return string(r)
}

// EvaluationResult is the complete outcome of one evaluation run. It is
// always best-effort: early termination still scores whatever the knowledge
// store accumulated.
type EvaluationResult struct {
	// RunID identifies this evaluation run.
	RunID types.ID `json:"run_id"`

	// Subject names the system that was evaluated.
	Subject string `json:"subject"`

	// TerminationReason explains why the run ended.
	TerminationReason TerminationReason `json:"termination_reason"`

	// Attacker and Defender are the two scoring perspectives.
	Attacker scoring.AttackerMetrics `json:"attacker"`
	Defender scoring.DefenderMetrics `json:"defender"`

	// Calibration holds the consensus verdicts and per-judge reliability.
	Calibration consensus.Calibration `json:"calibration"`

	// Coverage reports catalog coverage at termination.
	Coverage catalog.CoverageReport `json:"coverage"`

	// Budget is the final spend and round accounting.
	Budget budget.Snapshot `json:"budget"`

	// Trace is the full knowledge store export.
	Trace knowledge.Trace `json:"trace"`

	// Remediations maps confirmed-vulnerable attack IDs to remediation notes.
	Remediations map[types.ID]string `json:"remediations,omitempty"`

	// Rounds is the number of rounds that actually ran.
	Rounds int `json:"rounds"`

	// Duration is the wall-clock time of the run.
	Duration time.Duration `json:"duration"`
}
