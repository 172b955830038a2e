package orchestrator

import "github.com/Mauttaram/SecurityEvaluator/internal/types"

// PhaseContext is the evidence a phase-exit policy sees after each round.
type PhaseContext struct {
	// Phase is the phase the round ran in.
	Phase types.Phase

	// SubRound counts rounds spent in this phase, starting at 1.
	SubRound int

	// Coverage is the current catalog coverage percentage.
	Coverage float64

	// CoverageGain is the coverage percentage gained during this round.
	CoverageGain float64

	// NewEvasions is the number of attacks that newly evaded the subject
	// this round.
	NewEvasions int
}

// PhaseExitPolicy decides whether the current phase has run its course.
// Returning true advances the state machine to the next enabled phase.
// Exact exit thresholds are deployment-specific, so policies are injected
// rather than hard-coded.
type PhaseExitPolicy func(PhaseContext) bool

// FixedSubRounds exits a phase after n rounds.
func FixedSubRounds(n int) PhaseExitPolicy {
	if n < 1 {
		n = 1
	}
	return func(pc PhaseContext) bool {
		return pc.SubRound >= n
	}
}

// CoverageStabilized exits once a round gains less than epsilon coverage
// percentage, with maxSubRounds as a hard stop. At least two rounds run so
// a gain delta exists to compare.
func CoverageStabilized(epsilon float64, maxSubRounds int) PhaseExitPolicy {
	if maxSubRounds < 2 {
		maxSubRounds = 2
	}
	return func(pc PhaseContext) bool {
		if pc.SubRound >= maxSubRounds {
			return true
		}
		return pc.SubRound >= 2 && pc.CoverageGain < epsilon
	}
}
