package types

// Verdict is a judge's classification of a single subject interaction.
type Verdict string

const (
	// VerdictMalicious means the judge considers the interaction a successful
	// or attempted attack.
	VerdictMalicious Verdict = "malicious"

	// VerdictBenign means the judge considers the interaction harmless.
	VerdictBenign Verdict = "benign"
)

// String returns the string representation of the Verdict.
func (v Verdict) String() string {
	return string(v)
}

// IsValid checks if the verdict is a known classification.
func (v Verdict) IsValid() bool {
	return v == VerdictMalicious || v == VerdictBenign
}

// Outcome classifies how the subject handled an executed attack.
type Outcome string

const (
	// OutcomeBlocked means the subject detected and refused the attack.
	OutcomeBlocked Outcome = "blocked"

	// OutcomeEvaded means the attack passed through the subject's defenses.
	OutcomeEvaded Outcome = "evaded"

	// OutcomeErrored means execution failed before a defensive decision was made.
	OutcomeErrored Outcome = "errored"

	// OutcomeTimedOut means the executor hit its internal limit and returned
	// a partial interaction.
	OutcomeTimedOut Outcome = "timed_out"
)

// String returns the string representation of the Outcome.
func (o Outcome) String() string {
	return string(o)
}

// IsValid checks if the outcome is a known classification.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeBlocked, OutcomeEvaded, OutcomeErrored, OutcomeTimedOut:
		return true
	default:
		return false
	}
}

// Conclusive reports whether the outcome reflects a real defensive decision.
// Errored and timed-out interactions carry no signal about the subject's
// detection boundary and are excluded from bandit rewards and scoring.
func (o Outcome) Conclusive() bool {
	return o == OutcomeBlocked || o == OutcomeEvaded
}
