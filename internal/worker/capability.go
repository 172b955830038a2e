// Package worker defines the capability model for evaluation workers and the
// registry the coalition former draws from. Workers declare capability tags
// that must agree with the contract interfaces they implement; the registry
// rejects a tag whose contract is missing at registration time.
package worker

// Capability is a verb a worker declares it can perform.
type Capability string

const (
	// CapabilityProbe explores the subject's decision boundaries.
	CapabilityProbe Capability = "probe"

	// CapabilityGenerate produces candidate attacks for a technique.
	CapabilityGenerate Capability = "generate"

	// CapabilityMutate derives attack variants from prior attacks.
	CapabilityMutate Capability = "mutate"

	// CapabilityValidate re-executes prior attacks to confirm reproducibility.
	CapabilityValidate Capability = "validate"

	// CapabilityJudge classifies interactions as malicious or benign.
	CapabilityJudge Capability = "judge"

	// CapabilityRemediate produces remediation guidance for confirmed
	// vulnerabilities.
	CapabilityRemediate Capability = "remediate"

	// CapabilityExecute runs attacks against the subject through the
	// isolated execution backend.
	CapabilityExecute Capability = "execute"
)

// String returns the string representation of the Capability.
func (c Capability) String() string {
	return string(c)
}

// IsValid checks if the capability is one of the known verbs.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityProbe, CapabilityGenerate, CapabilityMutate,
		CapabilityValidate, CapabilityJudge, CapabilityRemediate,
		CapabilityExecute:
		return true
	default:
		return false
	}
}

// CapabilitySet is an unordered set of capabilities.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether the set contains c.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Covers reports whether the set contains every capability in required.
func (s CapabilitySet) Covers(required []Capability) bool {
	for _, c := range required {
		if !s.Has(c) {
			return false
		}
	}
	return true
}
