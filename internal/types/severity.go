package types

// Severity represents the severity of a technique or confirmed vulnerability.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// String returns the string representation of the Severity.
func (s Severity) String() string {
	return string(s)
}

// IsValid checks if the severity is a known level.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	default:
		return false
	}
}

// Weight returns the numeric weight used for posture scoring and coverage
// prioritization. Higher is more severe.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 10.0
	case SeverityHigh:
		return 7.5
	case SeverityMedium:
		return 5.0
	case SeverityLow:
		return 2.5
	case SeverityInfo:
		return 1.0
	default:
		return 0.0
	}
}
