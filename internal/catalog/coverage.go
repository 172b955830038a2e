package catalog

import (
	"sort"
	"sync"
)

// DefaultFullCoverageThreshold is the attempt count at which a technique
// counts as fully covered.
const DefaultFullCoverageThreshold = 10

// CoverageReport summarizes how much of the catalog an evaluation has
// exercised so far.
type CoverageReport struct {
	Taxonomy         string   `json:"taxonomy"`
	TotalTechniques  int      `json:"total_techniques"`
	Covered          []string `json:"covered"`
	PartiallyCovered []string `json:"partially_covered"`
	Uncovered        []string `json:"uncovered"`
	Percentage       float64  `json:"percentage"`
}

// TechniquePriority ranks an under-covered technique for expansion.
type TechniquePriority struct {
	TechniqueID string  `json:"technique_id"`
	Priority    float64 `json:"priority"`
}

// CoverageTracker counts attack attempts per technique against the catalog.
// Partial credit accrues toward the full-coverage threshold; the coverage
// percentage treats a partially covered technique as its attempt fraction.
type CoverageTracker struct {
	mu        sync.Mutex
	catalog   *Catalog
	threshold int
	attempts  map[string]int
}

// NewCoverageTracker creates a tracker over the given catalog. A
// non-positive threshold uses DefaultFullCoverageThreshold.
func NewCoverageTracker(c *Catalog, threshold int) *CoverageTracker {
	if threshold <= 0 {
		threshold = DefaultFullCoverageThreshold
	}
	return &CoverageTracker{
		catalog:   c,
		threshold: threshold,
		attempts:  make(map[string]int),
	}
}

// RecordAttempt counts one attack attempt against a technique. Attempts on
// unknown techniques are ignored.
func (t *CoverageTracker) RecordAttempt(techniqueID string) {
	if _, ok := t.catalog.byID[techniqueID]; !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[techniqueID]++
}

// Report computes the current coverage breakdown. Coverage is monotone:
// attempts only accumulate, so the percentage never decreases across calls.
func (t *CoverageTracker) Report() CoverageReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	report := CoverageReport{
		Taxonomy:        t.catalog.Taxonomy,
		TotalTechniques: t.catalog.Size(),
	}

	var fractional float64
	for _, tech := range t.catalog.Techniques {
		n := t.attempts[tech.ID]
		switch {
		case n >= t.threshold:
			report.Covered = append(report.Covered, tech.ID)
			fractional += 1.0
		case n > 0:
			report.PartiallyCovered = append(report.PartiallyCovered, tech.ID)
			fractional += float64(n) / float64(t.threshold)
		default:
			report.Uncovered = append(report.Uncovered, tech.ID)
		}
	}

	sort.Strings(report.Covered)
	sort.Strings(report.PartiallyCovered)
	sort.Strings(report.Uncovered)
	if report.TotalTechniques > 0 {
		report.Percentage = 100.0 * fractional / float64(report.TotalTechniques)
	}
	return report
}

// Prioritize returns the top-n under-covered techniques ordered by priority:
// severity weight scaled by the remaining coverage gap. Fully covered
// techniques carry zero priority and are excluded.
func (t *CoverageTracker) Prioritize(n int) []TechniquePriority {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []TechniquePriority
	for _, tech := range t.catalog.Techniques {
		attempts := t.attempts[tech.ID]
		if attempts >= t.threshold {
			continue
		}
		gap := 1.0 - float64(attempts)/float64(t.threshold)
		out = append(out, TechniquePriority{
			TechniqueID: tech.ID,
			Priority:    tech.Severity.Weight() / 10.0 * gap,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].TechniqueID < out[j].TechniqueID
	})

	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
