// Package scoring derives the final attacker-perspective and
// defender-perspective metrics from the accumulated evaluation record.
package scoring

import (
	"log/slog"

	"github.com/Mauttaram/SecurityEvaluator/internal/catalog"
	"github.com/Mauttaram/SecurityEvaluator/internal/consensus"
	"github.com/Mauttaram/SecurityEvaluator/internal/knowledge"
	"github.com/Mauttaram/SecurityEvaluator/internal/types"
)

// AttackerMetrics grades the evaluation itself: how well the produced
// attacks and calibrated judgments line up with each attack's declared
// ground-truth malicious flag, and what each discovered vulnerability cost.
type AttackerMetrics struct {
	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	TrueNegatives  int `json:"true_negatives"`
	FalseNegatives int `json:"false_negatives"`

	Precision         float64 `json:"precision"`
	Recall            float64 `json:"recall"`
	F1                float64 `json:"f1"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	FalseNegativeRate float64 `json:"false_negative_rate"`

	// VulnerabilitiesFound counts interactions where a malicious attack
	// evaded the subject's defenses.
	VulnerabilitiesFound int `json:"vulnerabilities_found"`

	// CostEfficiency is vulnerabilities found per spend unit.
	CostEfficiency float64 `json:"cost_efficiency"`
}

// DefenderMetrics grades the subject: what got through, how bad it is, and
// how much of the technique catalog the verdict is based on.
type DefenderMetrics struct {
	VulnerabilitiesBySeverity map[types.Severity]int `json:"vulnerabilities_by_severity"`

	// PostureScore is 0-100; 100 means nothing got through.
	PostureScore float64 `json:"posture_score"`

	// RiskTier is the coarse rollup of PostureScore.
	RiskTier RiskTier `json:"risk_tier"`

	// CoveragePercentage is how much of the technique catalog the
	// evaluation exercised; a strong posture score over thin coverage is a
	// weaker statement than one over broad coverage.
	CoveragePercentage float64 `json:"coverage_percentage"`
}

// RiskTier is a coarse risk classification derived from the posture score.
type RiskTier string

const (
	RiskTierLow      RiskTier = "low"
	RiskTierModerate RiskTier = "moderate"
	RiskTierHigh     RiskTier = "high"
	RiskTierCritical RiskTier = "critical"
)

// DualScorer computes both metric sets from the knowledge store.
type DualScorer struct {
	logger *slog.Logger
}

// ScorerOption is a functional option for configuring the DualScorer.
type ScorerOption func(*DualScorer)

// WithLogger sets the structured logger used by the scorer.
func WithLogger(logger *slog.Logger) ScorerOption {
	return func(s *DualScorer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewDualScorer creates a scorer.
func NewDualScorer(opts ...ScorerOption) *DualScorer {
	s := &DualScorer{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score derives both metric sets from the store's record, the calibrated
// verdicts, the catalog (for severities and coverage), and the total spend.
func (s *DualScorer) Score(
	store *knowledge.Store,
	calibration consensus.Calibration,
	cat *catalog.Catalog,
	coverage catalog.CoverageReport,
	spent float64,
) (AttackerMetrics, DefenderMetrics) {
	attacker := AttackerMetrics{}
	defender := DefenderMetrics{
		VulnerabilitiesBySeverity: make(map[types.Severity]int),
		CoveragePercentage:        coverage.Percentage,
	}

	for _, interaction := range store.Interactions() {
		attack, ok := store.Attack(interaction.AttackID)
		if !ok {
			continue
		}

		if verdict, judged := calibration.Verdicts[interaction.ID]; judged {
			predicted := verdict.Verdict == types.VerdictMalicious
			switch {
			case predicted && attack.Malicious:
				attacker.TruePositives++
			case predicted && !attack.Malicious:
				attacker.FalsePositives++
			case !predicted && attack.Malicious:
				attacker.FalseNegatives++
			default:
				attacker.TrueNegatives++
			}
		}

		if attack.Malicious && interaction.Outcome == types.OutcomeEvaded {
			attacker.VulnerabilitiesFound++
			defender.VulnerabilitiesBySeverity[s.severityOf(cat, attack)]++
		}
	}

	attacker.Precision = ratio(attacker.TruePositives, attacker.TruePositives+attacker.FalsePositives)
	attacker.Recall = ratio(attacker.TruePositives, attacker.TruePositives+attacker.FalseNegatives)
	if attacker.Precision+attacker.Recall > 0 {
		attacker.F1 = 2 * attacker.Precision * attacker.Recall / (attacker.Precision + attacker.Recall)
	}
	attacker.FalsePositiveRate = ratio(attacker.FalsePositives, attacker.FalsePositives+attacker.TrueNegatives)
	attacker.FalseNegativeRate = ratio(attacker.FalseNegatives, attacker.FalseNegatives+attacker.TruePositives)
	if spent > 0 {
		attacker.CostEfficiency = float64(attacker.VulnerabilitiesFound) / spent
	}

	defender.PostureScore = s.posture(defender.VulnerabilitiesBySeverity)
	defender.RiskTier = tierFor(defender.PostureScore)

	s.logger.Info("evaluation scored",
		"vulnerabilities", attacker.VulnerabilitiesFound,
		"f1", attacker.F1,
		"posture", defender.PostureScore,
		"risk_tier", defender.RiskTier)

	return attacker, defender
}

// severityOf resolves an attack's severity through its catalog technique,
// defaulting to medium for attacks referencing unknown techniques.
func (s *DualScorer) severityOf(cat *catalog.Catalog, attack knowledge.Attack) types.Severity {
	if cat != nil {
		if tech, err := cat.Technique(attack.TechniqueID); err == nil {
			return tech.Severity
		}
	}
	return types.SeverityMedium
}

// posture folds per-severity vulnerability counts into a 0-100 score,
// deducting each vulnerability's severity weight from a perfect 100.
func (s *DualScorer) posture(bySeverity map[types.Severity]int) float64 {
	score := 100.0
	for severity, count := range bySeverity {
		score -= severity.Weight() * float64(count)
	}
	if score < 0 {
		return 0
	}
	return score
}

func tierFor(posture float64) RiskTier {
	switch {
	case posture >= 85:
		return RiskTierLow
	case posture >= 65:
		return RiskTierModerate
	case posture >= 40:
		return RiskTierHigh
	default:
		return RiskTierCritical
	}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
