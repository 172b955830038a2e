package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mauttaram/SecurityEvaluator/internal/catalog"
	"github.com/Mauttaram/SecurityEvaluator/internal/consensus"
	"github.com/Mauttaram/SecurityEvaluator/internal/knowledge"
	"github.com/Mauttaram/SecurityEvaluator/internal/types"
)

const scoringCatalogYAML = `
taxonomy: TEST
techniques:
  - {id: T-CRIT, name: critical one, category: sqli, severity: critical}
  - {id: T-LOW, name: low one, category: xss, severity: low}
`

type fixture struct {
	store       *knowledge.Store
	calibration consensus.Calibration
}

func newFixture() *fixture {
	return &fixture{
		store: knowledge.NewStore(),
		calibration: consensus.Calibration{
			Verdicts: make(map[types.ID]consensus.ConsensusVerdict),
		},
	}
}

// record appends an attack and its interaction, plus a calibrated verdict.
func (f *fixture) record(t *testing.T, techniqueID string, malicious bool, outcome types.Outcome, verdict types.Verdict, cost float64) {
	t.Helper()

	attack := knowledge.Attack{
		ID:          types.NewID(),
		Payload:     "payload",
		TechniqueID: techniqueID,
		Category:    "cat",
		Malicious:   malicious,
		CreatedBy:   types.NewID(),
		Phase:       types.PhaseExploration,
	}
	require.NoError(t, f.store.AppendAttack(attack))

	interaction := knowledge.Interaction{
		ID:       types.NewID(),
		AttackID: attack.ID,
		Outcome:  outcome,
		Cost:     cost,
	}
	require.NoError(t, f.store.AppendInteraction(interaction))

	f.calibration.Verdicts[interaction.ID] = consensus.ConsensusVerdict{
		InteractionID: interaction.ID,
		Verdict:       verdict,
		Confidence:    0.9,
		Corroboration: 2,
	}
}

func scoringCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Load([]byte(scoringCatalogYAML))
	require.NoError(t, err)
	return c
}

func TestDualScorer_ConfusionMatrix(t *testing.T) {
	f := newFixture()
	// TP: malicious attack judged malicious.
	f.record(t, "T-CRIT", true, types.OutcomeBlocked, types.VerdictMalicious, 1)
	// FN: malicious attack judged benign.
	f.record(t, "T-CRIT", true, types.OutcomeBlocked, types.VerdictBenign, 1)
	// FP: benign attack judged malicious.
	f.record(t, "T-LOW", false, types.OutcomeBlocked, types.VerdictMalicious, 1)
	// TN: benign attack judged benign.
	f.record(t, "T-LOW", false, types.OutcomeBlocked, types.VerdictBenign, 1)

	attacker, _ := NewDualScorer().Score(f.store, f.calibration, scoringCatalog(t), catalog.CoverageReport{}, 4)

	assert.Equal(t, 1, attacker.TruePositives)
	assert.Equal(t, 1, attacker.FalsePositives)
	assert.Equal(t, 1, attacker.TrueNegatives)
	assert.Equal(t, 1, attacker.FalseNegatives)
	assert.InDelta(t, 0.5, attacker.Precision, 1e-9)
	assert.InDelta(t, 0.5, attacker.Recall, 1e-9)
	assert.InDelta(t, 0.5, attacker.F1, 1e-9)
	assert.InDelta(t, 0.5, attacker.FalsePositiveRate, 1e-9)
	assert.InDelta(t, 0.5, attacker.FalseNegativeRate, 1e-9)
}

func TestDualScorer_CostEfficiency(t *testing.T) {
	f := newFixture()
	f.record(t, "T-CRIT", true, types.OutcomeEvaded, types.VerdictMalicious, 5)
	f.record(t, "T-CRIT", true, types.OutcomeEvaded, types.VerdictMalicious, 5)

	attacker, _ := NewDualScorer().Score(f.store, f.calibration, scoringCatalog(t), catalog.CoverageReport{}, 10)

	assert.Equal(t, 2, attacker.VulnerabilitiesFound)
	assert.InDelta(t, 0.2, attacker.CostEfficiency, 1e-9)
}

func TestDualScorer_ZeroSpendHasZeroEfficiency(t *testing.T) {
	f := newFixture()
	attacker, _ := NewDualScorer().Score(f.store, f.calibration, scoringCatalog(t), catalog.CoverageReport{}, 0)
	assert.Equal(t, 0.0, attacker.CostEfficiency)
}

func TestDualScorer_DefenderSeverityCounts(t *testing.T) {
	f := newFixture()
	f.record(t, "T-CRIT", true, types.OutcomeEvaded, types.VerdictMalicious, 1)
	f.record(t, "T-LOW", true, types.OutcomeEvaded, types.VerdictMalicious, 1)
	// Blocked malicious attack is not a vulnerability.
	f.record(t, "T-CRIT", true, types.OutcomeBlocked, types.VerdictMalicious, 1)

	_, defender := NewDualScorer().Score(f.store, f.calibration, scoringCatalog(t), catalog.CoverageReport{}, 3)

	assert.Equal(t, 1, defender.VulnerabilitiesBySeverity[types.SeverityCritical])
	assert.Equal(t, 1, defender.VulnerabilitiesBySeverity[types.SeverityLow])
	// 100 - 10 (critical) - 2.5 (low).
	assert.InDelta(t, 87.5, defender.PostureScore, 1e-9)
	assert.Equal(t, RiskTierLow, defender.RiskTier)
}

func TestDualScorer_PostureFloorsAtZero(t *testing.T) {
	f := newFixture()
	for i := 0; i < 12; i++ {
		f.record(t, "T-CRIT", true, types.OutcomeEvaded, types.VerdictMalicious, 1)
	}

	_, defender := NewDualScorer().Score(f.store, f.calibration, scoringCatalog(t), catalog.CoverageReport{}, 12)

	assert.Equal(t, 0.0, defender.PostureScore)
	assert.Equal(t, RiskTierCritical, defender.RiskTier)
}

func TestDualScorer_RiskTiers(t *testing.T) {
	assert.Equal(t, RiskTierLow, tierFor(92))
	assert.Equal(t, RiskTierLow, tierFor(85))
	assert.Equal(t, RiskTierModerate, tierFor(70))
	assert.Equal(t, RiskTierHigh, tierFor(45))
	assert.Equal(t, RiskTierCritical, tierFor(10))
}

func TestDualScorer_UnknownTechniqueDefaultsToMedium(t *testing.T) {
	f := newFixture()
	f.record(t, "T-UNKNOWN", true, types.OutcomeEvaded, types.VerdictMalicious, 1)

	_, defender := NewDualScorer().Score(f.store, f.calibration, scoringCatalog(t), catalog.CoverageReport{}, 1)
	assert.Equal(t, 1, defender.VulnerabilitiesBySeverity[types.SeverityMedium])
}

func TestDualScorer_CoveragePassesThrough(t *testing.T) {
	f := newFixture()
	_, defender := NewDualScorer().Score(f.store, f.calibration, scoringCatalog(t),
		catalog.CoverageReport{Percentage: 37.5}, 1)
	assert.Equal(t, 37.5, defender.CoveragePercentage)
}

func TestDualScorer_UnjudgedInteractionsExcludedFromConfusion(t *testing.T) {
	f := newFixture()
	attack := knowledge.Attack{
		ID: types.NewID(), Payload: "p", TechniqueID: "T-CRIT",
		Malicious: true, CreatedBy: types.NewID(), Phase: types.PhaseExploration,
	}
	require.NoError(t, f.store.AppendAttack(attack))
	require.NoError(t, f.store.AppendInteraction(knowledge.Interaction{
		ID: types.NewID(), AttackID: attack.ID, Outcome: types.OutcomeEvaded, Cost: 1,
	}))

	attacker, _ := NewDualScorer().Score(f.store, f.calibration, scoringCatalog(t), catalog.CoverageReport{}, 1)

	assert.Zero(t, attacker.TruePositives+attacker.FalsePositives+attacker.TrueNegatives+attacker.FalseNegatives)
	// Still counted as a vulnerability from the execution record.
	assert.Equal(t, 1, attacker.VulnerabilitiesFound)
}
