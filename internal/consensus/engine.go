// Package consensus combines independent, potentially unreliable judgments
// into calibrated verdicts with per-judge reliability estimates.
//
// The engine runs a Dawid-Skene style fixed-point iteration: given current
// judge weights it computes a weighted-majority verdict per interaction,
// then re-estimates each judge's reliability as its agreement rate with the
// emerging consensus, and repeats until the weights stabilize. No ground
// truth is needed; a miscalibrated or adversarial judge is down-weighted
// purely from disagreement.
package consensus

import (
	"log/slog"
	"math"
	"sort"

	"github.com/Mauttaram/SecurityEvaluator/internal/knowledge"
	"github.com/Mauttaram/SecurityEvaluator/internal/types"
)

const (
	// DefaultEpsilon is the convergence threshold on the largest per-judge
	// weight change between iterations.
	DefaultEpsilon = 1e-4

	// DefaultMaxIterations caps the fixed-point loop so calibration can
	// never spin unbounded on oscillating inputs.
	DefaultMaxIterations = 50

	// DefaultSoloDiscount scales the confidence of a verdict supported by a
	// single uncorroborated judgment.
	DefaultSoloDiscount = 0.5

	// minVote floors a judgment's vote strength so a zero-confidence
	// judgment still participates in the majority.
	minVote = 0.01
)

// ConsensusVerdict is the calibrated verdict for one interaction.
type ConsensusVerdict struct {
	InteractionID types.ID      `json:"interaction_id"`
	Verdict       types.Verdict `json:"verdict"`
	Confidence    float64       `json:"confidence"`
	Corroboration int           `json:"corroboration"`
}

// Calibration is the full output of one calibration pass: a verdict per
// interaction plus the final per-judge reliability weights.
type Calibration struct {
	Verdicts    map[types.ID]ConsensusVerdict `json:"verdicts"`
	Reliability map[types.ID]float64          `json:"reliability"`
	Iterations  int                           `json:"iterations"`
	Converged   bool                          `json:"converged"`
}

// Engine performs consensus calibration.
type Engine struct {
	epsilon       float64
	maxIterations int
	soloDiscount  float64
	logger        *slog.Logger
}

// EngineOption is a functional option for configuring the Engine.
type EngineOption func(*Engine)

// WithEpsilon sets the convergence threshold.
func WithEpsilon(epsilon float64) EngineOption {
	return func(e *Engine) {
		if epsilon > 0 {
			e.epsilon = epsilon
		}
	}
}

// WithMaxIterations caps the fixed-point iteration count.
func WithMaxIterations(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// WithSoloDiscount sets the confidence discount applied to verdicts backed
// by a single judgment.
func WithSoloDiscount(d float64) EngineOption {
	return func(e *Engine) {
		if d > 0 && d <= 1 {
			e.soloDiscount = d
		}
	}
}

// WithLogger sets the structured logger used by the engine.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a consensus engine with the given options.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		epsilon:       DefaultEpsilon,
		maxIterations: DefaultMaxIterations,
		soloDiscount:  DefaultSoloDiscount,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Calibrate runs the fixed-point iteration over all given judgments. The
// result is a deterministic, order-independent function of the judgment set:
// shuffling the input changes nothing.
func (e *Engine) Calibrate(judgments []knowledge.Judgment) Calibration {
	result := Calibration{
		Verdicts:    make(map[types.ID]ConsensusVerdict),
		Reliability: make(map[types.ID]float64),
	}
	if len(judgments) == 0 {
		result.Converged = true
		return result
	}

	byInteraction := make(map[types.ID][]knowledge.Judgment)
	for _, j := range judgments {
		byInteraction[j.InteractionID] = append(byInteraction[j.InteractionID], j)
	}

	// Canonical per-group order makes every floating-point sum below
	// independent of the order judgments arrived in.
	for _, group := range byInteraction {
		sort.Slice(group, func(i, k int) bool {
			if group[i].JudgeID != group[k].JudgeID {
				return group[i].JudgeID < group[k].JudgeID
			}
			return group[i].ID < group[k].ID
		})
	}

	// Uniform initial reliability.
	weights := make(map[types.ID]float64)
	for _, j := range judgments {
		weights[j.JudgeID] = 1.0
	}

	verdicts := make(map[types.ID]types.Verdict, len(byInteraction))
	for iter := 1; iter <= e.maxIterations; iter++ {
		// E-step: weighted-majority verdict per interaction under the
		// current weights.
		for interactionID, group := range byInteraction {
			verdicts[interactionID] = e.majority(group, weights)
		}

		// M-step: each judge's reliability becomes its agreement rate with
		// consensus, Laplace-smoothed so nobody hits exactly zero or one.
		agree := make(map[types.ID]int)
		total := make(map[types.ID]int)
		for interactionID, group := range byInteraction {
			for _, j := range group {
				total[j.JudgeID]++
				if j.Verdict == verdicts[interactionID] {
					agree[j.JudgeID]++
				}
			}
		}

		delta := 0.0
		for judgeID := range weights {
			next := (float64(agree[judgeID]) + 1) / (float64(total[judgeID]) + 2)
			delta = math.Max(delta, math.Abs(next-weights[judgeID]))
			weights[judgeID] = next
		}

		result.Iterations = iter
		if delta < e.epsilon {
			result.Converged = true
			break
		}
	}

	for judgeID, w := range weights {
		result.Reliability[judgeID] = w
	}
	for interactionID, group := range byInteraction {
		result.Verdicts[interactionID] = e.verdict(interactionID, group, verdicts[interactionID], weights)
	}

	e.logger.Debug("consensus calibrated",
		"interactions", len(byInteraction),
		"judges", len(weights),
		"iterations", result.Iterations,
		"converged", result.Converged)

	return result
}

// majority computes the weighted-majority verdict for one interaction's
// judgments. Ties resolve to malicious: an even split over a possible attack
// is flagged, not waved through.
func (e *Engine) majority(group []knowledge.Judgment, weights map[types.ID]float64) types.Verdict {
	malicious, benign := e.masses(group, weights)
	if benign > malicious {
		return types.VerdictBenign
	}
	return types.VerdictMalicious
}

// verdict assembles the final calibrated verdict and its agreement-based
// confidence for one interaction.
func (e *Engine) verdict(interactionID types.ID, group []knowledge.Judgment, v types.Verdict, weights map[types.ID]float64) ConsensusVerdict {
	malicious, benign := e.masses(group, weights)
	total := malicious + benign

	share := 1.0
	if total > 0 {
		if v == types.VerdictMalicious {
			share = malicious / total
		} else {
			share = benign / total
		}
	}

	confidence := share
	if len(group) == 1 {
		// A lone judgment has no corroboration; its verdict stands but its
		// confidence is discounted below any agreed multi-judge verdict.
		confidence = share * e.soloDiscount
	}

	return ConsensusVerdict{
		InteractionID: interactionID,
		Verdict:       v,
		Confidence:    confidence,
		Corroboration: len(group),
	}
}

// masses sums the weighted vote strength per verdict class. Vote strength is
// the judge's reliability weight scaled by the judgment's own confidence.
func (e *Engine) masses(group []knowledge.Judgment, weights map[types.ID]float64) (malicious, benign float64) {
	for _, j := range group {
		vote := weights[j.JudgeID] * math.Max(j.Confidence, minVote)
		if j.Verdict == types.VerdictMalicious {
			malicious += vote
		} else {
			benign += vote
		}
	}
	return malicious, benign
}
