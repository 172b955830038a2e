// Package budget tracks spend and round consumption for one evaluation run.
// The tracker is the single budget authority: all costed operations report
// through Record, and the orchestrator consults Exhausted between and within
// rounds.
package budget

import (
	"fmt"
	"sync"

	"github.com/Mauttaram/SecurityEvaluator/internal/types"
)

// DefaultPhaseFractions splits the total cap into per-phase envelopes.
// Exploration is weighted heaviest so the allocator sees a broad sample of
// categories before exploitation narrows in.
var DefaultPhaseFractions = map[types.Phase]float64{
	types.PhaseExploration:  0.40,
	types.PhaseExploitation: 0.35,
	types.PhaseValidation:   0.15,
	types.PhaseConsensus:    0.05,
	types.PhaseRemediation:  0.05,
}

// Tracker enforces the cost and round budget for one evaluation run.
// Spent is monotonically non-decreasing; there is no refund path.
type Tracker struct {
	mu sync.Mutex

	cap        float64
	spent      float64
	roundsCap  int
	roundsUsed int

	phaseCaps  map[types.Phase]float64
	phaseSpent map[types.Phase]float64
}

// Snapshot is a point-in-time copy of budget state.
type Snapshot struct {
	Cap        float64                   `json:"cap"`
	Spent      float64                   `json:"spent"`
	RoundsCap  int                       `json:"rounds_cap"`
	RoundsUsed int                       `json:"rounds_used"`
	PhaseSpent map[types.Phase]float64   `json:"phase_spent"`
	PhaseCaps  map[types.Phase]float64   `json:"phase_caps"`
}

// NewTracker creates a budget tracker with the given total cap and round cap.
// Phase envelopes follow fractions; nil fractions use DefaultPhaseFractions.
func NewTracker(cap float64, roundsCap int, fractions map[types.Phase]float64) (*Tracker, error) {
	if cap <= 0 {
		return nil, fmt.Errorf("budget cap must be positive, got %v", cap)
	}
	if roundsCap <= 0 {
		return nil, fmt.Errorf("rounds cap must be positive, got %d", roundsCap)
	}
	if fractions == nil {
		fractions = DefaultPhaseFractions
	}

	var sum float64
	for _, f := range fractions {
		if f < 0 {
			return nil, fmt.Errorf("phase fraction cannot be negative, got %v", f)
		}
		sum += f
	}
	if sum <= 0 {
		return nil, fmt.Errorf("phase fractions must sum to a positive value")
	}

	phaseCaps := make(map[types.Phase]float64, len(fractions))
	for phase, f := range fractions {
		phaseCaps[phase] = cap * f / sum
	}

	return &Tracker{
		cap:        cap,
		roundsCap:  roundsCap,
		phaseCaps:  phaseCaps,
		phaseSpent: make(map[types.Phase]float64),
	}, nil
}

// Record adds cost against phase's envelope. Spent only grows; recording
// past the cap is allowed (the overshoot of an in-flight operation is real
// spend) and simply trips Exhausted.
func (t *Tracker) Record(phase types.Phase, cost float64) error {
	if cost < 0 {
		return fmt.Errorf("cost cannot be negative, got %v", cost)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.spent += cost
	t.phaseSpent[phase] += cost
	return nil
}

// CanAfford reports whether phase's envelope still covers cost. A phase with
// no configured envelope draws directly from the remaining total. A zero
// cost probes for remaining headroom: it reports false once the envelope or
// the total cap is fully consumed.
func (t *Tracker) CanAfford(phase types.Phase, cost float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.spent >= t.cap || t.spent+cost > t.cap {
		return false
	}
	phaseCap, ok := t.phaseCaps[phase]
	if !ok {
		return true
	}
	return t.phaseSpent[phase] < phaseCap && t.phaseSpent[phase]+cost <= phaseCap
}

// StartRound consumes one round from the round budget. It returns an error
// carrying ROUNDS_EXCEEDED when the cap has been reached.
func (t *Tracker) StartRound() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.roundsUsed >= t.roundsCap {
		return types.NewError(types.ROUNDS_EXCEEDED,
			fmt.Sprintf("round cap %d reached", t.roundsCap))
	}
	t.roundsUsed++
	return nil
}

// Exhausted reports whether the total spend or round budget is used up.
func (t *Tracker) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent >= t.cap || t.roundsUsed >= t.roundsCap
}

// SpendExhausted reports whether the cost budget specifically is used up.
func (t *Tracker) SpendExhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent >= t.cap
}

// RoundsExhausted reports whether the round budget specifically is used up.
func (t *Tracker) RoundsExhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.roundsUsed >= t.roundsCap
}

// Spent returns the total recorded spend.
func (t *Tracker) Spent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent
}

// RoundsUsed returns the number of rounds consumed so far.
func (t *Tracker) RoundsUsed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.roundsUsed
}

// Snapshot returns a copy of the current budget state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	phaseSpent := make(map[types.Phase]float64, len(t.phaseSpent))
	for phase, v := range t.phaseSpent {
		phaseSpent[phase] = v
	}
	phaseCaps := make(map[types.Phase]float64, len(t.phaseCaps))
	for phase, v := range t.phaseCaps {
		phaseCaps[phase] = v
	}

	return Snapshot{
		Cap:        t.cap,
		Spent:      t.spent,
		RoundsCap:  t.roundsCap,
		RoundsUsed: t.roundsUsed,
		PhaseSpent: phaseSpent,
		PhaseCaps:  phaseCaps,
	}
}
