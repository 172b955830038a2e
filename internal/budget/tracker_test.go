package budget

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mauttaram/SecurityEvaluator/internal/types"
)

func TestNewTracker_Validation(t *testing.T) {
	_, err := NewTracker(0, 10, nil)
	assert.Error(t, err)

	_, err = NewTracker(100, 0, nil)
	assert.Error(t, err)

	_, err = NewTracker(100, 10, map[types.Phase]float64{types.PhaseExploration: -1})
	assert.Error(t, err)
}

func TestTracker_PhaseEnvelopesSumToCap(t *testing.T) {
	tracker, err := NewTracker(100.0, 10, nil)
	require.NoError(t, err)

	var sum float64
	for _, envelope := range tracker.Snapshot().PhaseCaps {
		sum += envelope
	}
	assert.InDelta(t, 100.0, sum, 0.01)
}

func TestTracker_ExplorationWeightedHeaviest(t *testing.T) {
	tracker, err := NewTracker(100.0, 10, nil)
	require.NoError(t, err)

	caps := tracker.Snapshot().PhaseCaps
	for phase, envelope := range caps {
		if phase == types.PhaseExploration {
			continue
		}
		assert.GreaterOrEqual(t, caps[types.PhaseExploration], envelope)
	}
}

func TestTracker_RecordAccumulates(t *testing.T) {
	tracker, err := NewTracker(100.0, 10, nil)
	require.NoError(t, err)

	require.NoError(t, tracker.Record(types.PhaseExploration, 10.0))
	require.NoError(t, tracker.Record(types.PhaseExploration, 5.0))
	require.NoError(t, tracker.Record(types.PhaseExploitation, 20.0))

	snap := tracker.Snapshot()
	assert.Equal(t, 35.0, snap.Spent)
	assert.Equal(t, 15.0, snap.PhaseSpent[types.PhaseExploration])
	assert.Equal(t, 20.0, snap.PhaseSpent[types.PhaseExploitation])
}

func TestTracker_RecordRejectsNegativeCost(t *testing.T) {
	tracker, err := NewTracker(100.0, 10, nil)
	require.NoError(t, err)

	assert.Error(t, tracker.Record(types.PhaseExploration, -1.0))
}

func TestTracker_CanAffordPhaseEnvelope(t *testing.T) {
	tracker, err := NewTracker(100.0, 10, nil)
	require.NoError(t, err)

	assert.True(t, tracker.CanAfford(types.PhaseExploration, 5.0))

	// Exploration envelope is 40% of 100.
	require.NoError(t, tracker.Record(types.PhaseExploration, 38.0))
	assert.False(t, tracker.CanAfford(types.PhaseExploration, 5.0))
	assert.True(t, tracker.CanAfford(types.PhaseExploitation, 5.0))

	// A zero-cost probe reports headroom until the envelope is fully spent.
	assert.True(t, tracker.CanAfford(types.PhaseExploration, 0))
	require.NoError(t, tracker.Record(types.PhaseExploration, 2.0))
	assert.False(t, tracker.CanAfford(types.PhaseExploration, 0))
	assert.True(t, tracker.CanAfford(types.PhaseExploitation, 0))
}

func TestTracker_CanAffordAtTotalCap(t *testing.T) {
	tracker, err := NewTracker(10.0, 5, map[types.Phase]float64{
		types.PhaseExploration: 1.0,
	})
	require.NoError(t, err)

	require.NoError(t, tracker.Record(types.PhaseExploration, 10.0))
	assert.False(t, tracker.CanAfford(types.PhaseExploration, 0))
	assert.False(t, tracker.CanAfford(types.PhaseValidation, 0))
}

func TestTracker_Exhaustion(t *testing.T) {
	tracker, err := NewTracker(50.0, 10, nil)
	require.NoError(t, err)

	assert.False(t, tracker.Exhausted())
	require.NoError(t, tracker.Record(types.PhaseExploration, 20.0))
	require.NoError(t, tracker.Record(types.PhaseExploitation, 30.0))
	assert.True(t, tracker.Exhausted())
	assert.True(t, tracker.SpendExhausted())
}

func TestTracker_RoundCap(t *testing.T) {
	tracker, err := NewTracker(100.0, 3, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, tracker.StartRound())
	}

	err = tracker.StartRound()
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ROUNDS_EXCEEDED))
	assert.True(t, tracker.RoundsExhausted())
	assert.Equal(t, 3, tracker.RoundsUsed())
}

// Concurrently issued costed operations must sum exactly: no double
// counting, no lost updates.
func TestTracker_ConcurrentSpendIsExact(t *testing.T) {
	tracker, err := NewTracker(1e9, 10, nil)
	require.NoError(t, err)

	const goroutines = 32
	const spendsPer = 100
	const cost = 1.25

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < spendsPer; j++ {
				_ = tracker.Record(types.PhaseExploration, cost)
			}
		}()
	}
	wg.Wait()

	want := float64(goroutines*spendsPer) * cost
	assert.True(t, math.Abs(tracker.Spent()-want) < 1e-6,
		"spent %v, want %v", tracker.Spent(), want)
}
