package knowledge

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mauttaram/SecurityEvaluator/internal/types"
)

func newTestAttack() Attack {
	return Attack{
		ID:          types.NewID(),
		Payload:     "' OR 1=1--",
		TechniqueID: "T1190",
		Category:    "sql_injection",
		Malicious:   true,
		CreatedBy:   types.NewID(),
		Phase:       types.PhaseExploration,
		CreatedAt:   time.Now(),
	}
}

func TestStore_PutGet(t *testing.T) {
	store := NewStore()
	writer := types.NewID()

	store.Put("boundary/sql_injection", 0.42, writer)

	entry, ok := store.Get("boundary/sql_injection")
	require.True(t, ok)
	assert.Equal(t, 0.42, entry.Value)
	assert.Equal(t, writer, entry.Writer)
	assert.Equal(t, uint64(1), entry.Version)
}

func TestStore_GetAbsent(t *testing.T) {
	store := NewStore()

	_, ok := store.Get("missing")
	assert.False(t, ok)
}

func TestStore_PutBumpsVersion(t *testing.T) {
	store := NewStore()
	writer := types.NewID()

	store.Put("key", "first", writer)
	store.Put("key", "second", writer)

	entry, ok := store.Get("key")
	require.True(t, ok)
	assert.Equal(t, "second", entry.Value)
	assert.Equal(t, uint64(2), entry.Version)
}

func TestStore_CompareAndSwap(t *testing.T) {
	store := NewStore()
	writer := types.NewID()

	// Absent key requires zero expected version.
	assert.True(t, store.CompareAndSwap("key", 0, 1, writer))
	assert.False(t, store.CompareAndSwap("key", 0, 2, writer), "stale version must fail")
	assert.True(t, store.CompareAndSwap("key", 1, 2, writer))

	entry, _ := store.Get("key")
	assert.Equal(t, 2, entry.Value)
}

func TestStore_UpdateRetriesUnderContention(t *testing.T) {
	store := NewStore()

	const writers = 16
	const increments = 50

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			writer := types.NewID()
			for j := 0; j < increments; j++ {
				store.Update("counter", writer, func(current any) any {
					if current == nil {
						return 1
					}
					return current.(int) + 1
				})
			}
		}()
	}
	wg.Wait()

	entry, ok := store.Get("counter")
	require.True(t, ok)
	assert.Equal(t, writers*increments, entry.Value, "no update may be lost")
}

func TestStore_AppendAttackRejectsDuplicates(t *testing.T) {
	store := NewStore()
	attack := newTestAttack()

	require.NoError(t, store.AppendAttack(attack))
	err := store.AppendAttack(attack)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.STORE_CONFLICT))
}

func TestStore_AppendAttackRequiresKnownParent(t *testing.T) {
	store := NewStore()
	child := newTestAttack()
	child.ParentID = types.NewID()

	err := store.AppendAttack(child)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.STORE_CONFLICT))
}

func TestStore_MutationLineage(t *testing.T) {
	store := NewStore()
	parent := newTestAttack()
	require.NoError(t, store.AppendAttack(parent))

	child := newTestAttack()
	child.ParentID = parent.ID
	require.NoError(t, store.AppendAttack(child))

	stored, ok := store.Attack(child.ID)
	require.True(t, ok)
	assert.Equal(t, parent.ID, stored.ParentID)
}

func TestStore_AppendInteractionExactlyOncePerAttack(t *testing.T) {
	store := NewStore()
	attack := newTestAttack()
	require.NoError(t, store.AppendAttack(attack))

	first := Interaction{ID: types.NewID(), AttackID: attack.ID, Outcome: types.OutcomeBlocked, Cost: 1}
	require.NoError(t, store.AppendInteraction(first))

	second := Interaction{ID: types.NewID(), AttackID: attack.ID, Outcome: types.OutcomeEvaded, Cost: 1}
	err := store.AppendInteraction(second)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.STORE_CONFLICT))
}

func TestStore_AppendInteractionRequiresAttack(t *testing.T) {
	store := NewStore()

	interaction := Interaction{ID: types.NewID(), AttackID: types.NewID(), Outcome: types.OutcomeBlocked}
	err := store.AppendInteraction(interaction)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.STORE_CONFLICT))
}

func TestStore_AppendJudgmentRequiresInteraction(t *testing.T) {
	store := NewStore()

	judgment := Judgment{
		ID:            types.NewID(),
		InteractionID: types.NewID(),
		JudgeID:       types.NewID(),
		Verdict:       types.VerdictMalicious,
		Confidence:    0.9,
	}
	err := store.AppendJudgment(judgment)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.STORE_CONFLICT))
}

func TestStore_JudgmentsPerInteraction(t *testing.T) {
	store := NewStore()
	attack := newTestAttack()
	require.NoError(t, store.AppendAttack(attack))

	interaction := Interaction{ID: types.NewID(), AttackID: attack.ID, Outcome: types.OutcomeEvaded}
	require.NoError(t, store.AppendInteraction(interaction))

	for i := 0; i < 3; i++ {
		judgment := Judgment{
			ID:            types.NewID(),
			InteractionID: interaction.ID,
			JudgeID:       types.NewID(),
			Verdict:       types.VerdictMalicious,
			Confidence:    0.8,
		}
		require.NoError(t, store.AppendJudgment(judgment))
	}

	assert.Len(t, store.Judgments(interaction.ID), 3)
	assert.Empty(t, store.Judgments(types.NewID()))
}

func TestStore_ConcurrentIndependentKeys(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			store.Put(fmt.Sprintf("fact/%d", n), n, types.NewID())
		}(i)
	}
	wg.Wait()

	for i := 0; i < 32; i++ {
		entry, ok := store.Get(fmt.Sprintf("fact/%d", i))
		require.True(t, ok)
		assert.Equal(t, i, entry.Value)
	}
}

func TestStore_Trace(t *testing.T) {
	store := NewStore()
	attack := newTestAttack()
	require.NoError(t, store.AppendAttack(attack))

	interaction := Interaction{ID: types.NewID(), AttackID: attack.ID, Outcome: types.OutcomeEvaded, Cost: 2}
	require.NoError(t, store.AppendInteraction(interaction))

	judgment := Judgment{
		ID:            types.NewID(),
		InteractionID: interaction.ID,
		JudgeID:       types.NewID(),
		Verdict:       types.VerdictMalicious,
		Confidence:    0.9,
	}
	require.NoError(t, store.AppendJudgment(judgment))
	store.Put("boundary/sql_injection", 0.25, types.NewID())

	trace := store.Trace()
	assert.Len(t, trace.Attacks, 1)
	assert.Len(t, trace.Interactions, 1)
	assert.Len(t, trace.Judgments, 1)
	assert.Len(t, trace.Facts, 1)
	assert.Equal(t, 4, trace.Events)
}

func TestCursor_FiltersAndRestarts(t *testing.T) {
	store := NewStore()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendAttack(newTestAttack()))
	}
	store.Put("fact", 1, types.NewID())

	cursor := store.Query(func(event Event) bool { return event.Kind == EventAttack })

	first := cursor.Collect()
	assert.Len(t, first, 3)

	_, ok := cursor.Next()
	assert.False(t, ok, "drained cursor yields nothing")

	cursor.Restart()
	second := cursor.Collect()
	assert.Equal(t, first, second, "restart must replay the same events")
}

func TestCursor_SeesEventsAppendedAfterCreation(t *testing.T) {
	store := NewStore()
	cursor := store.Query(nil)

	_, ok := cursor.Next()
	assert.False(t, ok)

	require.NoError(t, store.AppendAttack(newTestAttack()))

	event, ok := cursor.Next()
	require.True(t, ok)
	assert.Equal(t, EventAttack, event.Kind)
}
