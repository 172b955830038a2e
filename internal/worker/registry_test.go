package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mauttaram/SecurityEvaluator/internal/knowledge"
	"github.com/Mauttaram/SecurityEvaluator/internal/types"
)

// stubWorker implements every contract with no-op bodies so tests can
// declare any tag set.
type stubWorker struct {
	id   types.ID
	name string
	caps []Capability
}

func (w *stubWorker) ID() types.ID               { return w.id }
func (w *stubWorker) Name() string               { return w.name }
func (w *stubWorker) Capabilities() []Capability { return w.caps }

func (w *stubWorker) Probe(context.Context, string, string) (ProbeReport, error) {
	return ProbeReport{}, nil
}
func (w *stubWorker) Generate(context.Context, GenerationContext, string) ([]knowledge.Attack, error) {
	return nil, nil
}
func (w *stubWorker) Mutate(context.Context, knowledge.Attack, string) (knowledge.Attack, error) {
	return knowledge.Attack{}, nil
}
func (w *stubWorker) Execute(context.Context, knowledge.Attack) (knowledge.Interaction, error) {
	return knowledge.Interaction{}, nil
}
func (w *stubWorker) Judge(context.Context, knowledge.Interaction, knowledge.Attack) (knowledge.Judgment, error) {
	return knowledge.Judgment{}, nil
}
func (w *stubWorker) Validate(context.Context, knowledge.Attack, knowledge.Interaction) (knowledge.Interaction, error) {
	return knowledge.Interaction{}, nil
}
func (w *stubWorker) Remediate(context.Context, knowledge.Attack, knowledge.Interaction) (string, error) {
	return "", nil
}

func newStub(name string, caps ...Capability) *stubWorker {
	return &stubWorker{id: types.NewID(), name: name, caps: caps}
}

// bareWorker carries tags without any contract behind them.
type bareWorker struct {
	id   types.ID
	caps []Capability
}

func (w *bareWorker) ID() types.ID               { return w.id }
func (w *bareWorker) Name() string               { return "bare" }
func (w *bareWorker) Capabilities() []Capability { return w.caps }

func TestCapabilitySet_Covers(t *testing.T) {
	set := NewCapabilitySet(CapabilityGenerate, CapabilityJudge)

	assert.True(t, set.Has(CapabilityGenerate))
	assert.False(t, set.Has(CapabilityProbe))
	assert.True(t, set.Covers([]Capability{CapabilityGenerate}))
	assert.True(t, set.Covers(nil))
	assert.False(t, set.Covers([]Capability{CapabilityGenerate, CapabilityMutate}))
}

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()
	w := newStub("generator-0", CapabilityGenerate)

	require.NoError(t, registry.Register(w))
	assert.Equal(t, 1, registry.Count())

	err := registry.Register(w)
	assert.Error(t, err, "duplicate registration must fail")
}

func TestRegistry_RegisterRejectsUnknownCapability(t *testing.T) {
	registry := NewRegistry()
	w := newStub("weird", Capability("teleport"))

	assert.Error(t, registry.Register(w))
}

func TestRegistry_RegisterRejectsTagWithoutContract(t *testing.T) {
	registry := NewRegistry()
	w := &bareWorker{id: types.NewID(), caps: []Capability{CapabilityJudge}}

	err := registry.Register(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contract")
	assert.Equal(t, 0, registry.Count())
}

func TestRegistry_GetAndUnregister(t *testing.T) {
	registry := NewRegistry()
	w := newStub("judge-0", CapabilityJudge)
	require.NoError(t, registry.Register(w))

	got, err := registry.Get(w.ID())
	require.NoError(t, err)
	assert.Equal(t, w.ID(), got.ID())

	require.NoError(t, registry.Unregister(w.ID()))
	_, err = registry.Get(w.ID())
	assert.True(t, types.IsCode(err, types.WORKER_NOT_FOUND))
}

func TestRegistry_UnregisterBusyWorkerFails(t *testing.T) {
	registry := NewRegistry()
	w := newStub("prober-0", CapabilityProbe)
	require.NoError(t, registry.Register(w))
	require.NoError(t, registry.Acquire([]types.ID{w.ID()}))

	err := registry.Unregister(w.ID())
	assert.True(t, types.IsCode(err, types.WORKER_BUSY))
}

func TestRegistry_AcquireIsAllOrNothing(t *testing.T) {
	registry := NewRegistry()
	a := newStub("a", CapabilityGenerate)
	b := newStub("b", CapabilityJudge)
	require.NoError(t, registry.Register(a))
	require.NoError(t, registry.Register(b))

	require.NoError(t, registry.Acquire([]types.ID{a.ID()}))

	// Acquiring a busy worker together with an idle one must leave the idle
	// one untouched.
	err := registry.Acquire([]types.ID{b.ID(), a.ID()})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.WORKER_BUSY))

	idle := registry.Idle()
	require.Len(t, idle, 1)
	assert.Equal(t, b.ID(), idle[0].ID())
}

func TestRegistry_ReleaseCreditsLoad(t *testing.T) {
	registry := NewRegistry()
	w := newStub("mutator-0", CapabilityMutate)
	require.NoError(t, registry.Register(w))

	require.NoError(t, registry.Acquire([]types.ID{w.ID()}))
	registry.Release([]types.ID{w.ID()})

	assert.Equal(t, 1, registry.Load(w.ID()))
	assert.Len(t, registry.Idle(), 1)

	// Releasing an idle worker is a no-op, not a second credit.
	registry.Release([]types.ID{w.ID()})
	assert.Equal(t, 1, registry.Load(w.ID()))
}

func TestRegistry_IdleIsSortedByName(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(newStub("charlie", CapabilityJudge)))
	require.NoError(t, registry.Register(newStub("alpha", CapabilityJudge)))
	require.NoError(t, registry.Register(newStub("bravo", CapabilityJudge)))

	idle := registry.Idle()
	require.Len(t, idle, 3)
	assert.Equal(t, "alpha", idle[0].Name())
	assert.Equal(t, "bravo", idle[1].Name())
	assert.Equal(t, "charlie", idle[2].Name())
}
