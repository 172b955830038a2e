// Package coalition assembles temporary, capability-matched worker teams for
// one phase of one evaluation round. Coalitions are created at phase entry,
// dissolved at phase exit, and never persisted beyond a round.
package coalition

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Mauttaram/SecurityEvaluator/internal/types"
	"github.com/Mauttaram/SecurityEvaluator/internal/worker"
)

// Coalition is a temporary worker team covering a phase's required
// capabilities.
type Coalition struct {
	ID         types.ID            `json:"id"`
	Phase      types.Phase         `json:"phase"`
	MemberIDs  []types.ID          `json:"member_ids"`
	Required   []worker.Capability `json:"required"`
	FormedAt   time.Time           `json:"formed_at"`
	DissolvedAt time.Time          `json:"dissolved_at,omitempty"`

	members []worker.Worker
}

// Members returns the coalition's workers.
func (c *Coalition) Members() []worker.Worker {
	return c.members
}

// Active reports whether the coalition has not been dissolved yet.
func (c *Coalition) Active() bool {
	return c.DissolvedAt.IsZero()
}

// Former assembles minimal sufficient coalitions from the worker registry.
type Former struct {
	registry *worker.Registry
	logger   *slog.Logger
}

// FormerOption is a functional option for configuring the Former.
type FormerOption func(*Former)

// WithLogger sets the structured logger used by the former.
func WithLogger(logger *slog.Logger) FormerOption {
	return func(f *Former) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFormer creates a coalition former backed by the given registry.
func NewFormer(registry *worker.Registry, opts ...FormerOption) *Former {
	f := &Former{
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Form assembles a minimal covering worker set for the phase's required
// capabilities. Selection is greedy: each step picks the idle worker
// covering the most still-uncovered capabilities, breaking ties by lowest
// completed-assignment load, then by name for determinism. It fails with a
// CAPABILITY_INSUFFICIENT error when the idle workers cannot cover the
// requirement.
func (f *Former) Form(phase types.Phase, required []worker.Capability) (*Coalition, error) {
	if len(required) == 0 {
		return nil, fmt.Errorf("required capabilities cannot be empty")
	}

	idle := f.registry.Idle()

	uncovered := worker.NewCapabilitySet(required...)
	var members []worker.Worker
	taken := make(map[types.ID]bool)

	for len(uncovered) > 0 {
		best := f.pickBest(idle, taken, uncovered)
		if best == nil {
			return nil, types.NewError(types.CAPABILITY_INSUFFICIENT,
				fmt.Sprintf("no idle worker combination covers %v for phase %s", missing(uncovered), phase))
		}

		members = append(members, best)
		taken[best.ID()] = true
		for _, c := range best.Capabilities() {
			delete(uncovered, c)
		}
	}

	ids := make([]types.ID, len(members))
	for i, m := range members {
		ids[i] = m.ID()
	}
	if err := f.registry.Acquire(ids); err != nil {
		return nil, fmt.Errorf("failed to acquire coalition members: %w", err)
	}

	coalition := &Coalition{
		ID:        types.NewID(),
		Phase:     phase,
		MemberIDs: ids,
		Required:  required,
		FormedAt:  time.Now(),
		members:   members,
	}

	f.logger.Debug("coalition formed",
		"coalition_id", coalition.ID,
		"phase", phase,
		"members", len(members))

	return coalition, nil
}

// Dissolve releases the coalition's workers back to the registry. Dissolving
// twice is a no-op.
func (f *Former) Dissolve(c *Coalition) {
	if c == nil || !c.Active() {
		return
	}
	c.DissolvedAt = time.Now()
	f.registry.Release(c.MemberIDs)

	f.logger.Debug("coalition dissolved",
		"coalition_id", c.ID,
		"phase", c.Phase)
}

// pickBest returns the idle worker covering the most uncovered capabilities.
// Workers contributing nothing are skipped. Ties break by lowest load, then
// name; idle is already name-sorted, so equal candidates resolve stably.
func (f *Former) pickBest(idle []worker.Worker, taken map[types.ID]bool, uncovered worker.CapabilitySet) worker.Worker {
	var best worker.Worker
	bestGain := 0
	bestLoad := 0

	for _, w := range idle {
		if taken[w.ID()] {
			continue
		}
		gain := 0
		for _, c := range w.Capabilities() {
			if uncovered.Has(c) {
				gain++
			}
		}
		if gain == 0 {
			continue
		}
		load := f.registry.Load(w.ID())
		if best == nil || gain > bestGain || (gain == bestGain && load < bestLoad) {
			best = w
			bestGain = gain
			bestLoad = load
		}
	}
	return best
}

func missing(set worker.CapabilitySet) []worker.Capability {
	out := make([]worker.Capability, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}
