package worker

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Mauttaram/SecurityEvaluator/internal/types"
)

// Registry manages worker registration, capability lookup, and assignment
// state. A worker belongs to at most one active coalition at a time; the
// coalition former acquires and releases workers exclusively through the
// registry.
type Registry struct {
	mu      sync.RWMutex
	workers map[types.ID]Worker
	busy    map[types.ID]bool
	load    map[types.ID]int // completed assignments, used for tie-breaking
}

// NewRegistry creates an empty worker registry.
func NewRegistry() *Registry {
	return &Registry{
		workers: make(map[types.ID]Worker),
		busy:    make(map[types.ID]bool),
		load:    make(map[types.ID]int),
	}
}

// Register adds a worker to the registry. Every declared capability must be
// backed by the matching contract interface; a tag without its contract forms
// coalitions that can never dispatch.
func (r *Registry) Register(w Worker) error {
	if w == nil {
		return fmt.Errorf("worker cannot be nil")
	}
	if w.ID().IsZero() {
		return fmt.Errorf("worker ID cannot be empty")
	}
	for _, c := range w.Capabilities() {
		if !c.IsValid() {
			return fmt.Errorf("worker %s declares unknown capability %q", w.Name(), c)
		}
		if !implementsContract(w, c) {
			return fmt.Errorf("worker %s declares capability %q without implementing its contract", w.Name(), c)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[w.ID()]; exists {
		return fmt.Errorf("worker %s is already registered", w.ID())
	}
	r.workers[w.ID()] = w
	return nil
}

// Unregister removes a worker. A worker in an active coalition cannot be
// removed.
func (r *Registry) Unregister(id types.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[id]; !exists {
		return types.NewError(types.WORKER_NOT_FOUND, fmt.Sprintf("worker %s not found", id))
	}
	if r.busy[id] {
		return types.NewError(types.WORKER_BUSY, fmt.Sprintf("worker %s is in an active coalition", id))
	}
	delete(r.workers, id)
	delete(r.load, id)
	return nil
}

// Get returns the worker with the given ID.
func (r *Registry) Get(id types.ID) (Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.workers[id]
	if !ok {
		return nil, types.NewError(types.WORKER_NOT_FOUND, fmt.Sprintf("worker %s not found", id))
	}
	return w, nil
}

// List returns all registered workers sorted by name.
func (r *Registry) List() []Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name() != out[j].Name() {
			return out[i].Name() < out[j].Name()
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

// Idle returns all workers not currently assigned to a coalition, sorted by
// name for deterministic formation.
func (r *Registry) Idle() []Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Worker, 0, len(r.workers))
	for id, w := range r.workers {
		if !r.busy[id] {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name() != out[j].Name() {
			return out[i].Name() < out[j].Name()
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

// Load returns the number of assignments the worker has completed.
func (r *Registry) Load(id types.ID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.load[id]
}

// Acquire marks the given workers as members of an active coalition.
// Acquisition is all-or-nothing: if any worker is missing or already busy,
// no worker is acquired.
func (r *Registry) Acquire(ids []types.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if _, ok := r.workers[id]; !ok {
			return types.NewError(types.WORKER_NOT_FOUND, fmt.Sprintf("worker %s not found", id))
		}
		if r.busy[id] {
			return types.NewError(types.WORKER_BUSY, fmt.Sprintf("worker %s is already in a coalition", id))
		}
	}
	for _, id := range ids {
		r.busy[id] = true
	}
	return nil
}

// Release frees the given workers and credits one completed assignment to
// each. Releasing an unacquired worker is a no-op.
func (r *Registry) Release(ids []types.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if r.busy[id] {
			r.busy[id] = false
			r.load[id]++
		}
	}
}

// Count returns the number of registered workers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// implementsContract reports whether w carries the contract interface
// matching the declared capability verb.
func implementsContract(w Worker, c Capability) bool {
	switch c {
	case CapabilityProbe:
		_, ok := w.(Prober)
		return ok
	case CapabilityGenerate:
		_, ok := w.(Generator)
		return ok
	case CapabilityMutate:
		_, ok := w.(Mutator)
		return ok
	case CapabilityExecute:
		_, ok := w.(SubjectExecutor)
		return ok
	case CapabilityJudge:
		_, ok := w.(Judge)
		return ok
	case CapabilityValidate:
		_, ok := w.(Validator)
		return ok
	case CapabilityRemediate:
		_, ok := w.(Remediator)
		return ok
	default:
		return false
	}
}
