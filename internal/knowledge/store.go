// Package knowledge implements the shared, mostly-append knowledge store that
// every evaluation component reads and writes through. The store is scoped to
// a single evaluation run: created at run entry, discarded at return.
package knowledge

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Mauttaram/SecurityEvaluator/internal/types"
)

// Store is the shared repository of attacks, interactions, judgments, and
// discovered facts. Appends to the event log are ordered and immutable;
// keyed entries support independent lock-free reads and per-key
// compare-and-swap updates so concurrent coalitions cannot lose writes.
type Store struct {
	mu sync.RWMutex

	attacks      map[types.ID]*Attack
	interactions map[types.ID]*Interaction // keyed by interaction ID
	byAttack     map[types.ID]types.ID     // attack ID -> interaction ID
	judgments    map[types.ID][]Judgment   // keyed by interaction ID
	entries      map[string]Entry

	// log is the append-only event log backing Query cursors. Entries are
	// never removed, so a cursor position stays valid for the store's lifetime.
	log []Event
	seq uint64

	logger *slog.Logger
}

// StoreOption is a functional option for configuring the Store.
type StoreOption func(*Store)

// WithLogger sets the structured logger used by the store.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty knowledge store for one evaluation run.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		attacks:      make(map[types.ID]*Attack),
		interactions: make(map[types.ID]*Interaction),
		byAttack:     make(map[types.ID]types.ID),
		judgments:    make(map[types.ID][]Judgment),
		entries:      make(map[string]Entry),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put writes a free-form fact under key, overwriting any previous value and
// bumping the entry version. Writes to distinct keys are independent.
func (s *Store) Put(key string, value any, writer types.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.entries[key]
	entry := Entry{
		Key:       key,
		Value:     value,
		Writer:    writer,
		Version:   prev.Version + 1,
		UpdatedAt: time.Now(),
	}
	s.entries[key] = entry
	s.appendLocked(Event{Kind: EventFact, Fact: &entry})
}

// Get returns the entry stored under key, if present.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	return entry, ok
}

// CompareAndSwap replaces the entry under key only if its current version
// matches expected. A zero expected version means the key must be absent.
// It returns false when another writer got there first; callers retry with
// the fresh value.
func (s *Store) CompareAndSwap(key string, expected uint64, value any, writer types.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entries[key]
	if !ok && expected != 0 {
		return false
	}
	if ok && current.Version != expected {
		return false
	}

	entry := Entry{
		Key:       key,
		Value:     value,
		Writer:    writer,
		Version:   expected + 1,
		UpdatedAt: time.Now(),
	}
	s.entries[key] = entry
	s.appendLocked(Event{Kind: EventFact, Fact: &entry})
	return true
}

// Update applies fn to the current value under key until a compare-and-swap
// succeeds. fn receives the current value (nil when absent) and returns the
// replacement. This is the single-writer-at-a-time path used for contended
// entries such as per-category statistics.
func (s *Store) Update(key string, writer types.ID, fn func(current any) any) Entry {
	for {
		current, ok := s.Get(key)
		var expected uint64
		var value any
		if ok {
			expected = current.Version
			value = current.Value
		}
		next := fn(value)
		if s.CompareAndSwap(key, expected, next, writer) {
			entry, _ := s.Get(key)
			return entry
		}
	}
}

// AppendAttack records a produced attack. Attacks are immutable; recording
// the same ID twice is an error.
func (s *Store) AppendAttack(attack Attack) error {
	if attack.ID.IsZero() {
		return fmt.Errorf("attack ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.attacks[attack.ID]; exists {
		return types.NewError(types.STORE_CONFLICT, fmt.Sprintf("attack %s already recorded", attack.ID))
	}
	if !attack.ParentID.IsZero() {
		if _, ok := s.attacks[attack.ParentID]; !ok {
			return types.NewError(types.STORE_CONFLICT, fmt.Sprintf("parent attack %s not recorded", attack.ParentID))
		}
	}

	stored := attack
	s.attacks[attack.ID] = &stored
	s.appendLocked(Event{Kind: EventAttack, Attack: &stored})
	return nil
}

// AppendInteraction records the execution outcome for an attack. Each attack
// has exactly one interaction; a second append for the same attack fails.
func (s *Store) AppendInteraction(interaction Interaction) error {
	if interaction.ID.IsZero() || interaction.AttackID.IsZero() {
		return fmt.Errorf("interaction and attack IDs cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attacks[interaction.AttackID]; !ok {
		return types.NewError(types.STORE_CONFLICT, fmt.Sprintf("interaction references unknown attack %s", interaction.AttackID))
	}
	if existing, ok := s.byAttack[interaction.AttackID]; ok {
		return types.NewError(types.STORE_CONFLICT,
			fmt.Sprintf("attack %s already has interaction %s", interaction.AttackID, existing))
	}

	stored := interaction
	s.interactions[interaction.ID] = &stored
	s.byAttack[interaction.AttackID] = interaction.ID
	s.appendLocked(Event{Kind: EventInteraction, Interaction: &stored})
	return nil
}

// AppendJudgment records one judge's verdict for an interaction.
func (s *Store) AppendJudgment(judgment Judgment) error {
	if judgment.ID.IsZero() || judgment.InteractionID.IsZero() || judgment.JudgeID.IsZero() {
		return fmt.Errorf("judgment, interaction, and judge IDs cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.interactions[judgment.InteractionID]; !ok {
		return types.NewError(types.STORE_CONFLICT,
			fmt.Sprintf("judgment references unknown interaction %s", judgment.InteractionID))
	}

	stored := judgment
	s.judgments[judgment.InteractionID] = append(s.judgments[judgment.InteractionID], stored)
	s.appendLocked(Event{Kind: EventJudgment, Judgment: &stored})
	return nil
}

// Attack returns the attack with the given ID.
func (s *Store) Attack(id types.ID) (Attack, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attack, ok := s.attacks[id]
	if !ok {
		return Attack{}, false
	}
	return *attack, true
}

// Interactions returns all recorded interactions in append order.
func (s *Store) Interactions() []Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Interaction, 0, len(s.interactions))
	for _, event := range s.log {
		if event.Kind == EventInteraction {
			out = append(out, *event.Interaction)
		}
	}
	return out
}

// Judgments returns all judgments recorded for one interaction.
func (s *Store) Judgments(interactionID types.ID) []Judgment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.judgments[interactionID]
	out := make([]Judgment, len(stored))
	copy(out, stored)
	return out
}

// AllJudgments returns every judgment in the store in append order.
func (s *Store) AllJudgments() []Judgment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Judgment
	for _, event := range s.log {
		if event.Kind == EventJudgment {
			out = append(out, *event.Judgment)
		}
	}
	return out
}

// Len returns the number of events in the log.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

// Trace exports the full store contents for the evaluation result.
func (s *Store) Trace() Trace {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trace := Trace{Events: len(s.log)}
	for _, event := range s.log {
		switch event.Kind {
		case EventAttack:
			trace.Attacks = append(trace.Attacks, *event.Attack)
		case EventInteraction:
			trace.Interactions = append(trace.Interactions, *event.Interaction)
		case EventJudgment:
			trace.Judgments = append(trace.Judgments, *event.Judgment)
		}
	}

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		trace.Facts = append(trace.Facts, s.entries[key])
	}
	return trace
}

// appendLocked appends an event to the log. Callers must hold s.mu.
func (s *Store) appendLocked(event Event) {
	s.seq++
	event.Seq = s.seq
	event.RecordedAt = time.Now()
	s.log = append(s.log, event)
}
