package knowledge

import (
	"time"

	"github.com/Mauttaram/SecurityEvaluator/internal/types"
)

// Attack is a single candidate attack against the subject. Attacks are
// immutable; mutation produces a new child attack linked through ParentID.
type Attack struct {
	ID          types.ID    `json:"id"`
	Payload     string      `json:"payload"`
	TechniqueID string      `json:"technique_id"`
	Category    string      `json:"category"`
	Malicious   bool        `json:"malicious"`
	CreatedBy   types.ID    `json:"created_by"`
	Phase       types.Phase `json:"phase"`
	ParentID    types.ID    `json:"parent_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Interaction records a single execution of an attack against the subject.
// Exactly one interaction exists per executed attack; the record is
// append-only and never edited.
type Interaction struct {
	ID       types.ID      `json:"id"`
	AttackID types.ID      `json:"attack_id"`
	Response string        `json:"response"`
	Latency  time.Duration `json:"latency"`
	Outcome  types.Outcome `json:"outcome"`
	Cost     float64       `json:"cost"`

	CreatedAt time.Time `json:"created_at"`
}

// Judgment is one judge's classification of one interaction. Multiple
// judgments from distinct judges may target the same interaction.
type Judgment struct {
	ID            types.ID      `json:"id"`
	InteractionID types.ID      `json:"interaction_id"`
	JudgeID       types.ID      `json:"judge_id"`
	Verdict       types.Verdict `json:"verdict"`
	Confidence    float64       `json:"confidence"`
	Rationale     string        `json:"rationale,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Entry is a free-form versioned fact published by a worker. The version
// supports optimistic compare-and-swap updates for entries that multiple
// coalitions contend on.
type Entry struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	Writer    types.ID  `json:"writer"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventKind discriminates records in the store's append-only event log.
type EventKind string

const (
	EventAttack      EventKind = "attack"
	EventInteraction EventKind = "interaction"
	EventJudgment    EventKind = "judgment"
	EventFact        EventKind = "fact"
)

// Event is one record in the store's event log. Exactly one of Attack,
// Interaction, Judgment, or Fact is set, according to Kind.
type Event struct {
	Seq         uint64       `json:"seq"`
	Kind        EventKind    `json:"kind"`
	Attack      *Attack      `json:"attack,omitempty"`
	Interaction *Interaction `json:"interaction,omitempty"`
	Judgment    *Judgment    `json:"judgment,omitempty"`
	Fact        *Entry       `json:"fact,omitempty"`
	RecordedAt  time.Time    `json:"recorded_at"`
}

// Trace is a full export of everything the store accumulated during one
// evaluation run. It is attached to the final EvaluationResult.
type Trace struct {
	Attacks      []Attack      `json:"attacks"`
	Interactions []Interaction `json:"interactions"`
	Judgments    []Judgment    `json:"judgments"`
	Facts        []Entry       `json:"facts"`
	Events       int           `json:"events"`
}
