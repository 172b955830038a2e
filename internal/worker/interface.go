package worker

import (
	"context"

	"github.com/Mauttaram/SecurityEvaluator/internal/knowledge"
	"github.com/Mauttaram/SecurityEvaluator/internal/types"
)

// Worker is the base interface every registered evaluation worker implements.
// A worker additionally implements the contract interface matching each
// capability it declares (Generator for generate, Judge for judge, and so on).
type Worker interface {
	// ID returns the worker's stable unique identifier.
	ID() types.ID

	// Name returns a human-readable worker name for logs.
	Name() string

	// Capabilities returns the verbs this worker declares.
	Capabilities() []Capability
}

// GenerationContext carries the prior knowledge a generator may draw on.
type GenerationContext struct {
	Store    *knowledge.Store
	Phase    types.Phase
	Category string
}

// Generator produces candidate attacks for a technique. Generation failure
// is non-fatal; callers treat an error as empty output.
type Generator interface {
	Worker
	Generate(ctx context.Context, gen GenerationContext, techniqueHint string) ([]knowledge.Attack, error)
}

// Mutator derives a new attack from an existing one. The parent is never
// modified; the returned attack must carry the parent's ID in ParentID.
type Mutator interface {
	Worker
	Mutate(ctx context.Context, attack knowledge.Attack, strategy string) (knowledge.Attack, error)
}

// SubjectExecutor runs an attack against the subject. The executor enforces
// its own time, resource, and network limits internally and returns a
// partial interaction marked timed_out rather than failing.
type SubjectExecutor interface {
	Worker
	Execute(ctx context.Context, attack knowledge.Attack) (knowledge.Interaction, error)
}

// Judge classifies one interaction. Distinct judge instances may each judge
// the same interaction; their verdicts feed consensus calibration.
type Judge interface {
	Worker
	Judge(ctx context.Context, interaction knowledge.Interaction, attack knowledge.Attack) (knowledge.Judgment, error)
}

// ProbeReport summarizes one boundary-probing pass over a technique.
type ProbeReport struct {
	TechniqueID   string  `json:"technique_id"`
	Category      string  `json:"category"`
	Probes        int     `json:"probes"`
	DetectionRate float64 `json:"detection_rate"`
}

// Prober explores a technique's decision boundary and reports the observed
// detection rate. Reports are published to the knowledge store so later
// phases can target the weakest boundaries first.
type Prober interface {
	Worker
	Probe(ctx context.Context, techniqueID, category string) (ProbeReport, error)
}

// Validator re-executes a previously successful attack to confirm it
// reproduces. A validation that no longer evades is reported as such, not
// as an error.
type Validator interface {
	Worker
	Validate(ctx context.Context, attack knowledge.Attack, prior knowledge.Interaction) (knowledge.Interaction, error)
}

// Remediator derives remediation guidance for a confirmed vulnerability.
type Remediator interface {
	Worker
	Remediate(ctx context.Context, attack knowledge.Attack, interaction knowledge.Interaction) (string, error)
}
