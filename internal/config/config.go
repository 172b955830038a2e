// Package config defines the evaluation run configuration and its YAML
// loading and validation.
package config

import (
	"time"

	"github.com/Mauttaram/SecurityEvaluator/internal/types"
)

// Config carries every knob for one evaluation run.
type Config struct {
	// Budget caps the total spend and round count for the run.
	Budget BudgetConfig `mapstructure:"budget" yaml:"budget"`

	// Seed fixes the allocator's sampling sequence. Two runs with the same
	// seed and deterministic collaborators produce identical results.
	Seed int64 `mapstructure:"seed" yaml:"seed"`

	// Phases selects which optional phases run and how each decides to exit.
	Phases PhasesConfig `mapstructure:"phases" yaml:"phases"`

	// Workers bounds individual worker calls within a round.
	Workers WorkersConfig `mapstructure:"workers" yaml:"workers"`

	// Consensus tunes the calibration fixed-point iteration.
	Consensus ConsensusConfig `mapstructure:"consensus" yaml:"consensus"`

	// Coverage tunes catalog coverage tracking.
	Coverage CoverageConfig `mapstructure:"coverage" yaml:"coverage"`

	// Subject describes the system under evaluation for catalog lookup.
	Subject SubjectConfig `mapstructure:"subject" yaml:"subject"`

	// Log configures structured logging.
	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// BudgetConfig caps spend and rounds.
type BudgetConfig struct {
	Cap       float64 `mapstructure:"cap" yaml:"cap" validate:"gt=0"`
	RoundsCap int     `mapstructure:"rounds_cap" yaml:"rounds_cap" validate:"gt=0"`

	// PhaseFractions optionally overrides the per-phase envelope split.
	PhaseFractions map[types.Phase]float64 `mapstructure:"phase_fractions" yaml:"phase_fractions,omitempty"`
}

// PhasesConfig selects and tunes the evaluation phases.
type PhasesConfig struct {
	// ConsensusEnabled and RemediationEnabled gate the optional phases.
	ConsensusEnabled   bool `mapstructure:"consensus_enabled" yaml:"consensus_enabled"`
	RemediationEnabled bool `mapstructure:"remediation_enabled" yaml:"remediation_enabled"`

	// SubRounds is the default number of rounds a phase runs before its
	// exit condition is considered satisfied. Phase-exit policies may
	// override this per phase.
	SubRounds int `mapstructure:"sub_rounds" yaml:"sub_rounds" validate:"gt=0"`

	// StagnationRounds terminates the run when validation reports no new
	// successful attacks for this many consecutive rounds.
	StagnationRounds int `mapstructure:"stagnation_rounds" yaml:"stagnation_rounds" validate:"gt=0"`

	// CoverageEpsilon is the coverage-percentage gain below which the
	// exploration boundary map counts as stabilized.
	CoverageEpsilon float64 `mapstructure:"coverage_epsilon" yaml:"coverage_epsilon" validate:"gte=0"`
}

// WorkersConfig bounds worker calls.
type WorkersConfig struct {
	// MemberTimeout bounds each coalition member's work within a round.
	// A member that misses the deadline has its contribution dropped.
	MemberTimeout time.Duration `mapstructure:"member_timeout" yaml:"member_timeout" validate:"gt=0"`

	// RunTimeout bounds the whole evaluation; zero disables it.
	RunTimeout time.Duration `mapstructure:"run_timeout" yaml:"run_timeout" validate:"gte=0"`

	// ExecuteRate limits subject executions per second; zero disables
	// limiting.
	ExecuteRate float64 `mapstructure:"execute_rate" yaml:"execute_rate" validate:"gte=0"`

	// MaxPayloadBytes is the malformed-attack screen: larger payloads are
	// discarded before execution.
	MaxPayloadBytes int `mapstructure:"max_payload_bytes" yaml:"max_payload_bytes" validate:"gt=0"`
}

// ConsensusConfig tunes calibration.
type ConsensusConfig struct {
	Epsilon       float64 `mapstructure:"epsilon" yaml:"epsilon" validate:"gt=0"`
	MaxIterations int     `mapstructure:"max_iterations" yaml:"max_iterations" validate:"gt=0"`
	SoloDiscount  float64 `mapstructure:"solo_discount" yaml:"solo_discount" validate:"gt=0,lte=1"`

	// MinJudgments is the corroboration floor the consensus phase tops up
	// under-judged interactions toward.
	MinJudgments int `mapstructure:"min_judgments" yaml:"min_judgments" validate:"gt=0"`
}

// CoverageConfig tunes catalog coverage tracking.
type CoverageConfig struct {
	// FullThreshold is the attempt count at which a technique counts as
	// fully covered.
	FullThreshold int `mapstructure:"full_threshold" yaml:"full_threshold" validate:"gt=0"`
}

// SubjectConfig describes the subject for technique lookup.
type SubjectConfig struct {
	Name string   `mapstructure:"name" yaml:"name"`
	Tags []string `mapstructure:"tags" yaml:"tags"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// DefaultConfig returns a configuration with documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Budget: BudgetConfig{
			Cap:       100.0,
			RoundsCap: 20,
		},
		Seed: 1,
		Phases: PhasesConfig{
			ConsensusEnabled:   true,
			RemediationEnabled: true,
			SubRounds:          3,
			StagnationRounds:   3,
			CoverageEpsilon:    0.5,
		},
		Workers: WorkersConfig{
			MemberTimeout:   30 * time.Second,
			RunTimeout:      0,
			ExecuteRate:     0,
			MaxPayloadBytes: 64 * 1024,
		},
		Consensus: ConsensusConfig{
			Epsilon:       1e-4,
			MaxIterations: 50,
			SoloDiscount:  0.5,
			MinJudgments:  2,
		},
		Coverage: CoverageConfig{
			FullThreshold: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
