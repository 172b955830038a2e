// Package orchestrator drives the evaluation phase state machine. One
// MetaOrchestrator coordinates category allocation, coalition formation,
// concurrent worker dispatch, and scoring over sequential rounds.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/Mauttaram/SecurityEvaluator/internal/bandit"
	"github.com/Mauttaram/SecurityEvaluator/internal/budget"
	"github.com/Mauttaram/SecurityEvaluator/internal/catalog"
	"github.com/Mauttaram/SecurityEvaluator/internal/coalition"
	"github.com/Mauttaram/SecurityEvaluator/internal/config"
	"github.com/Mauttaram/SecurityEvaluator/internal/consensus"
	"github.com/Mauttaram/SecurityEvaluator/internal/knowledge"
	"github.com/Mauttaram/SecurityEvaluator/internal/observability"
	"github.com/Mauttaram/SecurityEvaluator/internal/scoring"
	"github.com/Mauttaram/SecurityEvaluator/internal/types"
	"github.com/Mauttaram/SecurityEvaluator/internal/worker"
)

// phaseCapabilities maps each phase to the capability verbs its coalition
// must cover.
var phaseCapabilities = map[types.Phase][]worker.Capability{
	types.PhaseExploration: {
		worker.CapabilityProbe,
		worker.CapabilityGenerate,
		worker.CapabilityExecute,
		worker.CapabilityJudge,
	},
	types.PhaseExploitation: {
		worker.CapabilityGenerate,
		worker.CapabilityMutate,
		worker.CapabilityExecute,
		worker.CapabilityJudge,
	},
	types.PhaseValidation: {
		worker.CapabilityValidate,
	},
	types.PhaseConsensus: {
		worker.CapabilityJudge,
	},
	types.PhaseRemediation: {
		worker.CapabilityRemediate,
	},
}

// MetaOrchestrator runs the Exploration through Remediation state machine.
// The knowledge store, budget tracker, and allocator are created at Run
// entry and discarded at return; the orchestrator itself is reusable.
type MetaOrchestrator struct {
	cfg      *config.Config
	cat      *catalog.Catalog
	registry *worker.Registry
	logger   *slog.Logger
	tracer   trace.Tracer

	exitPolicies map[types.Phase]PhaseExitPolicy
}

// Option is a functional option for configuring the MetaOrchestrator.
type Option func(*MetaOrchestrator)

// WithLogger sets the structured logger for orchestration events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *MetaOrchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer sets the OpenTelemetry tracer for run and round spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *MetaOrchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithExitPolicy overrides the exit policy for one phase.
func WithExitPolicy(phase types.Phase, policy PhaseExitPolicy) Option {
	return func(o *MetaOrchestrator) {
		if policy != nil {
			o.exitPolicies[phase] = policy
		}
	}
}

// New creates a MetaOrchestrator over the given catalog and worker registry.
func New(cfg *config.Config, cat *catalog.Catalog, registry *worker.Registry, opts ...Option) (*MetaOrchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cat == nil {
		return nil, fmt.Errorf("catalog cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("worker registry cannot be nil")
	}

	o := &MetaOrchestrator{
		cfg:      cfg,
		cat:      cat,
		registry: registry,
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer("orchestrator"),
		exitPolicies: map[types.Phase]PhaseExitPolicy{
			types.PhaseExploration: CoverageStabilized(
				cfg.Phases.CoverageEpsilon, cfg.Phases.SubRounds),
		},
	}

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// exitPolicy returns the policy for phase, defaulting to a fixed
// sub-round count.
func (o *MetaOrchestrator) exitPolicy(phase types.Phase) PhaseExitPolicy {
	if p, ok := o.exitPolicies[phase]; ok {
		return p
	}
	return FixedSubRounds(o.cfg.Phases.SubRounds)
}

// enabledPhases returns the non-terminal phases this run executes, in
// state-machine order.
func (o *MetaOrchestrator) enabledPhases() []types.Phase {
	phases := []types.Phase{
		types.PhaseExploration,
		types.PhaseExploitation,
		types.PhaseValidation,
	}
	if o.cfg.Phases.ConsensusEnabled {
		phases = append(phases, types.PhaseConsensus)
	}
	if o.cfg.Phases.RemediationEnabled {
		phases = append(phases, types.PhaseRemediation)
	}
	return phases
}

// run holds the per-invocation state. Everything here is scoped to one
// evaluation and discarded when Run returns.
type run struct {
	o *MetaOrchestrator

	id        types.ID
	log       *observability.RunLogger
	store     *knowledge.Store
	tracker   *budget.Tracker
	allocator *bandit.Allocator
	coverage  *catalog.CoverageTracker
	former    *coalition.Former
	engine    *consensus.Engine
	limiter   *rate.Limiter
	writer    types.ID

	candidates []string

	confirmed      map[types.ID]bool
	remediations   map[types.ID]string
	stagnantRounds int
	rounds         int
}

// Run executes the full evaluation and returns a best-effort result. Early
// termination through budget or round exhaustion is a normal outcome, not an
// error; only setup failures and a fully cancelled context before scoring
// return a non-nil error.
func (o *MetaOrchestrator) Run(ctx context.Context) (*EvaluationResult, error) {
	started := time.Now()

	if o.cfg.Workers.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Workers.RunTimeout)
		defer cancel()
	}

	runID := types.NewID()
	ctx, span := o.tracer.Start(ctx, "evaluation.run",
		trace.WithAttributes(
			attribute.String("run_id", runID.String()),
			attribute.String("subject", o.cfg.Subject.Name),
		))
	defer span.End()

	tracker, err := budget.NewTracker(o.cfg.Budget.Cap, o.cfg.Budget.RoundsCap, o.cfg.Budget.PhaseFractions)
	if err != nil {
		err = fmt.Errorf("budget setup failed: %w", err)
		observability.RecordSpanError(span, err)
		return nil, err
	}

	techniques := o.cat.Lookup(catalog.Profile{Name: o.cfg.Subject.Name, Tags: o.cfg.Subject.Tags})
	candidates := catalog.Categories(techniques)
	if len(candidates) == 0 {
		err := types.NewError(types.TECHNIQUE_NOT_FOUND,
			fmt.Sprintf("no catalog techniques match subject %q", o.cfg.Subject.Name))
		observability.RecordSpanError(span, err)
		return nil, err
	}

	store := knowledge.NewStore(knowledge.WithLogger(o.logger))
	r := &run{
		o:         o,
		id:        runID,
		log:       observability.NewRunLogger(o.logger, runID.String(), o.cfg.Subject.Name),
		store:     store,
		tracker:   tracker,
		allocator: bandit.NewAllocator(store, o.cfg.Seed),
		coverage:  catalog.NewCoverageTracker(o.cat, o.cfg.Coverage.FullThreshold),
		former:    coalition.NewFormer(o.registry, coalition.WithLogger(o.logger)),
		engine: consensus.NewEngine(
			consensus.WithEpsilon(o.cfg.Consensus.Epsilon),
			consensus.WithMaxIterations(o.cfg.Consensus.MaxIterations),
			consensus.WithSoloDiscount(o.cfg.Consensus.SoloDiscount),
			consensus.WithLogger(o.logger),
		),
		writer:       types.NewID(),
		candidates:   candidates,
		confirmed:    make(map[types.ID]bool),
		remediations: make(map[types.ID]string),
	}
	if o.cfg.Workers.ExecuteRate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(o.cfg.Workers.ExecuteRate), 1)
	}

	r.log.Info(ctx, "evaluation starting",
		"budget_cap", o.cfg.Budget.Cap,
		"rounds_cap", o.cfg.Budget.RoundsCap,
		"categories", len(candidates),
	)

	reason := o.drive(ctx, r)
	return o.score(ctx, r, reason, started), nil
}

// drive walks the phase state machine until a stop condition fires and
// returns the termination reason. Phases advance strictly forward; a phase
// whose coalition cannot be formed is skipped, never retried.
func (o *MetaOrchestrator) drive(ctx context.Context, r *run) TerminationReason {
	for _, phase := range o.enabledPhases() {
		subRound := 0
		prevCoverage := r.coverage.Report().Percentage

		for {
			// A cancelled run scores immediately, same as spend exhaustion.
			if ctx.Err() != nil {
				r.log.Warn(ctx, "run cancelled", "phase", phase,
					"error", types.WrapError(types.RUN_CANCELLED, "evaluation context ended", ctx.Err()))
				return TerminationBudgetExhausted
			}
			if r.tracker.SpendExhausted() {
				r.log.Warn(ctx, "spend budget exhausted", "phase", phase,
					"error", types.NewError(types.BUDGET_EXCEEDED,
						fmt.Sprintf("spend cap %.2f reached", o.cfg.Budget.Cap)))
				return TerminationBudgetExhausted
			}
			// A spent envelope ends the phase; the remaining total belongs
			// to the phases after it.
			if !r.tracker.CanAfford(phase, 0) {
				r.log.Info(ctx, "phase envelope spent",
					"phase", phase, "spent", r.tracker.Spent())
				break
			}

			co, err := r.former.Form(phase, phaseCapabilities[phase])
			if err != nil {
				// Fatal to this phase only; the next phase may still have a
				// viable coalition.
				r.log.Warn(ctx, "phase skipped, coalition formation failed",
					"phase", phase, "error", err)
				break
			}

			if err := r.tracker.StartRound(); err != nil {
				r.former.Dissolve(co)
				return TerminationRoundsExhausted
			}
			r.rounds++
			subRound++

			roundCtx, roundSpan := observability.StartRoundSpan(ctx, o.tracer, phase.String(), r.rounds)
			stats := r.playRound(roundCtx, phase, co)
			roundSpan.End()
			r.former.Dissolve(co)

			coverage := r.coverage.Report().Percentage
			pc := PhaseContext{
				Phase:        phase,
				SubRound:     subRound,
				Coverage:     coverage,
				CoverageGain: coverage - prevCoverage,
				NewEvasions:  stats.newEvasions,
			}
			prevCoverage = coverage

			r.log.Info(ctx, "round complete",
				"phase", phase,
				"round", r.rounds,
				"attacks", stats.attacks,
				"interactions", stats.interactions,
				"new_evasions", stats.newEvasions,
				"dropped_members", stats.dropped,
				"spent", r.tracker.Spent(),
			)

			if r.tracker.SpendExhausted() {
				r.log.Warn(ctx, "spend budget exhausted", "phase", phase,
					"error", types.NewError(types.BUDGET_EXCEEDED,
						fmt.Sprintf("spend cap %.2f reached", o.cfg.Budget.Cap)))
				return TerminationBudgetExhausted
			}

			if phase == types.PhaseValidation {
				if stats.newConfirmed == 0 {
					r.stagnantRounds++
				} else {
					r.stagnantRounds = 0
				}
				if r.stagnantRounds >= o.cfg.Phases.StagnationRounds {
					r.log.Info(ctx, "validation stagnated", "rounds", r.stagnantRounds)
					return TerminationStabilized
				}
			}

			if o.exitPolicy(phase)(pc) {
				break
			}
		}
	}

	return TerminationStabilized
}

// score calibrates, scores, and assembles the final result from whatever
// the store holds.
func (o *MetaOrchestrator) score(ctx context.Context, r *run, reason TerminationReason, started time.Time) *EvaluationResult {
	calibration := r.engine.Calibrate(r.store.AllJudgments())
	report := r.coverage.Report()

	scorer := scoring.NewDualScorer(scoring.WithLogger(o.logger))
	attacker, defender := scorer.Score(r.store, calibration, o.cat, report, r.tracker.Spent())

	result := &EvaluationResult{
		RunID:             r.id,
		Subject:           o.cfg.Subject.Name,
		TerminationReason: reason,
		Attacker:          attacker,
		Defender:          defender,
		Calibration:       calibration,
		Coverage:          report,
		Budget:            r.tracker.Snapshot(),
		Trace:             r.store.Trace(),
		Remediations:      r.remediations,
		Rounds:            r.rounds,
		Duration:          time.Since(started),
	}

	r.log.Info(ctx, "evaluation finished",
		"reason", reason,
		"rounds", r.rounds,
		"spent", result.Budget.Spent,
		"vulnerabilities", attacker.VulnerabilitiesFound,
		"posture", defender.PostureScore,
	)

	return result
}
