package orchestrator

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mauttaram/SecurityEvaluator/internal/coalition"
	"github.com/Mauttaram/SecurityEvaluator/internal/knowledge"
	"github.com/Mauttaram/SecurityEvaluator/internal/types"
	"github.com/Mauttaram/SecurityEvaluator/internal/worker"
)

// boundaryKeyPrefix, validationKeyPrefix, and remediationKeyPrefix name the
// store fact families rounds publish into.
const (
	boundaryKeyPrefix    = "boundary/"
	validationKeyPrefix  = "validation/"
	remediationKeyPrefix = "remediation/"
	rejectedCounterKey   = "generation_rejected"
)

// roundStats summarizes what one round contributed.
type roundStats struct {
	attacks      int
	interactions int
	newEvasions  int
	newConfirmed int
	dropped      int
}

// roles splits a coalition's members by the contract interfaces they
// implement. Member order is preserved so dispatch and fan-in stay
// deterministic for a fixed registry.
type roles struct {
	probers     []worker.Prober
	generators  []worker.Generator
	mutators    []worker.Mutator
	executors   []worker.SubjectExecutor
	judges      []worker.Judge
	validators  []worker.Validator
	remediators []worker.Remediator
}

func splitRoles(members []worker.Worker) roles {
	var t roles
	for _, m := range members {
		if w, ok := m.(worker.Prober); ok {
			t.probers = append(t.probers, w)
		}
		if w, ok := m.(worker.Generator); ok {
			t.generators = append(t.generators, w)
		}
		if w, ok := m.(worker.Mutator); ok {
			t.mutators = append(t.mutators, w)
		}
		if w, ok := m.(worker.SubjectExecutor); ok {
			t.executors = append(t.executors, w)
		}
		if w, ok := m.(worker.Judge); ok {
			t.judges = append(t.judges, w)
		}
		if w, ok := m.(worker.Validator); ok {
			t.validators = append(t.validators, w)
		}
		if w, ok := m.(worker.Remediator); ok {
			t.remediators = append(t.remediators, w)
		}
	}
	return t
}

// playRound runs one round of the given phase with the formed coalition.
// Member failures and timeouts drop that member's contribution; nothing in a
// round aborts the run.
func (r *run) playRound(ctx context.Context, phase types.Phase, co *coalition.Coalition) roundStats {
	team := splitRoles(co.Members())

	switch phase {
	case types.PhaseExploration, types.PhaseExploitation:
		return r.attackRound(ctx, phase, team)
	case types.PhaseValidation:
		return r.validationRound(ctx, team)
	case types.PhaseConsensus:
		return r.consensusRound(ctx, team)
	case types.PhaseRemediation:
		return r.remediationRound(ctx, team)
	default:
		return roundStats{}
	}
}

// callMember invokes fn under the per-member timeout. The caller interprets
// a deadline error as a dropped contribution; a missed deadline is reported
// as a retryable WORKER_TIMEOUT.
func (r *run) callMember(ctx context.Context, fn func(context.Context) error) error {
	memberCtx, cancel := context.WithTimeout(ctx, r.o.cfg.Workers.MemberTimeout)
	defer cancel()
	if err := fn(memberCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return types.NewRetryableError(types.WORKER_TIMEOUT, "member deadline exceeded")
		}
		return err
	}
	return nil
}

// attackRound is the shared exploration/exploitation round. Probing (or
// mutation) and generation fan out first; accepted attacks then execute
// against the subject; finally every judge classifies every new interaction.
// Store writes happen only after each fan-in barrier, in member order, so a
// fixed seed replays the same event log.
func (r *run) attackRound(ctx context.Context, phase types.Phase, team roles) roundStats {
	var stats roundStats

	category, err := r.allocator.Select(r.candidates)
	if err != nil {
		return stats
	}
	hint := r.techniqueHint(phase, category)

	roundCtx, cancelRound := context.WithCancel(ctx)
	defer cancelRound()

	// Stage 1: boundary probing, generation, and mutation are independent.
	probeReports := make([]*worker.ProbeReport, len(team.probers))
	generated := make([][]knowledge.Attack, len(team.generators))
	mutated := make([]*knowledge.Attack, len(team.mutators))

	probeTargets := r.o.cat.ByCategory(category)
	parents := r.evadedAttacks(category)

	var g errgroup.Group
	if phase == types.PhaseExploration {
		for i, p := range team.probers {
			if len(probeTargets) == 0 {
				break
			}
			i, p := i, p
			target := probeTargets[i%len(probeTargets)]
			g.Go(func() error {
				err := r.callMember(roundCtx, func(mc context.Context) error {
					report, err := p.Probe(mc, target.ID, category)
					if err != nil {
						return err
					}
					probeReports[i] = &report
					return nil
				})
				if err != nil {
					r.log.Warn(roundCtx, "probe dropped",
						"worker", p.Name(), "technique", target.ID, "error", err)
				}
				return nil
			})
		}
	}
	if phase == types.PhaseExploitation {
		for i, m := range team.mutators {
			if len(parents) == 0 {
				break
			}
			i, m := i, m
			parent := parents[i%len(parents)]
			g.Go(func() error {
				err := r.callMember(roundCtx, func(mc context.Context) error {
					child, err := m.Mutate(mc, parent, category)
					if err != nil {
						return err
					}
					mutated[i] = &child
					return nil
				})
				if err != nil {
					r.log.Warn(roundCtx, "mutation dropped",
						"worker", m.Name(), "parent", parent.ID, "error", err)
				}
				return nil
			})
		}
	}
	for i, gen := range team.generators {
		i, gen := i, gen
		g.Go(func() error {
			err := r.callMember(roundCtx, func(mc context.Context) error {
				attacks, err := gen.Generate(mc, worker.GenerationContext{
					Store:    r.store,
					Phase:    phase,
					Category: category,
				}, hint)
				if err != nil {
					return err
				}
				generated[i] = attacks
				return nil
			})
			if err != nil {
				// Generation failure is empty output, never fatal.
				r.log.Warn(roundCtx, "generation unavailable",
					"worker", gen.Name(), "category", category,
					"error", types.WrapError(types.GENERATION_UNAVAILABLE, "generator produced nothing", err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if phase == types.PhaseExploration && len(probeTargets) > 0 {
		for i, report := range probeReports {
			if report == nil {
				stats.dropped++
				continue
			}
			r.store.Put(boundaryKeyPrefix+report.TechniqueID, *report, team.probers[i].ID())
		}
	}

	var candidates []knowledge.Attack
	for i, attacks := range generated {
		if attacks == nil {
			stats.dropped++
			continue
		}
		for _, a := range attacks {
			candidates = append(candidates, r.normalizeAttack(a, team.generators[i].ID(), phase, category, hint))
		}
	}
	for i, child := range mutated {
		if child == nil {
			continue
		}
		candidates = append(candidates, r.normalizeAttack(*child, team.mutators[i].ID(), phase, category, hint))
	}

	accepted := r.screen(roundCtx, candidates)
	for _, a := range accepted {
		if err := r.store.AppendAttack(a); err != nil {
			r.log.Warn(roundCtx, "attack rejected by store", "attack", a.ID, "error", err)
			continue
		}
		stats.attacks++
	}

	// Stage 2: execution. Each executor works its share sequentially so the
	// budget gate bounds overshoot to at most one in-flight operation per
	// executor.
	interactions := make([]*knowledge.Interaction, len(accepted))
	numExec := len(team.executors)
	if numExec > 0 {
		var eg errgroup.Group
		for e, ex := range team.executors {
			e, ex := e, ex
			eg.Go(func() error {
				for i := e; i < len(accepted); i += numExec {
					if roundCtx.Err() != nil {
						return nil
					}
					// Stop once the phase envelope or the total cap is spent.
					if !r.tracker.CanAfford(phase, 0) {
						cancelRound()
						return nil
					}
					if r.limiter != nil {
						if err := r.limiter.Wait(roundCtx); err != nil {
							return nil
						}
					}
					attack := accepted[i]
					err := r.callMember(roundCtx, func(mc context.Context) error {
						interaction, err := ex.Execute(mc, attack)
						if err != nil {
							return err
						}
						interactions[i] = r.normalizeInteraction(interaction, attack.ID)
						return nil
					})
					if err != nil {
						r.log.Warn(roundCtx, "execution dropped",
							"worker", ex.Name(), "attack", attack.ID, "error", err)
						continue
					}
					// Spend is real the moment the subject ran the attack.
					_ = r.tracker.Record(phase, interactions[i].Cost)
				}
				return nil
			})
		}
		_ = eg.Wait()
	}

	var executed []knowledge.Interaction
	for i, interaction := range interactions {
		if interaction == nil {
			stats.dropped++
			continue
		}
		if err := r.store.AppendInteraction(*interaction); err != nil {
			r.log.Warn(ctx, "interaction rejected by store",
				"interaction", interaction.ID, "error", err)
			continue
		}
		stats.interactions++
		executed = append(executed, *interaction)

		attack := accepted[i]
		r.coverage.RecordAttempt(attack.TechniqueID)
		if interaction.Outcome.Conclusive() {
			r.allocator.Update(category, interaction.Outcome == types.OutcomeEvaded)
		}
		if interaction.Outcome == types.OutcomeEvaded {
			stats.newEvasions++
		}
	}

	// Stage 3: every judge classifies every new interaction.
	stats.dropped += r.judgeInteractions(ctx, team.judges, executed)

	return stats
}

// judgeInteractions fans one task per judge-interaction pair and appends the
// surviving judgments in pair order. It returns the number of dropped pairs.
func (r *run) judgeInteractions(ctx context.Context, judges []worker.Judge, executed []knowledge.Interaction) int {
	if len(judges) == 0 || len(executed) == 0 {
		return 0
	}

	judgments := make([]*knowledge.Judgment, len(judges)*len(executed))
	var g errgroup.Group
	for ji, j := range judges {
		for ii, interaction := range executed {
			ji, j, ii, interaction := ji, j, ii, interaction
			attack, ok := r.store.Attack(interaction.AttackID)
			if !ok {
				continue
			}
			g.Go(func() error {
				err := r.callMember(ctx, func(mc context.Context) error {
					judgment, err := j.Judge(mc, interaction, attack)
					if err != nil {
						return err
					}
					judgments[ji*len(executed)+ii] = r.normalizeJudgment(judgment, interaction.ID, j.ID())
					return nil
				})
				if err != nil {
					r.log.Warn(ctx, "judgment dropped",
						"worker", j.Name(), "interaction", interaction.ID, "error", err)
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	dropped := 0
	for _, judgment := range judgments {
		if judgment == nil {
			dropped++
			continue
		}
		if err := r.store.AppendJudgment(*judgment); err != nil {
			r.log.Warn(ctx, "judgment rejected by store",
				"judgment", judgment.ID, "error", err)
		}
	}
	return dropped
}

// validationRound re-executes previously evaded attacks to confirm they
// reproduce. Results land as validation facts, not new interactions, so the
// one-interaction-per-attack record stays intact.
func (r *run) validationRound(ctx context.Context, team roles) roundStats {
	var stats roundStats

	targets := r.evadedWithPrior()
	if len(targets) == 0 || len(team.validators) == 0 {
		return stats
	}

	results := make([]*knowledge.Interaction, len(targets))
	numVal := len(team.validators)

	roundCtx, cancelRound := context.WithCancel(ctx)
	defer cancelRound()

	var g errgroup.Group
	for v, val := range team.validators {
		v, val := v, val
		g.Go(func() error {
			for i := v; i < len(targets); i += numVal {
				if roundCtx.Err() != nil {
					return nil
				}
				if !r.tracker.CanAfford(types.PhaseValidation, 0) {
					cancelRound()
					return nil
				}
				target := targets[i]
				err := r.callMember(roundCtx, func(mc context.Context) error {
					result, err := val.Validate(mc, target.attack, target.prior)
					if err != nil {
						return err
					}
					results[i] = r.normalizeInteraction(result, target.attack.ID)
					return nil
				})
				if err != nil {
					r.log.Warn(roundCtx, "validation dropped",
						"worker", val.Name(), "attack", target.attack.ID, "error", err)
					continue
				}
				_ = r.tracker.Record(types.PhaseValidation, results[i].Cost)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, result := range results {
		if result == nil {
			stats.dropped++
			continue
		}
		attackID := targets[i].attack.ID
		r.store.Put(validationKeyPrefix+attackID.String(), *result, r.writer)
		stats.interactions++
		if result.Outcome == types.OutcomeEvaded && !r.confirmed[attackID] {
			r.confirmed[attackID] = true
			stats.newConfirmed++
			stats.newEvasions++
		}
	}

	return stats
}

// consensusRound tops up judgments on under-corroborated interactions until
// each has at least the configured minimum, then leaves calibration to the
// final scoring pass.
func (r *run) consensusRound(ctx context.Context, team roles) roundStats {
	var stats roundStats
	if len(team.judges) == 0 {
		return stats
	}

	type pair struct {
		judge       worker.Judge
		interaction knowledge.Interaction
		attack      knowledge.Attack
	}
	var pairs []pair

	for _, interaction := range r.store.Interactions() {
		existing := r.store.Judgments(interaction.ID)
		needed := r.o.cfg.Consensus.MinJudgments - len(existing)
		if needed <= 0 {
			continue
		}
		attack, ok := r.store.Attack(interaction.AttackID)
		if !ok {
			continue
		}

		already := make(map[types.ID]bool, len(existing))
		for _, j := range existing {
			already[j.JudgeID] = true
		}
		for _, j := range team.judges {
			if needed == 0 {
				break
			}
			if already[j.ID()] {
				continue
			}
			pairs = append(pairs, pair{judge: j, interaction: interaction, attack: attack})
			needed--
		}
	}

	judgments := make([]*knowledge.Judgment, len(pairs))
	var g errgroup.Group
	for i, p := range pairs {
		i, p := i, p
		g.Go(func() error {
			err := r.callMember(ctx, func(mc context.Context) error {
				judgment, err := p.judge.Judge(mc, p.interaction, p.attack)
				if err != nil {
					return err
				}
				judgments[i] = r.normalizeJudgment(judgment, p.interaction.ID, p.judge.ID())
				return nil
			})
			if err != nil {
				r.log.Warn(ctx, "judgment dropped",
					"worker", p.judge.Name(), "interaction", p.interaction.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, judgment := range judgments {
		if judgment == nil {
			stats.dropped++
			continue
		}
		if err := r.store.AppendJudgment(*judgment); err != nil {
			r.log.Warn(ctx, "judgment rejected by store",
				"judgment", judgment.ID, "error", err)
		}
	}

	return stats
}

// remediationRound derives remediation notes for confirmed vulnerabilities.
// When validation never ran, every evaded malicious attack counts as
// confirmed.
func (r *run) remediationRound(ctx context.Context, team roles) roundStats {
	var stats roundStats
	if len(team.remediators) == 0 {
		return stats
	}

	type target struct {
		attack      knowledge.Attack
		interaction knowledge.Interaction
	}
	var targets []target
	for _, interaction := range r.store.Interactions() {
		attack, ok := r.store.Attack(interaction.AttackID)
		if !ok || !attack.Malicious || interaction.Outcome != types.OutcomeEvaded {
			continue
		}
		if len(r.confirmed) > 0 && !r.confirmed[attack.ID] {
			continue
		}
		if _, done := r.remediations[attack.ID]; done {
			continue
		}
		targets = append(targets, target{attack: attack, interaction: interaction})
	}
	if len(targets) == 0 {
		return stats
	}

	notes := make([]string, len(targets))
	resolved := make([]bool, len(targets))
	numRem := len(team.remediators)

	var g errgroup.Group
	for w, rem := range team.remediators {
		w, rem := w, rem
		g.Go(func() error {
			for i := w; i < len(targets); i += numRem {
				t := targets[i]
				err := r.callMember(ctx, func(mc context.Context) error {
					note, err := rem.Remediate(mc, t.attack, t.interaction)
					if err != nil {
						return err
					}
					notes[i] = note
					resolved[i] = true
					return nil
				})
				if err != nil {
					r.log.Warn(ctx, "remediation dropped",
						"worker", rem.Name(), "attack", t.attack.ID, "error", err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, ok := range resolved {
		if !ok {
			stats.dropped++
			continue
		}
		attackID := targets[i].attack.ID
		r.remediations[attackID] = notes[i]
		r.store.Put(remediationKeyPrefix+attackID.String(), notes[i], r.writer)
	}

	return stats
}

// techniqueHint picks the technique a generator should target within the
// selected category. Exploitation prefers the weakest probed boundary;
// exploration prefers the least-covered technique.
func (r *run) techniqueHint(phase types.Phase, category string) string {
	techs := r.o.cat.ByCategory(category)
	if len(techs) == 0 {
		return ""
	}

	if phase == types.PhaseExploitation {
		best := ""
		bestRate := 2.0
		for _, tech := range techs {
			entry, ok := r.store.Get(boundaryKeyPrefix + tech.ID)
			if !ok {
				continue
			}
			report, ok := entry.Value.(worker.ProbeReport)
			if !ok {
				continue
			}
			if report.DetectionRate < bestRate {
				best = tech.ID
				bestRate = report.DetectionRate
			}
		}
		if best != "" {
			return best
		}
	}

	inCategory := make(map[string]bool, len(techs))
	for _, tech := range techs {
		inCategory[tech.ID] = true
	}
	for _, p := range r.coverage.Prioritize(r.o.cat.Size()) {
		if inCategory[p.TechniqueID] {
			return p.TechniqueID
		}
	}
	return techs[0].ID
}

// evadedAttacks lists the attacks whose interaction evaded the subject, in
// event order, optionally filtered by category.
func (r *run) evadedAttacks(category string) []knowledge.Attack {
	var out []knowledge.Attack
	for _, interaction := range r.store.Interactions() {
		if interaction.Outcome != types.OutcomeEvaded {
			continue
		}
		attack, ok := r.store.Attack(interaction.AttackID)
		if !ok {
			continue
		}
		if category != "" && attack.Category != category {
			continue
		}
		out = append(out, attack)
	}
	return out
}

type validationTarget struct {
	attack knowledge.Attack
	prior  knowledge.Interaction
}

// evadedWithPrior lists every evaded attack with its original interaction.
func (r *run) evadedWithPrior() []validationTarget {
	var out []validationTarget
	for _, interaction := range r.store.Interactions() {
		if interaction.Outcome != types.OutcomeEvaded {
			continue
		}
		attack, ok := r.store.Attack(interaction.AttackID)
		if !ok {
			continue
		}
		out = append(out, validationTarget{attack: attack, prior: interaction})
	}
	return out
}

// screen discards malformed attacks before anything executes them. Rejects
// feed a generation-quality counter in the store.
func (r *run) screen(ctx context.Context, candidates []knowledge.Attack) []knowledge.Attack {
	accepted := candidates[:0]
	for _, a := range candidates {
		if a.Payload == "" || len(a.Payload) > r.o.cfg.Workers.MaxPayloadBytes {
			r.log.Warn(ctx, "malformed attack discarded",
				"attack", a.ID, "bytes", len(a.Payload), "payload", a.Payload,
				"error", types.NewError(types.ATTACK_MALFORMED, "empty or oversize payload"))
			r.store.Update(rejectedCounterKey, r.writer, func(current any) any {
				n := 0
				if current != nil {
					n = current.(int)
				}
				return n + 1
			})
			continue
		}
		accepted = append(accepted, a)
	}
	return accepted
}

func (r *run) normalizeAttack(a knowledge.Attack, createdBy types.ID, phase types.Phase, category, hint string) knowledge.Attack {
	if a.ID.IsZero() {
		a.ID = types.NewID()
	}
	if a.CreatedBy.IsZero() {
		a.CreatedBy = createdBy
	}
	if a.Phase == "" {
		a.Phase = phase
	}
	if a.Category == "" {
		a.Category = category
	}
	if a.TechniqueID == "" {
		a.TechniqueID = hint
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	return a
}

func (r *run) normalizeInteraction(i knowledge.Interaction, attackID types.ID) *knowledge.Interaction {
	if i.ID.IsZero() {
		i.ID = types.NewID()
	}
	if i.AttackID.IsZero() {
		i.AttackID = attackID
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now()
	}
	return &i
}

func (r *run) normalizeJudgment(j knowledge.Judgment, interactionID, judgeID types.ID) *knowledge.Judgment {
	if j.ID.IsZero() {
		j.ID = types.NewID()
	}
	if j.InteractionID.IsZero() {
		j.InteractionID = interactionID
	}
	if j.JudgeID.IsZero() {
		j.JudgeID = judgeID
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	return &j
}
