// Package bandit implements the Thompson-sampling allocator that decides
// which attack category receives the next unit of evaluation budget.
//
// Each category carries a Beta posterior over its success probability,
// parameterized by observed successes and failures. Selection draws one
// sample from every candidate's posterior and takes the arg-max: wide
// posteriors of unexplored categories occasionally win (exploration) while
// categories with many confirmed successes concentrate near a high mean
// (exploitation).
package bandit

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/Mauttaram/SecurityEvaluator/internal/knowledge"
	"github.com/Mauttaram/SecurityEvaluator/internal/types"
)

// statKeyPrefix namespaces the allocator's entries in the knowledge store.
const statKeyPrefix = "bandit/"

// CategoryStat carries the Beta-posterior sufficient statistics for one
// attack category. A category with zero observations is Beta(1,1), the
// uniform prior, which guarantees eventual exploration.
type CategoryStat struct {
	Category  string `json:"category"`
	Successes int    `json:"successes"`
	Failures  int    `json:"failures"`
}

// Alpha returns the Beta posterior's alpha parameter (successes + 1).
func (s CategoryStat) Alpha() float64 {
	return float64(s.Successes) + 1
}

// Beta returns the Beta posterior's beta parameter (failures + 1).
func (s CategoryStat) Beta() float64 {
	return float64(s.Failures) + 1
}

// Allocator selects attack categories by Thompson sampling. Category
// statistics live in the knowledge store under per-category keys and are
// mutated exclusively through Update, which uses the store's
// compare-and-swap path so concurrent coalitions cannot lose counts.
type Allocator struct {
	store  *knowledge.Store
	writer types.ID

	mu  sync.Mutex
	rng *rand.Rand
}

// NewAllocator creates an allocator backed by the given store. The seed
// fixes the sampling sequence; two allocators with the same seed and the
// same observation history make identical selections.
func NewAllocator(store *knowledge.Store, seed int64) *Allocator {
	return &Allocator{
		store:  store,
		writer: types.NewID(),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Select draws one sample from each candidate category's Beta posterior and
// returns the category with the largest draw. Candidates are sampled in the
// given order, so selection is deterministic for a fixed seed and history.
func (a *Allocator) Select(candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("candidate categories cannot be empty")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	best := candidates[0]
	bestDraw := -1.0
	for _, category := range candidates {
		stat := a.stat(category)
		draw := a.sampleBeta(stat.Alpha(), stat.Beta())
		if draw > bestDraw {
			best = category
			bestDraw = draw
		}
	}
	return best, nil
}

// Update records one observed outcome for a category. This is the sole
// CategoryStat mutator.
func (a *Allocator) Update(category string, success bool) {
	a.store.Update(statKey(category), a.writer, func(current any) any {
		stat := CategoryStat{Category: category}
		if current != nil {
			stat = current.(CategoryStat)
		}
		if success {
			stat.Successes++
		} else {
			stat.Failures++
		}
		return stat
	})
}

// Stat returns the current posterior statistics for a category. An
// unobserved category reports zero successes and failures.
func (a *Allocator) Stat(category string) CategoryStat {
	return a.stat(category)
}

func (a *Allocator) stat(category string) CategoryStat {
	entry, ok := a.store.Get(statKey(category))
	if !ok {
		return CategoryStat{Category: category}
	}
	return entry.Value.(CategoryStat)
}

func statKey(category string) string {
	return statKeyPrefix + category
}
