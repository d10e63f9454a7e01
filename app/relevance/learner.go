package relevance

import (
	"log/slog"
)

// Pattern tables. Relevance feedback and category feedback train
// separate counter tables in the Learned Pattern Store.
const (
	TableRelevance      = "relevance"
	categoryTablePrefix = "category:"
)

// Counts is one feature's accept/reject tally. Counters only grow;
// pruning is an open stakeholder question (see DESIGN.md).
type Counts struct {
	Accepts int
	Rejects int
}

// PatternStore is the Learned Pattern Store. Implemented by the store
// package; the relevance engine is its only writer.
type PatternStore interface {
	GetCounts(region, table string, features []string) (map[string]Counts, error)
	Increment(region, table string, features []string, accepted bool) error
	TrainedExamples(region, table string) (int, error)
}

const (
	// adjustmentClamp bounds the raw per-article posterior shift
	// before scaling, so no single feature history dominates a score.
	adjustmentClamp = 0.5

	// adjustmentScale maps the clamped shift onto score points.
	adjustmentScale = 20.0
)

// Learner computes the Bayesian score adjustment from historical
// accept/reject counts and records new feedback.
type Learner struct {
	store PatternStore
}

func NewLearner(store PatternStore) *Learner {
	return &Learner{store: store}
}

// Adjustment returns the learned score delta for the given features.
// Each feature contributes its Laplace-smoothed accept posterior,
// centered on 0.5; the average shift is clamped and scaled. Features
// with no history contribute nothing. A store failure degrades to a
// zero adjustment; it never blocks scoring.
func (l *Learner) Adjustment(region, table string, features []string) float64 {
	if len(features) == 0 {
		return 0
	}

	counts, err := l.store.GetCounts(region, table, features)
	if err != nil {
		slog.Warn("Learned pattern lookup failed, using zero adjustment",
			"region", region, "table", table, "error", err)
		return 0
	}

	var shift float64
	seen := 0
	for _, feature := range features {
		c, ok := counts[feature]
		if !ok || c.Accepts+c.Rejects == 0 {
			continue
		}
		posterior := float64(c.Accepts+1) / float64(c.Accepts+c.Rejects+2)
		shift += posterior - 0.5
		seen++
	}
	if seen == 0 {
		return 0
	}

	avg := shift / float64(seen)
	if avg > adjustmentClamp {
		avg = adjustmentClamp
	} else if avg < -adjustmentClamp {
		avg = -adjustmentClamp
	}

	return avg * adjustmentScale
}

// Record increments the feature counters for one accept/reject event.
// This is the only mutation path into the pattern store.
func (l *Learner) Record(region, table string, features []string, accepted bool) error {
	if len(features) == 0 {
		return nil
	}
	return l.store.Increment(region, table, features, accepted)
}

// HasEnoughExamples reports whether a table has cleared the cold-start
// minimum.
func (l *Learner) HasEnoughExamples(region, table string, minimum int) bool {
	n, err := l.store.TrainedExamples(region, table)
	if err != nil {
		slog.Warn("Trained example count failed, treating as cold start",
			"region", region, "table", table, "error", err)
		return false
	}
	return n >= minimum
}

func categoryTable(category string) string {
	return categoryTablePrefix + category
}
