package dedup

import (
	"log/slog"

	"github.com/nordby/newswire/app/sources"
)

// DefaultThreshold is the semantic merge threshold when none is
// configured. Tunable: the mechanism is approximate by design.
const DefaultThreshold = 0.7

// Engine applies both dedup stages to a batch: exact keys first, then
// pairwise semantic similarity among the survivors.
type Engine struct {
	Threshold float64
}

func NewEngine(threshold float64) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{Threshold: threshold}
}

// Run returns the deduplicated batch. First-encountered candidates win
// on both stages; every semantic merge is logged with the score and
// which similarity dominated, for auditability.
func (e *Engine) Run(batch []sources.CandidateArticle) []sources.CandidateArticle {
	exact := DedupeExact(batch)
	return e.dedupeSemantic(exact)
}

func (e *Engine) dedupeSemantic(batch []sources.CandidateArticle) []sources.CandidateArticle {
	survivors := make([]sources.CandidateArticle, 0, len(batch))

	for _, c := range batch {
		merged := false
		for i := range survivors {
			kept := &survivors[i]
			combined, titleSim, contentSim := Combined(kept.Title, kept.Content, c.Title, c.Content)
			if combined < e.Threshold {
				continue
			}

			dominant := "title"
			if contentSim > titleSim {
				dominant = "content"
			}
			slog.Info("Semantic duplicate merged",
				"kept_title", kept.Title,
				"kept_source", kept.SourceName,
				"dropped_title", c.Title,
				"dropped_source", c.SourceName,
				"score", combined,
				"title_similarity", titleSim,
				"content_similarity", contentSim,
				"dominant", dominant)

			absorb(kept, c)
			merged = true
			break
		}
		if !merged {
			survivors = append(survivors, c)
		}
	}

	return survivors
}

// absorb keeps the first-encountered article but fills in fields the
// duplicate has and the original lacks.
func absorb(kept *sources.CandidateArticle, dup sources.CandidateArticle) {
	if kept.ImageURL == "" {
		kept.ImageURL = dup.ImageURL
	}
	if kept.Content == "" {
		kept.Content = dup.Content
	}
	if kept.URL == "" {
		kept.URL = dup.URL
	}
	if kept.PublishedAt == nil {
		kept.PublishedAt = dup.PublishedAt
	}
}
