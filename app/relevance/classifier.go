package relevance

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/nordby/newswire/app/sources"
)

// coldStartMinimum is the number of recorded category feedback events
// below which the learned adjustment is skipped. Early tallies are too
// noisy to steer predictions.
const coldStartMinimum = 50

// Classification assigns an article its topical categories.
type Classification struct {
	Primary    string
	Secondary  string
	Confidence float64
	ColdStart  bool
}

// Classifier assigns a region-scoped category using keyword-hit density
// plus its own learned adjustment table.
type Classifier struct {
	learner *Learner
}

func NewClassifier(learner *Learner) *Classifier {
	return &Classifier{learner: learner}
}

func (c *Classifier) Run(article sources.CandidateArticle, cfg *Config) Classification {
	haystack := searchText(article)

	type scored struct {
		category string
		score    float64
	}

	var ranked []scored
	for category, keywords := range cfg.CategoryKeywords {
		hits := 0
		for _, keyword := range keywords {
			if containsPhrase(haystack, strings.ToLower(keyword)) {
				hits++
			}
		}
		if hits == 0 || len(keywords) == 0 {
			continue
		}
		density := float64(hits) / float64(len(keywords))
		ranked = append(ranked, scored{category: category, score: density})
	}

	result := Classification{
		Primary:   cfg.DefaultCategory,
		ColdStart: true,
	}

	if len(ranked) == 0 {
		// Source default beats the global default when present.
		if article.Category != "" {
			result.Primary = article.Category
		}
		return result
	}

	features := ExtractFeatures(article, cfg.NearbyPlaces)
	for i := range ranked {
		table := categoryTable(ranked[i].category)
		if !c.learner.HasEnoughExamples(cfg.Region, table, coldStartMinimum) {
			continue
		}
		result.ColdStart = false
		// Normalize the learned delta into density space.
		ranked[i].score += c.learner.Adjustment(cfg.Region, table, features) / adjustmentScale
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	result.Primary = ranked[0].category
	result.Confidence = ranked[0].score
	if len(ranked) > 1 {
		result.Secondary = ranked[1].category
	}

	slog.Debug("Article classified",
		"title", article.Title,
		"primary", result.Primary,
		"secondary", result.Secondary,
		"confidence", result.Confidence,
		"cold_start", result.ColdStart)

	return result
}

// RecordFeedback trains a category's learned table: accepted marks the
// assignment correct, rejected marks it wrong.
func (c *Classifier) RecordFeedback(article sources.CandidateArticle, cfg *Config, category string, accepted bool) error {
	features := ExtractFeatures(article, cfg.NearbyPlaces)
	return c.learner.Record(cfg.Region, categoryTable(category), features, accepted)
}
