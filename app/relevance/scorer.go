package relevance

import (
	"log/slog"
	"strings"
	"time"

	"github.com/nordby/newswire/app/sources"
)

const (
	// shortContentLength is the combined summary+content length below
	// which the short-article penalty applies.
	shortContentLength  = 120
	shortContentPenalty = 5

	// zeroScoreFloor replaces an exact zero for articles that already
	// passed the hard regional filter; in-scope content is never
	// reported as "zero relevance".
	zeroScoreFloor = 1.0
)

// Score is the scoring result for one article.
type Score struct {
	Value             float64
	Deterministic     float64
	LearnedAdjustment float64
	RecencyMultiplier float64
	LocalFocus        float64 // 0-10, local-place signal strength
	Matched           []string
}

// Scorer computes the relevance score: deterministic weighted keyword
// hits, a recency multiplier, then the learned Bayesian adjustment.
type Scorer struct {
	learner *Learner
}

func NewScorer(learner *Learner) *Scorer {
	return &Scorer{learner: learner}
}

// HardFilter is the pre-scoring regional gate: the article must mention
// at least one local place or high-relevance phrase. Sources flagged
// requires_local get no exemption; others pass when the region has no
// local vocabulary configured at all.
func HardFilter(article sources.CandidateArticle, cfg *Config, requiresLocal bool) bool {
	if len(cfg.LocalPlaces) == 0 && len(cfg.HighRelevance) == 0 {
		return !requiresLocal
	}

	haystack := searchText(article)
	for place := range cfg.LocalPlaces {
		if containsPhrase(haystack, strings.ToLower(place)) {
			return true
		}
	}
	for phrase := range cfg.HighRelevance {
		if containsPhrase(haystack, strings.ToLower(phrase)) {
			return true
		}
	}

	return !requiresLocal
}

// Run scores an article against a region config. class is the
// classifier's verdict for the same article; keyword-backed categories
// contribute the configured category points. now is injected for
// recency determinism in tests.
func (s *Scorer) Run(article sources.CandidateArticle, cfg *Config, class Classification, now time.Time) Score {
	result := Score{RecencyMultiplier: 1.0}

	haystack := searchText(article)

	add := func(class string, keywords map[string]float64) float64 {
		var sum float64
		for keyword, points := range keywords {
			if containsPhrase(haystack, strings.ToLower(keyword)) {
				sum += points
				result.Matched = append(result.Matched, class+":"+keyword)
			}
		}
		return sum
	}

	deterministic := add("high", cfg.HighRelevance)

	localPoints := add("place", cfg.LocalPlaces)
	deterministic += localPoints
	result.LocalFocus = localFocus(localPoints)

	deterministic += add("topic", cfg.Topics)

	if bonus, ok := cfg.SourceCredibility[article.SourceName]; ok {
		weight := article.Credibility
		if weight <= 0 {
			weight = 1.0
		}
		deterministic += bonus * weight
		result.Matched = append(result.Matched, "source:"+article.SourceName)
	}

	// A keyword-backed classification means the article hit at least one
	// category vocabulary; cold-start fallbacks carry zero confidence and
	// earn nothing here.
	if class.Confidence > 0 {
		deterministic += cfg.PrimaryCategoryPoints
		result.Matched = append(result.Matched, "category:"+class.Primary)
		if class.Secondary != "" {
			deterministic += cfg.SecondaryCategoryPoints
			result.Matched = append(result.Matched, "category:"+class.Secondary)
		}
	}

	deterministic -= add("penalty", cfg.Penalties)

	if len(article.Summary)+len(article.Content) < shortContentLength {
		deterministic -= shortContentPenalty
		result.Matched = append(result.Matched, "penalty:short")
	}

	if deterministic < 0 {
		deterministic = 0
	}

	result.RecencyMultiplier = recencyMultiplier(article.PublishedAt, now)
	result.Deterministic = deterministic * result.RecencyMultiplier

	features := ExtractFeatures(article, cfg.NearbyPlaces)
	result.LearnedAdjustment = s.learner.Adjustment(cfg.Region, TableRelevance, features)

	value := result.Deterministic + result.LearnedAdjustment
	if value <= 0 {
		// The article reached scoring, so it passed the hard filter.
		value = zeroScoreFloor
	}
	if value > 100 {
		value = 100
	}
	result.Value = value

	slog.Debug("Article scored",
		"title", article.Title,
		"score", result.Value,
		"deterministic", result.Deterministic,
		"learned", result.LearnedAdjustment,
		"recency", result.RecencyMultiplier)

	return result
}

// RecordFeedback trains the relevance learner from one curator
// accept/reject event.
func (s *Scorer) RecordFeedback(article sources.CandidateArticle, cfg *Config, accepted bool) error {
	features := ExtractFeatures(article, cfg.NearbyPlaces)
	return s.learner.Record(cfg.Region, TableRelevance, features, accepted)
}

// recencyMultiplier: fresh news is worth more. Articles without a
// published date get the neutral multiplier; absence of a date is not
// freshness.
func recencyMultiplier(publishedAt *time.Time, now time.Time) float64 {
	if publishedAt == nil {
		return 1.0
	}

	age := now.Sub(*publishedAt)
	switch {
	case age < 6*time.Hour:
		return 2.0
	case age < 24*time.Hour:
		return 1.5
	case age < 72*time.Hour:
		return 1.0
	default:
		return 0.5
	}
}

// localFocus maps local-place points onto the 0-10 display scale.
func localFocus(localPoints float64) float64 {
	focus := localPoints / 2
	if focus > 10 {
		return 10
	}
	return focus
}

func searchText(article sources.CandidateArticle) string {
	return strings.ToLower(article.Title + " " + article.Summary + " " + article.Content)
}
