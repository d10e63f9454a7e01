package relevance

import (
	"testing"
	"time"

	"github.com/nordby/newswire/app/sources"
)

type memPatternStore struct {
	counts map[string]map[string]Counts // region|table -> feature -> counts
}

func newMemPatternStore() *memPatternStore {
	return &memPatternStore{counts: make(map[string]map[string]Counts)}
}

func (s *memPatternStore) tableKey(region, table string) string {
	return region + "|" + table
}

func (s *memPatternStore) GetCounts(region, table string, features []string) (map[string]Counts, error) {
	out := make(map[string]Counts)
	tbl := s.counts[s.tableKey(region, table)]
	for _, f := range features {
		if c, ok := tbl[f]; ok {
			out[f] = c
		}
	}
	return out, nil
}

func (s *memPatternStore) Increment(region, table string, features []string, accepted bool) error {
	key := s.tableKey(region, table)
	if s.counts[key] == nil {
		s.counts[key] = make(map[string]Counts)
	}
	for _, f := range features {
		c := s.counts[key][f]
		if accepted {
			c.Accepts++
		} else {
			c.Rejects++
		}
		s.counts[key][f] = c
	}
	return nil
}

func (s *memPatternStore) TrainedExamples(region, table string) (int, error) {
	total := 0
	for _, c := range s.counts[s.tableKey(region, table)] {
		total += c.Accepts + c.Rejects
	}
	return total, nil
}

func testConfig() *Config {
	cfg := &Config{
		Region: "8800",
		HighRelevance: map[string]float64{
			"borgmester": 20,
		},
		LocalPlaces: map[string]float64{
			"viborg": 15,
		},
		Topics: map[string]float64{
			"city council": 10,
			"budget":       5,
		},
		SourceCredibility: map[string]float64{
			"city-news": 8,
		},
		Penalties: map[string]float64{
			"you won't believe": 15,
		},
		CategoryKeywords: map[string][]string{
			"government": {"city council", "budget", "mayor"},
			"sports":     {"match", "league", "tournament"},
		},
		NearbyPlaces: []string{"Viborg", "Bjerringbro"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func testArticle(published *time.Time) sources.CandidateArticle {
	return sources.CandidateArticle{
		Title:       "City Council Approves Budget in Viborg",
		Summary:     "The Viborg city council approved next year's municipal budget on Tuesday evening.",
		Content:     "The budget passed with a large majority. Road maintenance and schools receive most of the increase.",
		SourceName:  "city-news",
		PublishedAt: published,
		FetchedAt:   time.Now().UTC(),
	}
}

func newTestScorer() (*Scorer, *memPatternStore) {
	store := newMemPatternStore()
	return NewScorer(NewLearner(store)), store
}

func TestScoreBounds(t *testing.T) {
	scorer, _ := newTestScorer()
	cfg := testConfig()
	now := time.Now().UTC()

	articles := []sources.CandidateArticle{
		testArticle(timePtr(now.Add(-time.Hour))),
		{Title: "Unrelated", SourceName: "nobody", FetchedAt: now},
		{Title: "You won't believe this Viborg trick", SourceName: "spam", FetchedAt: now},
	}

	for _, a := range articles {
		score := scorer.Run(a, cfg, Classification{}, now)
		if score.Value < 0 || score.Value > 100 {
			t.Errorf("Score out of bounds for %q: %f", a.Title, score.Value)
		}
	}
}

func TestScoreKeywordContributions(t *testing.T) {
	scorer, _ := newTestScorer()
	cfg := testConfig()
	now := time.Now().UTC()

	published := now.Add(-time.Hour)
	score := scorer.Run(testArticle(&published), cfg, Classification{}, now)

	// place 15 + topics 10+5 + source 8 = 38, recency x2.0 = 76.
	if score.Deterministic != 76 {
		t.Errorf("Expected deterministic score 76, got %f", score.Deterministic)
	}
	if score.RecencyMultiplier != 2.0 {
		t.Errorf("Expected recency multiplier 2.0, got %f", score.RecencyMultiplier)
	}
	if score.LocalFocus != 7.5 {
		t.Errorf("Expected local focus 7.5, got %f", score.LocalFocus)
	}
}

func TestCategoryPointsAddToScore(t *testing.T) {
	scorer, _ := newTestScorer()
	cfg := testConfig()
	now := time.Now().UTC()

	published := now.Add(-time.Hour)
	article := testArticle(&published)

	base := scorer.Run(article, cfg, Classification{}, now)
	primaryOnly := scorer.Run(article, cfg, Classification{Primary: "government", Confidence: 0.5}, now)
	both := scorer.Run(article, cfg, Classification{Primary: "government", Secondary: "sports", Confidence: 0.5}, now)

	// Primary 10 and secondary 5 points, recency x2.0.
	if got := primaryOnly.Deterministic - base.Deterministic; got != 20 {
		t.Errorf("Expected primary category to add 20, got %f", got)
	}
	if got := both.Deterministic - primaryOnly.Deterministic; got != 10 {
		t.Errorf("Expected secondary category to add 10, got %f", got)
	}
}

func TestColdStartClassificationEarnsNoCategoryPoints(t *testing.T) {
	scorer, _ := newTestScorer()
	cfg := testConfig()
	now := time.Now().UTC()

	published := now.Add(-time.Hour)
	article := testArticle(&published)

	base := scorer.Run(article, cfg, Classification{}, now)
	fallback := scorer.Run(article, cfg, Classification{Primary: "news", Confidence: 0}, now)

	if fallback.Deterministic != base.Deterministic {
		t.Errorf("Zero-confidence classification must not change the score: %f != %f",
			fallback.Deterministic, base.Deterministic)
	}
}

func TestSourceCredibilityWeightsBonus(t *testing.T) {
	scorer, _ := newTestScorer()
	cfg := testConfig()
	now := time.Now().UTC()

	published := now.Add(-time.Hour)
	full := testArticle(&published)
	half := full
	half.Credibility = 0.5

	fullScore := scorer.Run(full, cfg, Classification{}, now)
	halfScore := scorer.Run(half, cfg, Classification{}, now)

	// Source bonus 8 halves to 4, recency x2.0 makes the gap 8.
	if got := fullScore.Deterministic - halfScore.Deterministic; got != 8 {
		t.Errorf("Expected half credibility to cost 8 points, got %f", got)
	}
}

func TestRecencyMonotonicity(t *testing.T) {
	scorer, _ := newTestScorer()
	cfg := testConfig()
	now := time.Now().UTC()

	fresh := now.Add(-time.Hour)
	stale := now.Add(-100 * time.Hour)

	freshScore := scorer.Run(testArticle(&fresh), cfg, Classification{}, now)
	staleScore := scorer.Run(testArticle(&stale), cfg, Classification{}, now)

	if freshScore.Value < staleScore.Value {
		t.Errorf("Fresh article must not score below stale one: %f < %f",
			freshScore.Value, staleScore.Value)
	}
}

func TestRecencyMultiplierBuckets(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		age  time.Duration
		want float64
	}{
		{time.Hour, 2.0},
		{12 * time.Hour, 1.5},
		{48 * time.Hour, 1.0},
		{100 * time.Hour, 0.5},
	}

	for _, tt := range tests {
		published := now.Add(-tt.age)
		if got := recencyMultiplier(&published, now); got != tt.want {
			t.Errorf("Age %v: expected multiplier %f, got %f", tt.age, tt.want, got)
		}
	}

	if got := recencyMultiplier(nil, now); got != 1.0 {
		t.Errorf("Missing published date must use the neutral multiplier, got %f", got)
	}
}

func TestZeroScoreFloor(t *testing.T) {
	scorer, _ := newTestScorer()
	cfg := testConfig()
	now := time.Now().UTC()

	// No keyword hits at all, but present in the scoring stage means
	// the hard filter passed upstream.
	article := sources.CandidateArticle{Title: "Quiet day", SourceName: "nobody", FetchedAt: now}
	score := scorer.Run(article, cfg, Classification{}, now)

	if score.Value != zeroScoreFloor {
		t.Errorf("Expected floor score %f, got %f", zeroScoreFloor, score.Value)
	}
}

func TestPenaltiesReduceScore(t *testing.T) {
	scorer, _ := newTestScorer()
	cfg := testConfig()
	now := time.Now().UTC()

	published := now.Add(-time.Hour)
	clean := testArticle(&published)
	clickbait := clean
	clickbait.Title = "You won't believe what the city council did with the budget in Viborg"

	cleanScore := scorer.Run(clean, cfg, Classification{}, now)
	baitScore := scorer.Run(clickbait, cfg, Classification{}, now)

	if baitScore.Value >= cleanScore.Value {
		t.Errorf("Clickbait penalty should lower the score: %f >= %f",
			baitScore.Value, cleanScore.Value)
	}
}

func TestLearnedAdjustmentShiftsScore(t *testing.T) {
	scorer, store := newTestScorer()
	cfg := testConfig()
	now := time.Now().UTC()
	published := now.Add(-time.Hour)
	article := testArticle(&published)

	baseline := scorer.Run(article, cfg, Classification{}, now)

	// Curators consistently rejected articles with these features.
	features := ExtractFeatures(article, cfg.NearbyPlaces)
	for i := 0; i < 20; i++ {
		store.Increment(cfg.Region, TableRelevance, features, false)
	}

	adjusted := scorer.Run(article, cfg, Classification{}, now)
	if adjusted.Value >= baseline.Value {
		t.Errorf("Reject history should lower the score: %f >= %f",
			adjusted.Value, baseline.Value)
	}
	if adjusted.LearnedAdjustment >= 0 {
		t.Errorf("Expected negative learned adjustment, got %f", adjusted.LearnedAdjustment)
	}
}

func TestRecordFeedbackTrainsLearner(t *testing.T) {
	scorer, store := newTestScorer()
	cfg := testConfig()
	article := testArticle(nil)

	if err := scorer.RecordFeedback(article, cfg, true); err != nil {
		t.Fatalf("RecordFeedback failed: %v", err)
	}

	n, _ := store.TrainedExamples(cfg.Region, TableRelevance)
	if n == 0 {
		t.Error("Expected feedback to increment feature counters")
	}
}

func TestHardFilter(t *testing.T) {
	cfg := testConfig()

	local := sources.CandidateArticle{Title: "New school opens in Viborg"}
	if !HardFilter(local, cfg, true) {
		t.Error("Article mentioning a local place should pass the hard filter")
	}

	foreign := sources.CandidateArticle{Title: "Stock markets rally worldwide"}
	if HardFilter(foreign, cfg, true) {
		t.Error("Article without local signal should fail for requires_local sources")
	}
	if !HardFilter(foreign, cfg, false) {
		t.Error("Sources without the requires_local flag pass regardless")
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
