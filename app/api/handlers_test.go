package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nordby/newswire/app/cache"
	"github.com/nordby/newswire/app/pipeline"
	"github.com/nordby/newswire/app/relevance"
	"github.com/nordby/newswire/app/sources"
	"github.com/nordby/newswire/app/store"
)

const testAPIKey = "test-key"

type stubRunner struct {
	regions []string
}

func (s *stubRunner) RunCycle(ctx context.Context, region string, force bool) (*pipeline.CycleReport, error) {
	s.regions = append(s.regions, region)
	return &pipeline.CycleReport{Region: region, SourceErrors: map[string]error{}}, nil
}

type testAPI struct {
	server   *gin.Engine
	articles *store.ArticleRepository
	patterns *store.PatternRepository
	runner   *stubRunner
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db, err := store.NewConnection(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, _, err := store.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	relevanceDir := t.TempDir()
	yml := "local_places:\n  viborg: 15\nsoft_threshold: 30\n"
	if err := os.WriteFile(filepath.Join(relevanceDir, "8800.yml"), []byte(yml), 0644); err != nil {
		t.Fatalf("Failed to write relevance config: %v", err)
	}

	c := cache.New()
	t.Cleanup(c.Stop)

	articles := store.NewArticleRepository(db)
	patterns := store.NewPatternRepository(db)
	learner := relevance.NewLearner(patterns)
	runner := &stubRunner{}

	handler := NewHandler(articles, patterns, store.NewHealthRepository(db),
		relevance.NewProvider(relevanceDir, c), relevance.NewScorer(learner),
		relevance.NewClassifier(learner), runner, []string{"8800"})

	return &testAPI{
		server:   NewServer(handler, testAPIKey),
		articles: articles,
		patterns: patterns,
		runner:   runner,
	}
}

func (a *testAPI) seedArticle(t *testing.T, title, url string, score float64) string {
	t.Helper()

	published := time.Now().Add(-time.Hour)
	res, err := a.articles.Reconcile(store.ReconcileInput{
		Candidate: sources.CandidateArticle{
			Title:       title,
			URL:         url,
			Summary:     "Viborg city council news.",
			SourceName:  "city-news",
			PublishedAt: &published,
			FetchedAt:   time.Now(),
		},
		Score:         relevance.Score{Value: score},
		Class:         relevance.Classification{Primary: "government"},
		Region:        "8800",
		HardFloor:     15,
		SoftThreshold: 30,
		Now:           time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to seed article: %v", err)
	}
	return res.ID
}

func (a *testAPI) request(t *testing.T, method, path string, body interface{}, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("X-API-Key", testAPIKey)
	}

	w := httptest.NewRecorder()
	a.server.ServeHTTP(w, req)
	return w
}

func TestListEnabledArticles(t *testing.T) {
	api := newTestAPI(t)
	api.seedArticle(t, "Budget Approved", "https://example.com/budget", 60)
	api.seedArticle(t, "Low Score Story", "https://example.com/low", 10)

	w := api.request(t, "GET", "/regions/8800/articles", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Articles []map[string]interface{} `json:"articles"`
		Total    int                      `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("Expected 1 enabled article, got %d", resp.Total)
	}
	if resp.Articles[0]["title"] != "Budget Approved" {
		t.Errorf("Unexpected article: %v", resp.Articles[0])
	}

	w = api.request(t, "GET", "/regions/8800/rejected", nil, false)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("Expected 1 rejected article, got %d", resp.Total)
	}
}

func TestListUnknownRegion(t *testing.T) {
	api := newTestAPI(t)

	w := api.request(t, "GET", "/regions/9999/articles", nil, false)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown region, got %d", w.Code)
	}
}

func TestCuratorEndpointsRequireAuth(t *testing.T) {
	api := newTestAPI(t)
	id := api.seedArticle(t, "Budget Approved", "https://example.com/budget", 60)

	body := map[string]interface{}{"region": "8800", "flag": "top_story", "value": true}

	w := api.request(t, "POST", "/api/articles/"+id+"/flags", body, false)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", w.Code)
	}

	w = api.request(t, "POST", "/api/articles/"+id+"/flags", body, true)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with key, got %d: %s", w.Code, w.Body.String())
	}

	status, err := api.articles.LatestStatus(id, "8800")
	if err != nil || status == nil {
		t.Fatalf("LatestStatus failed: %v", err)
	}
	if !status.TopStory {
		t.Error("Expected top_story flag set")
	}
}

func TestSetFlagRejectsArticle(t *testing.T) {
	api := newTestAPI(t)
	id := api.seedArticle(t, "Budget Approved", "https://example.com/budget", 60)

	body := map[string]interface{}{"region": "8800", "flag": "enabled", "value": false}
	w := api.request(t, "POST", "/api/articles/"+id+"/flags", body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	enabled, _ := api.articles.GetEnabled("8800")
	if len(enabled) != 0 {
		t.Errorf("Expected no enabled articles after rejection, got %d", len(enabled))
	}
}

func TestTrashToggleTrainsLearner(t *testing.T) {
	api := newTestAPI(t)
	id := api.seedArticle(t, "Budget Approved", "https://example.com/budget", 60)

	body := map[string]interface{}{"region": "8800", "flag": "enabled", "value": false}
	w := api.request(t, "POST", "/api/articles/"+id+"/flags", body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	trained, err := api.patterns.TrainedExamples("8800", relevance.TableRelevance)
	if err != nil {
		t.Fatalf("TrainedExamples failed: %v", err)
	}
	if trained == 0 {
		t.Error("Trashing an article must train the relevance table")
	}
}

func TestGoodFitToggleTrainsLearner(t *testing.T) {
	api := newTestAPI(t)
	id := api.seedArticle(t, "Budget Approved", "https://example.com/budget", 60)

	body := map[string]interface{}{"region": "8800", "flag": "good_fit", "value": true}
	w := api.request(t, "POST", "/api/articles/"+id+"/flags", body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	trained, err := api.patterns.TrainedExamples("8800", relevance.TableRelevance)
	if err != nil {
		t.Fatalf("TrainedExamples failed: %v", err)
	}
	if trained == 0 {
		t.Error("A good-fit toggle must train the relevance table")
	}
}

func TestTopStoryToggleDoesNotTrainLearner(t *testing.T) {
	api := newTestAPI(t)
	id := api.seedArticle(t, "Budget Approved", "https://example.com/budget", 60)

	body := map[string]interface{}{"region": "8800", "flag": "top_story", "value": true}
	w := api.request(t, "POST", "/api/articles/"+id+"/flags", body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	trained, err := api.patterns.TrainedExamples("8800", relevance.TableRelevance)
	if err != nil {
		t.Fatalf("TrainedExamples failed: %v", err)
	}
	if trained != 0 {
		t.Errorf("Placement flags are not verdicts, got %d trained examples", trained)
	}
}

func TestSetCategoryTrainsClassifier(t *testing.T) {
	api := newTestAPI(t)
	id := api.seedArticle(t, "Stadium Vote", "https://example.com/stadium", 60)

	body := map[string]interface{}{"region": "8800", "category": "sports"}
	w := api.request(t, "POST", "/api/articles/"+id+"/category", body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	article, err := api.articles.GetArticle(id, "8800")
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if article.CategoryPrimary != "sports" {
		t.Errorf("Expected category sports, got %q", article.CategoryPrimary)
	}

	// Old category rejected, new category accepted.
	oldTrained, err := api.patterns.TrainedExamples("8800", "category:government")
	if err != nil {
		t.Fatalf("TrainedExamples failed: %v", err)
	}
	if oldTrained == 0 {
		t.Error("Expected the previous category table to record the correction")
	}
	newTrained, err := api.patterns.TrainedExamples("8800", "category:sports")
	if err != nil {
		t.Fatalf("TrainedExamples failed: %v", err)
	}
	if newTrained == 0 {
		t.Error("Expected the new category table to record the correction")
	}
}

func TestSetCategoryUnknownArticle(t *testing.T) {
	api := newTestAPI(t)

	body := map[string]interface{}{"region": "8800", "category": "sports"}
	w := api.request(t, "POST", "/api/articles/no-such-id/category", body, true)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", w.Code)
	}
}

func TestRecordFeedback(t *testing.T) {
	api := newTestAPI(t)
	id := api.seedArticle(t, "Budget Approved", "https://example.com/budget", 60)

	body := map[string]interface{}{"region": "8800", "accepted": true}
	w := api.request(t, "POST", "/api/articles/"+id+"/feedback", body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = api.request(t, "GET", "/stats", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 from stats, got %d", w.Code)
	}

	var stats struct {
		Regions map[string]struct {
			TrainedExamples int `json:"trained_examples"`
		} `json:"regions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.Regions["8800"].TrainedExamples == 0 {
		t.Error("Expected feedback to train the pattern store")
	}
}

func TestFeedbackUnknownArticle(t *testing.T) {
	api := newTestAPI(t)

	body := map[string]interface{}{"region": "8800", "accepted": false}
	w := api.request(t, "POST", "/api/articles/no-such-id/feedback", body, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown article, got %d", w.Code)
	}
}

func TestRefreshRunsForcedCycle(t *testing.T) {
	api := newTestAPI(t)

	w := api.request(t, "POST", "/api/refresh", map[string]interface{}{"region": "8800"}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(api.runner.regions) != 1 || api.runner.regions[0] != "8800" {
		t.Errorf("Expected forced cycle for 8800, got %v", api.runner.regions)
	}
}

func TestInvalidateRelevance(t *testing.T) {
	api := newTestAPI(t)

	w := api.request(t, "POST", "/api/relevance/8800/invalidate", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = api.request(t, "POST", "/api/relevance/9999/invalidate", nil, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown region, got %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.seedArticle(t, "Budget Approved", "https://example.com/budget", 60)

	w := api.request(t, "GET", "/health", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var health struct {
		Articles int `json:"articles"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health.Articles != 1 {
		t.Errorf("Expected 1 article in health, got %d", health.Articles)
	}
}
