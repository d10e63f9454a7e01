package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nordby/newswire/app/fetch"
	"github.com/nordby/newswire/app/relevance"
	"github.com/nordby/newswire/app/sources"
	"github.com/nordby/newswire/app/store"
)

func NewHandler(articles *store.ArticleRepository, patterns *store.PatternRepository,
	health fetch.HealthStore, configs *relevance.Provider, scorer *relevance.Scorer,
	classifier *relevance.Classifier, runner CycleRunner, regions []string) *Handler {
	return &Handler{
		articles:   articles,
		patterns:   patterns,
		health:     health,
		configs:    configs,
		scorer:     scorer,
		classifier: classifier,
		runner:     runner,
		regions:    regions,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"regions":   h.regions,
	}

	// A store round-trip doubles as the liveness check.
	total := 0
	for _, region := range h.regions {
		counts, err := h.articles.CountByStatus(region)
		if err != nil {
			slog.Error("Database error", "operation", "count_by_status", "region", region, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
			return
		}
		for _, n := range counts {
			total += n
		}
	}
	health["articles"] = total

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}

	regions := make(map[string]interface{}, len(h.regions))
	for _, region := range h.regions {
		counts, err := h.articles.CountByStatus(region)
		if err != nil {
			slog.Error("Database error", "operation", "count_by_status", "region", region, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}

		regionStats := map[string]interface{}{
			"articles": counts,
		}

		// The pattern store never prunes, so its growth is worth watching.
		if patternCount, err := h.patterns.PatternCount(region); err == nil {
			regionStats["learned_patterns"] = patternCount
		}
		if trained, err := h.patterns.TrainedExamples(region, relevance.TableRelevance); err == nil {
			regionStats["trained_examples"] = trained
		}

		regions[region] = regionStats
	}
	stats["regions"] = regions

	if health, err := h.health.GetAll(); err == nil {
		srcStats := make(map[string]interface{}, len(health))
		for source, record := range health {
			srcStats[source] = map[string]interface{}{
				"last_fetch_at":   record.LastFetchAt,
				"last_success_at": record.LastSuccessAt,
				"last_count":      record.LastCount,
				"failure_count":   record.FailureCount,
			}
		}
		stats["sources"] = srcStats
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ListEnabled(c *gin.Context) {
	h.listArticles(c, h.articles.GetEnabled)
}

func (h *Handler) ListRejected(c *gin.Context) {
	h.listArticles(c, h.articles.GetRejected)
}

func (h *Handler) listArticles(c *gin.Context, query func(string) ([]store.Article, error)) {
	region := c.Param("region")
	if !h.knownRegion(region) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown region"})
		return
	}

	articles, err := query(region)
	if err != nil {
		slog.Error("Database error", "operation", "list_articles", "region", region, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	out := make([]map[string]interface{}, 0, len(articles))
	for _, a := range articles {
		out = append(out, articleJSON(a))
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"region":   region,
		"articles": out,
		"total":    len(out),
	})
}

type flagRequest struct {
	Region string `json:"region" binding:"required"`
	Flag   string `json:"flag" binding:"required"`
	Value  *bool  `json:"value" binding:"required"`
}

func (h *Handler) APISetFlag(c *gin.Context) {
	id := c.Param("id")

	var req flagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.articles.SetLifecycleFlag(id, req.Region, req.Flag, *req.Value, time.Now()); err != nil {
		slog.Error("Failed to set lifecycle flag", "articleId", id, "flag", req.Flag, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Trash, restore and good-fit toggles are curator verdicts, so they
	// train the pattern store the same way explicit feedback does.
	if req.Flag == store.FlagEnabled || req.Flag == store.FlagGoodFit {
		h.trainFromFlag(id, req.Region, *req.Value)
	}

	c.JSON(http.StatusOK, gin.H{
		"article_id": id,
		"flag":       req.Flag,
		"value":      *req.Value,
	})
}

// trainFromFlag records a lifecycle toggle as learner feedback. The flag
// write already succeeded, so training failures are logged, not surfaced.
func (h *Handler) trainFromFlag(id, region string, accepted bool) {
	article, err := h.articles.GetArticle(id, region)
	if err != nil || article == nil {
		slog.Warn("Skipping flag feedback, article unavailable", "articleId", id, "error", err)
		return
	}

	rcfg, err := h.configs.Load(region, false)
	if err != nil {
		slog.Warn("Skipping flag feedback, relevance config unavailable", "region", region, "error", err)
		return
	}

	candidate := candidateFromArticle(article)
	if err := h.scorer.RecordFeedback(candidate, rcfg, accepted); err != nil {
		slog.Warn("Failed to record relevance feedback", "articleId", id, "error", err)
	}
	if article.CategoryPrimary != "" {
		if err := h.classifier.RecordFeedback(candidate, rcfg, article.CategoryPrimary, accepted); err != nil {
			slog.Warn("Failed to record category feedback", "articleId", id, "error", err)
		}
	}
}

type categoryRequest struct {
	Region   string `json:"region" binding:"required"`
	Category string `json:"category" binding:"required"`
}

// APISetCategory reassigns an article's primary category and trains the
// classifier on the correction: the old category counts as a reject, the
// new one as an accept.
func (h *Handler) APISetCategory(c *gin.Context) {
	id := c.Param("id")

	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	article, err := h.articles.GetArticle(id, req.Region)
	if err != nil {
		slog.Error("Database error", "operation", "get_article", "articleId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if article == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
		return
	}

	previous := article.CategoryPrimary
	if err := h.articles.SetCategory(id, req.Category, time.Now()); err != nil {
		slog.Error("Failed to set category", "articleId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if rcfg, err := h.configs.Load(req.Region, false); err == nil {
		candidate := candidateFromArticle(article)
		if previous != "" && previous != req.Category {
			if err := h.classifier.RecordFeedback(candidate, rcfg, previous, false); err != nil {
				slog.Warn("Failed to record category feedback", "articleId", id, "error", err)
			}
		}
		if err := h.classifier.RecordFeedback(candidate, rcfg, req.Category, true); err != nil {
			slog.Warn("Failed to record category feedback", "articleId", id, "error", err)
		}
	} else {
		slog.Warn("Skipping category feedback, relevance config unavailable", "region", req.Region, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"article_id": id,
		"category":   req.Category,
		"previous":   previous,
	})
}

type feedbackRequest struct {
	Region   string `json:"region" binding:"required"`
	Accepted *bool  `json:"accepted" binding:"required"`
}

// APIRecordFeedback trains the learner from one curator verdict.
func (h *Handler) APIRecordFeedback(c *gin.Context) {
	id := c.Param("id")

	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	article, err := h.articles.GetArticle(id, req.Region)
	if err != nil {
		slog.Error("Database error", "operation", "get_article", "articleId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if article == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
		return
	}

	rcfg, err := h.configs.Load(req.Region, false)
	if err != nil {
		slog.Error("Relevance config unavailable", "region", req.Region, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Relevance config unavailable"})
		return
	}

	candidate := candidateFromArticle(article)

	if err := h.scorer.RecordFeedback(candidate, rcfg, *req.Accepted); err != nil {
		slog.Error("Failed to record relevance feedback", "articleId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record feedback"})
		return
	}
	if article.CategoryPrimary != "" {
		if err := h.classifier.RecordFeedback(candidate, rcfg, article.CategoryPrimary, *req.Accepted); err != nil {
			slog.Warn("Failed to record category feedback", "articleId", id, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"article_id": id,
		"accepted":   *req.Accepted,
	})
}

type refreshRequest struct {
	Region string `json:"region"`
}

// APIRefresh forces an ingestion cycle, bypassing the due-check.
func (h *Handler) APIRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	regions := h.regions
	if req.Region != "" {
		if !h.knownRegion(req.Region) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown region"})
			return
		}
		regions = []string{req.Region}
	}

	reports := make(map[string]interface{}, len(regions))
	for _, region := range regions {
		report, err := h.runner.RunCycle(c.Request.Context(), region, true)
		if err != nil {
			slog.Error("Forced cycle failed", "region", region, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Cycle failed", "region": region})
			return
		}

		errs := make(map[string]string, len(report.SourceErrors))
		for source, srcErr := range report.SourceErrors {
			errs[source] = srcErr.Error()
		}
		reports[region] = map[string]interface{}{
			"sources_due":   report.SourcesDue,
			"fetched":       report.Fetched,
			"duplicates":    report.Duplicates,
			"hard_filtered": report.HardFiltered,
			"persisted":     report.Persisted,
			"created":       report.Created,
			"source_errors": errs,
		}
	}

	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// APIInvalidateRelevance drops the cached relevance config after a
// curator edit; the next cycle rereads it from disk.
func (h *Handler) APIInvalidateRelevance(c *gin.Context) {
	region := c.Param("region")
	if !h.knownRegion(region) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown region"})
		return
	}

	h.configs.Invalidate(region)
	c.JSON(http.StatusOK, gin.H{"region": region, "invalidated": true})
}

func (h *Handler) knownRegion(region string) bool {
	if region == "" {
		return false
	}
	for _, r := range h.regions {
		if r == region {
			return true
		}
	}
	return false
}

// candidateFromArticle rebuilds the feature-extraction view of a stored
// article for learner training.
func candidateFromArticle(a *store.Article) sources.CandidateArticle {
	return sources.CandidateArticle{
		Title:      a.Title,
		Summary:    a.Summary,
		Content:    a.Content,
		SourceName: a.Source,
	}
}

func articleJSON(a store.Article) map[string]interface{} {
	return map[string]interface{}{
		"id":                 a.ID,
		"title":              a.Title,
		"url":                a.URL,
		"summary":            a.Summary,
		"image_url":          a.ImageURL,
		"source":             a.Source,
		"category_primary":   a.CategoryPrimary,
		"category_secondary": a.CategorySecondary,
		"score":              a.Score,
		"local_focus":        a.LocalFocus,
		"published_at":       a.PublishedAt,
		"fetched_at":         a.FetchedAt,
		"status":             a.Status.Status,
		"rejection_reason":   a.Status.RejectionReason,
		"top_story":          a.Status.TopStory,
		"featured":           a.Status.Featured,
		"good_fit":           a.Status.GoodFit,
	}
}
