package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nordby/newswire/app/dedup"
	"github.com/nordby/newswire/app/relevance"
	"github.com/nordby/newswire/app/sources"
)

// ArticleRepository handles article rows and their lifecycle overlay.
type ArticleRepository struct {
	db *DB
}

// NewArticleRepository creates a new article repository
func NewArticleRepository(db *DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

// ReconcileInput carries one scored candidate into persistence.
type ReconcileInput struct {
	Candidate     sources.CandidateArticle
	Score         relevance.Score
	Class         relevance.Classification
	Region        string
	HardFiltered  bool // failed the regional hard filter, never scored
	HardFloor     float64
	SoftThreshold float64
	Now           time.Time
}

// ReconcileResult reports what Reconcile did with a candidate.
type ReconcileResult struct {
	ID      string
	Created bool
	Status  string
}

// Reconcile persists a scored candidate. An existing identity is never
// re-inserted: enabled rows absorb missing fields, manually rejected rows
// stay rejected. A genuinely new identity gets a row plus an initial
// lifecycle status derived from the score thresholds. A unique-constraint
// race on insert is resolved by re-querying, never treated as fatal.
func (r *ArticleRepository) Reconcile(in ReconcileInput) (ReconcileResult, error) {
	existing, err := r.findByIdentity(in.Candidate)
	if err != nil {
		return ReconcileResult{}, err
	}
	if existing != nil {
		return r.absorb(existing, in)
	}

	id, err := r.insert(in)
	if err != nil {
		if !isUniqueViolation(err) {
			return ReconcileResult{}, err
		}
		// Lost the insert race: someone else persisted this identity
		// between our existence check and the insert.
		existing, qerr := r.findByIdentity(in.Candidate)
		if qerr != nil {
			return ReconcileResult{}, qerr
		}
		if existing == nil {
			return ReconcileResult{}, err
		}
		return r.absorb(existing, in)
	}

	status := initialStatus(id, in)
	if err := r.appendStatus(status); err != nil {
		return ReconcileResult{}, err
	}

	slog.Debug("Article persisted", "id", id, "title", in.Candidate.Title,
		"region", in.Region, "score", in.Score.Value, "status", status.Status)

	return ReconcileResult{ID: id, Created: true, Status: status.Status}, nil
}

func (r *ArticleRepository) absorb(existing *Article, in ReconcileInput) (ReconcileResult, error) {
	latest, err := r.LatestStatus(existing.ID, in.Region)
	if err != nil {
		return ReconcileResult{}, err
	}

	if latest == nil {
		// Known article, first sighting in this region.
		status := initialStatus(existing.ID, in)
		if err := r.appendStatus(status); err != nil {
			return ReconcileResult{}, err
		}
		return ReconcileResult{ID: existing.ID, Status: status.Status}, nil
	}

	if latest.Status == StatusManuallyRejected {
		slog.Debug("Dropping re-fetched candidate, rejection is sticky",
			"id", existing.ID, "title", in.Candidate.Title, "region", in.Region)
		return ReconcileResult{ID: existing.ID, Status: StatusManuallyRejected}, nil
	}

	if err := r.refreshMissing(existing, in.Candidate, in.Now); err != nil {
		return ReconcileResult{}, err
	}

	return ReconcileResult{ID: existing.ID, Status: latest.Status}, nil
}

// refreshMissing fills fields the first fetch didn't have. Existing
// values are never overwritten.
func (r *ArticleRepository) refreshMissing(existing *Article, c sources.CandidateArticle, now time.Time) error {
	var sets []string
	var args []interface{}

	if existing.ImageURL == "" && c.ImageURL != "" {
		sets = append(sets, "image_url = ?")
		args = append(args, c.ImageURL)
	}
	if existing.Content == "" && c.Content != "" {
		sets = append(sets, "content = ?")
		args = append(args, c.Content)
	}
	if existing.Summary == "" && c.Summary != "" {
		sets = append(sets, "summary = ?")
		args = append(args, c.Summary)
	}
	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, now.UTC(), existing.ID)

	query := "UPDATE articles SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if _, err := r.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to refresh article fields: %w", err)
	}
	return nil
}

func (r *ArticleRepository) insert(in ReconcileInput) (string, error) {
	id := uuid.NewString()
	c := in.Candidate

	var publishedAt interface{}
	if c.PublishedAt != nil {
		publishedAt = c.PublishedAt.UTC()
	}

	_, err := r.db.Exec(`
		INSERT INTO articles (
			id, url, fallback_key, title, summary, content, image_url,
			source, region, category_primary, category_secondary,
			category_confidence, score, local_focus,
			published_at, fetched_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, c.URL, fallbackKey(c), c.Title, c.Summary, c.Content, c.ImageURL,
		c.SourceName, in.Region, in.Class.Primary, in.Class.Secondary,
		in.Class.Confidence, in.Score.Value, in.Score.LocalFocus,
		publishedAt, c.FetchedAt.UTC(), in.Now.UTC(), in.Now.UTC())

	if err != nil {
		if isUniqueViolation(err) {
			return "", err
		}
		return "", fmt.Errorf("failed to insert article: %w", err)
	}
	return id, nil
}

func initialStatus(articleID string, in ReconcileInput) Status {
	s := Status{
		ArticleID: articleID,
		Region:    in.Region,
		Status:    StatusEnabled,
		CreatedAt: in.Now.UTC(),
	}
	switch {
	case in.HardFiltered:
		s.Status = StatusAutoRejected
		s.RejectionReason = "no local place or high-relevance phrase matched"
	case in.Score.Value < in.HardFloor:
		s.Status = StatusAutoRejected
		s.RejectionReason = fmt.Sprintf("score %.1f below hard floor %.1f", in.Score.Value, in.HardFloor)
	case in.Score.Value < in.SoftThreshold:
		s.Status = StatusSoftFiltered
		s.RejectionReason = fmt.Sprintf("score %.1f below regional threshold %.1f", in.Score.Value, in.SoftThreshold)
	}
	return s
}

func (r *ArticleRepository) findByIdentity(c sources.CandidateArticle) (*Article, error) {
	var row *sql.Row
	if c.URL != "" {
		row = r.db.QueryRow(articleSelect+" WHERE url = ?", c.URL)
	} else {
		row = r.db.QueryRow(articleSelect+" WHERE fallback_key = ? AND url = ''", fallbackKey(c))
	}

	article, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find article by identity: %w", err)
	}
	return article, nil
}

// GetArticle returns one article with its latest overlay for region.
func (r *ArticleRepository) GetArticle(id, region string) (*Article, error) {
	row := r.db.QueryRow(articleSelect+" WHERE id = ?", id)
	article, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}

	latest, err := r.LatestStatus(id, region)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		article.Status = *latest
	}
	return article, nil
}

// GetEnabled returns enabled articles for a region, newest first.
func (r *ArticleRepository) GetEnabled(region string) ([]Article, error) {
	return r.getByStatus(region, "s.status = ?", StatusEnabled)
}

// GetRejected returns articles held back in a region, with rejection
// reasons, for curator review.
func (r *ArticleRepository) GetRejected(region string) ([]Article, error) {
	return r.getByStatus(region, "s.status != ?", StatusEnabled)
}

func (r *ArticleRepository) getByStatus(region, cond string, arg interface{}) ([]Article, error) {
	rows, err := r.db.Query(`
		SELECT a.id, a.url, a.fallback_key, a.title, a.summary, a.content,
		       a.image_url, a.source, a.region, a.category_primary,
		       a.category_secondary, a.category_confidence, a.score,
		       a.local_focus, a.published_at, a.fetched_at, a.created_at,
		       a.updated_at,
		       s.status, s.rejection_reason, s.top_story, s.featured,
		       s.good_fit, s.top_story_changed_at, s.featured_changed_at,
		       s.good_fit_changed_at, s.created_at
		FROM articles a
		JOIN article_status s ON s.article_id = a.id AND s.region = ?
		WHERE s.id = (
			SELECT MAX(id) FROM article_status
			WHERE article_id = a.id AND region = ?
		)
		AND `+cond+`
		ORDER BY COALESCE(a.published_at, a.created_at) DESC
	`, region, region, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var a Article
		var publishedAt, topAt, featAt, fitAt sql.NullTime
		err := rows.Scan(
			&a.ID, &a.URL, &a.FallbackKey, &a.Title, &a.Summary, &a.Content,
			&a.ImageURL, &a.Source, &a.Region, &a.CategoryPrimary,
			&a.CategorySecondary, &a.CategoryConfidence, &a.Score,
			&a.LocalFocus, &publishedAt, &a.FetchedAt, &a.CreatedAt,
			&a.UpdatedAt,
			&a.Status.Status, &a.Status.RejectionReason, &a.Status.TopStory,
			&a.Status.Featured, &a.Status.GoodFit, &topAt, &featAt, &fitAt,
			&a.Status.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		a.PublishedAt = nullableTime(publishedAt)
		a.Status.ArticleID = a.ID
		a.Status.Region = region
		a.Status.TopStoryChangedAt = nullableTime(topAt)
		a.Status.FeaturedChangedAt = nullableTime(featAt)
		a.Status.GoodFitChangedAt = nullableTime(fitAt)
		articles = append(articles, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article rows: %w", err)
	}
	return articles, nil
}

// SetLifecycleFlag appends a new overlay row with one flag changed.
// FlagEnabled toggles between enabled and manually_rejected; the overlay
// flags each carry their own change timestamp.
func (r *ArticleRepository) SetLifecycleFlag(articleID, region, flag string, value bool, now time.Time) error {
	latest, err := r.LatestStatus(articleID, region)
	if err != nil {
		return err
	}
	if latest == nil {
		return fmt.Errorf("article %s has no lifecycle state in region %s", articleID, region)
	}

	next := *latest
	next.CreatedAt = now.UTC()
	at := now.UTC()

	switch flag {
	case FlagEnabled:
		if value {
			next.Status = StatusEnabled
			next.RejectionReason = ""
		} else {
			next.Status = StatusManuallyRejected
			next.RejectionReason = "rejected by curator"
		}
	case FlagTopStory:
		next.TopStory = value
		next.TopStoryChangedAt = &at
	case FlagFeatured:
		next.Featured = value
		next.FeaturedChangedAt = &at
	case FlagGoodFit:
		next.GoodFit = value
		next.GoodFitChangedAt = &at
	default:
		return fmt.Errorf("unknown lifecycle flag: %s", flag)
	}

	return r.appendStatus(next)
}

// SetCategory reassigns an article's primary category.
func (r *ArticleRepository) SetCategory(articleID, category string, now time.Time) error {
	res, err := r.db.Exec(`UPDATE articles SET category_primary = ?, updated_at = ? WHERE id = ?`,
		category, now.UTC(), articleID)
	if err != nil {
		return fmt.Errorf("failed to set category: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set category: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("article %s not found", articleID)
	}
	return nil
}

// ExpireTopStories clears top-story flags untouched for longer than
// maxAge. Returns the number of articles expired.
func (r *ArticleRepository) ExpireTopStories(maxAge time.Duration, now time.Time) (int, error) {
	rows, err := r.db.Query(`
		SELECT article_id, region, top_story_changed_at
		FROM article_status
		WHERE id IN (
			SELECT MAX(id) FROM article_status GROUP BY article_id, region
		)
		AND top_story = 1
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to query top stories: %w", err)
	}

	type target struct {
		articleID string
		region    string
	}
	var targets []target
	for rows.Next() {
		var t target
		var changedAt sql.NullTime
		if err := rows.Scan(&t.articleID, &t.region, &changedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan top story row: %w", err)
		}
		if changedAt.Valid && now.Sub(changedAt.Time) >= maxAge {
			targets = append(targets, t)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating top story rows: %w", err)
	}

	for _, t := range targets {
		if err := r.SetLifecycleFlag(t.articleID, t.region, FlagTopStory, false, now); err != nil {
			return 0, err
		}
		slog.Info("Top story flag expired", "articleId", t.articleID, "region", t.region)
	}
	return len(targets), nil
}

// LatestStatus returns the authoritative overlay row for (articleID,
// region), or nil when none exists.
func (r *ArticleRepository) LatestStatus(articleID, region string) (*Status, error) {
	row := r.db.QueryRow(`
		SELECT article_id, region, status, rejection_reason,
		       top_story, featured, good_fit,
		       top_story_changed_at, featured_changed_at, good_fit_changed_at,
		       created_at
		FROM article_status
		WHERE article_id = ? AND region = ?
		ORDER BY id DESC
		LIMIT 1
	`, articleID, region)

	var s Status
	var topAt, featAt, fitAt sql.NullTime
	err := row.Scan(&s.ArticleID, &s.Region, &s.Status, &s.RejectionReason,
		&s.TopStory, &s.Featured, &s.GoodFit, &topAt, &featAt, &fitAt,
		&s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest status: %w", err)
	}
	s.TopStoryChangedAt = nullableTime(topAt)
	s.FeaturedChangedAt = nullableTime(featAt)
	s.GoodFitChangedAt = nullableTime(fitAt)
	return &s, nil
}

// CountByStatus returns article counts per lifecycle status in a region.
func (r *ArticleRepository) CountByStatus(region string) (map[string]int, error) {
	rows, err := r.db.Query(`
		SELECT s.status, COUNT(*)
		FROM article_status s
		WHERE s.region = ?
		AND s.id = (
			SELECT MAX(id) FROM article_status
			WHERE article_id = s.article_id AND region = s.region
		)
		GROUP BY s.status
	`, region)
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}
	return counts, nil
}

func (r *ArticleRepository) appendStatus(s Status) error {
	_, err := r.db.Exec(`
		INSERT INTO article_status (
			article_id, region, status, rejection_reason,
			top_story, featured, good_fit,
			top_story_changed_at, featured_changed_at, good_fit_changed_at,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ArticleID, s.Region, s.Status, s.RejectionReason,
		s.TopStory, s.Featured, s.GoodFit,
		nullableArg(s.TopStoryChangedAt), nullableArg(s.FeaturedChangedAt),
		nullableArg(s.GoodFitChangedAt), s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append status row: %w", err)
	}
	return nil
}

const articleSelect = `
	SELECT id, url, fallback_key, title, summary, content, image_url,
	       source, region, category_primary, category_secondary,
	       category_confidence, score, local_focus,
	       published_at, fetched_at, created_at, updated_at
	FROM articles`

func scanArticle(row *sql.Row) (*Article, error) {
	var a Article
	var publishedAt sql.NullTime
	err := row.Scan(&a.ID, &a.URL, &a.FallbackKey, &a.Title, &a.Summary,
		&a.Content, &a.ImageURL, &a.Source, &a.Region, &a.CategoryPrimary,
		&a.CategorySecondary, &a.CategoryConfidence, &a.Score, &a.LocalFocus,
		&publishedAt, &a.FetchedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.PublishedAt = nullableTime(publishedAt)
	return &a, nil
}

// fallbackKey is the composite dedup identity (normalized title, source,
// publish day) used when a source provides no URL.
func fallbackKey(c sources.CandidateArticle) string {
	stripped := c
	stripped.URL = ""
	return dedup.ExactKey(stripped)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func nullableArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
