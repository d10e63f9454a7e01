package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// RSSAdapter produces candidates from an RSS/Atom feed.
type RSSAdapter struct {
	deps   Deps
	client *http.Client
	parser *gofeed.Parser
}

func NewRSSAdapter(deps Deps) *RSSAdapter {
	return &RSSAdapter{
		deps:   deps,
		client: newHTTPClient(deps.Timeout),
		parser: gofeed.NewParser(),
	}
}

func (a *RSSAdapter) Fetch(ctx context.Context, cfg Config) ([]CandidateArticle, error) {
	data, err := fetchBody(ctx, a.client, a.deps.Cache, cfg.Name, a.deps.UserAgent, cfg.URL)
	if err != nil {
		return nil, err
	}

	feed, err := a.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &FetchError{Source: cfg.Name, Err: fmt.Errorf("failed to parse feed: %w", err)}
	}

	now := time.Now().UTC()
	candidates := make([]CandidateArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil || strings.TrimSpace(item.Title) == "" {
			continue
		}
		candidates = append(candidates, a.normalizeItem(item, cfg, now))
	}

	return candidates, nil
}

func (a *RSSAdapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

func (a *RSSAdapter) normalizeItem(item *gofeed.Item, cfg Config, fetchedAt time.Time) CandidateArticle {
	candidate := CandidateArticle{
		Title:       strings.TrimSpace(item.Title),
		URL:         strings.TrimSpace(item.Link),
		Summary:     strings.TrimSpace(item.Description),
		Content:     strings.TrimSpace(item.Content),
		SourceName:  cfg.Name,
		Category:    cfg.Category,
		Credibility: cfg.Credibility,
		FetchedAt:   fetchedAt,
	}

	// A missing published date stays nil. Defaulting to "now" would
	// give stale items a recency boost they have not earned.
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		candidate.PublishedAt = &t
	} else if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		candidate.PublishedAt = &t
	}

	if item.Image != nil {
		candidate.ImageURL = item.Image.URL
	} else if len(item.Enclosures) > 0 && item.Enclosures[0] != nil &&
		strings.HasPrefix(item.Enclosures[0].Type, "image/") {
		candidate.ImageURL = item.Enclosures[0].URL
	}

	return candidate
}
