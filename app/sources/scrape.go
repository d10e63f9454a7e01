package sources

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// ScrapeAdapter produces candidates from an HTML index page. The
// site-specific part is entirely in the descriptor's selectors, so one
// adapter serves every scraping target.
//
// Recognized selectors: item (required), title, link, summary, image, date.
// When a sub-selector is missing a sensible fallback is used.
type ScrapeAdapter struct {
	deps   Deps
	client *http.Client
}

func NewScrapeAdapter(deps Deps) *ScrapeAdapter {
	return &ScrapeAdapter{
		deps:   deps,
		client: newHTTPClient(deps.Timeout),
	}
}

func (a *ScrapeAdapter) Fetch(ctx context.Context, cfg Config) ([]CandidateArticle, error) {
	data, err := fetchBody(ctx, a.client, a.deps.Cache, cfg.Name, a.deps.UserAgent, cfg.URL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, &FetchError{Source: cfg.Name, Err: fmt.Errorf("failed to parse HTML: %w", err)}
	}

	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, &FetchError{Source: cfg.Name, Err: fmt.Errorf("invalid source URL: %w", err)}
	}

	now := time.Now().UTC()
	var candidates []CandidateArticle

	doc.Find(cfg.Selectors["item"]).Each(func(i int, s *goquery.Selection) {
		candidate := a.extractItem(s, cfg, base, now)
		if candidate.Title == "" {
			return
		}
		candidates = append(candidates, candidate)
	})

	if cfg.ExtractContent {
		for i := range candidates {
			if candidates[i].URL == "" || candidates[i].Content != "" {
				continue
			}
			content, err := a.extractFullContent(ctx, cfg, candidates[i].URL)
			if err != nil {
				// Article-level skip: list data is still usable.
				slog.Debug("Content extraction failed",
					"source", cfg.Name, "url", candidates[i].URL, "error", err)
				continue
			}
			candidates[i].Content = content
		}
	}

	return candidates, nil
}

func (a *ScrapeAdapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

func (a *ScrapeAdapter) extractItem(s *goquery.Selection, cfg Config, base *url.URL, fetchedAt time.Time) CandidateArticle {
	candidate := CandidateArticle{
		SourceName:  cfg.Name,
		Category:    cfg.Category,
		Credibility: cfg.Credibility,
		FetchedAt:   fetchedAt,
	}

	titleSel := s
	if sel := cfg.Selectors["title"]; sel != "" {
		titleSel = s.Find(sel)
	}
	candidate.Title = strings.TrimSpace(titleSel.First().Text())

	linkSel := s
	if sel := cfg.Selectors["link"]; sel != "" {
		linkSel = s.Find(sel)
	}
	if href, ok := firstAttr(linkSel, "href"); ok {
		candidate.URL = resolveURL(base, href)
	}

	if sel := cfg.Selectors["summary"]; sel != "" {
		candidate.Summary = strings.TrimSpace(s.Find(sel).First().Text())
	}

	if sel := cfg.Selectors["image"]; sel != "" {
		if src, ok := firstAttr(s.Find(sel), "src"); ok {
			candidate.ImageURL = resolveURL(base, src)
		}
	}

	if sel := cfg.Selectors["date"]; sel != "" {
		candidate.PublishedAt = parseDate(s.Find(sel).First())
	}

	return candidate
}

func (a *ScrapeAdapter) extractFullContent(ctx context.Context, cfg Config, articleURL string) (string, error) {
	data, err := fetchBody(ctx, a.client, a.deps.Cache, cfg.Name, a.deps.UserAgent, articleURL)
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(strings.NewReader(string(data)), nil)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	if article.TextContent == "" {
		return "", fmt.Errorf("no content extracted")
	}

	return article.TextContent, nil
}

func firstAttr(s *goquery.Selection, attr string) (string, bool) {
	// The link may be on the matched node itself or on a nested anchor.
	if v, ok := s.First().Attr(attr); ok && v != "" {
		return v, true
	}
	if v, ok := s.Find("a").First().Attr(attr); ok && v != "" {
		return v, true
	}
	return "", false
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// parseDate tries the datetime attribute first, then the node text,
// over the formats local news sites actually emit.
func parseDate(s *goquery.Selection) *time.Time {
	raw, ok := s.Attr("datetime")
	if !ok {
		raw = s.Text()
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
		"02.01.2006 15:04",
		"02.01.2006",
		"January 2, 2006",
		"Jan 2, 2006",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
