package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// CalendarAdapter scrapes government event calendars (council meetings,
// hearings, public sessions). Events become dated candidates so they
// flow through the same dedup and scoring path as regular articles.
type CalendarAdapter struct {
	deps   Deps
	client *http.Client
}

func NewCalendarAdapter(deps Deps) *CalendarAdapter {
	return &CalendarAdapter{
		deps:   deps,
		client: newHTTPClient(deps.Timeout),
	}
}

func (a *CalendarAdapter) Fetch(ctx context.Context, cfg Config) ([]CandidateArticle, error) {
	data, err := fetchBody(ctx, a.client, a.deps.Cache, cfg.Name, a.deps.UserAgent, cfg.URL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, &FetchError{Source: cfg.Name, Err: fmt.Errorf("failed to parse calendar HTML: %w", err)}
	}

	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, &FetchError{Source: cfg.Name, Err: fmt.Errorf("invalid source URL: %w", err)}
	}

	now := time.Now().UTC()
	var candidates []CandidateArticle

	doc.Find(cfg.Selectors["item"]).Each(func(i int, s *goquery.Selection) {
		title := strings.TrimSpace(firstText(s, cfg.Selectors["title"]))
		if title == "" {
			return
		}

		candidate := CandidateArticle{
			Title:       title,
			Summary:     strings.TrimSpace(firstText(s, cfg.Selectors["summary"])),
			SourceName:  cfg.Name,
			Category:    cfg.Category,
			Credibility: cfg.Credibility,
			FetchedAt:   now,
		}

		if sel := cfg.Selectors["link"]; sel != "" {
			if href, ok := firstAttr(s.Find(sel), "href"); ok {
				candidate.URL = resolveURL(base, href)
			}
		}

		if sel := cfg.Selectors["date"]; sel != "" {
			candidate.PublishedAt = parseDate(s.Find(sel).First())
		}

		// Future events are dated at announcement time for scoring;
		// the event date itself stays in the summary.
		if candidate.PublishedAt != nil && candidate.PublishedAt.After(now) {
			eventDate := candidate.PublishedAt.Format("2006-01-02")
			if candidate.Summary == "" {
				candidate.Summary = "Scheduled for " + eventDate
			}
			candidate.PublishedAt = nil
		}

		candidates = append(candidates, candidate)
	})

	return candidates, nil
}

func (a *CalendarAdapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

func firstText(s *goquery.Selection, selector string) string {
	if selector == "" {
		return s.Text()
	}
	return s.Find(selector).First().Text()
}
