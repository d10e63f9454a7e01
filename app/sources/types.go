package sources

import (
	"fmt"
	"time"
)

// CandidateArticle is an article as produced by a source adapter. It has
// no identity until it passes deduplication.
type CandidateArticle struct {
	Title       string
	URL         string // canonical URL, may be empty
	Summary     string
	Content     string
	ImageURL    string
	SourceName  string
	Category    string
	Credibility float64    // source credibility weight from the source config
	PublishedAt *time.Time // nil when the source gives no date; never defaulted to now
	FetchedAt   time.Time
}

// Config describes one named source. Loaded from the sources YAML file.
type Config struct {
	Name            string            `yaml:"name"`
	Type            string            `yaml:"type"` // rss, scrape, calendar
	URL             string            `yaml:"url"`
	Enabled         bool              `yaml:"enabled"`
	Category        string            `yaml:"category"`
	RequiresLocal   bool              `yaml:"requires_local"` // drop articles without a strong local signal
	Credibility     float64           `yaml:"credibility"`
	Regions         []string          `yaml:"regions"`   // empty means all regions
	Selectors       map[string]string `yaml:"selectors"` // scrape/calendar adapters only
	ExtractContent  bool              `yaml:"extract_content"`
	RefreshInterval int               `yaml:"refresh_interval"` // minutes, 0 means default
}

// ServesRegion reports whether the source applies to the given region.
func (c *Config) ServesRegion(region string) bool {
	if len(c.Regions) == 0 {
		return true
	}
	for _, r := range c.Regions {
		if r == region {
			return true
		}
	}
	return false
}

// FetchError is the typed failure an adapter returns for network or
// parse problems. StatusCode is 0 when no HTTP response was received.
type FetchError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("source %s: HTTP %d: %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth a second attempt.
// Client errors such as 404 or 403 are permanent for this cycle.
func (e *FetchError) Retryable() bool {
	if e.StatusCode == 0 {
		return true // timeout, connection reset, parse short-read
	}
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// RateLimited reports 403/429-class responses that should slow the
// source's fetch cadence down.
func (e *FetchError) RateLimited() bool {
	return e.StatusCode == 403 || e.StatusCode == 429
}
