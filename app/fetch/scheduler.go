package fetch

import (
	"time"

	"github.com/nordby/newswire/app/sources"
)

const (
	// obituaryInterval is the fixed cadence for obituary-like sources;
	// four fetches a day is plenty.
	obituaryInterval = 6 * time.Hour

	// rateLimitPenalty is the minimum wait after a rate-limit response.
	rateLimitPenalty = 30 * time.Minute

	// rateLimitWindow is how long a rate-limit error keeps slowing the
	// source down.
	rateLimitWindow = time.Hour
)

// Scheduler decides which sources are due for a refetch. It is a pure
// decision function over fetch-health state; no side effects.
type Scheduler struct {
	DefaultInterval time.Duration
}

func NewScheduler(defaultInterval time.Duration) *Scheduler {
	return &Scheduler{DefaultInterval: defaultInterval}
}

// Due returns the subset of sources whose refetch cutoff has passed.
// force bypasses the cutoff entirely but still skips disabled sources.
func (s *Scheduler) Due(allSources []sources.Config, health map[string]Health, now time.Time, force bool) []sources.Config {
	var due []sources.Config
	for _, src := range allSources {
		if !src.Enabled {
			continue
		}
		if force || s.isDue(src, health[src.Name], now) {
			due = append(due, src)
		}
	}
	return due
}

func (s *Scheduler) isDue(src sources.Config, h Health, now time.Time) bool {
	if h.LastFetchAt == nil {
		return true
	}

	cutoff := s.cutoff(src, h, now)
	return now.Sub(*h.LastFetchAt) >= cutoff
}

func (s *Scheduler) cutoff(src sources.Config, h Health, now time.Time) time.Duration {
	interval := s.DefaultInterval
	if src.RefreshInterval > 0 {
		interval = time.Duration(src.RefreshInterval) * time.Minute
	}

	if src.Category == "obituaries" && interval < obituaryInterval {
		interval = obituaryInterval
	}

	if h.LastRateLimitAt != nil && now.Sub(*h.LastRateLimitAt) < rateLimitWindow {
		if interval < rateLimitPenalty {
			interval = rateLimitPenalty
		}
	}

	return interval
}
