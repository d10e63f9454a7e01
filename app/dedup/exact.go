package dedup

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/nordby/newswire/app/sources"
)

// ExactKey computes the identity key of a candidate: the canonical URL
// when present, otherwise normalized title + source + published date.
func ExactKey(c sources.CandidateArticle) string {
	if url := strings.TrimSpace(c.URL); url != "" {
		return url
	}

	date := "undated"
	if c.PublishedAt != nil {
		date = c.PublishedAt.UTC().Format("2006-01-02")
	}

	return fmt.Sprintf("%s|%s|%s", NormalizeTitle(c.Title), c.SourceName, date)
}

// DedupeExact drops later duplicates of the same identity key within a
// batch. First-seen wins; ordering inside the batch is preserved.
func DedupeExact(batch []sources.CandidateArticle) []sources.CandidateArticle {
	seen := make(map[string]int, len(batch))
	survivors := make([]sources.CandidateArticle, 0, len(batch))

	for _, c := range batch {
		key := ExactKey(c)
		if firstIdx, ok := seen[key]; ok {
			slog.Debug("Exact duplicate dropped",
				"title", c.Title,
				"source", c.SourceName,
				"kept_source", survivors[firstIdx].SourceName)
			continue
		}
		seen[key] = len(survivors)
		survivors = append(survivors, c)
	}

	return survivors
}
