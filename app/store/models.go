package store

import (
	"time"
)

// Lifecycle statuses. An article enters as enabled, soft_filtered or
// auto_rejected depending on its score; curators toggle between enabled
// and manually_rejected afterwards.
const (
	StatusEnabled          = "enabled"
	StatusSoftFiltered     = "soft_filtered"
	StatusAutoRejected     = "auto_rejected"
	StatusManuallyRejected = "manually_rejected"
)

// Overlay flags accepted by SetLifecycleFlag.
const (
	FlagEnabled  = "enabled"
	FlagTopStory = "top_story"
	FlagFeatured = "featured"
	FlagGoodFit  = "good_fit"
)

// Article is a persisted article row.
type Article struct {
	ID                 string // Database UUID
	URL                string
	FallbackKey        string // Dedup identity when the source has no URL
	Title              string
	Summary            string
	Content            string
	ImageURL           string
	Source             string
	Region             string
	CategoryPrimary    string
	CategorySecondary  string
	CategoryConfidence float64
	Score              float64
	LocalFocus         float64
	PublishedAt        *time.Time
	FetchedAt          time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time

	Status Status // Latest overlay row for the queried region
}

// Status is one row of the append-only lifecycle overlay.
type Status struct {
	ArticleID         string
	Region            string
	Status            string
	RejectionReason   string
	TopStory          bool
	Featured          bool
	GoodFit           bool
	TopStoryChangedAt *time.Time
	FeaturedChangedAt *time.Time
	GoodFitChangedAt  *time.Time
	CreatedAt         time.Time
}
