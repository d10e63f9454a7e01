package fetch

import (
	"time"
)

// Health is the per-source fetch-health record. It is created on the
// first fetch attempt, updated on every attempt, and never deleted.
type Health struct {
	Source          string
	LastFetchAt     *time.Time
	LastSuccessAt   *time.Time
	LastCount       int
	LastStatusCode  int
	LastRateLimitAt *time.Time
	FailureCount    int
}

// HealthStore persists fetch-health records. Implemented by the store
// package; the executor is the only writer.
type HealthStore interface {
	GetAll() (map[string]Health, error)
	RecordSuccess(source string, articleCount int, at time.Time) error
	RecordFailure(source string, statusCode int, rateLimited bool, at time.Time) error
}
