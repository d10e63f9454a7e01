package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nordby/newswire/app/fetch"
)

// HealthRepository persists per-source fetch health. It backs the fetch
// scheduler's due-checks and rate-limit cool-downs.
type HealthRepository struct {
	db *DB
}

// NewHealthRepository creates a new health repository
func NewHealthRepository(db *DB) *HealthRepository {
	return &HealthRepository{db: db}
}

// GetAll returns health records for every source seen so far.
func (r *HealthRepository) GetAll() (map[string]fetch.Health, error) {
	rows, err := r.db.Query(`
		SELECT source, last_fetch_at, last_success_at, last_count,
		       last_status_code, last_rate_limit_at, failure_count
		FROM fetch_health
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query fetch health: %w", err)
	}
	defer rows.Close()

	health := make(map[string]fetch.Health)
	for rows.Next() {
		var h fetch.Health
		var fetchAt, successAt, rateLimitAt sql.NullTime
		err := rows.Scan(&h.Source, &fetchAt, &successAt, &h.LastCount,
			&h.LastStatusCode, &rateLimitAt, &h.FailureCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan health row: %w", err)
		}
		h.LastFetchAt = nullableTime(fetchAt)
		h.LastSuccessAt = nullableTime(successAt)
		h.LastRateLimitAt = nullableTime(rateLimitAt)
		health[h.Source] = h
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating health rows: %w", err)
	}
	return health, nil
}

// RecordSuccess marks a successful fetch and resets the failure streak.
func (r *HealthRepository) RecordSuccess(source string, articleCount int, at time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO fetch_health (
			source, last_fetch_at, last_success_at, last_count,
			last_status_code, failure_count
		) VALUES (?, ?, ?, ?, 200, 0)
		ON CONFLICT (source) DO UPDATE SET
			last_fetch_at = excluded.last_fetch_at,
			last_success_at = excluded.last_success_at,
			last_count = excluded.last_count,
			last_status_code = 200,
			failure_count = 0
	`, source, at.UTC(), at.UTC(), articleCount)
	if err != nil {
		return fmt.Errorf("failed to record fetch success: %w", err)
	}
	return nil
}

// RecordFailure marks a failed fetch; rate-limited failures additionally
// stamp the cool-down timestamp the scheduler keys off.
func (r *HealthRepository) RecordFailure(source string, statusCode int, rateLimited bool, at time.Time) error {
	var rateLimitAt interface{}
	if rateLimited {
		rateLimitAt = at.UTC()
	}

	_, err := r.db.Exec(`
		INSERT INTO fetch_health (
			source, last_fetch_at, last_status_code, last_rate_limit_at,
			failure_count
		) VALUES (?, ?, ?, ?, 1)
		ON CONFLICT (source) DO UPDATE SET
			last_fetch_at = excluded.last_fetch_at,
			last_status_code = excluded.last_status_code,
			last_rate_limit_at = COALESCE(excluded.last_rate_limit_at, fetch_health.last_rate_limit_at),
			failure_count = fetch_health.failure_count + 1
	`, source, at.UTC(), statusCode, rateLimitAt)
	if err != nil {
		return fmt.Errorf("failed to record fetch failure: %w", err)
	}
	return nil
}
