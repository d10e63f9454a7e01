package store

import (
	"fmt"
	"strings"

	"github.com/nordby/newswire/app/relevance"
)

// PatternRepository is the Learned Pattern Store: monotonic accept/reject
// counters per (region, table, feature). Counters only ever grow.
type PatternRepository struct {
	db *DB
}

// NewPatternRepository creates a new pattern repository
func NewPatternRepository(db *DB) *PatternRepository {
	return &PatternRepository{db: db}
}

// GetCounts returns the stored counters for the requested features.
// Features with no history are simply absent from the result.
func (r *PatternRepository) GetCounts(region, table string, features []string) (map[string]relevance.Counts, error) {
	counts := make(map[string]relevance.Counts)
	if len(features) == 0 {
		return counts, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(features)), ", ")
	args := make([]interface{}, 0, len(features)+2)
	args = append(args, region, table)
	for _, f := range features {
		args = append(args, f)
	}

	rows, err := r.db.Query(`
		SELECT feature, accept_count, reject_count
		FROM learned_patterns
		WHERE region = ? AND tbl = ? AND feature IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned patterns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var feature string
		var c relevance.Counts
		if err := rows.Scan(&feature, &c.Accepts, &c.Rejects); err != nil {
			return nil, fmt.Errorf("failed to scan pattern row: %w", err)
		}
		counts[feature] = c
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pattern rows: %w", err)
	}
	return counts, nil
}

// Increment bumps every feature's counter for one feedback event, in a
// single transaction.
func (r *PatternRepository) Increment(region, table string, features []string, accepted bool) error {
	if len(features) == 0 {
		return nil
	}

	accept, reject := 0, 1
	if accepted {
		accept, reject = 1, 0
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin pattern transaction: %w", err)
	}

	for _, feature := range features {
		_, err := tx.Exec(`
			INSERT INTO learned_patterns (region, tbl, feature, accept_count, reject_count)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (region, tbl, feature) DO UPDATE SET
				accept_count = accept_count + excluded.accept_count,
				reject_count = reject_count + excluded.reject_count,
				updated_at = CURRENT_TIMESTAMP
		`, region, table, feature, accept, reject)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to increment pattern %q: %w", feature, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pattern transaction: %w", err)
	}
	return nil
}

// TrainedExamples returns the total feedback volume a table has seen,
// used for the classifier's cold-start check and surfaced in stats.
func (r *PatternRepository) TrainedExamples(region, table string) (int, error) {
	var total int
	err := r.db.QueryRow(`
		SELECT COALESCE(SUM(accept_count + reject_count), 0)
		FROM learned_patterns
		WHERE region = ? AND tbl = ?
	`, region, table).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count trained examples: %w", err)
	}
	return total, nil
}

// PatternCount returns how many distinct features a region has learned,
// across all tables. The store never prunes, so this is the growth
// metric operators watch.
func (r *PatternRepository) PatternCount(region string) (int, error) {
	var n int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM learned_patterns WHERE region = ?", region,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count patterns: %w", err)
	}
	return n, nil
}
