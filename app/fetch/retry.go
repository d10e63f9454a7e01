package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/nordby/newswire/app/sources"
)

// RetryConfig controls the single-retry policy of the executor: two
// total attempts with an initial delay before the second one.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
}

// retryable distinguishes transient failures from permanent ones. A 404
// over RSS is not worth a second attempt; a timeout is.
func retryable(err error) bool {
	var fetchErr *sources.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Retryable()
	}
	// Unclassified errors (DNS, resets) are assumed transient.
	return !errors.Is(err, context.Canceled)
}

// withRetry runs op under the retry policy, waiting cancellably between
// attempts. Grounded failures come back unchanged for classification
// upstream.
func withRetry(ctx context.Context, cfg RetryConfig, op func() error) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if attempt == cfg.MaxAttempts || !retryable(lastErr) {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Delay * time.Duration(attempt)):
		}
	}

	return lastErr
}
