package fetch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nordby/newswire/app/sources"
)

const (
	breakerThreshold = 3
	breakerCooldown  = 10 * time.Minute

	// rateLimitDelay is injected before calls to sources that recently
	// answered 403, to reduce detection pressure.
	rateLimitDelay = 5 * time.Second
)

// Executor runs source adapters concurrently under bounded parallelism,
// wrapping each call in retry and a per-source circuit breaker. One
// source's failure never aborts the others.
type Executor struct {
	adapters    map[string]sources.Adapter
	healthStore HealthStore
	breakers    *BreakerSet
	retry       RetryConfig
	workerCount int
	callTimeout time.Duration
}

// Result carries one source's outcome inside a cycle.
type result struct {
	source     string
	candidates []sources.CandidateArticle
	err        error
}

func NewExecutor(configs []sources.Config, deps sources.Deps, healthStore HealthStore, workerCount int) (*Executor, error) {
	adapters := make(map[string]sources.Adapter, len(configs))
	for _, cfg := range configs {
		adapter, err := sources.NewAdapter(cfg, deps)
		if err != nil {
			return nil, err
		}
		adapters[cfg.Name] = adapter
	}

	if workerCount <= 0 {
		workerCount = 5
	}

	return &Executor{
		adapters:    adapters,
		healthStore: healthStore,
		breakers:    NewBreakerSet(breakerThreshold, breakerCooldown),
		retry:       RetryConfig{MaxAttempts: 2, Delay: 2 * time.Second},
		workerCount: workerCount,
		callTimeout: deps.Timeout,
	}, nil
}

// FetchAll fetches every due source and returns the combined candidate
// batch plus the per-source errors. Cross-source ordering is not
// guaranteed; downstream dedup and scoring must not depend on it.
func (e *Executor) FetchAll(ctx context.Context, due []sources.Config) ([]sources.CandidateArticle, map[string]error) {
	if len(due) == 0 {
		return nil, nil
	}

	health, err := e.healthStore.GetAll()
	if err != nil {
		slog.Warn("Failed to load fetch health, continuing without backoff state", "error", err)
		health = map[string]Health{}
	}

	jobs := make(chan sources.Config)
	results := make(chan result, len(due))

	var wg sync.WaitGroup
	for i := 0; i < e.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range jobs {
				results <- e.fetchOne(ctx, src, health[src.Name])
			}
		}()
	}

	for _, src := range due {
		jobs <- src
	}
	close(jobs)
	wg.Wait()
	close(results)

	var candidates []sources.CandidateArticle
	errs := make(map[string]error)
	for r := range results {
		if r.err != nil {
			errs[r.source] = r.err
			continue
		}
		candidates = append(candidates, r.candidates...)
	}

	return candidates, errs
}

func (e *Executor) fetchOne(ctx context.Context, src sources.Config, h Health) result {
	adapter, ok := e.adapters[src.Name]
	if !ok {
		return result{source: src.Name, err: errors.New("no adapter for source")}
	}

	breaker := e.breakers.For(src.Name)
	if !breaker.Allow() {
		slog.Debug("Circuit open, skipping source", "source", src.Name)
		return result{source: src.Name, err: ErrCircuitOpen}
	}

	// Recent 403: back off a little before poking the host again.
	if h.LastRateLimitAt != nil && time.Since(*h.LastRateLimitAt) < rateLimitWindow {
		select {
		case <-ctx.Done():
			return result{source: src.Name, err: ctx.Err()}
		case <-time.After(rateLimitDelay):
		}
	}

	// Health is recorded after every attempt, not just the final one, so
	// the stored failure count reflects retried attempts too.
	var candidates []sources.CandidateArticle
	err := withRetry(ctx, e.retry, func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		defer cancel()

		var fetchErr error
		candidates, fetchErr = adapter.Fetch(callCtx, src)

		now := time.Now().UTC()
		if fetchErr != nil {
			statusCode, rateLimited := classify(fetchErr)
			if healthErr := e.healthStore.RecordFailure(src.Name, statusCode, rateLimited, now); healthErr != nil {
				slog.Warn("Failed to record fetch failure", "source", src.Name, "error", healthErr)
			}
			return fetchErr
		}
		if healthErr := e.healthStore.RecordSuccess(src.Name, len(candidates), now); healthErr != nil {
			slog.Warn("Failed to record fetch success", "source", src.Name, "error", healthErr)
		}
		return nil
	})

	if err != nil {
		breaker.RecordFailure()
		statusCode, _ := classify(err)
		slog.Warn("Source fetch failed", "source", src.Name, "status", statusCode, "error", err)
		return result{source: src.Name, err: err}
	}

	breaker.RecordSuccess()

	slog.Debug("Source fetched", "source", src.Name, "articles", len(candidates))
	return result{source: src.Name, candidates: candidates}
}

// Close shuts every adapter down. Adapters guarantee idempotent Close.
func (e *Executor) Close() {
	for name, adapter := range e.adapters {
		if err := adapter.Close(); err != nil {
			slog.Warn("Adapter close failed", "source", name, "error", err)
		}
	}
}

func classify(err error) (statusCode int, rateLimited bool) {
	var fetchErr *sources.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.StatusCode, fetchErr.RateLimited()
	}
	return 0, false
}
