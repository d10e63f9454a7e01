package api

import (
	"context"

	"github.com/nordby/newswire/app/fetch"
	"github.com/nordby/newswire/app/pipeline"
	"github.com/nordby/newswire/app/relevance"
	"github.com/nordby/newswire/app/store"
)

// CycleRunner triggers a forced ingestion cycle; implemented by the
// pipeline.
type CycleRunner interface {
	RunCycle(ctx context.Context, region string, force bool) (*pipeline.CycleReport, error)
}

var _ CycleRunner = (*pipeline.Pipeline)(nil)

type Handler struct {
	articles   *store.ArticleRepository
	patterns   *store.PatternRepository
	health     fetch.HealthStore
	configs    *relevance.Provider
	scorer     *relevance.Scorer
	classifier *relevance.Classifier
	runner     CycleRunner
	regions    []string
}
