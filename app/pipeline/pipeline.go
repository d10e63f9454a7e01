package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nordby/newswire/app/cfg"
	"github.com/nordby/newswire/app/dedup"
	"github.com/nordby/newswire/app/fetch"
	"github.com/nordby/newswire/app/relevance"
	"github.com/nordby/newswire/app/sources"
	"github.com/nordby/newswire/app/store"
)

// Pipeline runs one full ingestion cycle for a region: due-check, fetch,
// dedup, score, persist. It is single-threaded at the store boundary;
// only the fetch fan-out inside the executor is concurrent.
type Pipeline struct {
	allSources []sources.Config
	scheduler  *fetch.Scheduler
	executor   *fetch.Executor
	deduper    *dedup.Engine
	configs    *relevance.Provider
	scorer     *relevance.Scorer
	classifier *relevance.Classifier
	articles   *store.ArticleRepository
	health     fetch.HealthStore
}

func New(allSources []sources.Config, scheduler *fetch.Scheduler, executor *fetch.Executor,
	deduper *dedup.Engine, configs *relevance.Provider, scorer *relevance.Scorer,
	classifier *relevance.Classifier, articles *store.ArticleRepository,
	health fetch.HealthStore) *Pipeline {
	return &Pipeline{
		allSources: allSources,
		scheduler:  scheduler,
		executor:   executor,
		deduper:    deduper,
		configs:    configs,
		scorer:     scorer,
		classifier: classifier,
		articles:   articles,
		health:     health,
	}
}

// CycleReport is what operators see after a cycle: per-source errors
// plus counts for every stage.
type CycleReport struct {
	Region       string
	SourcesDue   int
	Fetched      int
	Duplicates   int
	HardFiltered int
	Persisted    int
	Created      int
	SourceErrors map[string]error
	StartedAt    time.Time
	FinishedAt   time.Time
}

// HasSourceErrors reports whether any source failed during the cycle.
func (r *CycleReport) HasSourceErrors() bool {
	return len(r.SourceErrors) > 0
}

// RunCycle executes one ingestion cycle for a region. Failures are
// contained per article and per source; the returned error is non-nil
// only when the article store itself is unreachable.
func (p *Pipeline) RunCycle(ctx context.Context, region string, force bool) (*CycleReport, error) {
	appCfg := cfg.Get()
	report := &CycleReport{
		Region:       region,
		SourceErrors: make(map[string]error),
		StartedAt:    time.Now(),
	}

	rcfg := p.loadRelevanceConfig(region)

	health, err := p.health.GetAll()
	if err != nil {
		return report, err
	}

	regional := p.regionalSources(region)
	due := p.scheduler.Due(regional, health, report.StartedAt, force)
	report.SourcesDue = len(due)
	if len(due) == 0 {
		slog.Info("No sources due", "region", region)
		report.FinishedAt = time.Now()
		return report, nil
	}

	candidates, fetchErrs := p.executor.FetchAll(ctx, due)
	report.Fetched = len(candidates)
	for source, ferr := range fetchErrs {
		report.SourceErrors[source] = ferr
	}

	unique := p.deduper.Run(candidates)
	report.Duplicates = len(candidates) - len(unique)

	requiresLocal := requiresLocalBySource(regional)

	for _, candidate := range unique {
		score, class, hardFiltered := p.evaluate(candidate, rcfg, requiresLocal[candidate.SourceName], report)

		res, err := p.articles.Reconcile(store.ReconcileInput{
			Candidate:     candidate,
			Score:         score,
			Class:         class,
			Region:        region,
			HardFiltered:  hardFiltered,
			HardFloor:     appCfg.HardRejectFloor,
			SoftThreshold: rcfg.SoftThreshold,
			Now:           time.Now(),
		})
		if err != nil {
			report.FinishedAt = time.Now()
			return report, err
		}
		report.Persisted++
		if res.Created {
			report.Created++
		}
	}

	report.FinishedAt = time.Now()
	slog.Info("Cycle finished",
		"region", region,
		"due", report.SourcesDue,
		"fetched", report.Fetched,
		"duplicates", report.Duplicates,
		"hardFiltered", report.HardFiltered,
		"persisted", report.Persisted,
		"created", report.Created,
		"sourceErrors", len(report.SourceErrors),
		"elapsed", report.FinishedAt.Sub(report.StartedAt))

	return report, nil
}

// evaluate scores and classifies one candidate. Articles failing the
// regional hard filter get a zero score, the default category, and a
// hard-filtered marker so the rejection reason names the gate.
func (p *Pipeline) evaluate(candidate sources.CandidateArticle, rcfg *relevance.Config,
	requiresLocal bool, report *CycleReport) (relevance.Score, relevance.Classification, bool) {

	if !relevance.HardFilter(candidate, rcfg, requiresLocal) {
		report.HardFiltered++
		slog.Debug("Article failed hard filter", "title", candidate.Title, "region", rcfg.Region)
		return relevance.Score{RecencyMultiplier: 1.0},
			relevance.Classification{Primary: rcfg.DefaultCategory}, true
	}

	class := p.classifier.Run(candidate, rcfg)
	score := p.scorer.Run(candidate, rcfg, class, time.Now())
	return score, class, false
}

// loadRelevanceConfig degrades to a minimal config on failure; a broken
// region file must not block persistence.
func (p *Pipeline) loadRelevanceConfig(region string) *relevance.Config {
	rcfg, err := p.configs.Load(region, false)
	if err != nil {
		slog.Warn("Relevance config unavailable, using safe defaults",
			"region", region, "error", err)
		return &relevance.Config{
			Region:          region,
			SoftThreshold:   30,
			DefaultCategory: "news",
		}
	}
	return rcfg
}

func (p *Pipeline) regionalSources(region string) []sources.Config {
	var regional []sources.Config
	for _, src := range p.allSources {
		if src.ServesRegion(region) {
			regional = append(regional, src)
		}
	}
	return regional
}

func requiresLocalBySource(configs []sources.Config) map[string]bool {
	m := make(map[string]bool, len(configs))
	for _, src := range configs {
		m[src.Name] = src.RequiresLocal
	}
	return m
}
