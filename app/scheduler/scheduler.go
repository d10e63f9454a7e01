package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nordby/newswire/app/cfg"
	"github.com/nordby/newswire/app/pipeline"
)

// topStoryMaxAge is how long an untouched top-story flag survives.
const topStoryMaxAge = 7 * 24 * time.Hour

// CycleRunner runs one ingestion cycle; implemented by the pipeline.
type CycleRunner interface {
	RunCycle(ctx context.Context, region string, force bool) (*pipeline.CycleReport, error)
}

// FlagExpirer clears stale curator flags; implemented by the article
// repository.
type FlagExpirer interface {
	ExpireTopStories(maxAge time.Duration, now time.Time) (int, error)
}

// Scheduler drives ingestion cycles for every configured region on a
// fixed interval, plus top-story expiry once per tick.
type Scheduler struct {
	runner   CycleRunner
	expirer  FlagExpirer
	regions  []string
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewScheduler(runner CycleRunner, expirer FlagExpirer) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	c := cfg.Get()

	return &Scheduler{
		runner:   runner,
		expirer:  expirer,
		regions:  c.Regions,
		interval: time.Duration(c.SchedulerInterval) * time.Second,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runAll()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.runAll()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) runAll() {
	for _, region := range s.regions {
		if s.ctx.Err() != nil {
			return
		}

		report, err := s.runner.RunCycle(s.ctx, region, false)
		if err != nil {
			slog.Error("Ingestion cycle failed", "region", region, "error", err)
			continue
		}
		if report.HasSourceErrors() {
			for source, srcErr := range report.SourceErrors {
				slog.Warn("Source failed during cycle", "region", region, "source", source, "error", srcErr)
			}
		}
	}

	expired, err := s.expirer.ExpireTopStories(topStoryMaxAge, time.Now())
	if err != nil {
		slog.Error("Top story expiry failed", "error", err)
		return
	}
	if expired > 0 {
		slog.Info("Expired stale top stories", "count", expired)
	}
}
