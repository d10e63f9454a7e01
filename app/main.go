package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nordby/newswire/app/api"
	"github.com/nordby/newswire/app/cache"
	"github.com/nordby/newswire/app/cfg"
	"github.com/nordby/newswire/app/dedup"
	"github.com/nordby/newswire/app/fetch"
	"github.com/nordby/newswire/app/pipeline"
	"github.com/nordby/newswire/app/relevance"
	"github.com/nordby/newswire/app/scheduler"
	"github.com/nordby/newswire/app/sources"
	"github.com/nordby/newswire/app/store"
)

// Exit codes for --once mode. A clean cycle (including "no sources due")
// exits 0; per-source fetch errors exit 3; a fatal store failure exits 1.
const (
	exitOK          = 0
	exitFatal       = 1
	exitFetchErrors = 3
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(exitFatal)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Newswire", "version", appCfg.Version)

	db, err := store.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(exitFatal)
	}
	defer db.Close()

	version, dirty, err := store.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(exitFatal)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schemaVersion", version, "dirty", dirty)

	srcConfigs, err := sources.LoadConfigs(appCfg.SourcesFile)
	if err != nil {
		slog.Error("Failed to load source configurations", "file", appCfg.SourcesFile, "error", err)
		os.Exit(exitFatal)
	}
	slog.Info("Loaded source configurations", "file", appCfg.SourcesFile, "count", len(srcConfigs))

	appCache := cache.New()
	defer appCache.Stop()

	articleRepo := store.NewArticleRepository(db)
	healthRepo := store.NewHealthRepository(db)
	patternRepo := store.NewPatternRepository(db)

	executor, err := fetch.NewExecutor(srcConfigs, sources.Deps{
		Cache:     appCache,
		UserAgent: appCfg.UserAgent,
		Timeout:   time.Duration(appCfg.FetchTimeout) * time.Second,
	}, healthRepo, appCfg.WorkerCount)
	if err != nil {
		slog.Error("Failed to build fetch executor", "error", err)
		os.Exit(exitFatal)
	}
	defer executor.Close()

	learner := relevance.NewLearner(patternRepo)

	ingest := pipeline.New(
		srcConfigs,
		fetch.NewScheduler(time.Duration(appCfg.FetchInterval)*time.Minute),
		executor,
		dedup.NewEngine(appCfg.SimilarityThreshold),
		relevance.NewProvider(appCfg.RelevanceDir, appCache),
		relevance.NewScorer(learner),
		relevance.NewClassifier(learner),
		articleRepo,
		healthRepo,
	)

	if appCfg.RunOnce {
		os.Exit(runOnce(ingest, appCfg.Regions, appCfg.ForceRefresh))
	}

	slog.Info("Starting background scheduler",
		"interval", time.Duration(appCfg.SchedulerInterval)*time.Second,
		"regions", appCfg.Regions)
	bg := scheduler.NewScheduler(ingest, articleRepo)
	bg.Start()
	defer bg.Stop()

	apiHandler := api.NewHandler(articleRepo, patternRepo, healthRepo,
		relevance.NewProvider(appCfg.RelevanceDir, appCache),
		relevance.NewScorer(learner), relevance.NewClassifier(learner),
		ingest, appCfg.Regions)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error, shutting down", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}

// runOnce runs a single ingestion cycle per region and maps the outcome
// to an exit code.
func runOnce(ingest *pipeline.Pipeline, regions []string, force bool) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	code := exitOK
	for _, region := range regions {
		report, err := ingest.RunCycle(ctx, region, force)
		if err != nil {
			slog.Error("Cycle failed", "region", region, "error", err)
			return exitFatal
		}
		if report.HasSourceErrors() {
			for source, srcErr := range report.SourceErrors {
				slog.Warn("Source failed", "region", region, "source", source, "error", srcErr)
			}
			code = exitFetchErrors
		}
	}
	return code
}
