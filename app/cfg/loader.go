package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./newswire.db" description:"Path to the SQLite database file"`

	// Ingestion configuration
	SourcesFile       string   `long:"sources-file" env:"SOURCES_FILE" default:"./sources.yml" description:"YAML file describing news sources"`
	RelevanceDir      string   `long:"relevance-dir" env:"RELEVANCE_DIR" default:"./relevance" description:"Directory containing per-region relevance configuration files"`
	Regions           []string `long:"region" env:"REGIONS" env-delim:"," default:"default" description:"Region identifiers to process"`
	WorkerCount       int      `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of concurrent source fetch workers"`
	SchedulerInterval int      `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"60" description:"Background scheduler interval in seconds"`
	FetchInterval     int      `long:"fetch-interval" env:"FETCH_INTERVAL" default:"10" description:"Default per-source refetch interval in minutes"`
	FetchTimeout      int      `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30" description:"Per-source fetch timeout in seconds"`
	ForceRefresh      bool     `long:"force-refresh" env:"FORCE_REFRESH" description:"Bypass the due-check and fetch all enabled sources"`
	RunOnce           bool     `long:"once" description:"Run a single fetch cycle per region and exit"`

	// Dedup / scoring knobs
	SimilarityThreshold float64 `long:"similarity-threshold" env:"SIMILARITY_THRESHOLD" default:"0.7" description:"Semantic dedup merge threshold"`
	HardRejectFloor     float64 `long:"hard-reject-floor" env:"HARD_REJECT_FLOOR" default:"15" description:"Score below which articles are auto-rejected"`

	// HTTP surface
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Newswire/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Europe/Copenhagen)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:              raw.DBPath,
		SourcesFile:         raw.SourcesFile,
		RelevanceDir:        raw.RelevanceDir,
		Regions:             raw.Regions,
		WorkerCount:         raw.WorkerCount,
		SchedulerInterval:   raw.SchedulerInterval,
		FetchInterval:       raw.FetchInterval,
		FetchTimeout:        raw.FetchTimeout,
		ForceRefresh:        raw.ForceRefresh,
		RunOnce:             raw.RunOnce,
		SimilarityThreshold: raw.SimilarityThreshold,
		HardRejectFloor:     raw.HardRejectFloor,
		Port:                raw.Port,
		APIAccessKey:        raw.APIAccessKey,
		UserAgent:           raw.UserAgent,
		Timezone:            raw.Timezone,
		Debug:               raw.Debug,
		Version:             GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// Set replaces the global configuration. Intended for tests.
func Set(c *Cfg) {
	globalCfg = c
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
