package cfg

import (
	"testing"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}
}

func TestConfigFields(t *testing.T) {
	cfg := &Cfg{
		DBPath:              "./test.db",
		SourcesFile:         "./sources.yml",
		RelevanceDir:        "./relevance",
		Regions:             []string{"8800", "8830"},
		WorkerCount:         5,
		SchedulerInterval:   60,
		FetchInterval:       10,
		FetchTimeout:        30,
		SimilarityThreshold: 0.7,
		HardRejectFloor:     15,
		Port:                "8080",
		UserAgent:           "Test Agent",
		Timezone:            "UTC",
		Debug:               true,
	}

	if cfg.WorkerCount != 5 {
		t.Errorf("Expected worker count 5, got %d", cfg.WorkerCount)
	}
	if len(cfg.Regions) != 2 {
		t.Errorf("Expected 2 regions, got %d", len(cfg.Regions))
	}
	if cfg.SimilarityThreshold != 0.7 {
		t.Errorf("Expected similarity threshold 0.7, got %f", cfg.SimilarityThreshold)
	}
	if cfg.HardRejectFloor != 15 {
		t.Errorf("Expected hard reject floor 15, got %f", cfg.HardRejectFloor)
	}
}

func TestSetAndGet(t *testing.T) {
	prev := globalCfg
	defer Set(prev)

	c := &Cfg{Port: "9090"}
	Set(c)

	if Get().Port != "9090" {
		t.Errorf("Expected port '9090', got '%s'", Get().Port)
	}
}
