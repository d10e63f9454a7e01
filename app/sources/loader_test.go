package sources

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSourcesFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write sources file: %v", err)
	}
	return path
}

func TestLoadConfigs(t *testing.T) {
	path := writeSourcesFile(t, `
sources:
  - name: city-news
    type: rss
    url: https://example.com/feed.xml
    enabled: true
    category: news
    credibility: 1.5
    regions: ["8800"]
  - name: council-calendar
    type: calendar
    url: https://example.com/calendar
    enabled: true
    category: government
    selectors:
      item: ".event"
      title: ".event-title"
`)

	configs, err := LoadConfigs(path)
	if err != nil {
		t.Fatalf("LoadConfigs failed: %v", err)
	}

	if len(configs) != 2 {
		t.Fatalf("Expected 2 sources, got %d", len(configs))
	}

	if configs[0].Name != "city-news" || configs[0].Type != "rss" {
		t.Errorf("Unexpected first source: %+v", configs[0])
	}
	if configs[0].Credibility != 1.5 {
		t.Errorf("Expected credibility 1.5, got %f", configs[0].Credibility)
	}
	if configs[1].Selectors["item"] != ".event" {
		t.Errorf("Expected item selector '.event', got %q", configs[1].Selectors["item"])
	}
}

func TestLoadConfigsDefaults(t *testing.T) {
	path := writeSourcesFile(t, `
sources:
  - name: plain
    url: https://example.com/feed.xml
    enabled: true
`)

	configs, err := LoadConfigs(path)
	if err != nil {
		t.Fatalf("LoadConfigs failed: %v", err)
	}

	if configs[0].Type != "rss" {
		t.Errorf("Expected default type 'rss', got %q", configs[0].Type)
	}
	if configs[0].Credibility != 1.0 {
		t.Errorf("Expected default credibility 1.0, got %f", configs[0].Credibility)
	}
}

func TestLoadConfigsRejectsUnknownType(t *testing.T) {
	path := writeSourcesFile(t, `
sources:
  - name: broken
    type: carrier-pigeon
    url: https://example.com
`)

	if _, err := LoadConfigs(path); err == nil {
		t.Error("Expected error for unknown source type")
	}
}

func TestLoadConfigsRequiresItemSelector(t *testing.T) {
	path := writeSourcesFile(t, `
sources:
  - name: scraper
    type: scrape
    url: https://example.com
`)

	if _, err := LoadConfigs(path); err == nil {
		t.Error("Expected error for scrape source without item selector")
	}
}

func TestServesRegion(t *testing.T) {
	all := Config{Name: "a"}
	if !all.ServesRegion("8800") {
		t.Error("Source without regions should serve every region")
	}

	scoped := Config{Name: "b", Regions: []string{"8800"}}
	if !scoped.ServesRegion("8800") {
		t.Error("Expected source to serve its configured region")
	}
	if scoped.ServesRegion("9000") {
		t.Error("Expected source not to serve other regions")
	}
}
