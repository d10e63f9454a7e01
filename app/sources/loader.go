package sources

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

type sourcesFile struct {
	Sources []Config `yaml:"sources"`
}

// LoadConfigs reads all source descriptors from a YAML file, applies
// defaults and validates each entry.
func LoadConfigs(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources YAML: %w", err)
	}

	for i := range file.Sources {
		applyDefaults(&file.Sources[i])
		if err := validate(&file.Sources[i]); err != nil {
			return nil, fmt.Errorf("invalid source at index %d: %w", i, err)
		}
		slog.Debug("Source configuration loaded",
			"source", file.Sources[i].Name,
			"type", file.Sources[i].Type,
			"enabled", file.Sources[i].Enabled)
	}

	return file.Sources, nil
}

func applyDefaults(c *Config) {
	if c.Type == "" {
		c.Type = "rss"
	}
	if c.Credibility == 0 {
		c.Credibility = 1.0
	}
}

func validate(c *Config) error {
	requiredFields := map[string]string{
		"source name": c.Name,
		"source URL":  c.URL,
	}
	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	if _, ok := registry[c.Type]; !ok {
		return fmt.Errorf("unknown source type: %s", c.Type)
	}

	if c.RefreshInterval < 0 {
		return fmt.Errorf("refresh interval must be non-negative")
	}

	if (c.Type == "scrape" || c.Type == "calendar") && c.Selectors["item"] == "" {
		return fmt.Errorf("source type %s requires an 'item' selector", c.Type)
	}

	return nil
}
