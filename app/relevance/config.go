package relevance

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nordby/newswire/app/cache"
)

const configCacheType = "relevance_config"

// Config is the region-scoped relevance configuration. Keyword lists
// are external and hot-reloadable; curator edits invalidate the cache.
type Config struct {
	Region string `yaml:"-"`

	// Keyword classes, each mapping keyword/phrase to point value.
	HighRelevance     map[string]float64 `yaml:"high_relevance"`
	LocalPlaces       map[string]float64 `yaml:"local_places"`
	Topics            map[string]float64 `yaml:"topics"`
	SourceCredibility map[string]float64 `yaml:"source_credibility"`
	Penalties         map[string]float64 `yaml:"penalties"`

	// Category classifier keywords, per category.
	CategoryKeywords map[string][]string `yaml:"category_keywords"`

	// Category-level point constants, curator tunable.
	PrimaryCategoryPoints   float64 `yaml:"primary_category_points"`
	SecondaryCategoryPoints float64 `yaml:"secondary_category_points"`

	// SoftThreshold is the curator-adjustable regional filter level.
	SoftThreshold float64 `yaml:"soft_threshold"`

	// NearbyPlaces feed the learner's place-detection features.
	NearbyPlaces []string `yaml:"nearby_places"`

	// DefaultCategory when the classifier cannot decide.
	DefaultCategory string `yaml:"default_category"`
}

// Provider loads region configs from a directory of <region>.yml files,
// backed by the shared cache with explicit invalidation on writes.
type Provider struct {
	dir   string
	cache *cache.Cache
	ttl   time.Duration
}

func NewProvider(dir string, c *cache.Cache) *Provider {
	return &Provider{dir: dir, cache: c, ttl: time.Hour}
}

// Load returns the relevance config for a region. force bypasses the
// cache, rereading from disk.
func (p *Provider) Load(region string, force bool) (*Config, error) {
	key := cache.Key{Type: configCacheType, ID: region}

	if !force && p.cache != nil {
		if cached, ok := p.cache.Get(key); ok {
			return cached.(*Config), nil
		}
	}

	cfg, err := p.read(region)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		p.cache.Set(key, cfg, p.ttl)
	}

	return cfg, nil
}

// Invalidate drops the cached config for one region, or all regions
// when region is empty. Called after curator edits.
func (p *Provider) Invalidate(region string) {
	if p.cache == nil {
		return
	}
	if region == "" {
		p.cache.InvalidateType(configCacheType)
		return
	}
	p.cache.Invalidate(cache.Key{Type: configCacheType, ID: region})
}

func (p *Provider) read(region string) (*Config, error) {
	path := filepath.Join(p.dir, region+".yml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read relevance config for region %s: %w", region, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse relevance config for region %s: %w", region, err)
	}

	cfg.Region = region
	applyConfigDefaults(&cfg)

	slog.Debug("Relevance configuration loaded",
		"region", region,
		"high_relevance", len(cfg.HighRelevance),
		"local_places", len(cfg.LocalPlaces),
		"topics", len(cfg.Topics))

	return &cfg, nil
}

func applyConfigDefaults(cfg *Config) {
	if cfg.PrimaryCategoryPoints == 0 {
		cfg.PrimaryCategoryPoints = 10
	}
	if cfg.SecondaryCategoryPoints == 0 {
		cfg.SecondaryCategoryPoints = 5
	}
	if cfg.SoftThreshold == 0 {
		cfg.SoftThreshold = 30
	}
	if cfg.DefaultCategory == "" {
		cfg.DefaultCategory = "news"
	}
}
