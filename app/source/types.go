package source

import (
	"time"

	"github.com/lysyi3m/trend-comb/app/collector"
	"github.com/lysyi3m/trend-comb/app/trend"
)

type Config struct {
	Name       trend.Source // Derived from filename (without .yml extension)
	URL        string       `yaml:"url"`
	Settings   Settings     `yaml:"settings"`
	Categories []string     `yaml:"categories"` // search queries, search-engagement only
	Filters    []Filter     `yaml:"filters"`
}

type Settings struct {
	Enabled    bool   `yaml:"enabled"`
	TTL        int    `yaml:"ttl"`        // seconds
	SearchTTL  int    `yaml:"search_ttl"` // seconds, per-query post search
	Timeout    int    `yaml:"timeout"`    // seconds
	MaxItems   int    `yaml:"max_items"`  // 0 keeps every upstream item
	Geo        string `yaml:"geo"`
	SampleSize int    `yaml:"sample_size"` // posts per category
	Metered    bool   `yaml:"metered"`     // skipped by bulk refresh
}

func (s Settings) TTLDuration() time.Duration {
	return time.Duration(s.TTL) * time.Second
}

func (s Settings) SearchTTLDuration() time.Duration {
	return time.Duration(s.SearchTTL) * time.Second
}

func (s Settings) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

type Filter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// Default returns the built-in configuration of a source.
func Default(name trend.Source) *Config {
	settings := Settings{
		Enabled: true,
		Geo:     trend.DefaultGeo,
	}

	cfg := &Config{Name: name}
	switch name {
	case trend.SourceSearchEngagement:
		cfg.URL = collector.DefaultTwitterBaseURL
		settings.TTL = 3600
		settings.SearchTTL = 3600
		settings.Timeout = 10
		settings.SampleSize = 100
		cfg.Categories = append([]string(nil), collector.DefaultCategories...)
	case trend.SourceAggregatorAPI:
		cfg.URL = collector.DefaultSerpAPIBaseURL
		settings.TTL = 12 * 3600
		settings.Timeout = 15
		settings.Metered = true
	case trend.SourceFeed:
		cfg.URL = collector.DefaultFeedURL
		settings.TTL = 2 * 3600
		settings.Timeout = 10
	}
	cfg.Settings = settings

	return cfg
}

var aliases = map[string]trend.Source{
	"twitter":    trend.SourceSearchEngagement,
	"google":     trend.SourceAggregatorAPI,
	"serpapi":    trend.SourceAggregatorAPI,
	"google_rss": trend.SourceFeed,
	"rss":        trend.SourceFeed,
}

// Resolve maps a canonical source name or one of its aliases to the source.
func Resolve(name string) (trend.Source, bool) {
	if s := trend.Source(name); s.Valid() {
		return s, true
	}
	s, ok := aliases[name]
	return s, ok
}
