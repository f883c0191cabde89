package source

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lysyi3m/trend-comb/app/trend"
	"gopkg.in/yaml.v3"
)

// ConfigCache holds the configuration of every known source. Built-in
// defaults are overridden field by field by <source>.yml files.
type ConfigCache struct {
	sourcesDir string
	cache      map[trend.Source]*Config
	mu         sync.RWMutex
}

func NewConfigCache(sourcesDir string) *ConfigCache {
	cc := &ConfigCache{
		sourcesDir: sourcesDir,
		cache:      make(map[trend.Source]*Config),
	}
	for _, s := range trend.Sources() {
		cc.cache[s] = Default(s)
	}
	return cc
}

func (cc *ConfigCache) Run() error {
	if cc.sourcesDir == "" {
		return nil
	}
	if _, err := os.Stat(cc.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := cc.LoadConfig(name)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Configuration loaded", "source", config.Name, "enabled", config.Settings.Enabled, "ttl", config.Settings.TTL)
	}

	return nil
}

// LoadConfig reads <name>.yml over the defaults of the source it names. A
// missing file resets the source to its defaults.
func (cc *ConfigCache) LoadConfig(name string) (*Config, error) {
	src, ok := Resolve(name)
	if !ok {
		return nil, fmt.Errorf("unknown source '%s'", name)
	}

	configFile := cc.getConfigFilePath(name)
	config, err := cc.parseConfig(configFile, src)
	if err != nil {
		return nil, err
	}

	if err := cc.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[config.Name] = config

	return config, nil
}

func (cc *ConfigCache) GetConfig(src trend.Source) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	config, ok := cc.cache[src]
	if !ok {
		return nil, fmt.Errorf("source config with name '%s' not found", src)
	}
	return config, nil
}

func (cc *ConfigCache) GetConfigs() map[trend.Source]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[trend.Source]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

func (cc *ConfigCache) GetEnabledConfigs() map[trend.Source]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabledConfigs := make(map[trend.Source]*Config)
	for k, v := range cc.cache {
		if v.Settings.Enabled {
			enabledConfigs[k] = v
		}
	}
	return enabledConfigs
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string, src trend.Source) (*Config, error) {
	config := Default(src)

	data, err := os.ReadFile(configFile)
	if errors.Is(err, fs.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.Name = src
	return config, nil
}

func (cc *ConfigCache) validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	if !config.Name.Valid() {
		return fmt.Errorf("unknown source '%s'", config.Name)
	}
	if config.URL == "" {
		return fmt.Errorf("source URL is required")
	}

	nonNegativeFields := map[string]int{
		"ttl":         config.Settings.TTL,
		"search ttl":  config.Settings.SearchTTL,
		"max items":   config.Settings.MaxItems,
		"timeout":     config.Settings.Timeout,
		"sample size": config.Settings.SampleSize,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	if config.Settings.TTL == 0 {
		return fmt.Errorf("ttl must be positive")
	}

	validFields := map[string]bool{
		"topic":    true,
		"metadata": true,
	}

	for i, filter := range config.Filters {
		if !validFields[filter.Field] {
			return fmt.Errorf("invalid filter field at index %d: %s", i, filter.Field)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
		}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(name string) string {
	return filepath.Join(cc.sourcesDir, name+".yml")
}
