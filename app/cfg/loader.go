package cfg

import (
	"cmp"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

const appName = "trend-comb"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Application configuration
	Port               string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl            string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://trends.example.com)"`
	SourcesDir         string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing per-source configuration files"`
	APIAccessKey       string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	QueryCacheCapacity int    `long:"query-cache-capacity" env:"QUERY_CACHE_CAPACITY" default:"256" description:"Maximum number of cached search queries"`

	// Cache backend
	CacheBackend  string `long:"cache-backend" env:"CACHE_BACKEND" default:"file" choice:"file" choice:"sqlite" choice:"redis" choice:"memory" description:"Cache storage backend"`
	CacheDir      string `long:"cache-dir" env:"CACHE_DIR" description:"Directory for the file cache backend (default: XDG cache home)"`
	SQLitePath    string `long:"sqlite-path" env:"SQLITE_PATH" description:"Database file for the sqlite cache backend (default: <cache-dir>/trends.db)"`
	RedisAddr     string `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address"`
	RedisPassword string `long:"redis-password" env:"REDIS_PASSWORD" description:"Redis password"`
	RedisDB       int    `long:"redis-db" env:"REDIS_DB" default:"0" description:"Redis database number"`

	// Upstream credentials
	TwitterBearerToken string `long:"twitter-bearer-token" env:"TWITTER_BEARER_TOKEN" description:"Twitter API bearer token"`
	TwitterCredentials string `long:"twitter-credentials" env:"TWITTER_CREDENTIALS" description:"JSON file holding the Twitter bearer_token"`
	SerpAPIKey         string `long:"serpapi-key" env:"SERPAPI_KEY" description:"SerpAPI key"`
	SerpAPICredentials string `long:"serpapi-credentials" env:"SERPAPI_CREDENTIALS" description:"JSON file holding the SerpAPI api_key"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"trend-comb/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

// LoadArgs parses args instead of the process arguments when args is non-nil.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		Port:               raw.Port,
		BaseUrl:            raw.BaseUrl,
		SourcesDir:         raw.SourcesDir,
		APIAccessKey:       raw.APIAccessKey,
		QueryCacheCapacity: raw.QueryCacheCapacity,
		CacheBackend:       raw.CacheBackend,
		CacheDir:           cmp.Or(raw.CacheDir, filepath.Join(xdg.CacheHome, appName)),
		RedisAddr:          raw.RedisAddr,
		RedisPassword:      raw.RedisPassword,
		RedisDB:            raw.RedisDB,
		UserAgent:          raw.UserAgent,
		Timezone:           raw.Timezone,
		Debug:              raw.Debug,
		Version:            GetVersion(),
	}
	cfg.SQLitePath = cmp.Or(raw.SQLitePath, filepath.Join(cfg.CacheDir, "trends.db"))

	if cfg.TwitterBearerToken, err = resolveSecret(raw.TwitterBearerToken, raw.TwitterCredentials, "bearer_token"); err != nil {
		return nil, err
	}
	if cfg.SerpAPIKey, err = resolveSecret(raw.SerpAPIKey, raw.SerpAPICredentials, "api_key"); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	return cfg, nil
}

// resolveSecret prefers an explicit value over the credentials file.
func resolveSecret(value, path, field string) (string, error) {
	if value != "" || path == "" {
		return value, nil
	}
	return ReadCredential(path, field)
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
