package main

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/trend-comb/app/api"
	"github.com/lysyi3m/trend-comb/app/cache"
	"github.com/lysyi3m/trend-comb/app/cfg"
	"github.com/lysyi3m/trend-comb/app/collector"
	"github.com/lysyi3m/trend-comb/app/dispatch"
	"github.com/lysyi3m/trend-comb/app/source"
	"github.com/lysyi3m/trend-comb/app/trend"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("Starting Trend Comb server", "version", appCfg.Version)

	configCache := source.NewConfigCache(appCfg.SourcesDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load source configurations", "dir", appCfg.SourcesDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Source configurations loaded", "dir", appCfg.SourcesDir, "count", configCache.GetConfigCount())

	ctx := context.Background()

	backend, err := cache.OpenBackend(ctx, cache.Options{
		Backend:    appCfg.CacheBackend,
		Dir:        appCfg.CacheDir,
		SQLitePath: appCfg.SQLitePath,
		Redis: cache.RedisOptions{
			Addr:     appCfg.RedisAddr,
			Password: appCfg.RedisPassword,
			DB:       appCfg.RedisDB,
		},
	})
	if err != nil {
		slog.Error("Failed to open cache backend", "backend", appCfg.CacheBackend, "error", err)
		os.Exit(1)
	}
	store := cache.NewStore(backend, time.Now)
	defer store.Close()
	slog.Info("Cache backend ready", "backend", appCfg.CacheBackend)

	collectors, searcher, news := newCollectors(configCache, appCfg)

	dispatcher := dispatch.New(dispatch.Options{
		Store:         store,
		Configs:       configCache,
		Collectors:    collectors,
		Searcher:      searcher,
		News:          news,
		QueryCapacity: appCfg.QueryCacheCapacity,
	})

	var health api.HealthReporter
	if reporter, ok := backend.(api.HealthReporter); ok {
		health = reporter
	}

	baseURL := cmp.Or(appCfg.BaseUrl, "http://localhost:"+appCfg.Port)
	handler := api.NewHandler(configCache, dispatcher, api.NewGenerator(baseURL, appCfg.Version), health, appCfg.Version)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
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
		slog.Info("Received signal", "signal", sig)
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Trend Comb server shutdown complete")
}

// newCollectors builds one collector per configured source. URLs and timeouts
// are read once at startup.
func newCollectors(configCache *source.ConfigCache, appCfg *cfg.Cfg) ([]collector.Collector, collector.TweetSearcher, collector.NewsSearcher) {
	httpClient := &http.Client{}

	options := func(src trend.Source) (string, collector.HTTPOptions) {
		opts := collector.HTTPOptions{Client: httpClient, UserAgent: appCfg.UserAgent}
		config, err := configCache.GetConfig(src)
		if err != nil {
			return "", opts
		}
		opts.Timeout = config.Settings.TimeoutDuration()
		return config.URL, opts
	}

	twitterURL, twitterOpts := options(trend.SourceSearchEngagement)
	twitter := collector.NewTwitterCollector(twitterURL, appCfg.TwitterBearerToken, twitterOpts)

	serpURL, serpOpts := options(trend.SourceAggregatorAPI)
	serp := collector.NewSerpAPICollector(serpURL, appCfg.SerpAPIKey, serpOpts)

	feedURL, feedOpts := options(trend.SourceFeed)
	feed := collector.NewRSSCollector(feedURL, feedOpts)

	if appCfg.TwitterBearerToken == "" {
		slog.Warn("Twitter credentials not configured", "source", trend.SourceSearchEngagement)
	}
	if appCfg.SerpAPIKey == "" {
		slog.Warn("SerpAPI credentials not configured", "source", trend.SourceAggregatorAPI)
	}

	return []collector.Collector{twitter, serp, feed}, twitter, serp
}
