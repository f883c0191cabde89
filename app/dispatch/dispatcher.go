// Package dispatch decides, per request, between serving a cached result and
// fetching a fresh one from the source collector.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lysyi3m/trend-comb/app/cache"
	"github.com/lysyi3m/trend-comb/app/collector"
	"github.com/lysyi3m/trend-comb/app/source"
	"github.com/lysyi3m/trend-comb/app/trend"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTrendLimit  = 20
	DefaultSearchLimit = 10
	MaxSearchLimit     = 20

	// Upstream sample for a post search, independent of the requested limit
	// so one cache entry serves every limit.
	searchFetchSize = 25

	defaultQueryCapacity = 256
)

var (
	ErrUnknownSource  = errors.New("unknown source")
	ErrSourceDisabled = errors.New("source disabled")
	ErrEmptyQuery     = errors.New("query is required")
	ErrNoRegions      = errors.New("source has no regions")
)

type Request struct {
	Source string
	Geo    string
	Limit  int // <= 0 means DefaultTrendLimit
	Offset int
	Fresh  bool // skip the cache read and always call the collector
}

type Options struct {
	Store         *cache.Store
	Configs       *source.ConfigCache
	Collectors    []collector.Collector
	Searcher      collector.TweetSearcher
	News          collector.NewsSearcher
	QueryCapacity int
	Now           func() time.Time
}

type Dispatcher struct {
	store      *cache.Store
	queries    *cache.QueryCache[*trend.SearchResult]
	configs    *source.ConfigCache
	filterer   *source.Filterer
	collectors map[trend.Source]collector.Collector
	searcher   collector.TweetSearcher
	news       collector.NewsSearcher
	now        func() time.Time

	group singleflight.Group

	mu    sync.Mutex
	slots map[string]slot // cache keys written by this process
}

type slot struct {
	source trend.Source
	geo    string
}

func New(opts Options) *Dispatcher {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	searchTTL := time.Hour
	if cfg, err := opts.Configs.GetConfig(trend.SourceSearchEngagement); err == nil && cfg.Settings.SearchTTL > 0 {
		searchTTL = cfg.Settings.SearchTTLDuration()
	}

	capacity := opts.QueryCapacity
	if capacity <= 0 {
		capacity = defaultQueryCapacity
	}

	d := &Dispatcher{
		store:      opts.Store,
		queries:    cache.NewQueryCache[*trend.SearchResult](searchTTL, capacity, now),
		configs:    opts.Configs,
		filterer:   source.NewFilterer(),
		collectors: make(map[trend.Source]collector.Collector, len(opts.Collectors)),
		searcher:   opts.Searcher,
		news:       opts.News,
		now:        now,
		slots:      make(map[string]slot),
	}
	for _, c := range opts.Collectors {
		d.collectors[c.Source()] = c
	}

	return d
}

// SlotKey names the cache slot of a source and geo. The default geo and the
// geo-less search-engagement source use the bare source name.
func SlotKey(src trend.Source, geo string) string {
	if src == trend.SourceSearchEngagement || geo == "" || geo == trend.DefaultGeo {
		return string(src)
	}
	return string(src) + "-" + strings.ToUpper(geo)
}

// GetTrends serves a fresh cached result when one exists, otherwise fetches,
// stores and returns a new one. A failed fetch is returned as is; a stale
// entry is never served in its place.
func (d *Dispatcher) GetTrends(ctx context.Context, req Request) (*trend.Result, error) {
	src, cfg, err := d.resolve(req.Source)
	if err != nil {
		return nil, err
	}

	geo := strings.ToUpper(req.Geo)
	if geo == "" || src == trend.SourceSearchEngagement {
		geo = cfg.Settings.Geo
	}
	key := SlotKey(src, geo)

	var (
		result *trend.Result
		age    time.Duration
		cached bool
	)

	if !req.Fresh {
		var stored trend.Result
		age, cached, err = d.store.Get(ctx, key, &stored)
		if err != nil {
			slog.Warn("Cache read failed, treating as miss", "source", src, "key", key, "error", err)
			cached = false
		}
		if cached {
			slog.Debug("Cache hit", "source", src, "key", key, "age", age)
			result = stored.Clone()
		} else {
			slog.Debug("Cache miss", "source", src, "key", key)
		}
	}

	if result == nil {
		// The fetch outlives a disconnecting caller and ends at the collector timeout.
		v, err, shared := d.group.Do(key, func() (any, error) {
			return d.refresh(context.WithoutCancel(ctx), src, cfg, geo, key)
		})
		if err != nil {
			return nil, err
		}
		if shared {
			slog.Debug("Joined in-flight fetch", "source", src, "key", key)
		}
		result = v.(*trend.Result).Clone()
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultTrendLimit
	}

	trend.Normalize(result.Trends)
	result.Trends = trend.Window(result.Trends, req.Offset, limit)
	result.Count = len(result.Trends)
	result.Cached = cached
	if cached {
		seconds := int64(age / time.Second)
		result.CacheAgeSeconds = &seconds
	}

	return result, nil
}

// refresh calls the collector and writes a non-empty result back to the
// cache. The previous entry is left untouched when the collector fails.
func (d *Dispatcher) refresh(ctx context.Context, src trend.Source, cfg *source.Config, geo, key string) (*trend.Result, error) {
	start := d.now()

	result, err := d.fetch(ctx, src, collector.Params{
		Geo:        geo,
		Limit:      cfg.Settings.MaxItems,
		Categories: cfg.Categories,
		SampleSize: cfg.Settings.SampleSize,
	})
	if err != nil {
		slog.Warn("Fetch failed", "source", src, "geo", geo, "kind", trend.KindOf(err), "error", err)
		return nil, err
	}

	trend.Normalize(result.Trends)
	result.Trends = d.filterer.Run(result.Trends, cfg)
	result.Count = len(result.Trends)

	if len(result.Trends) == 0 {
		slog.Info("Fetch returned no trends, not caching", "source", src, "geo", geo)
		return result, nil
	}

	if err := d.store.Put(ctx, key, cfg.Settings.TTLDuration(), result); err != nil {
		slog.Error("Failed to store trends", "source", src, "key", key, "error", err)
	} else {
		d.mu.Lock()
		d.slots[key] = slot{source: src, geo: geo}
		d.mu.Unlock()
	}

	slog.Info("Trends fetched",
		"source", src,
		"geo", geo,
		"count", result.Count,
		"total", result.TotalAvailable,
		"duration", d.now().Sub(start))

	return result, nil
}

// fetch turns a panicking collector into an internal_error result.
func (d *Dispatcher) fetch(ctx context.Context, src trend.Source, p collector.Params) (result *trend.Result, err error) {
	c, ok := d.collectors[src]
	if !ok {
		return nil, fmt.Errorf("%w: no collector for %s", ErrSourceDisabled, src)
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = trend.NewError(src, trend.KindInternal, fmt.Errorf("collector panic: %v", r))
		}
	}()

	return c.Fetch(ctx, p)
}

func (d *Dispatcher) resolve(name string) (trend.Source, *source.Config, error) {
	src, ok := source.Resolve(name)
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}

	cfg, err := d.configs.GetConfig(src)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	if !cfg.Settings.Enabled {
		return "", nil, fmt.Errorf("%w: %s", ErrSourceDisabled, src)
	}

	return src, cfg, nil
}

// SearchQuery returns posts matching a free-text query, cached per normalized
// query in memory.
func (d *Dispatcher) SearchQuery(ctx context.Context, query string, limit int) (*trend.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	if _, _, err := d.resolve(string(trend.SourceSearchEngagement)); err != nil {
		return nil, err
	}
	if d.searcher == nil {
		return nil, fmt.Errorf("%w: no searcher configured", ErrSourceDisabled)
	}

	switch {
	case limit <= 0:
		limit = DefaultSearchLimit
	case limit > MaxSearchLimit:
		limit = MaxSearchLimit
	}

	key := cache.QueryKey(query)

	var result *trend.SearchResult
	if cached, age, ok := d.queries.Get(key); ok {
		slog.Debug("Search cache hit", "query", query, "age", age)
		result = cached.Clone()
		result.Cached = true
	} else {
		v, err, _ := d.group.Do("search:"+key, func() (any, error) {
			return d.search(context.WithoutCancel(ctx), query, key)
		})
		if err != nil {
			return nil, err
		}
		result = v.(*trend.SearchResult).Clone()
	}

	result.Tweets = trend.Window(result.Tweets, 0, limit)
	result.Count = len(result.Tweets)

	return result, nil
}

func (d *Dispatcher) search(ctx context.Context, query, key string) (result *trend.SearchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = trend.NewError(trend.SourceSearchEngagement, trend.KindInternal, fmt.Errorf("searcher panic: %v", r))
		}
	}()

	tweets, err := d.searcher.SearchTweets(ctx, query, searchFetchSize)
	if err != nil {
		slog.Warn("Search failed", "query", query, "kind", trend.KindOf(err), "error", err)
		return nil, err
	}

	result = &trend.SearchResult{
		Success:   true,
		Query:     query,
		Count:     len(tweets),
		Tweets:    tweets,
		FetchedAt: d.now(),
	}

	if len(tweets) > 0 {
		d.queries.Put(key, result)
	}

	slog.Info("Search completed", "query", query, "count", len(tweets))
	return result, nil
}

type RefreshOutcome struct {
	Source  trend.Source    `json:"source"`
	Success bool            `json:"success"`
	Count   int             `json:"count"`
	Kind    trend.ErrorKind `json:"kind,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type RefreshSummary struct {
	Success   bool             `json:"success"`
	Count     int              `json:"count"`
	Sources   []RefreshOutcome `json:"sources"`
	FetchedAt time.Time        `json:"fetched_at"`
}

// ForceRefreshAll refetches every enabled, unmetered source concurrently at
// its default geo. It succeeds only when every source does.
func (d *Dispatcher) ForceRefreshAll(ctx context.Context) *RefreshSummary {
	var targets []trend.Source
	for src, cfg := range d.configs.GetEnabledConfigs() {
		if !cfg.Settings.Metered {
			targets = append(targets, src)
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

	outcomes := make([]RefreshOutcome, len(targets))

	var wg sync.WaitGroup
	for i, src := range targets {
		wg.Add(1)
		go func(i int, src trend.Source) {
			defer wg.Done()
			outcome := RefreshOutcome{Source: src}

			result, err := d.GetTrends(ctx, Request{Source: string(src), Fresh: true})
			if err != nil {
				outcome.Kind = trend.KindOf(err)
				outcome.Error = err.Error()
			} else {
				outcome.Success = true
				outcome.Count = result.Count
			}
			outcomes[i] = outcome
		}(i, src)
	}
	wg.Wait()

	summary := &RefreshSummary{
		Success:   len(outcomes) > 0,
		Sources:   outcomes,
		FetchedAt: d.now(),
	}
	for _, o := range outcomes {
		summary.Count += o.Count
		if !o.Success {
			summary.Success = false
		}
	}

	slog.Info("Refresh completed", "sources", len(outcomes), "count", summary.Count, "success", summary.Success)
	return summary
}

type SlotStatus struct {
	Key        string       `json:"key"`
	Source     trend.Source `json:"source"`
	Geo        string       `json:"geo"`
	Present    bool         `json:"present"`
	Fresh      bool         `json:"fresh"`
	AgeSeconds *int64       `json:"age_seconds,omitempty"`
	TTLSeconds int64        `json:"ttl_seconds"`
}

type CacheReport struct {
	Slots         []SlotStatus `json:"slots"`
	SearchEntries int          `json:"search_entries"`
}

// CacheStatus reports the age and freshness of every known slot, stale ones
// included.
func (d *Dispatcher) CacheStatus(ctx context.Context) (*CacheReport, error) {
	known := make(map[string]slot)
	for src, cfg := range d.configs.GetConfigs() {
		known[SlotKey(src, cfg.Settings.Geo)] = slot{source: src, geo: cfg.Settings.Geo}
	}
	d.mu.Lock()
	for key, s := range d.slots {
		known[key] = s
	}
	d.mu.Unlock()

	keys := make([]string, 0, len(known))
	for key := range known {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	report := &CacheReport{
		Slots:         make([]SlotStatus, 0, len(keys)),
		SearchEntries: d.queries.Len(),
	}

	for _, key := range keys {
		s := known[key]
		status := SlotStatus{Key: key, Source: s.source, Geo: s.geo}

		entry, err := d.store.Peek(ctx, key)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			now := d.store.Now()
			age := int64(entry.Age(now) / time.Second)
			status.Present = true
			status.Fresh = entry.IsFresh(now)
			status.AgeSeconds = &age
			status.TTLSeconds = int64(entry.TTL / time.Second)
		} else if cfg, err := d.configs.GetConfig(s.source); err == nil {
			status.TTLSeconds = int64(cfg.Settings.TTL)
		}

		report.Slots = append(report.Slots, status)
	}

	return report, nil
}
