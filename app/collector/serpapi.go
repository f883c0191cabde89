package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/lysyi3m/trend-comb/app/trend"
)

const DefaultSerpAPIBaseURL = "https://serpapi.com/search.json"

var quotaMarkers = []string{"run out of searches", "quota", "rate limit", "too many requests"}

// SerpAPICollector reads the pre-ranked "trending now" list of a metered
// aggregator. Upstream order is the rank order.
type SerpAPICollector struct {
	baseURL string
	apiKey  string
	opts    HTTPOptions
}

func NewSerpAPICollector(baseURL, apiKey string, opts HTTPOptions) *SerpAPICollector {
	if baseURL == "" {
		baseURL = DefaultSerpAPIBaseURL
	}
	return &SerpAPICollector{
		baseURL: baseURL,
		apiKey:  apiKey,
		opts:    opts.withDefaults(15 * time.Second),
	}
}

func (c *SerpAPICollector) Source() trend.Source {
	return trend.SourceAggregatorAPI
}

func (c *SerpAPICollector) Fetch(ctx context.Context, p Params) (*trend.Result, error) {
	if c.apiKey == "" {
		return nil, trend.NewError(c.Source(), trend.KindCredentialsMissing, nil)
	}

	geo := geoOrDefault(p.Geo)

	params := url.Values{}
	params.Set("engine", "google_trends_trending_now")
	params.Set("geo", geo)
	params.Set("api_key", c.apiKey)

	data, err := fetch(ctx, c.Source(), c.opts, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var body struct {
		Error            string            `json:"error"`
		TrendingSearches []json.RawMessage `json:"trending_searches"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, trend.NewError(c.Source(), trend.KindParse, fmt.Errorf("failed to decode response: %w", err))
	}

	// A declared error fails the call even though the status was 200.
	if body.Error != "" {
		return nil, c.declaredError(body.Error)
	}

	now := c.opts.Now()
	total := len(body.TrendingSearches)
	slog.Info("Trending searches received", "source", c.Source(), "geo", geo, "total_available", total)

	items := body.TrendingSearches
	if p.Limit > 0 && len(items) > p.Limit {
		items = items[:p.Limit]
	}

	records := make([]trend.Record, 0, len(items))
	for i, raw := range items {
		record, err := c.record(raw, i+1, geo, now)
		if err != nil {
			return nil, trend.NewError(c.Source(), trend.KindParse, fmt.Errorf("failed to decode trend %d: %w", i+1, err))
		}
		records = append(records, record)
	}

	result := &trend.Result{
		Success:        true,
		Count:          len(records),
		TotalAvailable: total,
		Source:         c.Source(),
		Geo:            geo,
		Trends:         records,
		FetchedAt:      now,
	}
	if total == 0 {
		result.Warnings = []string{string(trend.KindEmptyResult) + ": no trending searches returned"}
	}

	return result, nil
}

// record keeps the upstream object verbatim as metadata and lifts the query
// and search volume into the common fields.
func (c *SerpAPICollector) record(raw json.RawMessage, rank int, geo string, now time.Time) (trend.Record, error) {
	var meta trend.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return trend.Record{}, err
	}

	var fields struct {
		Query        string  `json:"query"`
		SearchVolume float64 `json:"search_volume"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return trend.Record{}, err
	}

	return trend.Record{
		Rank:      rank,
		Topic:     fields.Query,
		Source:    c.Source(),
		Geo:       geo,
		Score:     int64(fields.SearchVolume),
		Timestamp: now,
		Metadata:  meta,
	}, nil
}

// TrendNews returns the news articles behind a trending search, identified by
// the news_page_token of a trending_searches item. Articles pass through
// verbatim.
func (c *SerpAPICollector) TrendNews(ctx context.Context, pageToken string) ([]json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, trend.NewError(c.Source(), trend.KindCredentialsMissing, nil)
	}

	params := url.Values{}
	params.Set("engine", "google_trends_news")
	params.Set("page_token", pageToken)
	params.Set("api_key", c.apiKey)

	data, err := fetch(ctx, c.Source(), c.opts, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var body struct {
		Error       string            `json:"error"`
		NewsResults []json.RawMessage `json:"news_results"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, trend.NewError(c.Source(), trend.KindParse, fmt.Errorf("failed to decode response: %w", err))
	}
	if body.Error != "" {
		return nil, c.declaredError(body.Error)
	}

	slog.Debug("Trend news received", "source", c.Source(), "count", len(body.NewsResults))

	return append(make([]json.RawMessage, 0, len(body.NewsResults)), body.NewsResults...), nil
}

func (c *SerpAPICollector) declaredError(msg string) error {
	kind := trend.KindUpstreamAPI
	if isQuotaError(msg) {
		kind = trend.KindRateLimited
	}
	return &trend.Error{Kind: kind, Source: c.Source(), Detail: msg}
}

func isQuotaError(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
