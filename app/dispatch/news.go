package dispatch

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/trend-comb/app/trend"
)

// TrendNews returns the articles behind a trending search of the aggregator
// source. Non-empty results share the aggregator's cache and TTL.
func (d *Dispatcher) TrendNews(ctx context.Context, pageToken string) (*trend.NewsResult, error) {
	pageToken = strings.TrimSpace(pageToken)
	if pageToken == "" {
		return nil, fmt.Errorf("%w: page_token", ErrEmptyQuery)
	}

	src, cfg, err := d.resolve(string(trend.SourceAggregatorAPI))
	if err != nil {
		return nil, err
	}
	if d.news == nil {
		return nil, fmt.Errorf("%w: no news lookup configured", ErrSourceDisabled)
	}

	key := NewsKey(pageToken)

	var stored trend.NewsResult
	age, ok, err := d.store.Get(ctx, key, &stored)
	if err != nil {
		slog.Warn("Cache read failed, treating as miss", "source", src, "key", key, "error", err)
		ok = false
	}
	if ok {
		slog.Debug("News cache hit", "key", key, "age", age)
		stored.Cached = true
		return &stored, nil
	}

	v, err, _ := d.group.Do("news:"+key, func() (any, error) {
		return d.lookupNews(context.WithoutCancel(ctx), pageToken, key, cfg.Settings.TTLDuration())
	})
	if err != nil {
		return nil, err
	}

	result := *v.(*trend.NewsResult)
	result.News = append([]json.RawMessage(nil), result.News...)
	return &result, nil
}

// NewsKey names the cache entry of one news page token. Tokens are
// case-sensitive.
func NewsKey(pageToken string) string {
	sum := md5.Sum([]byte(pageToken))
	return string(trend.SourceAggregatorAPI) + "-news-" + hex.EncodeToString(sum[:])
}

func (d *Dispatcher) lookupNews(ctx context.Context, pageToken, key string, ttl time.Duration) (result *trend.NewsResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = trend.NewError(trend.SourceAggregatorAPI, trend.KindInternal, fmt.Errorf("news lookup panic: %v", r))
		}
	}()

	news, err := d.news.TrendNews(ctx, pageToken)
	if err != nil {
		slog.Warn("News lookup failed", "kind", trend.KindOf(err), "error", err)
		return nil, err
	}
	if news == nil {
		news = []json.RawMessage{}
	}

	result = &trend.NewsResult{
		Success:   true,
		PageToken: pageToken,
		Count:     len(news),
		News:      news,
		FetchedAt: d.now(),
	}

	if len(news) > 0 {
		if err := d.store.Put(ctx, key, ttl, result); err != nil {
			slog.Error("Failed to store news", "key", key, "error", err)
		}
	}

	slog.Info("News fetched", "count", len(news))
	return result, nil
}
