package collector

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/lysyi3m/trend-comb/app/trend"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

const (
	DefaultFeedURL     = "https://trends.google.com/trending/rss"
	maxRelatedArticles = 3
)

// DefaultRegions are merged when a multi-region request names no geos.
var DefaultRegions = []string{"US", "GB", "CA"}

type RelatedArticle struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source string `json:"source,omitempty"`
}

// RSSCollector reads the public trending feed. Document order is the rank
// order, so the first item scores highest.
type RSSCollector struct {
	feedURL string
	parser  *gofeed.Parser
	opts    HTTPOptions
}

func NewRSSCollector(feedURL string, opts HTTPOptions) *RSSCollector {
	return &RSSCollector{
		feedURL: cmp.Or(feedURL, DefaultFeedURL),
		parser:  gofeed.NewParser(),
		opts:    opts.withDefaults(10 * time.Second),
	}
}

func (c *RSSCollector) Source() trend.Source {
	return trend.SourceFeed
}

func (c *RSSCollector) Fetch(ctx context.Context, p Params) (*trend.Result, error) {
	geo := geoOrDefault(p.Geo)

	feedURL, err := url.Parse(c.feedURL)
	if err != nil {
		return nil, trend.NewError(c.Source(), trend.KindNetwork, fmt.Errorf("invalid feed url: %w", err))
	}
	query := feedURL.Query()
	query.Set("geo", geo)
	feedURL.RawQuery = query.Encode()

	data, err := fetch(ctx, c.Source(), c.opts, feedURL.String(), nil)
	if err != nil {
		return nil, err
	}

	feed, err := c.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, trend.NewError(c.Source(), trend.KindParse, fmt.Errorf("failed to parse feed: %w", err))
	}

	if len(feed.Items) == 0 {
		return nil, trend.NewError(c.Source(), trend.KindEmptyResult, nil)
	}

	items := feed.Items
	if p.Limit > 0 && len(items) > p.Limit {
		items = items[:p.Limit]
	}

	now := c.opts.Now()
	records := make([]trend.Record, 0, len(items))
	for i, item := range items {
		records = append(records, trend.Record{
			Rank:      i + 1,
			Topic:     cmp.Or(strings.TrimSpace(item.Title), "Unknown"),
			Source:    c.Source(),
			Geo:       geo,
			Score:     int64(len(feed.Items) - i),
			Timestamp: now,
			Metadata:  itemMetadata(item),
		})
	}

	return &trend.Result{
		Success:        true,
		Count:          len(records),
		TotalAvailable: len(feed.Items),
		Source:         c.Source(),
		Geo:            geo,
		Trends:         records,
		FetchedAt:      now,
	}, nil
}

// MergeRegions concatenates per-region trends ordered by rank, then geo, so
// the leaders of every region come first. Ranks are kept as each region
// reported them.
func MergeRegions(results []*trend.Result) []trend.Record {
	var merged []trend.Record
	for _, result := range results {
		if result != nil {
			merged = append(merged, result.Trends...)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Rank != merged[j].Rank {
			return merged[i].Rank < merged[j].Rank
		}
		return merged[i].Geo < merged[j].Geo
	})

	if merged == nil {
		return []trend.Record{}
	}
	return merged
}

func itemMetadata(item *gofeed.Item) trend.Metadata {
	var meta trend.Metadata

	_ = meta.Set("url", nullable(item.Link))
	_ = meta.Set("pub_date", nullable(item.Published))
	_ = meta.Set("approximate_traffic", nullable(extensionValue(item.Extensions, "approx_traffic")))

	if picture := extensionValue(item.Extensions, "picture"); picture != "" {
		_ = meta.Set("picture", picture)
	}
	if source := extensionValue(item.Extensions, "picture_source"); source != "" {
		_ = meta.Set("picture_source", source)
	}

	articles := make([]RelatedArticle, 0, maxRelatedArticles)
	for _, news := range extensionsNamed(item.Extensions, "news_item") {
		if len(articles) == maxRelatedArticles {
			break
		}
		title := childValue(news, "news_item_title")
		link := childValue(news, "news_item_url")
		if title == "" || link == "" {
			continue
		}
		articles = append(articles, RelatedArticle{
			Title:  title,
			URL:    link,
			Source: childValue(news, "news_item_source"),
		})
	}
	_ = meta.Set("related_articles", articles)

	return meta
}

// extensionsNamed collects namespaced elements by local name regardless of
// the prefix the document bound to the namespace.
func extensionsNamed(exts ext.Extensions, name string) []ext.Extension {
	var found []ext.Extension
	for _, byName := range exts {
		found = append(found, byName[name]...)
	}
	return found
}

func extensionValue(exts ext.Extensions, name string) string {
	for _, e := range extensionsNamed(exts, name) {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

func childValue(e ext.Extension, name string) string {
	for _, child := range e.Children[name] {
		if v := strings.TrimSpace(child.Value); v != "" {
			return v
		}
	}
	return ""
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
